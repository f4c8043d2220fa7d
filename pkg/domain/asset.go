package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// AssetRef points at a file held by the file store.
type AssetRef struct {
	ID        string `json:"id"`
	Processor string `json:"processor,omitempty"`
	Type      string `json:"type,omitempty"`
}

// UnmarshalJSON accepts the id as a string or a number; callers often send
// the store's numeric primary key.
func (a *AssetRef) UnmarshalJSON(data []byte) error {
	type plain AssetRef
	var raw struct {
		plain
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = AssetRef(raw.plain)

	id := bytes.TrimSpace(raw.ID)
	switch {
	case len(id) == 0 || bytes.Equal(id, []byte("null")):
		a.ID = ""
	case id[0] == '"':
		return json.Unmarshal(id, &a.ID)
	default:
		f, err := strconv.ParseFloat(string(id), 64)
		if err != nil {
			return fmt.Errorf("asset id must be a string or a number, got %s", id)
		}
		a.ID = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return nil
}

// URLRef points at a remote file or page.
type URLRef struct {
	URL       string `json:"url"`
	Processor string `json:"processor,omitempty"`
	Type      string `json:"type,omitempty"`
}

// FileInfo is what the file store knows about a stored file.
type FileInfo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Name     string `json:"name,omitempty"`
}

// ResolvedFile is a local artifact produced by the asset resolver.
type ResolvedFile struct {
	FilePath  string `json:"filePath"`
	MimeType  string `json:"mimeType"`
	Processor string `json:"processor,omitempty"`
	Type      string `json:"type,omitempty"`
	Source    string `json:"source,omitempty"`
}

// AssetFailure records a reference that could not be resolved.
type AssetFailure struct {
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}
