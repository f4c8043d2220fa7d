// Package yamldir loads workflow definitions from a directory of YAML or
// JSON files.
package yamldir

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aescanero/markflow/pkg/domain"
	"github.com/aescanero/markflow/pkg/ports"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Parse decodes one workflow definition. YAML is converted to its JSON form
// first so that both formats share the same decoding rules, including the
// bare-string shorthand for pool references.
func Parse(data []byte) (*domain.WorkflowDefinition, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	jsonData, err := json.Marshal(normalize(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to convert workflow: %w", err)
	}

	var def domain.WorkflowDefinition
	if err := json.Unmarshal(jsonData, &def); err != nil {
		return nil, fmt.Errorf("failed to decode workflow: %w", err)
	}
	return &def, nil
}

// normalize turns yaml.v3 maps with non-string keys into JSON-compatible maps
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, x := range t {
			out[k] = normalize(x)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, x := range t {
			out[fmt.Sprint(k)] = normalize(x)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, x := range t {
			out[i] = normalize(x)
		}
		return out
	default:
		return v
	}
}

// LoadDir parses every .yaml, .yml and .json file of dir, sorted by name.
// A definition without an ID takes the file name without extension.
func LoadDir(dir string) ([]*domain.WorkflowDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	defs := make([]*domain.WorkflowDefinition, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		def, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if def.ID == "" {
			def.ID = strings.TrimSuffix(name, filepath.Ext(name))
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Seed loads dir and saves every definition into store.
func Seed(ctx context.Context, dir string, store ports.WorkflowStore, logger *zap.Logger) (int, error) {
	defs, err := LoadDir(dir)
	if err != nil {
		return 0, err
	}

	for _, def := range defs {
		if err := store.SaveWorkflow(ctx, def); err != nil {
			return 0, fmt.Errorf("failed to save workflow %s: %w", def.ID, err)
		}
		logger.Info("workflow loaded",
			zap.String("workflow_id", def.ID),
			zap.Int("tasks", len(def.Tasks)))
	}
	return len(defs), nil
}
