package domain

// ResponseFormatJSON asks the model for a single JSON object.
const ResponseFormatJSON = "json_object"

// LLMRequest is a provider-neutral completion request.
type LLMRequest struct {
	Model          string    `json:"model"`
	System         string    `json:"system,omitempty"`
	Messages       []Message `json:"messages"`
	Temperature    float64   `json:"temperature"`
	MaxTokens      int       `json:"max_tokens"`
	ResponseFormat string    `json:"response_format,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is inline binary content sent with a message.
type Attachment struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// LLMResponse is a provider-neutral completion result.
type LLMResponse struct {
	Content    string `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason,omitempty"`
	Usage      Usage  `json:"usage"`
}

// Usage reports token consumption of a call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
