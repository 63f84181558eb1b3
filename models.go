package chatstream

import "maps"

// ModelInfo holds pricing, context window and capability metadata.
type ModelInfo struct {
	MaxTokens     int `yaml:"max_tokens" json:"max_tokens,omitempty"`
	ContextWindow int `yaml:"context_window" json:"context_window,omitempty"`

	// Prices are USD per million tokens.
	InputPrice  float64 `yaml:"input_price" json:"input_price,omitempty"`
	OutputPrice float64 `yaml:"output_price" json:"output_price,omitempty"`

	SupportsVision bool   `yaml:"supports_vision" json:"supports_vision,omitempty"`
	SupportsTools  bool   `yaml:"supports_tools" json:"supports_tools,omitempty"`
	SupportsJSON   bool   `yaml:"supports_json" json:"supports_json,omitempty"`
	Description    string `yaml:"description" json:"description,omitempty"`
}

// Cost computes the dollar cost of usage at this model's prices.
func (i ModelInfo) Cost(u Usage) float64 {
	return (float64(u.InputTokens)*i.InputPrice + float64(u.OutputTokens)*i.OutputPrice) / 1e6
}

// Model pairs a model id with its metadata.
type Model struct {
	ID   string
	Info ModelInfo
}

// ModelTable is a static mapping from model id to metadata with a default
// entry. Default must be a key of Models.
type ModelTable struct {
	Default string
	Models  map[string]ModelInfo
}

// Resolve returns the configured id when it is a key of the table and the
// default otherwise. Info always comes from the table.
func (t ModelTable) Resolve(id string) Model {
	if info, ok := t.Models[id]; ok && id != "" {
		return Model{ID: id, Info: info}
	}
	return Model{ID: t.Default, Info: t.Models[t.Default]}
}

// Has reports whether id is a key of the table.
func (t ModelTable) Has(id string) bool {
	_, ok := t.Models[id]
	return ok
}

// With returns a copy of the table with id registered. The receiver is not
// modified, so package-level tables can be extended per adapter instance.
func (t ModelTable) With(id string, info ModelInfo) ModelTable {
	models := make(map[string]ModelInfo, len(t.Models)+1)
	maps.Copy(models, t.Models)
	models[id] = info
	return ModelTable{Default: t.Default, Models: models}
}
