package domain

// SchemaConfig points at the action schema a translator uses.
type SchemaConfig struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	SchemaFile  string `json:"schemaFile" yaml:"schemaFile"`
	SchemaType  string `json:"schemaType,omitempty" yaml:"schemaType,omitempty"`
}

// TranslatorConfig is one node of a hierarchical translator tree.
type TranslatorConfig struct {
	Schema         *SchemaConfig                `json:"schema,omitempty" yaml:"schema,omitempty"`
	SubTranslators map[string]*TranslatorConfig `json:"subTranslators,omitempty" yaml:"subTranslators,omitempty"`
}

// Manifest is the top-level translator config an agent publishes.
type Manifest struct {
	Emoji       string `json:"emojiChar,omitempty" yaml:"emojiChar,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	TranslatorConfig `yaml:",inline"`
}

// Walk visits every node of the translator tree depth first.
func (t *TranslatorConfig) Walk(fn func(*TranslatorConfig)) {
	if t == nil {
		return
	}
	fn(t)
	for _, sub := range t.SubTranslators {
		sub.Walk(fn)
	}
}
