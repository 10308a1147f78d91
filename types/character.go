package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// MessageExample is one turn of an example conversation.
type MessageExample struct {
	User    string  `json:"user" yaml:"user"`
	Content Content `json:"content" yaml:"content"`
}

// KnowledgeSource is one knowledge entry of a character: literal text, a file path or a directory.
type KnowledgeSource struct {
	Text      string `json:"-" yaml:"-"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Directory string `json:"directory,omitempty" yaml:"directory,omitempty"`
	Shared    bool   `json:"shared,omitempty" yaml:"shared,omitempty"`
}

// IsText reports whether the entry is literal knowledge text.
func (k KnowledgeSource) IsText() bool { return k.Path == "" && k.Directory == "" }

type knowledgeSourceObject struct {
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Directory string `json:"directory,omitempty" yaml:"directory,omitempty"`
	Shared    bool   `json:"shared,omitempty" yaml:"shared,omitempty"`
}

// UnmarshalJSON accepts either a bare string or a {path|directory, shared} object.
func (k *KnowledgeSource) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = KnowledgeSource{Text: s}
		return nil
	}
	var obj knowledgeSourceObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("knowledge source: %w", err)
	}
	return k.fromObject(obj)
}

// MarshalJSON mirrors UnmarshalJSON.
func (k KnowledgeSource) MarshalJSON() ([]byte, error) {
	if k.IsText() {
		return json.Marshal(k.Text)
	}
	return json.Marshal(knowledgeSourceObject{Path: k.Path, Directory: k.Directory, Shared: k.Shared})
}

// UnmarshalYAML accepts the same two forms as UnmarshalJSON.
func (k *KnowledgeSource) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*k = KnowledgeSource{Text: node.Value}
		return nil
	}
	var obj knowledgeSourceObject
	if err := node.Decode(&obj); err != nil {
		return fmt.Errorf("knowledge source: %w", err)
	}
	return k.fromObject(obj)
}

func (k *KnowledgeSource) fromObject(obj knowledgeSourceObject) error {
	if obj.Path == "" && obj.Directory == "" {
		return errors.New("knowledge source: object needs path or directory")
	}
	*k = KnowledgeSource{Path: obj.Path, Directory: obj.Directory, Shared: obj.Shared}
	return nil
}

// ModelConfig overrides per-call generation parameters.
type ModelConfig struct {
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty" yaml:"maxOutputTokens,omitempty"`
	MaxInputTokens   int      `json:"maxInputTokens,omitempty" yaml:"maxInputTokens,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty" yaml:"presence_penalty,omitempty"`
}

// EmbeddingSettings selects the embedding provider of a character.
type EmbeddingSettings struct {
	Provider   string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// CharacterSettings holds secrets and model tuning.
type CharacterSettings struct {
	Secrets      map[string]string  `json:"secrets,omitempty" yaml:"secrets,omitempty"`
	Model        string             `json:"model,omitempty" yaml:"model,omitempty"`
	ModelConfig  *ModelConfig       `json:"modelConfig,omitempty" yaml:"modelConfig,omitempty"`
	Embedding    *EmbeddingSettings `json:"embedding,omitempty" yaml:"embedding,omitempty"`
	RAGKnowledge bool               `json:"ragKnowledge,omitempty" yaml:"ragKnowledge,omitempty"`
}

// Style lists writing directions for chat and post contexts.
type Style struct {
	All  []string `json:"all,omitempty" yaml:"all,omitempty"`
	Chat []string `json:"chat,omitempty" yaml:"chat,omitempty"`
	Post []string `json:"post,omitempty" yaml:"post,omitempty"`
}

// Character is the persona configuration an agent runs with.
type Character struct {
	ID                       string             `json:"id,omitempty" yaml:"id,omitempty"`
	Name                     string             `json:"name" yaml:"name"`
	Username                 string             `json:"username,omitempty" yaml:"username,omitempty"`
	System                   string             `json:"system,omitempty" yaml:"system,omitempty"`
	ModelProvider            string             `json:"modelProvider" yaml:"modelProvider"`
	ImageModelProvider       string             `json:"imageModelProvider,omitempty" yaml:"imageModelProvider,omitempty"`
	ImageVisionModelProvider string             `json:"imageVisionModelProvider,omitempty" yaml:"imageVisionModelProvider,omitempty"`
	ModelEndpointOverride    string             `json:"modelEndpointOverride,omitempty" yaml:"modelEndpointOverride,omitempty"`
	Templates                map[string]string  `json:"templates,omitempty" yaml:"templates,omitempty"`
	Bio                      []string           `json:"bio" yaml:"bio"`
	Lore                     []string           `json:"lore" yaml:"lore"`
	MessageExamples          [][]MessageExample `json:"messageExamples,omitempty" yaml:"messageExamples,omitempty"`
	PostExamples             []string           `json:"postExamples,omitempty" yaml:"postExamples,omitempty"`
	Topics                   []string           `json:"topics,omitempty" yaml:"topics,omitempty"`
	Adjectives               []string           `json:"adjectives,omitempty" yaml:"adjectives,omitempty"`
	Knowledge                []KnowledgeSource  `json:"knowledge,omitempty" yaml:"knowledge,omitempty"`
	Plugins                  []string           `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	Settings                 CharacterSettings  `json:"settings,omitempty" yaml:"settings,omitempty"`
	Style                    Style              `json:"style,omitempty" yaml:"style,omitempty"`
}

// Validate performs the basic field checks the runtime depends on.
func (c *Character) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("character: name is required"))
	}
	if c.ModelProvider == "" {
		errs = append(errs, errors.New("character: modelProvider is required"))
	}
	return errors.Join(errs...)
}

// Secret looks up a character-scoped secret.
func (c *Character) Secret(key string) string {
	if c == nil || c.Settings.Secrets == nil {
		return ""
	}
	return c.Settings.Secrets[key]
}

// Template returns the override for name, or "" when the character keeps the default.
func (c *Character) Template(name string) string {
	if c == nil || c.Templates == nil {
		return ""
	}
	return c.Templates[name]
}
