package llm

// ModelClass groups models by capability/cost tier.
type ModelClass string

const (
	ModelClassSmall     ModelClass = "small"
	ModelClassMedium    ModelClass = "medium"
	ModelClassLarge     ModelClass = "large"
	ModelClassEmbedding ModelClass = "embedding"
	ModelClassImage     ModelClass = "image"
)

// ModelSettings are the generation defaults of one concrete model.
type ModelSettings struct {
	Name             string   `yaml:"name" json:"name"`
	MaxInputTokens   int      `yaml:"max_input_tokens" json:"maxInputTokens"`
	MaxOutputTokens  int      `yaml:"max_output_tokens" json:"maxOutputTokens"`
	Temperature      float32  `yaml:"temperature" json:"temperature"`
	FrequencyPenalty float32  `yaml:"frequency_penalty" json:"frequencyPenalty,omitempty"`
	PresencePenalty  float32  `yaml:"presence_penalty" json:"presencePenalty,omitempty"`
	Stop             []string `yaml:"stop" json:"stop,omitempty"`
	Dimensions       int      `yaml:"dimensions" json:"dimensions,omitempty"` // embedding 模型
}

// DefaultModelSettings fills the limits a model class gets when nothing is configured.
func DefaultModelSettings(class ModelClass, name string) ModelSettings {
	s := ModelSettings{
		Name:            name,
		MaxInputTokens:  128000,
		MaxOutputTokens: 8192,
		Temperature:     0.7,
	}
	switch class {
	case ModelClassSmall:
		s.Temperature = 0.6
	case ModelClassEmbedding:
		s.Dimensions = 1536
	}
	return s
}
