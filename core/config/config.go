// Package config holds the statically-declared configuration structs for
// preprocessing and the model. Validation is a pure function over a
// fully-constructed struct, invoked once before use; there is no runtime
// attribute introspection.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/adalundhe/sentgraph/core/neural"
)

// Config is the root of the on-disk configuration file.
type Config struct {
	Preprocessing PreprocessingConfig `yaml:"preprocessing"`
	Model         ModelConfig         `yaml:"model"`
	Cache         CacheConfig         `yaml:"cache"`
}

// PreprocessingConfig drives the dataset stages.
type PreprocessingConfig struct {
	DatasetDir  string `yaml:"dataset_dir"`
	TextColumn  string `yaml:"text_column"`
	LabelColumn string `yaml:"label_column"`
	LowerCase   bool   `yaml:"lower_case"`
	UnkThres    int    `yaml:"unk_thres"`
	Undirected  bool   `yaml:"undirected"`
}

// ModelConfig sizes the encoder and classifier head.
type ModelConfig struct {
	EmbedDim         int     `yaml:"embed_dim"`
	NumHeads         int     `yaml:"num_heads"`
	NumLayers        int     `yaml:"num_layers"`
	FFHidden         int     `yaml:"ff_hidden"`
	Residual         string  `yaml:"residual"`
	AttentionDropout float32 `yaml:"attention_dropout"`
	FeatureDropout   float32 `yaml:"feature_dropout"`
	UseEdgeKeyBias   bool    `yaml:"use_edge_key_bias"`
	UseEdgeValueBias bool    `yaml:"use_edge_value_bias"`

	// Seed feeds every randomized initialization; no global rand state is
	// touched anywhere.
	Seed int64 `yaml:"seed"`
}

// CacheConfig locates the preprocessing cache.
type CacheConfig struct {
	Dir    string `yaml:"dir"`
	Ignore bool   `yaml:"ignore"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Preprocessing: PreprocessingConfig{
			TextColumn:  "sentence",
			LabelColumn: "label",
			LowerCase:   true,
			UnkThres:    1,
			Undirected:  true,
		},
		Model: ModelConfig{
			EmbedDim:         256,
			NumHeads:         4,
			NumLayers:        4,
			FFHidden:         1024,
			Residual:         string(neural.ResidualRezero),
			AttentionDropout: 0.1,
			FeatureDropout:   0.3,
			UseEdgeKeyBias:   true,
			Seed:             0,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the whole tree, wrapping the first violation found.
func (c *Config) Validate() error {
	if err := c.Preprocessing.Validate(); err != nil {
		return err
	}
	return c.Model.Validate()
}

// Validate checks the preprocessing section.
func (c PreprocessingConfig) Validate() error {
	if c.TextColumn == "" || c.LabelColumn == "" {
		return fmt.Errorf("config: text and label columns must be named")
	}
	if c.UnkThres < 1 {
		return fmt.Errorf("config: unk_thres %d below 1", c.UnkThres)
	}
	return nil
}

// Validate checks the model section by rendering it to the neural
// configuration and reusing that package's validation. The edge type count
// is dataset-dependent and checked again at encoder construction; a
// placeholder count of one stands in here.
func (c ModelConfig) Validate() error {
	return c.EncoderConfig(1).Validate()
}

// EncoderConfig renders the section into the neural package's
// configuration for a dataset with the given edge type count.
func (c ModelConfig) EncoderConfig(numEdgeTypes int) neural.EncoderConfig {
	return neural.EncoderConfig{
		Attention: neural.AttentionConfig{
			EmbedDim:         c.EmbedDim,
			NumHeads:         c.NumHeads,
			NumEdgeTypes:     numEdgeTypes,
			AttentionDropout: c.AttentionDropout,
			UseEdgeKeyBias:   c.UseEdgeKeyBias,
			UseEdgeValueBias: c.UseEdgeValueBias,
		},
		NumLayers: c.NumLayers,
		FFHidden:  c.FFHidden,
		Residual:  neural.ResidualPolicy(c.Residual),
	}
}
