// Package persona holds Lumi's voice: the persona definitions (style
// instructions, keyword tables, phrase variations) loaded from an embedded
// YAML config, the keyword classifier that picks a persona for each
// message, and the per-user emotion continuity cache.
//
// The config file is validated against a JSON schema at load time so a
// malformed edit fails at startup instead of producing a silently broken
// persona at reply time.
package persona

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var embeddedConfig []byte

//go:embed schema.json
var embeddedSchema []byte

// Persona is one voice Lumi can speak in. Name doubles as the emotion
// tag written to memory records for exchanges classified into it.
type Persona struct {
	// Name is the persona identifier, e.g. "healing".
	Name string `yaml:"name"`

	// Style is the system instruction describing how this persona speaks.
	Style string `yaml:"style"`

	// Keywords trigger classification into this persona. The default
	// persona carries no keywords; it wins when nothing else matches.
	Keywords []string `yaml:"keywords"`

	// Greetings, Endings, Emojis, and Tones are phrase variation pools
	// sampled during prompt construction to keep replies from sounding
	// templated.
	Greetings []string `yaml:"greetings"`
	Endings   []string `yaml:"endings"`
	Emojis    []string `yaml:"emojis"`
	Tones     []string `yaml:"tones"`
}

// Config is the full persona configuration.
type Config struct {
	Version       int       `yaml:"version"`
	Default       string    `yaml:"default"`
	FallbackReply string    `yaml:"fallback_reply"`
	Personas      []Persona `yaml:"personas"`

	byName map[string]*Persona
}

// Load parses and validates a persona config document.
func Load(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("persona: parse config: %w", err)
	}

	cfg.byName = make(map[string]*Persona, len(cfg.Personas))
	for i := range cfg.Personas {
		p := &cfg.Personas[i]
		if _, dup := cfg.byName[p.Name]; dup {
			return nil, fmt.Errorf("persona: duplicate persona %q", p.Name)
		}
		cfg.byName[p.Name] = p
	}
	if _, ok := cfg.byName[cfg.Default]; !ok {
		return nil, fmt.Errorf("persona: default %q is not a defined persona", cfg.Default)
	}
	return &cfg, nil
}

// LoadEmbedded loads the config compiled into the binary.
func LoadEmbedded() (*Config, error) {
	return Load(embeddedConfig)
}

// Get returns the named persona, or the default when the name is unknown
// or empty.
func (c *Config) Get(name string) *Persona {
	if p, ok := c.byName[name]; ok {
		return p
	}
	return c.byName[c.Default]
}

// Names returns all defined persona names in config order.
func (c *Config) Names() []string {
	names := make([]string, len(c.Personas))
	for i, p := range c.Personas {
		names[i] = p.Name
	}
	return names
}

// validateSchema checks the YAML document against the embedded JSON
// schema. The YAML value is round-tripped through encoding/json first
// because the schema library validates JSON-shaped values.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("persona: parse config: %w", err)
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("persona: normalize config: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(normalized, &jsonDoc); err != nil {
		return fmt.Errorf("persona: normalize config: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("personas.schema.json", bytes.NewReader(embeddedSchema)); err != nil {
		return fmt.Errorf("persona: load schema: %w", err)
	}
	schema, err := compiler.Compile("personas.schema.json")
	if err != nil {
		return fmt.Errorf("persona: compile schema: %w", err)
	}

	if err := schema.Validate(jsonDoc); err != nil {
		return fmt.Errorf("persona: config rejected by schema: %w", err)
	}
	return nil
}

// Variation picks an element from pool using the given index, wrapping
// around. A negative index or empty pool yields the empty string.
// Callers that want variety pass a per-message hash; tests pass fixed
// indices for determinism.
func Variation(pool []string, index int) string {
	if len(pool) == 0 || index < 0 {
		return ""
	}
	return pool[index%len(pool)]
}
