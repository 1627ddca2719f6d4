package persona

import "strings"

// Classifier assigns a persona to each incoming message by keyword
// matching against the config's persona tables.
//
// The rules are deliberately simple. Personas are checked in config
// order and the first keyword hit wins, so a message that is both sad
// and questioning classifies by whichever persona appears first in the
// config. Messages with no hits fall through to the default persona.
type Classifier struct {
	cfg *Config
}

// NewClassifier creates a Classifier over the given config.
func NewClassifier(cfg *Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify returns the persona for the message. Matching is
// case-insensitive substring containment, which handles both the
// Chinese keywords (no case) and the English ones.
func (c *Classifier) Classify(message string) *Persona {
	lowered := strings.ToLower(message)
	for i := range c.cfg.Personas {
		p := &c.cfg.Personas[i]
		for _, kw := range p.Keywords {
			if strings.Contains(lowered, strings.ToLower(kw)) {
				return p
			}
		}
	}
	return c.cfg.Get(c.cfg.Default)
}
