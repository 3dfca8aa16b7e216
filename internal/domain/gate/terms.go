package gate

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed terms.yaml
var termsYAML []byte

// Terms is the recording notice shown before the call.
type Terms struct {
	Version string   `yaml:"version" json:"version"`
	Title   string   `yaml:"title" json:"title"`
	Items   []string `yaml:"items" json:"items"`
	Accept  string   `yaml:"accept" json:"accept"`
	Decline string   `yaml:"decline" json:"decline"`
}

// ParseTerms decodes a notice and checks it is complete.
func ParseTerms(data []byte) (Terms, error) {
	var t Terms
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Terms{}, fmt.Errorf("parse terms: %w", err)
	}
	if t.Version == "" || t.Title == "" || len(t.Items) == 0 {
		return Terms{}, fmt.Errorf("terms need a version, a title and at least one item")
	}
	return t, nil
}

// DefaultTerms returns the embedded notice.
func DefaultTerms() Terms {
	t, err := ParseTerms(termsYAML)
	if err != nil {
		panic(err)
	}
	return t
}
