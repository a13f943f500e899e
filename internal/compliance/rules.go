package compliance

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/substantiate/internal/model"
)

//go:embed rules/compliance_rules.yaml
var embeddedCatalog []byte

// Catalog is a versioned set of compliance rules
type Catalog struct {
	Version string `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// Rule is one regulated-language pattern
type Rule struct {
	ID         string          `yaml:"id"`
	Category   string          `yaml:"category"`
	Severity   model.IssueType `yaml:"severity"`
	Regex      string          `yaml:"regex"`
	Unless     string          `yaml:"unless,omitempty"`
	Message    string          `yaml:"message"`
	Suggestion string          `yaml:"suggestion"`

	pattern *regexp.Regexp
	unless  *regexp.Regexp
}

// DefaultCatalog parses the catalog compiled into the binary
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(embeddedCatalog)
}

// MustDefaultCatalog is DefaultCatalog for callers that cannot recover
// from a broken embedded catalog
func MustDefaultCatalog() *Catalog {
	c, err := DefaultCatalog()
	if err != nil {
		panic(fmt.Sprintf("embedded compliance catalog: %v", err))
	}
	return c
}

// LoadCatalogFile reads and compiles a catalog from disk
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog unmarshals and validates a catalog, compiling every pattern
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	if len(c.Rules) == 0 {
		return nil, fmt.Errorf("rules catalog %q has no rules", c.Version)
	}

	seen := make(map[string]bool)
	for i := range c.Rules {
		r := &c.Rules[i]
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d has no id", i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate rule id %s", r.ID)
		}
		seen[r.ID] = true

		if !r.Severity.Valid() {
			return nil, fmt.Errorf("rule %s: invalid severity %q", r.ID, r.Severity)
		}

		re, err := regexp.Compile(r.Regex)
		if err != nil {
			return nil, fmt.Errorf("rule %s: compile regex: %w", r.ID, err)
		}
		r.pattern = re

		if r.Unless != "" {
			unless, err := regexp.Compile(r.Unless)
			if err != nil {
				return nil, fmt.Errorf("rule %s: compile unless: %w", r.ID, err)
			}
			r.unless = unless
		}
	}

	return &c, nil
}

// matches returns every matched span of the rule in text
func (r *Rule) matches(text string) []string {
	if r.unless != nil && r.unless.MatchString(text) {
		return nil
	}
	return r.pattern.FindAllString(text, -1)
}
