// Package normalize maps raw lab-test names onto canonical series names so
// that differently labeled results of the same test merge into one series.
package normalize

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule maps any name it matches onto Canonical. Matching is done against the
// folded form of the name.
type Rule struct {
	Canonical string   `yaml:"canonical"`
	Contains  []string `yaml:"contains"`
	Prefix    []string `yaml:"prefix"`
	Exact     []string `yaml:"exact"`
	Excludes  []string `yaml:"excludes"`
}

// Matches reports whether the folded name satisfies the rule.
func (r Rule) Matches(key string) bool {
	for _, x := range r.Excludes {
		if strings.Contains(key, x) {
			return false
		}
	}
	for _, e := range r.Exact {
		if key == e {
			return true
		}
	}
	for _, p := range r.Prefix {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	for _, c := range r.Contains {
		if strings.Contains(key, c) {
			return true
		}
	}
	return false
}

func (r Rule) validate() error {
	if strings.TrimSpace(r.Canonical) == "" {
		return errors.New("rule has no canonical name")
	}
	if len(r.Contains)+len(r.Prefix)+len(r.Exact) == 0 {
		return fmt.Errorf("rule %q has no match terms", r.Canonical)
	}
	return nil
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRules decodes a YAML rule file. Match terms are folded the same way
// names are, so rule files may be written in any case.
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	for i := range f.Rules {
		r := &f.Rules[i]
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		foldAll(r.Contains)
		foldAll(r.Prefix)
		foldAll(r.Exact)
		foldAll(r.Excludes)
	}
	return f.Rules, nil
}

func foldAll(terms []string) {
	for i, t := range terms {
		terms[i] = Fold(t)
	}
}

// Normalizer applies an ordered rule list, first match wins.
type Normalizer struct {
	rules []Rule
}

// New returns a Normalizer over rules in evaluation order.
func New(rules []Rule) *Normalizer {
	return &Normalizer{rules: rules}
}

// Default returns a Normalizer using the built-in rule set.
func Default() *Normalizer {
	rules, err := ParseRules(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("normalize: built-in rules: %v", err))
	}
	return New(rules)
}

// Load reads a rule file from path. An empty path selects the built-in rules.
func Load(path string) (*Normalizer, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return New(rules), nil
}

// Rules returns the rules in evaluation order.
func (n *Normalizer) Rules() []Rule { return n.rules }

// Normalize returns the canonical name for name. Names matching no rule are
// returned with whitespace collapsed and otherwise unchanged.
func (n *Normalizer) Normalize(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	key := Fold(name)
	for _, r := range n.rules {
		if r.Matches(key) {
			return r.Canonical
		}
	}
	return name
}

// Fold returns the comparison key for a name. It is NFKC-normalized and
// case-folded, so full-width letters compare equal to their ASCII spelling.
func Fold(s string) string {
	// Casers carry state and are not shared across goroutines.
	return cases.Fold().String(norm.NFKC.String(s))
}

var std = Default()

// Normalize canonicalizes name with the built-in rules.
func Normalize(name string) string { return std.Normalize(name) }
