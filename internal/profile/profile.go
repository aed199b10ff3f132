// Package profile assembles the per-language quality profiles of a run and
// publishes them to the analysis server.
package profile

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

// Profile is a quality profile backup document.
type Profile struct {
	XMLName  xml.Name `xml:"profile"`
	Name     string   `xml:"name"`
	Language string   `xml:"language"`
	Rules    []Rule   `xml:"rules>rule"`

	// Path is the document the profile was read from or written to.
	Path string `xml:"-"`
}

// Rule is one activated rule of a profile.
type Rule struct {
	RepositoryKey string      `xml:"repositoryKey"`
	Key           string      `xml:"key"`
	Type          string      `xml:"type,omitempty"`
	Priority      string      `xml:"priority,omitempty"`
	Parameters    []Parameter `xml:"parameters>parameter"`
	Extra         []element   `xml:",any"`
}

// Parameter is a rule parameter. Order is kept as in the document.
type Parameter struct {
	Key   string `xml:"key"`
	Value string `xml:"value"`
}

// element preserves rule children the model does not name.
type element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}

// RuleKey is the fully qualified key, repository:key.
func (r Rule) RuleKey() string {
	return r.RepositoryKey + ":" + r.Key
}

// Load parses the profile document at path.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := &Profile{}
	if err := xml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if p.Language == "" || p.Name == "" {
		return nil, fmt.Errorf("profile %s has no name or language", path)
	}
	p.Path = path
	return p, nil
}

// Save serializes the profile to path and records it as the backing document.
func (p *Profile) Save(path string) error {
	out, err := xml.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize profile %s: %w", p.Name, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	data := append([]byte(xml.Header), out...)
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	p.Path = path
	return nil
}

// Filter returns a copy holding only the rules allowed reports true for,
// with parameters replaced from overrides. Parameters an override does not
// name keep their document value.
func (p *Profile) Filter(allowed func(rule string) bool, overrides func(rule string) map[string]string) *Profile {
	out := *p
	out.Rules = nil
	for _, r := range p.Rules {
		key := r.RuleKey()
		if !allowed(key) {
			continue
		}
		r.Parameters = append([]Parameter(nil), r.Parameters...)
		if values := overrides(key); len(values) > 0 {
			for i, param := range r.Parameters {
				if v, ok := values[param.Key]; ok {
					r.Parameters[i].Value = v
				}
			}
		}
		out.Rules = append(out.Rules, r)
	}
	return &out
}

// RuleKeys lists the fully qualified keys of the profile rules in order.
func (p *Profile) RuleKeys() []string {
	keys := make([]string, 0, len(p.Rules))
	for _, r := range p.Rules {
		keys = append(keys, r.RuleKey())
	}
	return keys
}
