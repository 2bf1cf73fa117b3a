// Package catalog holds the declarative copy and read specifications the
// export pipeline runs against the source and working stores. The
// specifications live in an embedded YAML file; rendering substitutes
// pre-escaped SPARQL terms for $param placeholders so the "what to copy"
// stays testable independently of transport.
package catalog

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed specs.yaml
var specsYAML []byte

type SpecKind string

const (
	KindSelect    SpecKind = "select"
	KindConstruct SpecKind = "construct"
	KindUpdate    SpecKind = "update"
)

type Spec struct {
	Name        string   `yaml:"name"`
	Kind        SpecKind `yaml:"kind"`
	Description string   `yaml:"description"`
	Query       string   `yaml:"query"`

	params []string
}

// Params returns the sorted placeholder names the spec expects.
func (s *Spec) Params() []string {
	return s.params
}

type catalogFile struct {
	Prefixes string `yaml:"prefixes"`
	Specs    []Spec `yaml:"specs"`
}

type Catalog struct {
	prefixes string
	specs    map[string]*Spec
}

var paramPattern = regexp.MustCompile(`\$([a-zA-Z][a-zA-Z0-9]*)`)

// Load parses and validates the embedded specification catalog.
func Load() (*Catalog, error) {
	return parse(specsYAML)
}

func parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse specification catalog: %w", err)
	}

	if len(file.Specs) == 0 {
		return nil, fmt.Errorf("specification catalog is empty")
	}

	catalog := &Catalog{
		prefixes: strings.TrimSpace(file.Prefixes),
		specs:    make(map[string]*Spec, len(file.Specs)),
	}

	for i := range file.Specs {
		spec := &file.Specs[i]
		if err := validate(spec); err != nil {
			return nil, fmt.Errorf("invalid specification %q: %w", spec.Name, err)
		}
		if _, exists := catalog.specs[spec.Name]; exists {
			return nil, fmt.Errorf("duplicate specification name: %s", spec.Name)
		}
		spec.params = extractParams(spec.Query)
		catalog.specs[spec.Name] = spec
	}

	return catalog, nil
}

func validate(spec *Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(spec.Query) == "" {
		return fmt.Errorf("query is required")
	}
	switch spec.Kind {
	case KindSelect, KindConstruct, KindUpdate:
		return nil
	default:
		return fmt.Errorf("unknown kind: %q", spec.Kind)
	}
}

func extractParams(query string) []string {
	seen := make(map[string]bool)
	for _, match := range paramPattern.FindAllStringSubmatch(query, -1) {
		seen[match[1]] = true
	}
	params := make([]string, 0, len(seen))
	for name := range seen {
		params = append(params, name)
	}
	sort.Strings(params)
	return params
}

// Get returns a specification by name.
func (c *Catalog) Get(name string) (*Spec, bool) {
	spec, ok := c.specs[name]
	return spec, ok
}

// Len returns the number of loaded specifications.
func (c *Catalog) Len() int {
	return len(c.specs)
}

// Render produces the executable query for a specification. Every value
// in params must already be an escaped SPARQL term. A missing or surplus
// parameter is an error, never silently ignored.
func (c *Catalog) Render(name string, params map[string]string) (string, error) {
	spec, ok := c.specs[name]
	if !ok {
		return "", fmt.Errorf("unknown specification: %s", name)
	}

	for _, p := range spec.params {
		if _, ok := params[p]; !ok {
			return "", fmt.Errorf("specification %s: missing parameter $%s", name, p)
		}
	}
	if len(params) != len(spec.params) {
		for given := range params {
			if !contains(spec.params, given) {
				return "", fmt.Errorf("specification %s: unexpected parameter $%s", name, given)
			}
		}
	}

	query := paramPattern.ReplaceAllStringFunc(spec.Query, func(match string) string {
		return params[match[1:]]
	})

	return c.prefixes + "\n\n" + query, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
