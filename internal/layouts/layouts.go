// Package layouts holds the registered slide layout catalog and the template
// substitution used to materialize slides.
package layouts

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed layouts.yaml
var catalogYAML []byte

// DefaultName is the layout every unknown name is coerced to.
const DefaultName = "default"

// Layout is one registered slide shape. Template placeholders use $field or
// ${field}; FieldSchema describes what the LLM should put in each field.
type Layout struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Template    string            `yaml:"template"`
	FieldSchema map[string]string `yaml:"fieldSchema"`
}

// Catalog is the fixed set of layouts slide drafts may pick from.
type Catalog struct {
	ordered []Layout
	byName  map[string]Layout
}

// NewCatalog parses the embedded catalog. The catalog must contain a layout
// named "default".
func NewCatalog() (*Catalog, error) {
	var doc struct {
		Layouts []Layout `yaml:"layouts"`
	}
	if err := yaml.Unmarshal(catalogYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse layout catalog: %w", err)
	}
	c := &Catalog{
		ordered: doc.Layouts,
		byName:  make(map[string]Layout, len(doc.Layouts)),
	}
	for _, l := range doc.Layouts {
		c.byName[l.Name] = l
	}
	if _, ok := c.byName[DefaultName]; !ok {
		return nil, fmt.Errorf("layout catalog has no %q layout", DefaultName)
	}
	return c, nil
}

// Get returns the named layout, coercing unknown names to the default layout.
func (c *Catalog) Get(name string) Layout {
	if l, ok := c.byName[strings.TrimSpace(name)]; ok {
		return l
	}
	return c.byName[DefaultName]
}

// List returns the layouts in catalog order.
func (c *Catalog) List() []Layout {
	out := make([]Layout, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// SafeSubstitute replaces $field and ${field} placeholders in template with
// values from vars. Missing fields become the empty string and "$$" escapes a
// literal dollar sign, so the result never carries an unsubstituted
// placeholder.
func SafeSubstitute(template string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(template))
	for i := 0; i < len(template); {
		ch := template[i]
		if ch != '$' {
			b.WriteByte(ch)
			i++
			continue
		}
		if i+1 >= len(template) {
			b.WriteByte('$')
			break
		}
		next := template[i+1]
		switch {
		case next == '$':
			b.WriteByte('$')
			i += 2
		case next == '{':
			end := strings.IndexByte(template[i+2:], '}')
			if end < 0 {
				b.WriteString(template[i:])
				return b.String()
			}
			name := template[i+2 : i+2+end]
			if isIdentifier(name) {
				b.WriteString(vars[name])
				i += 2 + end + 1
			} else {
				b.WriteString(template[i : i+2+end+1])
				i += 2 + end + 1
			}
		case isIdentStart(next):
			j := i + 1
			for j < len(template) && isIdentChar(template[j]) {
				j++
			}
			b.WriteString(vars[template[i+1:j]])
			i = j
		default:
			b.WriteByte('$')
			i++
		}
	}
	return b.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}
