package layouts

import (
	"strings"
	"testing"
)

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog()
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func TestCatalogHasDefault(t *testing.T) {
	c := mustCatalog(t)
	l := c.Get("default")
	if l.Name != "default" {
		t.Fatalf("Get(default).Name = %q", l.Name)
	}
	if len(l.FieldSchema) == 0 {
		t.Fatalf("default layout has empty field schema")
	}
}

func TestUnknownLayoutCoercedToDefault(t *testing.T) {
	c := mustCatalog(t)
	for _, name := range []string{"imaginary", "", "  cover  extra"} {
		if got := c.Get(name); got.Name != "default" {
			t.Fatalf("Get(%q).Name = %q, want default", name, got.Name)
		}
	}
	// Trimming alone must still resolve real names.
	if got := c.Get("  cover "); got.Name != "cover" {
		t.Fatalf("Get with padding = %q, want cover", got.Name)
	}
}

func TestListPreservesCatalogOrder(t *testing.T) {
	c := mustCatalog(t)
	list := c.List()
	if len(list) < 2 {
		t.Fatalf("catalog too small: %d", len(list))
	}
	if list[0].Name != "default" {
		t.Fatalf("first layout = %q, want default", list[0].Name)
	}
	for _, l := range list {
		if strings.TrimSpace(l.Template) == "" {
			t.Fatalf("layout %q has empty template", l.Name)
		}
	}
}

func TestSafeSubstitute(t *testing.T) {
	cases := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
	}{
		{
			name:     "both placeholder forms",
			template: "# $title\n\n${body}",
			vars:     map[string]string{"title": "Sorting", "body": "- compare\n- swap"},
			want:     "# Sorting\n\n- compare\n- swap",
		},
		{
			name:     "missing field becomes empty",
			template: "# $title\n\n$body",
			vars:     map[string]string{"title": "Sorting"},
			want:     "# Sorting\n\n",
		},
		{
			name:     "escaped dollar",
			template: "price: $$5 for $item",
			vars:     map[string]string{"item": "bread"},
			want:     "price: $5 for bread",
		},
		{
			name:     "dollar before non-identifier kept",
			template: "cost is $ 5",
			vars:     nil,
			want:     "cost is $ 5",
		},
		{
			name:     "no placeholders passes through",
			template: "plain text",
			vars:     map[string]string{"title": "x"},
			want:     "plain text",
		},
	}
	for _, tc := range cases {
		if got := SafeSubstitute(tc.template, tc.vars); got != tc.want {
			t.Fatalf("%s: SafeSubstitute = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestEmptySchemaYieldsTemplateVerbatim(t *testing.T) {
	template := "# Fixed slide\n\nNothing to fill here.\n"
	if got := SafeSubstitute(template, nil); got != template {
		t.Fatalf("template altered: %q", got)
	}
}

func TestTemplatesSubstituteFully(t *testing.T) {
	c := mustCatalog(t)
	for _, l := range c.List() {
		vars := make(map[string]string, len(l.FieldSchema))
		for field := range l.FieldSchema {
			vars[field] = "x"
		}
		got := SafeSubstitute(l.Template, vars)
		if strings.Contains(got, "$") {
			t.Fatalf("layout %q leaves placeholders: %q", l.Name, got)
		}
	}
}
