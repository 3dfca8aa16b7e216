package declaration

import (
	_ "embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Type is one kind of declaration a psychologist can issue.
type Type struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
	Icon  string `yaml:"icon" json:"icon"`
	Body  string `yaml:"body" json:"-"`

	html *htmltemplate.Template
	text *texttemplate.Template
}

// Fields fill a declaration body.
type Fields struct {
	Name string
	CPF  string
	Date string
	Time string
}

// In HTML, b emphasises a value; in plain text it is the value itself.
var (
	htmlFuncs = htmltemplate.FuncMap{
		"b": func(s string) htmltemplate.HTML {
			return htmltemplate.HTML("<strong>" + htmltemplate.HTMLEscapeString(s) + "</strong>")
		},
	}
	textFuncs = texttemplate.FuncMap{
		"b": func(s string) string { return s },
	}
)

type Catalog struct {
	types []*Type
	byID  map[string]*Type
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Types []*Type `yaml:"types"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{byID: make(map[string]*Type, len(doc.Types))}
	for _, t := range doc.Types {
		if t.ID == "" || t.Title == "" || strings.TrimSpace(t.Body) == "" {
			return nil, fmt.Errorf("catalog entry %q is incomplete", t.ID)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("catalog entry %q is duplicated", t.ID)
		}
		var err error
		if t.html, err = htmltemplate.New(t.ID).Funcs(htmlFuncs).Parse(t.Body); err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", t.ID, err)
		}
		if t.text, err = texttemplate.New(t.ID).Funcs(textFuncs).Parse(t.Body); err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", t.ID, err)
		}
		c.types = append(c.types, t)
		c.byID[t.ID] = t
	}
	return c, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(catalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Types() []*Type {
	return c.types
}

func (c *Catalog) Lookup(id string) (*Type, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// BodyHTML renders the body with every field escaped and emphasised.
func (t *Type) BodyHTML(f Fields) (htmltemplate.HTML, error) {
	var b strings.Builder
	if err := t.html.Execute(&b, f); err != nil {
		return "", err
	}
	return htmltemplate.HTML(b.String()), nil
}

func (t *Type) BodyText(f Fields) (string, error) {
	var b strings.Builder
	if err := t.text.Execute(&b, f); err != nil {
		return "", err
	}
	return b.String(), nil
}
