// Package catalog serves the curated stock prompt library. The library
// ships embedded in the binary so the worker has no runtime file
// dependency for it.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Category is one themed group of stock prompts.
type Category struct {
	ID      string   `yaml:"id" json:"id"`
	Title   string   `yaml:"title" json:"title"`
	Prompts []string `yaml:"prompts" json:"prompts"`
}

// Catalog is the full prompt library.
type Catalog struct {
	Categories []Category `yaml:"categories" json:"categories"`

	byID map[string]*Category
}

// Load parses the embedded library.
func Load() (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(catalogYAML, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Categories) == 0 {
		return nil, fmt.Errorf("catalog has no categories")
	}

	c.byID = make(map[string]*Category, len(c.Categories))
	for i := range c.Categories {
		cat := &c.Categories[i]
		if cat.ID == "" || len(cat.Prompts) == 0 {
			return nil, fmt.Errorf("catalog category %q is incomplete", cat.ID)
		}
		c.byID[cat.ID] = cat
	}
	return &c, nil
}

// Category looks up a category by ID.
func (c *Catalog) Category(id string) (*Category, bool) {
	cat, ok := c.byID[id]
	return cat, ok
}

// Contains reports whether the text is a known prompt of the category.
func (c *Catalog) Contains(categoryID, text string) bool {
	cat, ok := c.byID[categoryID]
	if !ok {
		return false
	}
	for _, p := range cat.Prompts {
		if p == text {
			return true
		}
	}
	return false
}

// NextAfter returns the category's first prompt not in the exclude set,
// walking in library order. Returns false when the category is exhausted.
func (c *Catalog) NextAfter(categoryID string, exclude map[string]bool) (string, bool) {
	cat, ok := c.byID[categoryID]
	if !ok {
		return "", false
	}
	for _, p := range cat.Prompts {
		if !exclude[p] {
			return p, true
		}
	}
	return "", false
}
