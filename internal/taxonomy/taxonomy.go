// Package taxonomy loads the static two-level category tree the crawl walks.
package taxonomy

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Category is one crawlable leaf: a department and one of its sections. The
// slug ("food/dairy") is the stable key used in the checkpoint ledger and on
// the command line.
type Category struct {
	Slug        string `json:"slug"`
	Department  string `json:"department"`
	Section     string `json:"section"`
	DisplayName string `json:"display_name"`
}

type department struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Sections []section `json:"sections"`
}

type section struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Tree is the parsed taxonomy, indexed by slug.
type Tree struct {
	categories map[string]Category
}

// Load parses a taxonomy JSON file: an array of departments, each with its
// sections.
func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return Parse(data)
}

// Parse builds a Tree from raw taxonomy JSON.
func Parse(data []byte) (*Tree, error) {
	var departments []department
	if err := json.Unmarshal(data, &departments); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}

	categories := make(map[string]Category)
	for _, dep := range departments {
		if dep.ID == "" {
			return nil, fmt.Errorf("parse taxonomy: department %q has no id", dep.Name)
		}
		for _, sec := range dep.Sections {
			if sec.ID == "" {
				return nil, fmt.Errorf("parse taxonomy: section %q in %q has no id", sec.Name, dep.ID)
			}
			slug := dep.ID + "/" + sec.ID
			if _, exists := categories[slug]; exists {
				return nil, fmt.Errorf("parse taxonomy: duplicate slug %q", slug)
			}
			categories[slug] = Category{
				Slug:        slug,
				Department:  dep.ID,
				Section:     sec.ID,
				DisplayName: dep.Name + " / " + sec.Name,
			}
		}
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("parse taxonomy: no categories")
	}
	return &Tree{categories: categories}, nil
}

// All returns every category, ordered by slug.
func (t *Tree) All() []Category {
	out := make([]Category, 0, len(t.categories))
	for _, c := range t.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Select resolves the given slugs, erroring on the first unknown one. An
// empty selection means all categories.
func (t *Tree) Select(slugs []string) ([]Category, error) {
	if len(slugs) == 0 {
		return t.All(), nil
	}
	out := make([]Category, 0, len(slugs))
	for _, slug := range slugs {
		c, ok := t.categories[slug]
		if !ok {
			return nil, fmt.Errorf("unknown category slug %q", slug)
		}
		out = append(out, c)
	}
	return out, nil
}
