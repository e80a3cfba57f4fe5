package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTaxonomy = `[
  {
    "id": "food",
    "name": "Food",
    "sections": [
      {"id": "dairy", "name": "Dairy & Eggs"},
      {"id": "bakery", "name": "Bakery"}
    ]
  },
  {
    "id": "household",
    "name": "Household",
    "sections": [
      {"id": "cleaning", "name": "Cleaning"}
    ]
  }
]`

func TestParseBuildsSlugs(t *testing.T) {
	tree, err := Parse([]byte(sampleTaxonomy))
	require.NoError(t, err)

	all := tree.All()
	require.Len(t, all, 3)
	assert.Equal(t, "food/bakery", all[0].Slug)
	assert.Equal(t, "food/dairy", all[1].Slug)
	assert.Equal(t, "household/cleaning", all[2].Slug)
	assert.Equal(t, "Food / Dairy & Eggs", all[1].DisplayName)
	assert.Equal(t, "food", all[1].Department)
	assert.Equal(t, "dairy", all[1].Section)
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"empty tree":     `[]`,
		"missing dep id": `[{"name": "Food", "sections": [{"id": "dairy", "name": "Dairy"}]}]`,
		"missing sec id": `[{"id": "food", "name": "Food", "sections": [{"name": "Dairy"}]}]`,
		"duplicate slug": `[
			{"id": "food", "name": "Food", "sections": [{"id": "dairy", "name": "Dairy"}]},
			{"id": "food", "name": "Food Again", "sections": [{"id": "dairy", "name": "Dairy"}]}
		]`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestSelect(t *testing.T) {
	tree, err := Parse([]byte(sampleTaxonomy))
	require.NoError(t, err)

	picked, err := tree.Select([]string{"household/cleaning", "food/dairy"})
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "household/cleaning", picked[0].Slug)
	assert.Equal(t, "food/dairy", picked[1].Slug)

	_, err = tree.Select([]string{"food/frozen"})
	assert.ErrorContains(t, err, "food/frozen")

	all, err := tree.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleTaxonomy), 0o644))

	tree, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, tree.All(), 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
