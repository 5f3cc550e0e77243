package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, []string{"adzuna_v1", "skillcareerhub_v0", "ats_boards_v1", "career_pages_v1"}, c.Names())

	reg := NewDefaultRegistry(Options{Log: nopLog()})
	for _, p := range c.Pipelines {
		for _, ep := range p.Endpoints {
			_, ok := reg.Lookup(ep.Kind)
			assert.True(t, ok, "pipeline %s uses unregistered kind %s", p.Name, ep.Kind)
		}
	}
}

func TestCatalogSelect(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	all, err := c.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, len(c.Pipelines))

	some, err := c.Select([]string{"ats_boards_v1", "adzuna_v1"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "adzuna_v1", some[0].Name, "catalog order is kept")

	_, err = c.Select([]string{"nope"})
	assert.Error(t, err)
}

func TestParseCatalogValidation(t *testing.T) {
	cases := map[string]string{
		"empty":         `pipelines: []`,
		"no name":       "pipelines:\n  - endpoints: [{kind: netflix}]",
		"duplicate":     "pipelines:\n  - {name: a, endpoints: [{kind: netflix}]}\n  - {name: a, endpoints: [{kind: netflix}]}",
		"no endpoints":  "pipelines:\n  - {name: a}",
		"html no url":   "pipelines:\n  - {name: a, endpoints: [{kind: workday, company: X}]}",
		"ats no board":  "pipelines:\n  - {name: a, endpoints: [{kind: greenhouse, company: X}]}",
		"missing kind":  "pipelines:\n  - {name: a, endpoints: [{company: X}]}",
		"invalid yaml":  "pipelines: [",
	}
	for name, doc := range cases {
		_, err := ParseCatalog([]byte(doc))
		assert.Error(t, err, name)
	}

	c, err := ParseCatalog([]byte("pipelines:\n  - {name: a, incremental: true, exclude: [unpaid], endpoints: [{kind: greenhouse, board: acme}]}"))
	require.NoError(t, err)
	assert.True(t, c.Pipelines[0].Incremental)
	assert.Equal(t, []string{"unpaid"}, c.Pipelines[0].Exclude)
	assert.Equal(t, "acme", c.Pipelines[0].Endpoints[0].Board)
}
