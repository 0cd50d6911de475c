package dsl

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, it := range issues {
		out = append(out, it.Code)
	}
	return out
}

func TestLintClean(t *testing.T) {
	cts, err := Parse(strings.NewReader(`
type doctors:
  full_name: string required
type treatments:
  title: string
  doctors: relation[doctors] manyToMany
`), "clean.dsl")
	require.NoError(t, err)
	assert.Empty(t, Lint(cts, nil))
}

func TestLintFindsProblems(t *testing.T) {
	cts, err := Parse(strings.NewReader(`
type pages:
  title: string
type faqs:
  question: string unique translatable
  question: text
  author: relation[authors]
  topic: relation[topics]
`), "bad.dsl")
	require.NoError(t, err)

	issues := Lint(cts, func(name string) bool { return name == "topics" })
	assert.ElementsMatch(t, []string{
		"type_reserved", "unique_translatable", "field_duplicate", "relation_target_unknown",
	}, codes(issues))
}

func TestShippedSeedIsClean(t *testing.T) {
	cts, err := LoadDir(filepath.Join("..", "..", "seed"))
	require.NoError(t, err)
	require.NotEmpty(t, cts)
	assert.Empty(t, Lint(cts, func(string) bool { return false }))
}
