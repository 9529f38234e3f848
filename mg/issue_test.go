package mg

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"path/filepath"
	"testing"
)

func TestPatternParser(t *testing.T) {
	src := filepath.FromSlash("/x/main.go")
	dir := filepath.Dir(src)
	pp := NewPatternParser(DefaultPrefix)

	cases := []struct {
		name   string
		out    string
		expect []Issue
	}{
		{
			name: "build output",
			out:  "foo.go:12: undefined: bar",
			expect: []Issue{
				{Path: filepath.Join(dir, "foo.go"), Row: 11, Message: "undefined: bar"},
			},
		},
		{
			name: "test build output with column",
			out:  "main_test.go:7:3: x declared and not used\n",
			expect: []Issue{
				{Path: filepath.Join(dir, "main_test.go"), Row: 6, Col: 2, Message: "x declared and not used"},
			},
		},
		{
			name: "alias is stripped",
			out:  "/x/flymake_main.go:5: err",
			expect: []Issue{
				{Path: src, Row: 4, Message: "err"},
			},
		},
		{
			name: "noise is ignored",
			out:  "# command-line-arguments\nflymake_main.go:1: a\nexit status 2\r\nflymake_main.go:3:9: b\r\n",
			expect: []Issue{
				{Path: src, Row: 0, Message: "a"},
				{Path: src, Row: 2, Col: 8, Message: "b"},
			},
		},
		{
			name: "empty message still marks the line",
			out:  "foo.go:3: \n",
			expect: []Issue{
				{Path: filepath.Join(dir, "foo.go"), Row: 2},
			},
		},
		{
			name:   "no output",
			out:    "",
			expect: nil,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expect, pp.Parse(src, c.out))
		})
	}
}

func TestPatternParserFirstPatternWins(t *testing.T) {
	pp := NewPatternParser(DefaultPrefix)
	pp.Patterns = append(pp.Patterns, FlymakePattern)

	issues := pp.Parse("/x/main.go", "main.go:1: once")
	require.Len(t, issues, 1)
	assert.Equal(t, "once", issues[0].Message)
}

func TestAliasNames(t *testing.T) {
	assert.Equal(t, "flymake_main.go", ArtifactName(filepath.FromSlash("/x/main.go"), DefaultPrefix))
	assert.Equal(t, "main.go", UnaliasName("flymake_main.go", DefaultPrefix))
	assert.Equal(t, "flymake_", UnaliasName("flymake_", DefaultPrefix))
	assert.Equal(t, "main.go", UnaliasName("main.go", DefaultPrefix))

	assert.True(t, IsArtifact("/x/flymake_main.go", DefaultPrefix))
	assert.False(t, IsArtifact("/x/main.go", DefaultPrefix))
	assert.False(t, IsArtifact("/x/flymake_notes.txt", DefaultPrefix))
	assert.False(t, IsArtifact("/x/flymake_main.go", ""))
}
