package mg

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestDiagnosticStoreStaleClear(t *testing.T) {
	ds := NewDiagnosticStore()
	ds.Add("main.go", 7, "old")

	ds.Clear("main.go")
	ds.Add("main.go", 3, "x")

	assert.Equal(t, DiagnosticLines{3: {"x"}}, ds.Snapshot("main.go"))
	assert.Equal(t, 1, ds.Count("main.go"))
}

func TestDiagnosticStoreNavigation(t *testing.T) {
	ds := NewDiagnosticStore()
	for _, ln := range []int{9, 2, 5} {
		ds.Add("main.go", ln, "e")
	}

	next, ok := ds.NextAfter("main.go", 5)
	require.True(t, ok)
	assert.Equal(t, 9, next)

	prev, ok := ds.PrevBefore("main.go", 5)
	require.True(t, ok)
	assert.Equal(t, 2, prev)

	_, ok = ds.NextAfter("main.go", 9)
	assert.False(t, ok)

	_, ok = ds.PrevBefore("main.go", 2)
	assert.False(t, ok)

	_, ok = ds.NextAfter("other.go", 0)
	assert.False(t, ok)

	assert.Equal(t, []int{2, 5, 9}, ds.Lines("main.go"))
}

func TestDiagnosticStoreMessages(t *testing.T) {
	ds := NewDiagnosticStore()
	assert.False(t, ds.Has("main.go"))
	ds.Clear("main.go")
	assert.True(t, ds.Has("main.go"), "a cleared source is still known")
	assert.Equal(t, "", ds.StatusText("main.go", 4))

	ds.Add("main.go", 4, "undefined: x")
	ds.Add("main.go", 4, "undefined: y")
	assert.Equal(t, []string{"undefined: x", "undefined: y"}, ds.MessagesAt("main.go", 4))
	assert.Equal(t, "Error: undefined: x; undefined: y", ds.StatusText("main.go", 4))

	ds.Forget("main.go")
	assert.False(t, ds.Has("main.go"))
}

func TestDiagnosticStoreReplace(t *testing.T) {
	ds := NewDiagnosticStore()
	ds.Add("/x/main.go", 1, "stale")
	ds.Add("/x/util.go", 8, "stale")
	ds.Add("/x/other.go", 2, "untouched")

	touched := ds.Replace("/x/main.go", []Issue{
		{Path: "/x/util.go", Row: 3, Message: "a"},
		{Path: "/x/util.go", Row: 3, Message: "b"},
	})

	assert.Equal(t, []string{"/x/main.go", "/x/util.go"}, touched)
	assert.True(t, ds.Has("/x/main.go"))
	assert.Equal(t, 0, ds.Count("/x/main.go"))
	assert.Equal(t, DiagnosticLines{3: {"a", "b"}}, ds.Snapshot("/x/util.go"))
	assert.Equal(t, DiagnosticLines{2: {"untouched"}}, ds.Snapshot("/x/other.go"))
}

func TestDiagnosticStoreSnapshotIsACopy(t *testing.T) {
	ds := NewDiagnosticStore()
	ds.Add("main.go", 1, "a")

	snap := ds.Snapshot("main.go")
	snap[1][0] = "changed"
	snap[2] = []string{"new"}
	assert.Equal(t, DiagnosticLines{1: {"a"}}, ds.Snapshot("main.go"))

	ds.Restore("copy.go", snap)
	snap[1][0] = "again"
	assert.Equal(t, []string{"changed"}, ds.MessagesAt("copy.go", 1))
}
