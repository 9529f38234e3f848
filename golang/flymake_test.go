package golang

import (
	"bytes"
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go/build"
	"gomode.sh/mg"
	"gomode.sh/mgutil"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for nm, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, nm), []byte(src), 0644))
	}
}

func TestPackageFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.go":              "package p\n",
		"b.go":              "package p\n",
		"flymake_a.go":      "package p\n",
		"flymake_b.go":      "package p\n",
		"a_test.go":         "package p\n",
		"flymake_a_test.go": "package p\n",
		"x_test.go":         "package p_test\n",
		"flymake_x_test.go": "package p_test\n",
	})
	bctx := &build.Default

	tests := []struct {
		name  string
		fn    string
		files []string
		test  bool
	}{
		{"source", "flymake_a.go", []string{"b.go", "flymake_a.go"}, false},
		{"test", "flymake_a_test.go", []string{"a.go", "b.go", "flymake_a_test.go"}, true},
		{"external test", "flymake_x_test.go", []string{"a.go", "b.go", "flymake_x_test.go"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			files, test := PackageFiles(bctx, filepath.Join(dir, tc.fn), mg.DefaultPrefix)
			assert.Equal(t, tc.files, files)
			assert.Equal(t, tc.test, test)
		})
	}
}

func TestPackageFilesFallback(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.go":         "package a\n",
		"b.go":         "package b\n",
		"flymake_a.go": "package a\n",
	})
	files, test := PackageFiles(&build.Default, filepath.Join(dir, "flymake_a.go"), mg.DefaultPrefix)
	assert.Equal(t, []string{"flymake_a.go"}, files, "a broken package is compiled file by file")
	assert.False(t, test)
}

func TestArgs(t *testing.T) {
	assert.Equal(t, []string{"build", "-o", os.DevNull, "a.go"}, BuildArgs([]string{"a.go"}, false))
	assert.Equal(t, []string{"test", "-c", "-o", os.DevNull, "a.go", "a_test.go"}, BuildArgs([]string{"a.go", "a_test.go"}, true))
	assert.Equal(t, []string{"vet", "a.go"}, VetArgs([]string{"a.go"}))
}

func TestBuildContext(t *testing.T) {
	bctx := BuildContext(mgutil.EnvMap{"GOOS": "plan9", "GOARCH": "arm"})
	assert.Equal(t, "plan9", bctx.GOOS)
	assert.Equal(t, "arm", bctx.GOARCH)
}

func TestFlymake(t *testing.T) {
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go not found")
	}
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod":          "module example.com/p\n\ngo 1.21\n",
		"main.go":         "package main\n\nfunc main() {}\n",
		"flymake_main.go": "package main\n\nfunc main() {\n\tundefinedThing()\n}\n",
	})
	buf := &bytes.Buffer{}
	failed, err := Flymake(context.Background(), filepath.Join(dir, "flymake_main.go"), mg.DefaultPrefix, nil, buf)
	require.NoError(t, err)
	assert.True(t, failed)

	issues := mg.NewPatternParser(mg.DefaultPrefix).Parse(filepath.Join(dir, "main.go"), buf.String())
	require.NotEmpty(t, issues, "output: %s", buf.String())
	assert.Equal(t, filepath.Join(dir, "main.go"), issues[0].Path)
	assert.Equal(t, 3, issues[0].Row)
	assert.Contains(t, issues[0].Message, "undefinedThing")
}
