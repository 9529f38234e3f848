package gomode

import (
	"bytes"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
	"gomode.sh/mg"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	app := newApp()
	buf := &bytes.Buffer{}
	app.Writer = buf
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{AgentName}, args...))
	return buf.String(), err
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
}

func exitCode(err error) int {
	if ec, ok := err.(cli.ExitCoder); ok {
		return ec.ExitCode()
	}
	return -1
}

func TestCheck(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()
	cfgFn := filepath.Join(dir, "gomode.toml")
	require.NoError(t, os.WriteFile(cfgFn, []byte("tool = \"sh\"\ninitial_delay = \"10ms\"\n"), 0644))

	bad := filepath.Join(dir, "bad.go")
	good := filepath.Join(dir, "good.go")
	require.NoError(t, os.WriteFile(bad, []byte("echo 'flymake_bad.go:2: boom'\nexit 1\n"), 0644))
	require.NoError(t, os.WriteFile(good, []byte("true\n"), 0644))

	out, err := runApp(t, "--config", cfgFn, "check", bad, good)
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Equal(t, bad+":2: boom\n", out)

	out, err = runApp(t, "--config", cfgFn, "check", good)
	assert.NoError(t, err)
	assert.Empty(t, out)

	_, err = runApp(t, "--config", filepath.Join(dir, "missing.toml"), "check", good)
	assert.Equal(t, 1, exitCode(err))

	l, _ := filepath.Glob(filepath.Join(dir, mg.DefaultPrefix+"*"))
	assert.Empty(t, l)
}

func TestSweepCommand(t *testing.T) {
	dir := t.TempDir()
	leftover := filepath.Join(dir, "flymake_main.go")
	require.NoError(t, os.WriteFile(leftover, []byte("package main"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644))

	out, err := runApp(t, "sweep", dir)
	require.NoError(t, err)
	assert.Equal(t, "removed "+leftover+"\n", out)
	assert.NoFileExists(t, leftover)
	assert.FileExists(t, filepath.Join(dir, "main.go"))
}

func TestResolveTool(t *testing.T) {
	cfg := mg.DefaultConfig
	cfg.Tool = "sh"
	assert.Equal(t, cfg, resolveTool(cfg), "configured tools are left alone")

	t.Setenv("PATH", t.TempDir())
	cfg = mg.DefaultConfig
	cfg.Args = []string{"-v"}
	got := resolveTool(cfg)
	exe, err := os.Executable()
	require.NoError(t, err)
	assert.Equal(t, exe, got.Tool)
	assert.Equal(t, []string{"flymake", "--prefix", mg.DefaultPrefix, "-v"}, got.Args)
}

func TestPrintDiagnostics(t *testing.T) {
	color.NoColor = true
	buf := &bytes.Buffer{}
	n := printDiagnostics(buf, "/x/main.go", mg.DiagnosticLines{
		4: {"unused: y"},
		1: {"undefined: x", "undefined: z"},
	})
	assert.Equal(t, 3, n)
	assert.Equal(t, "/x/main.go:2: undefined: x\n/x/main.go:2: undefined: z\n/x/main.go:5: unused: y\n", buf.String())
}
