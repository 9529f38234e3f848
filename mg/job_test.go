package mg

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

type runnerFunc func(ctx context.Context, inv Invocation) (ToolOutput, error)

func (f runnerFunc) RunTool(ctx context.Context, inv Invocation) (ToolOutput, error) {
	return f(ctx, inv)
}

func assertNoArtifacts(t *testing.T, dir string) {
	t.Helper()
	l, err := filepath.Glob(filepath.Join(dir, DefaultPrefix+"*"))
	require.NoError(t, err)
	assert.Empty(t, l, "shadow artifacts were left behind")
}

func TestJobRun(t *testing.T) {
	dir := t.TempDir()
	id := filepath.Join(dir, "main.go")
	src := "package main\n\nfunc main() { x }\n"

	var seen Invocation
	j := &Job{
		Tool:   "vet",
		Args:   []string{"-v"},
		Prefix: DefaultPrefix,
		Env:    map[string]string{"GOMODE_TEST": "1"},
		Runner: runnerFunc(func(ctx context.Context, inv Invocation) (ToolOutput, error) {
			seen = inv
			p, err := os.ReadFile(filepath.Join(inv.Dir, inv.Args[len(inv.Args)-1]))
			require.NoError(t, err)
			assert.Equal(t, src, string(p), "the artifact holds the in-memory content")
			return ToolOutput{ExitCode: 2, Stdout: []byte("flymake_main.go:3: undefined: x\n")}, nil
		}),
	}

	res := j.Run(context.Background(), CompileRequest{ID: id, Src: src})
	assert.NoError(t, res.Err, "a non-zero exit is not a failure")
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, "flymake_main.go:3: undefined: x\n", res.Stdout)
	assert.Equal(t, Fingerprint(src), res.Fingerprint)
	assert.Equal(t, "vet", seen.Name)
	assert.Equal(t, []string{"-v", "flymake_main.go"}, seen.Args)
	assert.Equal(t, dir, seen.Dir)
	assert.Contains(t, seen.Env, "GOMODE_TEST=1")
	assertNoArtifacts(t, dir)
}

func TestJobCleanupOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		runner runnerFunc
		errMsg string
	}{
		{
			name: "error",
			runner: func(ctx context.Context, inv Invocation) (ToolOutput, error) {
				return ToolOutput{}, errors.New("exec: not found")
			},
			errMsg: "failed",
		},
		{
			name: "panic",
			runner: func(ctx context.Context, inv Invocation) (ToolOutput, error) {
				panic("boom")
			},
			errMsg: "panicked",
		},
		{
			name: "timeout",
			runner: func(ctx context.Context, inv Invocation) (ToolOutput, error) {
				<-ctx.Done()
				return ToolOutput{}, ctx.Err()
			},
			errMsg: "timed out",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			j := &Job{
				Tool:    "tool",
				Prefix:  DefaultPrefix,
				Timeout: 20 * time.Millisecond,
				Runner:  tc.runner,
			}
			res := j.Run(context.Background(), CompileRequest{ID: filepath.Join(dir, "main.go"), Src: "package main"})
			require.Error(t, res.Err)
			assert.Contains(t, res.Err.Error(), tc.errMsg)
			assertNoArtifacts(t, dir)
		})
	}
}

func TestJobUnwritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	called := false
	j := &Job{
		Tool:   "tool",
		Prefix: DefaultPrefix,
		Runner: runnerFunc(func(ctx context.Context, inv Invocation) (ToolOutput, error) {
			called = true
			return ToolOutput{}, nil
		}),
	}
	res := j.Run(context.Background(), CompileRequest{ID: filepath.Join(dir, "main.go")})
	require.Error(t, res.Err)
	assert.False(t, called, "the tool must not run without an artifact")
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

func TestExecRunner(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()
	script := "echo \"main.go:3: boom\"\necho \"$GOMODE_TEST\" >&2\nexit 2\n"
	j := &Job{
		Tool:   "sh",
		Prefix: DefaultPrefix,
		Env:    map[string]string{"GOMODE_TEST": "from-env"},
	}
	res := j.Run(context.Background(), CompileRequest{ID: filepath.Join(dir, "main.go"), Src: script})
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.ExitCode)
	assert.Equal(t, "main.go:3: boom\n", res.Stdout)
	assert.Equal(t, "from-env\n", res.Stderr)
	assertNoArtifacts(t, dir)
}

func TestExecRunnerTimeout(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()
	j := &Job{
		Tool:    "sh",
		Prefix:  DefaultPrefix,
		Timeout: 100 * time.Millisecond,
	}
	start := time.Now()
	res := j.Run(context.Background(), CompileRequest{ID: filepath.Join(dir, "main.go"), Src: "sleep 10 & sleep 10\n"})
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second, "the tool's process group must be killed")
	assertNoArtifacts(t, dir)
}

func TestDecodeOutput(t *testing.T) {
	s := decodeOutput([]byte("a\xffb"))
	assert.True(t, utf8.ValidString(s))
	assert.True(t, strings.HasPrefix(s, "a"))
	assert.True(t, strings.HasSuffix(s, "b"))
	assert.Equal(t, "main.go:1: ok", decodeOutput([]byte("main.go:1: ok")))
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("package main"), Fingerprint("package main"))
	assert.NotEqual(t, Fingerprint("package main"), Fingerprint("package main "))
	assert.Len(t, Fingerprint(""), 64)
}
