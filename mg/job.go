package mg

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/xerrors"
	"gomode.sh/mgutil"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// CompileRequest is the content of a source captured when it was admitted for compilation.
type CompileRequest struct {
	ID  string
	Src string
}

// Result is the outcome of compiling a CompileRequest.
//
// Err is set if the tool could not be run to completion, or the artifact could not be managed.
// A tool that exits with a non-zero status is not an error; its output holds the diagnostics.
type Result struct {
	ID          string
	Fingerprint string
	ExitCode    int
	Stdout      string
	Stderr      string
	Err         error
	Duration    time.Duration
}

// Invocation describes a single run of an external tool
type Invocation struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

func (inv Invocation) String() string {
	return mgutil.QuoteCmd(inv.Name, inv.Args...)
}

type ToolOutput struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// ToolRunner runs external tools.
// Implementations must return when ctx is done.
type ToolRunner interface {
	RunTool(ctx context.Context, inv Invocation) (ToolOutput, error)
}

// ExecRunner is a ToolRunner that uses os/exec.
// The tool's process group is killed when ctx is done.
type ExecRunner struct{}

func (ExecRunner) RunTool(ctx context.Context, inv Invocation) (ToolOutput, error) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = pgSysProcAttr
	cmd.Cancel = func() error {
		pgKill(cmd.Process)
		return nil
	}
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	out := ToolOutput{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		out.ExitCode = ee.ExitCode()
		return out, nil
	}
	return out, err
}

// Job compiles a source by way of a shadow artifact.
//
// The artifact is a copy of the in-memory content written next to the source,
// its base name prefixed with Prefix, so tools and file watchers can tell it apart from real files.
type Job struct {
	Tool    string
	Args    []string
	Prefix  string
	Env     mgutil.EnvMap
	Timeout time.Duration
	Runner  ToolRunner
	Log     *Logger
}

// Run writes the artifact, runs the tool against it and removes it on every path out.
// It never panics; failures are reported in Result.Err
func (j *Job) Run(ctx context.Context, req CompileRequest) (res Result) {
	start := time.Now()
	res = Result{
		ID:          req.ID,
		Fingerprint: Fingerprint(req.Src),
	}
	defer func() {
		if v := recover(); v != nil {
			res.Err = ErrorList{xerrors.Errorf("tool panicked: %v", v), res.Err}.Err()
		}
		res.Duration = time.Since(start)
	}()

	dir := filepath.Dir(req.ID)
	name := ArtifactName(req.ID, j.Prefix)
	fn := filepath.Join(dir, name)
	defer j.removeArtifact(fn, &res)

	if err := os.WriteFile(fn, []byte(req.Src), 0644); err != nil {
		res.Err = xerrors.Errorf("cannot write artifact: %w", err)
		return res
	}

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	inv := Invocation{
		Name: j.Tool,
		Args: append(append([]string(nil), j.Args...), name),
		Dir:  dir,
		Env:  j.Env.Environ(),
	}
	orDiscard(j.Log).Dbg.Printf("flymake `%s` in %s\n", inv, dir)

	runner := j.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	out, err := runner.RunTool(ctx, inv)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		res.Err = xerrors.Errorf("`%s` timed out after %s: %w", inv, j.Timeout, err)
		return res
	case err != nil:
		res.Err = xerrors.Errorf("`%s` failed: %w", inv, err)
		return res
	}

	res.ExitCode = out.ExitCode
	res.Stdout = decodeOutput(out.Stdout)
	res.Stderr = decodeOutput(out.Stderr)
	return res
}

func (j *Job) removeArtifact(fn string, res *Result) {
	err := os.Remove(fn)
	if err == nil || os.IsNotExist(err) {
		return
	}
	orDiscard(j.Log).Printf("cannot remove artifact %s: %s\n", fn, err)
	res.Err = ErrorList{res.Err, xerrors.Errorf("cannot remove artifact: %w", err)}.Err()
}

// decodeOutput converts tool output to text, replacing invalid UTF-8 sequences
func decodeOutput(p []byte) string {
	s, err := unicode.UTF8.NewDecoder().Bytes(p)
	if err != nil {
		return string(bytes.ToValidUTF8(p, []byte("�")))
	}
	return string(s)
}

// Fingerprint returns a hash of src that identifies the content diagnostics were computed for
func Fingerprint(src string) string {
	sum := blake2b.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}
