package golang

import (
	"bytes"
	"context"
	"go/build"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
	"gomode.sh/mg"
	"gomode.sh/mgutil"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// BuildContext returns build.Default with GOOS, GOARCH, GOROOT and GOPATH taken from env
func BuildContext(env mgutil.EnvMap) *build.Context {
	c := build.Default
	c.GOARCH = env.Getenv("GOARCH", c.GOARCH)
	c.GOOS = env.Getenv("GOOS", c.GOOS)
	c.GOROOT = env.Getenv("GOROOT", c.GOROOT)
	c.GOPATH = env.Getenv("GOPATH", c.GOPATH)
	return &c
}

// PackageFiles returns the base names of the files that make up the package of the shadow artifact fn,
// with the file it shadows and any other artifact left out.
//
// If fn is a test file, the test files of the same package are included too.
// If the package can't be loaded, fn is compiled on its own.
func PackageFiles(bctx *build.Context, fn, prefix string) (files []string, test bool) {
	dir := filepath.Dir(fn)
	base := filepath.Base(fn)
	shadowed := mg.UnaliasName(base, prefix)
	test = strings.HasSuffix(base, "_test.go")

	pkg, err := bctx.ImportDir(dir, 0)
	if err != nil || pkg == nil {
		return []string{base}, test
	}

	keep := func(nm string) bool {
		return nm == base || (nm != shadowed && !mg.IsArtifact(nm, prefix))
	}
	add := func(l []string) {
		for _, nm := range l {
			if keep(nm) {
				files = append(files, nm)
			}
		}
	}

	add(pkg.GoFiles)
	add(pkg.CgoFiles)
	if test {
		tests := pkg.TestGoFiles
		if contains(pkg.XTestGoFiles, base) {
			tests = pkg.XTestGoFiles
		}
		add(tests)
	}
	if !contains(files, base) {
		// e.g. excluded by build constraints
		return []string{base}, test
	}
	return files, test
}

func contains(l []string, s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// BuildArgs returns the arguments of the go command that compiles the package of fn without output
func BuildArgs(files []string, test bool) []string {
	if test {
		return append([]string{"test", "-c", "-o", os.DevNull}, files...)
	}
	return append([]string{"build", "-o", os.DevNull}, files...)
}

// VetArgs returns the arguments of the go command that vets the package of fn
func VetArgs(files []string) []string {
	return append([]string{"vet"}, files...)
}

// Flymake checks the package of the shadow artifact fn with `go build` and `go vet`, run concurrently,
// and writes their output to w.
//
// failed is true if either command reported problems.
// err is only set if a command could not be run at all.
func Flymake(ctx context.Context, fn, prefix string, env mgutil.EnvMap, w io.Writer) (failed bool, err error) {
	fn, err = filepath.Abs(fn)
	if err != nil {
		return false, err
	}
	files, test := PackageFiles(BuildContext(env), fn, prefix)
	dir := filepath.Dir(fn)

	invs := []mg.Invocation{
		{Name: "go", Args: BuildArgs(files, test), Dir: dir, Env: env.Environ()},
		{Name: "go", Args: VetArgs(files), Dir: dir, Env: env.Environ()},
	}
	outs := make([]mg.ToolOutput, len(invs))
	runner := mg.ExecRunner{}
	eg, ctx := errgroup.WithContext(ctx)
	for i, inv := range invs {
		i, inv := i, inv
		eg.Go(func() error {
			out, err := runner.RunTool(ctx, inv)
			if err != nil {
				return xerrors.Errorf("`%s` failed: %w", inv, err)
			}
			outs[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return false, err
	}

	buf := &bytes.Buffer{}
	for _, out := range outs {
		if out.ExitCode != 0 {
			failed = true
		}
		buf.Write(out.Stdout)
		buf.Write(out.Stderr)
	}
	_, err = w.Write(buf.Bytes())
	return failed, err
}
