package gomode

import (
	"context"
	"fmt"
	"github.com/fatih/color"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
	"gomode.sh/bolt"
	"gomode.sh/golang"
	"gomode.sh/mg"
	"gomode.sh/mgcli"
	"gomode.sh/mgutil"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
)

const (
	AgentName = "gomode"
)

var (
	pathColor = color.New(color.FgCyan)
	lineColor = color.New(color.FgYellow)
)

func Main() {
	app := newApp()
	app.Writer = color.Output
	app.RunAndExitOnError()
}

func newApp() *mgcli.App {
	app := mgcli.NewApp()
	app.Name = AgentName
	app.Usage = "check Go sources in the background while they're edited"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config",
			EnvVar: "GOMODE_CONFIG",
			Usage:  "path of the TOML config file",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "agent",
			Usage:  "serve an editor over stdin and stdout",
			Action: mgcli.Action(agentAction),
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "codec",
					Value: mg.DefaultCodec,
					Usage: fmt.Sprintf("The IPC codec: %s", mg.CodecNamesStr),
				},
			},
		},
		{
			Name:      "check",
			Usage:     "compile files once and print their diagnostics",
			ArgsUsage: "FILE...",
			Action:    mgcli.Action(checkAction),
		},
		{
			Name:      "watch",
			Usage:     "check Go files in DIR whenever they're written",
			ArgsUsage: "DIR",
			Action:    mgcli.Action(watchAction),
		},
		{
			Name:      "sweep",
			Usage:     "remove shadow files left behind in DIR...",
			ArgsUsage: "DIR...",
			Action:    mgcli.Action(sweepAction),
		},
		{
			Name:      "flymake",
			Usage:     "build and vet the package of a shadow file",
			ArgsUsage: "FILE",
			Action:    mgcli.Action(flymakeAction),
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "prefix",
					Value: mg.DefaultPrefix,
					Usage: "the prefix of shadow files",
				},
			},
		},
	}
	return app
}

func newLogger(cx *cli.Context) *mg.Logger {
	if cx.GlobalBool("debug") {
		return mg.NewLogger(os.Stderr)
	}
	return mg.NewQuietLogger(os.Stderr)
}

func loadConfig(cx *cli.Context) (mg.Config, error) {
	fn := cx.GlobalString("config")
	if fn == "" {
		return resolveTool(mg.DefaultConfig.Finalize()), nil
	}
	cfg, err := mg.LoadConfig(fn)
	if err != nil {
		return cfg, err
	}
	return resolveTool(cfg), nil
}

// resolveTool makes the built-in flymake command the tool if the default tool isn't installed
func resolveTool(cfg mg.Config) mg.Config {
	if cfg.Tool != mg.DefaultConfig.Tool {
		return cfg
	}
	if _, err := exec.LookPath(cfg.Tool); err == nil {
		return cfg
	}
	exe, err := os.Executable()
	if err != nil {
		return cfg
	}
	cfg.Tool = exe
	cfg.Args = append([]string{"flymake", "--prefix", cfg.Prefix}, cfg.Args...)
	return cfg
}

func newCache(cfg mg.Config, lg *mg.Logger) mg.DiagnosticsCache {
	if cfg.Cache == "" {
		return nil
	}
	return bolt.NewDiagnosticsKV(cfg.Cache, lg)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func agentAction(cx *cli.Context) error {
	cfg, err := loadConfig(cx)
	if err != nil {
		return mgcli.Error("cannot load config:", err)
	}

	ag, err := mg.NewAgent(mg.AgentConfig{
		AgentName: AgentName,
		Codec:     cx.String("codec"),
		Config:    cfg,
		Cache:     newCache(cfg, mg.NewQuietLogger(os.Stderr)),
		Debug:     cx.GlobalBool("debug"),
	})
	if err != nil {
		return mgcli.Error("agent creation failed:", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := ag.Run(ctx); err != nil {
		return mgcli.Error("agent failed:", err)
	}
	return nil
}

// consoleEditor prints diagnostics to a terminal
type consoleEditor struct {
	w     io.Writer
	store *mg.DiagnosticStore
	echo  bool

	mu      sync.Mutex
	touched map[string]bool
}

func (ce *consoleEditor) ShowDiagnostics(id string, lines []int) {
	ce.mu.Lock()
	ce.touched[id] = true
	ce.mu.Unlock()

	if ce.echo {
		printDiagnostics(ce.w, id, ce.store.Snapshot(id))
	}
}

func (ce *consoleEditor) SetStatus(string, string) {}
func (ce *consoleEditor) ShowTasks(string)         {}
func (ce *consoleEditor) Goto(string, int)         {}
func (ce *consoleEditor) Message(string)           {}

func (ce *consoleEditor) touchedIDs() []string {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	l := make([]string, 0, len(ce.touched))
	for id := range ce.touched {
		l = append(l, id)
	}
	sort.Strings(l)
	return l
}

func newConsoleFlymake(cx *cli.Context, cfg mg.Config, echo bool) (*mg.Flymake, *consoleEditor) {
	lg := newLogger(cx)
	ce := &consoleEditor{w: cx.App.Writer, echo: echo, touched: map[string]bool{}}
	fm := mg.NewFlymake(cfg, mg.FlymakeOptions{
		Editor: ce,
		Cache:  newCache(cfg, lg),
		Log:    lg,
	})
	ce.store = fm.Store()
	return fm, ce
}

func printDiagnostics(w io.Writer, id string, dl mg.DiagnosticLines) int {
	n := 0
	for _, ln := range dl.Lines() {
		for _, msg := range dl[ln] {
			fmt.Fprintf(w, "%s:%s: %s\n", pathColor.Sprint(id), lineColor.Sprint(ln+1), msg)
			n++
		}
	}
	return n
}

func checkAction(cx *cli.Context) error {
	if !cx.Args().Present() {
		return cli.ShowCommandHelp(cx, cx.Command.Name)
	}
	cfg, err := loadConfig(cx)
	if err != nil {
		return mgcli.Error("cannot load config:", err)
	}
	// no need to wait for more edits
	cfg.SettleDelay = cfg.InitialDelay

	fm, ce := newConsoleFlymake(cx, cfg, false)
	ctx, cancel := signalContext()
	defer cancel()
	fm.Start(ctx)
	defer fm.Close()

	want := map[string]bool{}
	for _, fn := range cx.Args() {
		fn, err := filepath.Abs(fn)
		if err != nil {
			return err
		}
		src, err := os.ReadFile(fn)
		if err != nil {
			return err
		}
		want[fn] = true
		fm.Modified(fn, string(src))
	}

	var el mg.ErrorList
	for len(want) != 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-fm.Results():
			fm.Apply(res)
			delete(want, res.ID)
			if res.Err != nil {
				el = append(el, res.Err)
			}
		}
	}

	n := 0
	for _, id := range ce.touchedIDs() {
		n += printDiagnostics(cx.App.Writer, id, fm.Store().Snapshot(id))
	}
	if err := el.Err(); err != nil {
		return mgcli.Error("check failed:", err)
	}
	if n != 0 {
		return cli.NewExitError("", 1)
	}
	return nil
}

func watchAction(cx *cli.Context) error {
	dir := cx.Args().First()
	if dir == "" {
		dir = "."
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cx)
	if err != nil {
		return mgcli.Error("cannot load config:", err)
	}
	if _, err := mg.Sweep(dir, cfg.Prefix, newLogger(cx)); err != nil {
		return mgcli.Error("sweep failed:", err)
	}

	fm, _ := newConsoleFlymake(cx, cfg, true)
	w, err := mg.NewWatcher(fm, cfg.Prefix, newLogger(cx))
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.AddTree(dir); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	fm.Start(ctx)
	defer fm.Close()

	fmt.Fprintf(cx.App.ErrWriter, "watching %s, ignoring %s\n", mgutil.ShortFilename(dir), cfg.ExcludePattern())
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return w.Run(ctx) })
	eg.Go(func() error { return fm.Run(ctx) })
	if err := eg.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func sweepAction(cx *cli.Context) error {
	cfg, err := loadConfig(cx)
	if err != nil {
		return mgcli.Error("cannot load config:", err)
	}
	dirs := []string(cx.Args())
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	var el mg.ErrorList
	for _, dir := range dirs {
		removed, err := mg.Sweep(dir, cfg.Prefix, newLogger(cx))
		for _, fn := range removed {
			fmt.Fprintln(cx.App.Writer, "removed", fn)
		}
		el = append(el, err)
	}
	return el.Err()
}

func flymakeAction(cx *cli.Context) error {
	fn := cx.Args().First()
	if fn == "" {
		return cli.ShowCommandHelp(cx, cx.Command.Name)
	}
	cfg, err := loadConfig(cx)
	if err != nil {
		return mgcli.Error("cannot load config:", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	failed, err := golang.Flymake(ctx, fn, cx.String("prefix"), cfg.Environ(), cx.App.Writer)
	if err != nil {
		return err
	}
	if failed {
		return cli.NewExitError("", 1)
	}
	return nil
}
