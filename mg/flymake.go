package mg

import (
	"context"
	"strings"
	"sync"
)

const (
	NoMoreDiagnosticsMessage = "No more errors or warnings!"
)

// Editor is the part of the editor that Flymake reports to.
//
// Its methods are only called from the goroutine that calls Apply, Activated,
// Selection, Next and Prev, i.e. the one running Run or the agent loop.
type Editor interface {
	// ShowDiagnostics replaces the error markers of id with lines.
	ShowDiagnostics(id string, lines []int)
	// SetStatus shows status for the focused line of id. An empty status erases it.
	SetStatus(id, status string)
	// ShowTasks shows the status of running compiles.
	ShowTasks(status string)
	Goto(id string, line int)
	Message(msg string)
}

// DiagnosticsCache persists the last diagnostics of each source,
// along with the fingerprint of the content they were computed for.
type DiagnosticsCache interface {
	LoadDiagnostics(id, fingerprint string) (DiagnosticLines, bool)
	StoreDiagnostics(id, fingerprint string, dl DiagnosticLines) error
}

type FlymakeOptions struct {
	Editor Editor

	// Parser defaults to a PatternParser for the configured prefix.
	Parser Parser

	// Runner defaults to ExecRunner.
	Runner ToolRunner

	// Cache is optional.
	Cache DiagnosticsCache

	Log *Logger
}

// Flymake compiles edited sources in the background and keeps their diagnostics.
//
// Edits are reported with Modified. The first edit of a burst is compiled right away,
// further edits are coalesced and compiled once the burst settles.
// A source is never compiled twice at the same time; an edit that arrives while
// its source is compiling is compiled after that compile is done.
type Flymake struct {
	log    *Logger
	editor Editor
	runner ToolRunner
	cache  DiagnosticsCache

	reg   *Registry
	store *DiagnosticStore
	comp  *Compiler
	deb   *Debouncer
	tasks *TaskTracker

	mu      sync.Mutex
	cfg     Config
	parser  Parser
	custom  bool
	retries int
	rows    map[string]int
}

func NewFlymake(cfg Config, o FlymakeOptions) *Flymake {
	cfg = cfg.Finalize()
	fm := &Flymake{
		log:    orDiscard(o.Log),
		editor: o.Editor,
		runner: o.Runner,
		cache:  o.Cache,
		reg:    NewRegistry(),
		store:  NewDiagnosticStore(),
		tasks:  NewTaskTracker(),
		cfg:    cfg,
		parser: o.Parser,
		custom: o.Parser != nil,
		rows:   map[string]int{},
	}
	if fm.editor == nil {
		fm.editor = nopEditor{}
	}
	if fm.runner == nil {
		fm.runner = ExecRunner{}
	}
	if !fm.custom {
		fm.parser = NewPatternParser(cfg.Prefix)
	}
	fm.comp = NewCompiler(CompilerConfig{
		Workers:   cfg.Workers,
		Job:       cfg.Job(fm.runner, fm.log),
		Log:       fm.log,
		Tasks:     fm.tasks,
		OnRelease: fm.released,
	})
	fm.deb = NewDebouncer(cfg.InitialDelay.Duration, cfg.SettleDelay.Duration, fm.compile, fm.reconcile)
	return fm
}

// Start starts the compile workers
func (fm *Flymake) Start(ctx context.Context) {
	fm.comp.Start(ctx)
}

// Close stops the timers and the workers. Results() is closed when it returns.
func (fm *Flymake) Close() error {
	fm.deb.Stop()
	err := fm.comp.Close()
	fm.tasks.Close()
	return err
}

// Results returns the channel on which compile results are delivered.
// Each result must be passed to Apply.
func (fm *Flymake) Results() <-chan Result {
	return fm.comp.Results()
}

// TaskStatus returns the channel on which changes of the tasks status are sent.
func (fm *Flymake) TaskStatus() <-chan string {
	return fm.tasks.C()
}

func (fm *Flymake) Config() Config {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	return fm.cfg
}

func (fm *Flymake) Store() *DiagnosticStore {
	return fm.store
}

// Reconfigure applies cfg to compiles that start after the call
func (fm *Flymake) Reconfigure(cfg Config) {
	cfg = cfg.Finalize()

	fm.mu.Lock()
	if cfg.Workers != fm.cfg.Workers {
		fm.log.Printf("workers=%d cannot be changed while running, keeping %d\n", cfg.Workers, fm.cfg.Workers)
		cfg.Workers = fm.cfg.Workers
	}
	fm.cfg = cfg
	if !fm.custom {
		fm.parser = NewPatternParser(cfg.Prefix)
	}
	fm.mu.Unlock()

	fm.comp.SetJob(cfg.Job(fm.runner, fm.log))
	fm.deb.SetDelays(cfg.InitialDelay.Duration, cfg.SettleDelay.Duration)
}

// Run applies results until ctx is done or Close is called.
// It's a convenience for consumers that have no event loop of their own.
func (fm *Flymake) Run(ctx context.Context) error {
	tasks := fm.TaskStatus()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-fm.Results():
			if !ok {
				return nil
			}
			fm.Apply(res)
		case st, ok := <-tasks:
			if !ok {
				tasks = nil
				continue
			}
			fm.editor.ShowTasks(st)
		}
	}
}

// Modified records src as the new content of id and schedules it for compilation
func (fm *Flymake) Modified(id, src string) {
	fm.reg.Update(id, src)
	fm.deb.Notify()
}

// Activated shows the known diagnostics of id.
//
// If none are known and a cache is configured, diagnostics cached for the same content as src are restored.
func (fm *Flymake) Activated(id, src string) {
	if fm.cache != nil && !fm.store.Has(id) {
		if dl, ok := fm.cache.LoadDiagnostics(id, Fingerprint(src)); ok {
			fm.log.Dbg.Printf("restored %d diagnostic lines of %s\n", len(dl), id)
			fm.store.Restore(id, dl)
		}
	}
	if fm.store.Has(id) {
		fm.render(id)
	}
}

// Selection updates the status of id if the focused row changed
func (fm *Flymake) Selection(id string, row int) {
	fm.mu.Lock()
	prev, seen := fm.rows[id]
	fm.rows[id] = row
	fm.mu.Unlock()

	if seen && prev == row {
		return
	}
	fm.editor.SetStatus(id, fm.store.StatusText(id, row))
}

// Next moves to the first diagnostic after row
func (fm *Flymake) Next(id string, row int) {
	fm.goTo(id, fm.store.NextAfter, row)
}

// Prev moves to the last diagnostic before row
func (fm *Flymake) Prev(id string, row int) {
	fm.goTo(id, fm.store.PrevBefore, row)
}

func (fm *Flymake) goTo(id string, find func(string, int) (int, bool), row int) {
	ln, ok := find(id, row)
	if !ok {
		fm.editor.Message(NoMoreDiagnosticsMessage)
		return
	}
	fm.editor.Goto(id, ln)
}

// Apply replaces the diagnostics of res.ID with those parsed from res and renders them.
// Other sources that the tool reported about have their diagnostics replaced too.
//
// A failed result clears the diagnostics of res.ID.
func (fm *Flymake) Apply(res Result) {
	fm.mu.Lock()
	cfg := fm.cfg
	parser := fm.parser
	fm.mu.Unlock()

	out := res.Stdout
	if cfg.ParseStderr && res.Stderr != "" {
		out = strings.TrimRight(out, "\n") + "\n" + res.Stderr
	}
	fm.log.Printf("%s (exit=%d, %s)\n%s", res.ID, res.ExitCode, res.Duration, out)

	var issues []Issue
	if res.Err != nil {
		fm.log.Printf("no diagnostics for %s: %s\n", res.ID, res.Err)
	} else {
		issues = parser.Parse(res.ID, out)
	}

	for _, id := range fm.store.Replace(res.ID, issues) {
		fm.render(id)
	}

	if fm.cache != nil && res.Err == nil {
		err := fm.cache.StoreDiagnostics(res.ID, res.Fingerprint, fm.store.Snapshot(res.ID))
		if err != nil {
			fm.log.Printf("cannot cache diagnostics of %s: %s\n", res.ID, err)
		}
	}
}

func (fm *Flymake) render(id string) {
	fm.editor.ShowDiagnostics(id, fm.store.Lines(id))

	fm.mu.Lock()
	row, ok := fm.rows[id]
	fm.mu.Unlock()

	if ok {
		fm.editor.SetStatus(id, fm.store.StatusText(id, row))
	}
}

// admit tries to admit every source with pending edits and returns the number rejected
func (fm *Flymake) admit() int {
	rejected := 0
	for _, id := range fm.reg.Dirty() {
		if !fm.admitOne(id) {
			rejected++
		}
	}
	return rejected
}

func (fm *Flymake) admitOne(id string) bool {
	b, ok := fm.reg.Buffer(id)
	if !ok {
		return true
	}
	if !fm.comp.TryAdmit(CompileRequest{ID: id, Src: b.Src}) {
		return false
	}
	// an edit after the snapshot leaves id dirty for the next pass
	fm.reg.Clean(id, b.Version)
	return true
}

// compile is the immediate compile of a new burst.
// Rejected sources are left to the reconciliation that follows the burst.
func (fm *Flymake) compile() {
	fm.mu.Lock()
	fm.retries = 0
	fm.mu.Unlock()

	fm.admit()
}

// reconcile runs when a burst settled or a retry is due
func (fm *Flymake) reconcile() {
	rejected := fm.admit()

	fm.mu.Lock()
	if rejected == 0 {
		fm.retries = 0
		fm.mu.Unlock()
		return
	}
	if fm.retries >= fm.cfg.MaxRetries {
		n := fm.retries
		fm.mu.Unlock()
		fm.log.Dbg.Printf("%d sources still busy after %d retries, waiting for their compiles\n", rejected, n)
		return
	}
	delay := fm.cfg.RetryBackoff(fm.retries)
	fm.retries++
	fm.mu.Unlock()

	fm.deb.Retry(delay)
}

// released compiles id again if it was edited while it compiled and no timer will do it
func (fm *Flymake) released(id string) {
	if fm.reg.IsDirty(id) && !fm.deb.Active() {
		fm.admitOne(id)
	}
}

type nopEditor struct{}

func (nopEditor) ShowDiagnostics(string, []int) {}
func (nopEditor) SetStatus(string, string)      {}
func (nopEditor) ShowTasks(string)              {}
func (nopEditor) Goto(string, int)              {}
func (nopEditor) Message(string)                {}
