package mg

import (
	"bufio"
	"context"
	"github.com/ugorji/go/codec"
	"golang.org/x/xerrors"
	"gomode.sh/mgutil"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

var (
	// DefaultCodec is the name of the default codec used for IPC communication
	DefaultCodec = "json"

	// codecHandles is the map of all valid codec handles
	codecHandles = func() map[string]codec.Handle {
		m := map[string]codec.Handle{
			"cbor": &codec.CborHandle{},
			"json": &codec.JsonHandle{
				TermWhitespace: true,
			},
			"msgpack": &codec.MsgpackHandle{},
		}
		m[""] = m[DefaultCodec]
		return m
	}()

	// CodecNames is the list of names of all valid codec handles
	CodecNames = func() []string {
		l := make([]string, 0, len(codecHandles))
		for k := range codecHandles {
			if k != "" {
				l = append(l, k)
			}
		}
		sort.Strings(l)
		return l
	}()

	// CodecNamesStr is the list of names of all valid codec handles in the form `a, b or c`
	CodecNamesStr = func() string {
		i := len(CodecNames) - 1
		return strings.Join(CodecNames[:i], ", ") + " or " + CodecNames[i]
	}()
)

type AgentConfig struct {
	// the name of the agent as reported in the Started event
	AgentName string

	// Codec is the name of the codec to use for IPC
	// Valid values are json, cbor or msgpack
	// Default: json
	Codec string

	// Config is the base config; SetConfig actions are applied over it
	Config Config

	Stdin  io.ReadCloser
	Stdout io.WriteCloser
	Stderr io.WriteCloser

	// Runner and Cache are passed to the Flymake service
	Runner ToolRunner
	Cache  DiagnosticsCache

	// Debug enables debug logging
	Debug bool
}

type agentReqAction struct {
	Name string
	Data codec.Raw
}

type agentReq struct {
	Cookie  string
	Actions []agentReqAction
}

type agentEvent struct {
	Name string
	Data interface{}
}

type agentRes struct {
	Cookie string
	Error  string
	Events []agentEvent
}

// StartedEvent is the first event the agent sends
type StartedEvent struct {
	Name           string
	Codec          string
	ExcludePattern string
}

type ConfigEvent struct {
	ExcludePattern string
}

type DiagnosticsEvent struct {
	Path  string
	Lines []int
}

type StatusEvent struct {
	Path string
	Text string
}

type TasksEvent struct {
	Text string
}

type GotoEvent struct {
	Path string
	Line int
}

type MessageEvent struct {
	Text string
}

// agentEditor turns the Editor calls of Flymake into events.
// It's only used from the agent's loop.
type agentEditor struct {
	events []agentEvent
}

func (ed *agentEditor) emit(name string, data interface{}) {
	ed.events = append(ed.events, agentEvent{Name: name, Data: data})
}

func (ed *agentEditor) take() []agentEvent {
	l := ed.events
	ed.events = nil
	return l
}

func (ed *agentEditor) ShowDiagnostics(id string, lines []int) {
	ed.emit("Diagnostics", DiagnosticsEvent{Path: id, Lines: lines})
}

func (ed *agentEditor) SetStatus(id, status string) {
	ed.emit("Status", StatusEvent{Path: id, Text: status})
}

func (ed *agentEditor) ShowTasks(status string) {
	ed.emit("Tasks", TasksEvent{Text: status})
}

func (ed *agentEditor) Goto(id string, line int) {
	ed.emit("Goto", GotoEvent{Path: id, Line: line})
}

func (ed *agentEditor) Message(msg string) {
	ed.emit("Message", MessageEvent{Text: msg})
}

// Agent serves a single editor over stdin and stdout.
//
// Requests are read from stdin, each one a list of actions, and answered with a
// reply that carries the same cookie. Events produced by compiles that finish later
// are sent as replies without a cookie.
type Agent struct {
	Name string

	Log     *Logger
	Flymake *Flymake

	mu sync.Mutex

	stdin  io.ReadCloser
	stdout io.WriteCloser
	stderr io.WriteCloser

	codec  string
	handle codec.Handle
	enc    *codec.Encoder
	encWr  *bufio.Writer
	dec    *codec.Decoder

	base     Config
	editor   *agentEditor
	shutdown bool
}

func NewAgent(cfg AgentConfig) (*Agent, error) {
	ag := &Agent{
		Name:   cfg.AgentName,
		stdin:  cfg.Stdin,
		stdout: cfg.Stdout,
		stderr: cfg.Stderr,
		codec:  cfg.Codec,
		handle: codecHandles[cfg.Codec],
		base:   cfg.Config.Finalize(),
		editor: &agentEditor{},
	}
	if ag.codec == "" {
		ag.codec = DefaultCodec
	}
	if ag.stdin == nil {
		ag.stdin = os.Stdin
	}
	if ag.stdout == nil {
		ag.stdout = os.Stdout
	}
	if ag.stderr == nil {
		ag.stderr = os.Stderr
	}
	ag.stderr = &mgutil.IOWrapper{Locker: &sync.Mutex{}, Writer: ag.stderr, Closer: ag.stderr}
	if cfg.Debug {
		ag.Log = NewLogger(ag.stderr)
	} else {
		ag.Log = NewQuietLogger(ag.stderr)
	}
	ag.Flymake = NewFlymake(ag.base, FlymakeOptions{
		Editor: ag.editor,
		Runner: cfg.Runner,
		Cache:  cfg.Cache,
		Log:    ag.Log,
	})

	if ag.handle == nil {
		ag.handle = codecHandles[DefaultCodec]
		return ag, xerrors.Errorf("Invalid codec '%s'. Expected %s", cfg.Codec, CodecNamesStr)
	}
	ag.encWr = bufio.NewWriter(ag.stdout)
	ag.enc = codec.NewEncoder(ag.encWr, ag.handle)
	ag.dec = codec.NewDecoder(bufio.NewReader(ag.stdin), ag.handle)

	return ag, nil
}

// Run serves requests until stdin is closed, a Shutdown action is received or ctx is done.
//
// All actions and results are handled on the calling goroutine.
func (ag *Agent) Run(ctx context.Context) error {
	defer ag.shutdownIPC()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fm := ag.Flymake
	fm.Start(ctx)
	defer fm.Close()

	rqc := make(chan *agentReq)
	errc := make(chan error, 1)
	go ag.readRequests(ctx, rqc, errc)

	ag.Log.Println("started")
	ag.editor.emit("Started", StartedEvent{
		Name:           ag.Name,
		Codec:          ag.codec,
		ExcludePattern: fm.Config().ExcludePattern(),
	})
	if err := ag.flush("", nil); err != nil {
		return err
	}

	tasks := fm.TaskStatus()
	for {
		var err error
		select {
		case <-ctx.Done():
			return nil
		case err = <-errc:
			return err
		case rq := <-rqc:
			err = ag.flush(rq.Cookie, ag.handleRequest(rq))
			if ag.shutdown {
				ag.Log.Println("shutting down")
				return err
			}
		case res, ok := <-fm.Results():
			if !ok {
				return nil
			}
			fm.Apply(res)
			err = ag.flush("", nil)
		case st, ok := <-tasks:
			if !ok {
				tasks = nil
				continue
			}
			ag.editor.ShowTasks(st)
			err = ag.flush("", nil)
		}
		if err != nil {
			return xerrors.Errorf("ipc.send: %w", err)
		}
	}
}

func (ag *Agent) readRequests(ctx context.Context, rqc chan<- *agentReq, errc chan<- error) {
	for {
		rq := &agentReq{}
		if err := ag.dec.Decode(rq); err != nil {
			if err == io.EOF {
				err = nil
			} else {
				err = xerrors.Errorf("ipc.decode: %w", err)
			}
			errc <- err
			return
		}
		select {
		case rqc <- rq:
		case <-ctx.Done():
			return
		}
	}
}

func (ag *Agent) handleRequest(rq *agentReq) error {
	var el ErrorList
	for _, ra := range rq.Actions {
		act, err := ag.createAction(ra)
		if err == nil {
			err = act.apply(ag)
		}
		if err != nil {
			ag.Log.Printf("action %s failed: %s\n", ra.Name, err)
			el = append(el, xerrors.Errorf("%s: %w", ra.Name, err))
		}
	}
	return el.Err()
}

func (ag *Agent) createAction(ra agentReqAction) (Action, error) {
	if f := actionCreators[ra.Name]; f != nil {
		return f(ag.handle, ra)
	}
	return nil, xerrors.Errorf("Unknown action: %s", ra.Name)
}

// flush sends the pending events, if any, as a reply to cookie.
// A reply with a cookie is always sent.
func (ag *Agent) flush(cookie string, err error) error {
	res := agentRes{Cookie: cookie, Events: ag.editor.take()}
	if err != nil {
		res.Error = err.Error()
	}
	if res.Cookie == "" && res.Error == "" && len(res.Events) == 0 {
		return nil
	}
	return ag.send(res)
}

func (ag *Agent) send(res agentRes) error {
	ag.mu.Lock()
	defer ag.mu.Unlock()

	if err := ag.enc.Encode(res); err != nil {
		return err
	}
	return ag.encWr.Flush()
}

func (ag *Agent) shutdownIPC() {
	defer ag.stdin.Close()
	defer ag.stdout.Close()
}
