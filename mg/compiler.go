package mg

import (
	"context"
	"golang.org/x/sync/errgroup"
	"gomode.sh/mgutil"
	"path/filepath"
	"sync"
)

type CompilerConfig struct {
	// Workers is the number of jobs that may run at the same time.
	// Default: 1
	Workers int

	Job   *Job
	Log   *Logger
	Tasks *TaskTracker

	// OnRelease, if set, is called after a source leaves the pending set.
	// It's called from the worker, so it must not block for long.
	OnRelease func(id string)
}

// Compiler runs at most one job per source at a time on a fixed pool of workers.
//
// Results are delivered on Results(); the pending entry of a source is released
// only after its result was handed over.
type Compiler struct {
	cfg CompilerConfig
	log *Logger

	mu      sync.Mutex
	job     *Job
	pending map[string]struct{}
	queue   []CompileRequest
	closed  bool

	wake    chan struct{}
	results chan Result
	eg      *errgroup.Group
	cancel  context.CancelFunc
}

func NewCompiler(cfg CompilerConfig) *Compiler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Compiler{
		cfg:     cfg,
		log:     orDiscard(cfg.Log),
		job:     cfg.Job,
		pending: map[string]struct{}{},
		wake:    make(chan struct{}, 1),
		results: make(chan Result, cfg.Workers),
	}
}

// Start starts the workers. They stop when ctx is done or Close is called.
func (c *Compiler) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.eg, ctx = errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		c.eg.Go(func() error {
			c.work(ctx)
			return nil
		})
	}
}

// Close stops the workers, waits for them to return and closes Results().
// Jobs that are still queued are dropped.
func (c *Compiler) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.queue = nil
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	var err error
	if c.eg != nil {
		err = c.eg.Wait()
	}
	close(c.results)
	return err
}

func (c *Compiler) Results() <-chan Result {
	return c.results
}

// SetJob replaces the job used for requests that start after the call
func (c *Compiler) SetJob(j *Job) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.job = j
}

// TryAdmit queues req unless a job for req.ID is already pending.
// It never blocks on compilation; false means the caller should try again later.
func (c *Compiler) TryAdmit(req CompileRequest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if _, busy := c.pending[req.ID]; busy {
		c.log.Dbg.Printf("compile %s rejected: already pending\n", req.ID)
		return false
	}

	c.pending[req.ID] = struct{}{}
	c.queue = append(c.queue, req)
	c.signal()
	return true
}

func (c *Compiler) Pending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.pending[id]
	return ok
}

func (c *Compiler) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Compiler) next(ctx context.Context) (CompileRequest, *Job, bool) {
	for {
		c.mu.Lock()
		if n := len(c.queue); n != 0 {
			req := c.queue[0]
			c.queue = c.queue[1:]
			if n > 1 {
				c.signal()
			}
			j := c.job
			c.mu.Unlock()
			return req, j, true
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return CompileRequest{}, nil, false
		case <-c.wake:
		}
	}
}

func (c *Compiler) work(ctx context.Context) {
	for {
		req, j, ok := c.next(ctx)
		if !ok {
			return
		}
		c.run(ctx, req, j)
	}
}

func (c *Compiler) run(ctx context.Context, req CompileRequest, j *Job) {
	defer c.release(req.ID)

	c.log.Printf("-> compiling %s\n", mgutil.ShortFilename(req.ID))
	tk := c.cfg.Tasks.Begin(Task{Title: j.Tool + " " + filepath.Base(req.ID)})
	res := j.Run(ctx, req)
	tk.Done()
	if res.Err != nil {
		c.log.Printf("compilation aborted: %s: %s\n", req.ID, res.Err)
	}

	select {
	case c.results <- res:
	case <-ctx.Done():
	}
}

func (c *Compiler) release(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	n := len(c.pending)
	c.mu.Unlock()

	c.log.Printf("<- compiling %s - pending=%d\n", mgutil.ShortFilename(id), n)
	if f := c.cfg.OnRelease; f != nil {
		f(id)
	}
}
