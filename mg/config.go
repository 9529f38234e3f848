package mg

import (
	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
	"gomode.sh/mgutil"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration that is written as a string, e.g. "100ms" or "1s"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(p []byte) error {
	v, err := time.ParseDuration(string(p))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func D(d time.Duration) Duration {
	return Duration{Duration: d}
}

// Config configures the flymake pipeline.
type Config struct {
	// Tool is the name of the diagnostic tool. It's called as `Tool Args... ARTIFACT`
	Tool string   `toml:"tool"`
	Args []string `toml:"args"`

	// Prefix is prepended to the base name of a source to name its shadow artifact
	Prefix string `toml:"prefix"`

	// Workers is the number of compiles that may run at the same time
	Workers int `toml:"workers"`

	// InitialDelay is how long after the first edit of a burst a reconciliation happens
	InitialDelay Duration `toml:"initial_delay"`
	// SettleDelay is how long after further edits of a burst a reconciliation happens
	SettleDelay Duration `toml:"settle_delay"`

	// RetryDelay is the delay before a source that could not be admitted is retried.
	// It doubles after each retry of the same burst, up to MaxRetryDelay.
	RetryDelay    Duration `toml:"retry_delay"`
	MaxRetryDelay Duration `toml:"max_retry_delay"`
	// MaxRetries limits timed retries. A negative value disables them, but a source
	// that was edited while it compiled is still recompiled as soon as its compile is done.
	MaxRetries int `toml:"max_retries"`

	// Timeout limits a single run of Tool. A negative value means no limit.
	Timeout Duration `toml:"timeout"`

	// ParseStderr makes the tool's stderr a source of diagnostics as well as its stdout
	ParseStderr bool `toml:"parse_stderr"`

	// Cache is the path of the persisted diagnostics database. Empty disables it.
	Cache string `toml:"cache"`

	// Env overrides the process environment of Tool.
	// Values may refer to other variables, e.g. `$HOME/go`.
	Env map[string]string `toml:"env"`
}

var DefaultConfig = Config{
	Tool:          "goflymake",
	Prefix:        DefaultPrefix,
	Workers:       1,
	InitialDelay:  D(100 * time.Millisecond),
	SettleDelay:   D(1 * time.Second),
	RetryDelay:    D(1 * time.Second),
	MaxRetryDelay: D(8 * time.Second),
	MaxRetries:    8,
	Timeout:       D(30 * time.Second),
}

// LoadConfig reads the TOML file at path over DefaultConfig.
// Unknown keys are reported as errors.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig.Copy()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, xerrors.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if l := md.Undecoded(); len(l) != 0 {
		keys := make([]string, len(l))
		for i, k := range l {
			keys[i] = k.String()
		}
		return Config{}, xerrors.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg.Finalize(), nil
}

// Copy returns a copy of c that shares no maps or slices with it
func (c Config) Copy() Config {
	c.Args = append([]string(nil), c.Args...)
	if c.Env != nil {
		env := make(map[string]string, len(c.Env))
		for k, v := range c.Env {
			env[k] = v
		}
		c.Env = env
	}
	return c
}

// Finalize replaces unset and invalid values with those of DefaultConfig.
//
// The zero value of every field means "use the default".
// MaxRetries and Timeout are disabled by a negative value instead.
func (c Config) Finalize() Config {
	def := DefaultConfig
	if c.Tool == "" {
		c.Tool = def.Tool
	}
	if c.Prefix == "" {
		c.Prefix = def.Prefix
	}
	if c.Workers < 1 {
		c.Workers = def.Workers
	}
	for _, p := range []struct{ v, def *Duration }{
		{&c.InitialDelay, &def.InitialDelay},
		{&c.SettleDelay, &def.SettleDelay},
		{&c.RetryDelay, &def.RetryDelay},
		{&c.MaxRetryDelay, &def.MaxRetryDelay},
	} {
		if p.v.Duration <= 0 {
			*p.v = *p.def
		}
	}
	if c.MaxRetryDelay.Duration < c.RetryDelay.Duration {
		c.MaxRetryDelay = c.RetryDelay
	}
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = def.MaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = -1
	}
	switch {
	case c.Timeout.Duration == 0:
		c.Timeout = def.Timeout
	case c.Timeout.Duration < 0:
		c.Timeout = D(-1)
	}
	return c
}

// Environ returns the environment overrides with variable references expanded
func (c Config) Environ() mgutil.EnvMap {
	return mgutil.EnvMap(c.Env).Expand()
}

// ExcludePattern is the file pattern editors should hide from file lists, e.g. `flymake_*.go`
func (c Config) ExcludePattern() string {
	return c.Prefix + "*.go"
}

// RetryBackoff returns the delay before the n'th (zero-based) retry
func (c Config) RetryBackoff(n int) time.Duration {
	d := c.RetryDelay.Duration
	for i := 0; i < n && d < c.MaxRetryDelay.Duration; i++ {
		d *= 2
	}
	if d > c.MaxRetryDelay.Duration {
		d = c.MaxRetryDelay.Duration
	}
	return d
}

// Job returns the Job described by the config
func (c Config) Job(runner ToolRunner, lg *Logger) *Job {
	timeout := c.Timeout.Duration
	if timeout < 0 {
		timeout = 0
	}
	return &Job{
		Tool:    c.Tool,
		Args:    append([]string(nil), c.Args...),
		Prefix:  c.Prefix,
		Env:     c.Environ(),
		Timeout: timeout,
		Runner:  runner,
		Log:     lg,
	}
}

// Override returns a copy of c with the editor settings in values applied.
//
// Keys are config key names, optionally prefixed with `go_` as per-view settings are.
// `args` is a space separated list and `env.NAME` sets a single variable.
func (c Config) Override(values map[string]string) (Config, error) {
	c = c.Copy()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var el ErrorList
	for _, k := range keys {
		v := values[k]
		name := strings.TrimPrefix(k, "go_")
		if err := c.set(name, v); err != nil {
			el = append(el, xerrors.Errorf("setting %s: %w", k, err))
		}
	}
	return c.Finalize(), el.Err()
}

func (c *Config) set(name, v string) error {
	dur := func(p *Duration) error { return p.UnmarshalText([]byte(v)) }
	num := func(p *int) error {
		n, err := strconv.Atoi(v)
		if err == nil {
			*p = n
		}
		return err
	}

	switch name {
	case "tool":
		c.Tool = v
	case "args":
		c.Args = strings.Fields(v)
	case "prefix":
		c.Prefix = v
	case "workers":
		return num(&c.Workers)
	case "initial_delay":
		return dur(&c.InitialDelay)
	case "settle_delay":
		return dur(&c.SettleDelay)
	case "retry_delay":
		return dur(&c.RetryDelay)
	case "max_retry_delay":
		return dur(&c.MaxRetryDelay)
	case "max_retries":
		return num(&c.MaxRetries)
	case "timeout":
		return dur(&c.Timeout)
	case "parse_stderr":
		b, err := strconv.ParseBool(v)
		c.ParseStderr = b
		return err
	case "cache":
		c.Cache = v
	default:
		k := strings.TrimPrefix(name, "env.")
		if k == name || k == "" {
			return xerrors.New("unknown key")
		}
		if c.Env == nil {
			c.Env = map[string]string{}
		}
		c.Env[k] = v
	}
	return nil
}
