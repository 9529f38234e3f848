package mgutil

import (
	"os"
	"sort"
	"strings"
)

// EnvMap is a map of environment variable overrides
type EnvMap map[string]string

// copy returns a copy of the map
// sizeHint is a hint about the expected new size of the map
// if sizeHint is less than 0, it's assumed to be 0
func (e EnvMap) copy(sizeHint int) EnvMap {
	n := len(e) + sizeHint
	if n < 0 {
		n = 0
	}
	m := make(EnvMap, n)
	for k, v := range e {
		m[k] = v
	}
	return m
}

// Set sets the key k in the map to the value v and returns the new map
func (e EnvMap) Set(k, v string) EnvMap {
	m := e.copy(1)
	m[k] = v
	return m
}

// Merge merges p into the map and returns the new map
func (e EnvMap) Merge(p map[string]string) EnvMap {
	if len(p) == 0 {
		return e
	}

	m := e.copy(len(p))
	for k, v := range p {
		m[k] = v
	}
	return m
}

// Expand returns a copy of the map with `$VAR` and `${VAR}` references
// in each value replaced using the process environment.
// A reference to an unset variable expands to the empty string.
func (e EnvMap) Expand() EnvMap {
	m := e.copy(0)
	for k, v := range m {
		m[k] = os.ExpandEnv(v)
	}
	return m
}

// Environ returns a copy of os.Environ merged with the values in the map
//
// Keys present in the map replace those in os.Environ.
// The overrides are appended in sorted order so the result is stable.
func (e EnvMap) Environ() []string {
	el := os.Environ()
	l := make([]string, 0, len(e)+len(el))
	for _, s := range el {
		k := strings.SplitN(s, "=", 2)[0]
		if _, exists := e[k]; !exists {
			l = append(l, s)
		}
	}
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		l = append(l, k+"="+e[k])
	}
	return l
}

// Getenv returns the value for k if it exists in the map or via os.Getenv.
// If it doesn't exists or is an empty string, def is returned.
func (e EnvMap) Getenv(k, def string) string {
	if v := e[k]; v != "" {
		return v
	}
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
