package mg

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultPrefix marks shadow artifacts, e.g. main.go is compiled as flymake_main.go
	DefaultPrefix = "flymake_"
)

var (
	// FlymakePattern matches `path:line: message` as reported for regular builds
	// and `path:line:column: message` as reported for test builds.
	FlymakePattern = regexp.MustCompile(`^(?P<path>[^:]+):(?P<line>\d+):(?:(?P<column>\d+):)? (?P<message>.*)$`)
)

// Issue is a single diagnostic reported by a tool.
//
// Row and Col are zero-based.
type Issue struct {
	Path    string
	Row     int
	Col     int
	Message string
}

// Valid reports whether the issue names a file.
// A line with an empty message still marks that line.
func (isu Issue) Valid() bool {
	return isu.Path != ""
}

// Parser extracts issues from the output of a tool that compiled the source src.
type Parser interface {
	Parse(src string, out string) []Issue
}

// PatternParser is a line-oriented Parser driven by regular expressions.
//
// Patterns may use the named groups `path`, `line`, `column` and `message`.
// The first pattern that matches a line wins; lines that match no pattern are ignored.
//
// Paths are resolved relative to the directory of the compiled source,
// after removing Prefix from their base name.
type PatternParser struct {
	Prefix   string
	Patterns []*regexp.Regexp
}

// NewPatternParser returns a PatternParser that uses FlymakePattern
func NewPatternParser(prefix string) *PatternParser {
	return &PatternParser{
		Prefix:   prefix,
		Patterns: []*regexp.Regexp{FlymakePattern},
	}
}

func (pp *PatternParser) Parse(src string, out string) []Issue {
	dir := filepath.Dir(src)
	var issues []Issue
	for _, ln := range strings.Split(out, "\n") {
		ln = strings.TrimRight(ln, "\r")
		if isu, ok := pp.match(dir, ln); ok {
			issues = append(issues, isu)
		}
	}
	return issues
}

func (pp *PatternParser) match(dir, ln string) (Issue, bool) {
	for _, p := range pp.Patterns {
		if isu, ok := pp.matchOne(p, dir, ln); ok {
			return isu, true
		}
	}
	return Issue{}, false
}

func (pp *PatternParser) matchOne(p *regexp.Regexp, dir, ln string) (Issue, bool) {
	submatch := p.FindStringSubmatch(ln)
	if submatch == nil {
		return Issue{}, false
	}

	num := func(s string) int {
		if n, _ := strconv.Atoi(strings.TrimSpace(s)); n > 0 {
			return n - 1
		}
		return 0
	}

	isu := Issue{}
	for i, k := range p.SubexpNames() {
		v := submatch[i]
		switch k {
		case "path":
			isu.Path = pp.resolve(dir, strings.TrimSpace(v))
		case "line":
			isu.Row = num(v)
		case "column":
			isu.Col = num(v)
		case "message":
			isu.Message = strings.TrimSpace(v)
		}
	}
	return isu, isu.Valid()
}

// resolve maps a reported path to the real file next to the compiled source.
// Diagnostics are assumed to always reference files in that directory.
func (pp *PatternParser) resolve(dir, fn string) string {
	if fn == "" {
		return ""
	}
	return filepath.Join(dir, UnaliasName(filepath.Base(fn), pp.Prefix))
}

// ArtifactName returns the base name of the shadow artifact for the source fn
func ArtifactName(fn, prefix string) string {
	return prefix + filepath.Base(fn)
}

// UnaliasName strips prefix from the base name, if it has one.
// A name that consists only of the prefix is left untouched.
func UnaliasName(base, prefix string) string {
	if prefix != "" && len(base) > len(prefix) && strings.HasPrefix(base, prefix) {
		return base[len(prefix):]
	}
	return base
}

// IsArtifact reports whether the base name of fn is that of a shadow artifact
func IsArtifact(fn, prefix string) bool {
	base := filepath.Base(fn)
	return prefix != "" &&
		strings.HasSuffix(base, ".go") &&
		UnaliasName(base, prefix) != base
}
