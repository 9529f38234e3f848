package mgutil

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

var homeDir = func() string {
	dir, _ := os.UserHomeDir()
	return filepath.Clean(dir)
}()

// ShortFilename returns a shortened form of fn for display in logs and status messages.
//
// The home directory is replaced with `~`, and every directory except the last one
// is reduced to its first letter, e.g. `/home/user/go/src/example.com/pkg/main.go`
// becomes `~/g/s/e/pkg/main.go`.
func ShortFilename(fn string) string {
	return shortFilename(homeDir, fn)
}

func shortFilename(home, fn string) string {
	fn = filepath.Clean(fn)
	sep := string(filepath.Separator)
	if home != "" && home != sep && home != "." {
		if fn == home {
			return "~"
		}
		if s := strings.TrimPrefix(fn, home+sep); s != fn {
			fn = "~" + sep + s
		}
	}

	l := strings.Split(fn, sep)
	if len(l) <= 3 {
		return fn
	}
	for i, s := range l[:len(l)-2] {
		if s == "~" {
			continue
		}
		for j, r := range s {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				l[i] = s[:j] + string(r)
				break
			}
		}
	}
	return strings.Join(l, sep)
}
