package mg

import (
	"github.com/karrick/godirwalk"
	"golang.org/x/xerrors"
	"os"
	"path/filepath"
)

// scanDir reports whether the directory named nm should be scanned.
// Hidden directories and those that the go tool ignores are skipped.
func scanDir(nm string) bool {
	return nm != "" && nm[0] != '.' && nm[0] != '_' && nm != "testdata"
}

// walkDirs calls f for root and each directory below it that scanDir accepts
func walkDirs(root string, f func(dir string) error) error {
	return godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(fn string, de *godirwalk.Dirent) error {
			if !de.IsDir() {
				return nil
			}
			if fn != root && !scanDir(de.Name()) {
				return filepath.SkipDir
			}
			return f(fn)
		},
	})
}

// Sweep removes shadow artifacts that were left behind under root, e.g. by a crash,
// and returns the names of the removed files.
//
// Directories that scanDir rejects are not visited.
func Sweep(root, prefix string, lg *Logger) ([]string, error) {
	lg = orDiscard(lg)
	if prefix == "" {
		return nil, xerrors.New("Sweep: empty prefix")
	}

	var removed []string
	var el ErrorList
	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(fn string, de *godirwalk.Dirent) error {
			switch {
			case de.IsDir():
				if fn != root && !scanDir(de.Name()) {
					return filepath.SkipDir
				}
			case de.IsRegular() && IsArtifact(fn, prefix):
				if err := os.Remove(fn); err != nil && !os.IsNotExist(err) {
					el = append(el, err)
					return nil
				}
				lg.Println("removed", fn)
				removed = append(removed, fn)
			}
			return nil
		},
		ErrorCallback: func(fn string, err error) godirwalk.ErrorAction {
			lg.Dbg.Printf("sweep %s: %s\n", fn, err)
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		el = append(el, err)
	}
	return removed, el.Err()
}
