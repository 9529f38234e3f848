package mg

import (
	"context"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/xerrors"
	"os"
	"path/filepath"
	"strings"
)

// SourceNotifier is told about new content of a source, e.g. *Flymake
type SourceNotifier interface {
	Modified(id, src string)
}

// Watcher reports writes to Go files on disk to a SourceNotifier.
//
// Shadow artifacts are ignored, so compiles don't trigger themselves.
type Watcher struct {
	Log *Logger

	n      SourceNotifier
	prefix string
	fsw    *fsnotify.Watcher
	tree   bool
}

func NewWatcher(n SourceNotifier, prefix string, lg *Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, xerrors.Errorf("cannot create watcher: %w", err)
	}
	return &Watcher{
		Log:    orDiscard(lg),
		n:      n,
		prefix: prefix,
		fsw:    fsw,
	}, nil
}

// Add watches the files in dir
func (w *Watcher) Add(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return xerrors.Errorf("cannot watch %s: %w", dir, err)
	}
	w.Log.Dbg.Println("watching", dir)
	return nil
}

// AddTree watches root and the directories below it,
// including those created after the call.
func (w *Watcher) AddTree(root string) error {
	w.tree = true
	return walkDirs(root, w.Add)
}

// Run delivers events until ctx is done or the watcher is closed
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.Log.Println("watcher error:", err)
		}
	}
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	fn := ev.Name
	if ev.Has(fsnotify.Create) && w.tree && w.addDir(fn) {
		return
	}
	if !strings.HasSuffix(fn, ".go") || IsArtifact(fn, w.prefix) {
		return
	}
	fn, err := filepath.Abs(fn)
	if err != nil {
		return
	}
	src, err := os.ReadFile(fn)
	if err != nil {
		// usually a file that was removed again right away
		w.Log.Dbg.Printf("cannot read %s: %s\n", fn, err)
		return
	}
	w.n.Modified(fn, string(src))
}

// addDir watches fn and the directories below it if fn is a directory that scanDir accepts.
// It reports whether fn is a directory.
func (w *Watcher) addDir(fn string) bool {
	fi, err := os.Stat(fn)
	if err != nil || !fi.IsDir() {
		return false
	}
	if !scanDir(filepath.Base(fn)) {
		return true
	}
	if err := walkDirs(fn, w.Add); err != nil {
		w.Log.Println("watcher:", err)
	}
	return true
}
