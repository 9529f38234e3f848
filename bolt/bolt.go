package bolt

import (
	"github.com/ugorji/go/codec"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/xerrors"
	"gomode.sh/mg"
	"os"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned by Load if the key doesn't exist
	ErrNotFound = xerrors.New("key not found")
)

// BoltKV is a key/value store in a bolt database, with keys and values encoded by Handle.
//
// The database is opened for every transaction, so it can be shared with other processes.
type BoltKV struct {
	Bucket []byte
	Handle codec.Handle
	Path   string

	mu sync.RWMutex
}

func (bs *BoltKV) encode(v interface{}) ([]byte, error) {
	s := []byte{}
	err := codec.NewEncoderBytes(&s, bs.Handle).Encode(v)
	return s, err
}

func (bs *BoltKV) decode(s []byte, p interface{}) error {
	return codec.NewDecoderBytes(s, bs.Handle).Decode(p)
}

func (bs *BoltKV) view(f func(*bolt.Tx) error) error {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	return bs.tx(true, f)
}

func (bs *BoltKV) update(f func(*bolt.Tx) error) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	return bs.tx(false, f)
}

func (bs *BoltKV) tx(view bool, f func(*bolt.Tx) error) error {
	if view {
		if _, err := os.Stat(bs.Path); os.IsNotExist(err) {
			return ErrNotFound
		}
	}
	db, err := bolt.Open(bs.Path, 0600, &bolt.Options{
		Timeout:  5 * time.Second,
		ReadOnly: view,
	})
	if err != nil {
		return xerrors.Errorf("cannot open %s: %w", bs.Path, err)
	}
	defer db.Close()

	if view {
		return db.View(f)
	}
	return db.Update(f)
}

// Load decodes the value of key into ptr
func (bs *BoltKV) Load(key, ptr interface{}) error {
	k, err := bs.encode(key)
	if err != nil {
		return err
	}

	return bs.view(func(tx *bolt.Tx) error {
		bck := tx.Bucket(bs.Bucket)
		if bck == nil {
			return ErrNotFound
		}

		s := bck.Get(k)
		if s == nil {
			return ErrNotFound
		}
		return bs.decode(s, ptr)
	})
}

func (bs *BoltKV) Store(key, val interface{}) error {
	k, err := bs.encode(key)
	if err != nil {
		return err
	}

	v, err := bs.encode(val)
	if err != nil {
		return err
	}

	return bs.update(func(tx *bolt.Tx) error {
		bck, err := tx.CreateBucketIfNotExists(bs.Bucket)
		if err != nil {
			return err
		}
		return bck.Put(k, v)
	})
}

func (bs *BoltKV) Delete(key interface{}) error {
	k, err := bs.encode(key)
	if err != nil {
		return err
	}

	return bs.update(func(tx *bolt.Tx) error {
		bck := tx.Bucket(bs.Bucket)
		if bck == nil {
			return nil
		}
		return bck.Delete(k)
	})
}

type diagnosticsRecord struct {
	Fingerprint string
	Lines       map[int][]string
}

// DiagnosticsKV is a mg.DiagnosticsCache backed by a BoltKV
type DiagnosticsKV struct {
	KV  *BoltKV
	Log *mg.Logger
}

// NewDiagnosticsKV returns a DiagnosticsKV that stores msgpack-encoded records in the database at path
func NewDiagnosticsKV(path string, lg *mg.Logger) *DiagnosticsKV {
	if lg == nil {
		lg = mg.NewQuietLogger(os.Stderr)
	}
	return &DiagnosticsKV{
		KV: &BoltKV{
			Path:   path,
			Handle: &codec.MsgpackHandle{},
			Bucket: []byte("diagnostics"),
		},
		Log: lg,
	}
}

// LoadDiagnostics returns the diagnostics stored for id if they were computed for the same content
func (dk *DiagnosticsKV) LoadDiagnostics(id, fingerprint string) (mg.DiagnosticLines, bool) {
	rec := diagnosticsRecord{}
	if err := dk.KV.Load(id, &rec); err != nil {
		if !xerrors.Is(err, ErrNotFound) {
			dk.Log.Println("cannot load diagnostics:", err)
		}
		return nil, false
	}
	if rec.Fingerprint != fingerprint {
		dk.Log.Dbg.Printf("cached diagnostics of %s are stale\n", id)
		return nil, false
	}
	dl := mg.DiagnosticLines{}
	for ln, msgs := range rec.Lines {
		dl[ln] = msgs
	}
	return dl, true
}

func (dk *DiagnosticsKV) StoreDiagnostics(id, fingerprint string, dl mg.DiagnosticLines) error {
	return dk.KV.Store(id, diagnosticsRecord{
		Fingerprint: fingerprint,
		Lines:       map[int][]string(dl),
	})
}

func (dk *DiagnosticsKV) Forget(id string) error {
	return dk.KV.Delete(id)
}
