package store

import (
	"bytes"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"

	"parlor/pkg/logger"
)

// Pebble implements Store over an embedded Pebble database. A single
// mutex serializes Insert and Update so check-then-set and
// read-modify-write are atomic within the owning process; Pebble is
// single-process by construction, so that is the full story.
type Pebble struct {
	db *pebble.DB
	mu sync.Mutex
}

// OpenPebble opens (or creates) a Pebble database at the given path.
func OpenPebble(path string) (*Pebble, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &Pebble{db: db}, nil
}

func (p *Pebble) Get(key string) ([]byte, error) {
	v, closer, err := p.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, nil
}

func (p *Pebble) Insert(key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, closer, err := p.db.Get([]byte(key))
	if err == nil {
		if closer != nil {
			_ = closer.Close()
		}
		return ErrConflict
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return err
	}
	return p.db.Set([]byte(key), value, pebble.Sync)
}

func (p *Pebble) Put(key string, value []byte) error {
	return p.db.Set([]byte(key), value, pebble.Sync)
}

func (p *Pebble) Update(key string, mutate func(cur []byte) ([]byte, error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, closer, err := p.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	cur := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	next, err := mutate(cur)
	if err != nil {
		return err
	}
	return p.db.Set([]byte(key), next, pebble.Sync)
}

func (p *Pebble) Delete(key string) error {
	return p.db.Delete([]byte(key), pebble.Sync)
}

func (p *Pebble) Scan(prefix string, fn func(key string, value []byte) error) error {
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	pfx := []byte(prefix)
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		k := string(iter.Key())
		v := append([]byte(nil), iter.Value()...)
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (p *Pebble) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	logger.Info("pebble_closed")
	return err
}
