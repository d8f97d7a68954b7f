// Package cursor persists the update feed offset between process runs.
package cursor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// Store loads and saves the next update offset. A store that has never been
// saved to reports offset 0.
type Store interface {
	Load(ctx context.Context) (int, error)
	Save(ctx context.Context, offset int) error
	Close() error
}

// Memory keeps the offset for the life of the process only.
type Memory struct {
	mu     sync.Mutex
	offset int
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset, nil
}

func (m *Memory) Save(_ context.Context, offset int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset = offset
	return nil
}

func (m *Memory) Close() error { return nil }

var (
	cursorBucket = []byte("cursor")
	offsetKey    = []byte("next_offset")
)

// Bolt stores the offset in a bbolt file.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens or creates the bbolt file at path.
func OpenBolt(path string) (*Bolt, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cursor directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cursor db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cursorBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cursor bucket: %w", err)
	}

	return &Bolt{db: db}, nil
}

func (b *Bolt) Load(context.Context) (int, error) {
	var offset int
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(cursorBucket).Get(offsetKey)
		if data == nil {
			return nil
		}
		if len(data) != 8 {
			return errors.New("corrupt cursor value")
		}
		offset = int(binary.BigEndian.Uint64(data))
		return nil
	})
	return offset, err
}

func (b *Bolt) Save(_ context.Context, offset int) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(offset))
		return tx.Bucket(cursorBucket).Put(offsetKey, buf)
	})
}

func (b *Bolt) Close() error { return b.db.Close() }
