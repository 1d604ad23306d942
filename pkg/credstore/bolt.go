package credstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	boltDirPerm     = fs.FileMode(0o700)
	boltFilePerm    = fs.FileMode(0o600)
	boltOpenTimeout = 5 * time.Second

	// expiry header: unix nanoseconds, big endian, zero means no expiry
	envelopeHeader = 8
)

var credentialsBucket = []byte("credentials")

// ErrStoreLocked is returned when another process, usually a running
// server, holds the bolt file.
var ErrStoreLocked = errors.New("credstore: store is locked by a running server")

// BoltStore persists entries in a single bbolt bucket. Each value is stored
// behind an 8-byte expiry header.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

func OpenBolt(path string) (*BoltStore, error) {
	return OpenBoltTimeout(path, boltOpenTimeout)
}

// OpenBoltTimeout waits at most timeout for the file lock before failing
// with ErrStoreLocked.
func OpenBoltTimeout(path string, timeout time.Duration) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), boltDirPerm); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	db, err := bolt.Open(path, boltFilePerm, &bolt.Options{Timeout: timeout})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrStoreLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store db: %w", err)
	}
	return &BoltStore{db: db, now: time.Now}, nil
}

func encodeEnvelope(value []byte, expiresAt time.Time) []byte {
	buf := make([]byte, envelopeHeader+len(value))
	if !expiresAt.IsZero() {
		binary.BigEndian.PutUint64(buf[:envelopeHeader], uint64(expiresAt.UnixNano()))
	}
	copy(buf[envelopeHeader:], value)
	return buf
}

func decodeEnvelope(raw []byte) ([]byte, time.Time, error) {
	if len(raw) < envelopeHeader {
		return nil, time.Time{}, fmt.Errorf("corrupt store value: %d bytes", len(raw))
	}
	var exp time.Time
	if n := binary.BigEndian.Uint64(raw[:envelopeHeader]); n != 0 {
		exp = time.Unix(0, int64(n))
	}
	return append([]byte(nil), raw[envelopeHeader:]...), exp, nil
}

func expired(exp, now time.Time) bool {
	return !exp.IsZero() && !now.Before(exp)
}

func (s *BoltStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Put([]byte(key), encodeEnvelope(value, exp))
	})
}

func (s *BoltStore) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(credentialsBucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		v, exp, err := decodeEnvelope(raw)
		if err != nil {
			return err
		}
		if expired(exp, s.now()) {
			return ErrNotFound
		}
		out = v
		return nil
	})
	return out, err
}

func (s *BoltStore) Take(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		raw := b.Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		v, exp, err := decodeEnvelope(raw)
		if err != nil {
			return err
		}
		if err := b.Delete([]byte(key)); err != nil {
			return err
		}
		if expired(exp, s.now()) {
			return ErrNotFound
		}
		out = v
		return nil
	})
	return out, err
}

func (s *BoltStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Delete([]byte(key))
	})
}

func (s *BoltStore) List(_ context.Context, prefix string) ([]Entry, error) {
	now := s.now()
	out := []Entry{}
	p := []byte(prefix)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(credentialsBucket).Cursor()
		for k, raw := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, raw = c.Next() {
			v, exp, err := decodeEnvelope(raw)
			if err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			if expired(exp, now) {
				continue
			}
			out = append(out, Entry{Key: string(k), Value: v, ExpiresAt: exp})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Sweep(_ context.Context, now time.Time) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		var stale [][]byte
		err := b.ForEach(func(k, raw []byte) error {
			_, exp, err := decodeEnvelope(raw)
			if err != nil || expired(exp, now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(stale)
		return nil
	})
	return n, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
