// Package store is the local store adapter. Entities live in bbolt
// buckets, one bucket per collection, values JSON encoded (media blobs
// are stored raw). Every accessor runs in its own transaction scoped to
// one collection; AtomicReplace is the only multi-collection write.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alexjbarnes/chatsync/internal/models"
	bolt "go.etcd.io/bbolt"
	bolterrors "go.etcd.io/bbolt/errors"
)

const (
	// stateDirPerm is the permission mode for the data directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second

	stagingPrefix = "staging:"
)

// Collection names one bucket of the local store.
type Collection string

const (
	Profiles Collection = "profiles"
	Chats    Collection = "chats"
	Memory   Collection = "memory"
	Assets   Collection = "assets"
	Media    Collection = "media"
	Settings Collection = "settings"
)

// EntityCollections are the collections holding application data, as
// opposed to settings.
var EntityCollections = []Collection{Profiles, Chats, Memory, Assets, Media}

// AllCollections lists every collection the store creates on open.
var AllCollections = append(append([]Collection{}, EntityCollections...), Settings)

func (c Collection) bucket() []byte { return []byte(c) }

func (c Collection) staging() []byte { return []byte(stagingPrefix + string(c)) }

// Snapshot is the full contents of some collections: key to encoded value.
type Snapshot map[Collection]map[string][]byte

// Store wraps a bbolt database holding the local dataset.
type Store struct {
	db *bolt.DB

	// stageHook runs after each collection is staged during
	// AtomicReplace. Tests use it to simulate interruption.
	stageHook func(Collection) error
}

// OpenAt opens the store at path, creating it if needed. Staging buckets
// abandoned by an interrupted AtomicReplace are dropped.
func OpenAt(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, c := range AllCollections {
			if _, err := tx.CreateBucketIfNotExists(c.bucket()); err != nil {
				return err
			}
		}

		return dropStaging(tx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw value for key, or nil if absent.
func (s *Store) Get(c Collection, key string) ([]byte, error) {
	var out []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(c.bucket()).Get([]byte(key))
		if v != nil {
			out = bytes.Clone(v)
		}

		return nil
	})

	return out, err
}

// GetAll returns every entry of a collection.
func (s *Store) GetAll(c Collection) (map[string][]byte, error) {
	result := make(map[string][]byte)

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(c.bucket()).ForEach(func(k, v []byte) error {
			result[string(k)] = bytes.Clone(v)
			return nil
		})
	})

	return result, err
}

// Keys returns the keys of a collection in byte order.
func (s *Store) Keys(c Collection) ([]string, error) {
	var keys []string

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(c.bucket()).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})

	return keys, err
}

// Put stores value under key.
func (s *Store) Put(c Collection, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("empty key for collection %s", c)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(c.bucket()).Put([]byte(key), value)
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(c Collection, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(c.bucket()).Delete([]byte(key))
	})
}

// Clear removes every entry of a collection.
func (s *Store) Clear(c Collection) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(c.bucket()); err != nil {
			return err
		}

		_, err := tx.CreateBucket(c.bucket())

		return err
	})
}

// IsEmpty reports whether every entity collection is empty. Settings are
// not considered.
func (s *Store) IsEmpty() (bool, error) {
	empty := true

	err := s.db.View(func(tx *bolt.Tx) error {
		for _, c := range EntityCollections {
			if k, _ := tx.Bucket(c.bucket()).Cursor().First(); k != nil {
				empty = false
				return nil
			}
		}

		return nil
	})

	return empty, err
}

// Setting returns the raw value of a settings key, or nil.
func (s *Store) Setting(key string) ([]byte, error) {
	return s.Get(Settings, key)
}

// PutSetting stores a settings value.
func (s *Store) PutSetting(key string, value []byte) error {
	return s.Put(Settings, key, value)
}

// PutSettings writes several settings keys in one transaction. A nil
// value deletes the key.
func (s *Store) PutSettings(values map[string][]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(Settings.bucket())

		for k, v := range values {
			if v == nil {
				if err := b.Delete([]byte(k)); err != nil {
					return err
				}

				continue
			}

			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}

		return nil
	})
}

// Dump returns the contents of every collection.
func (s *Store) Dump() (Snapshot, error) {
	snap := make(Snapshot, len(AllCollections))

	for _, c := range AllCollections {
		entries, err := s.GetAll(c)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", c, err)
		}

		snap[c] = entries
	}

	return snap, nil
}

// AtomicReplace replaces the collections named in snap with its
// contents. Collections absent from snap are left alone.
//
// Each collection is first written to a staging bucket in its own
// transaction. Only when every collection is staged does a single
// transaction swap staging into the primary buckets. An interruption
// before the swap leaves the primaries untouched; the next OpenAt drops
// the leftover staging buckets.
func (s *Store) AtomicReplace(snap Snapshot) error {
	order := make([]Collection, 0, len(snap))

	for _, c := range AllCollections {
		if _, ok := snap[c]; ok {
			order = append(order, c)
		}
	}

	if len(order) != len(snap) {
		return fmt.Errorf("snapshot names an unknown collection")
	}

	for _, c := range order {
		if err := s.stage(c, snap[c]); err != nil {
			s.discardStaging()
			return fmt.Errorf("staging %s: %w", c, err)
		}

		if s.stageHook != nil {
			if err := s.stageHook(c); err != nil {
				s.discardStaging()
				return fmt.Errorf("staging %s: %w", c, err)
			}
		}
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, c := range order {
			if err := swap(tx, c); err != nil {
				return fmt.Errorf("swapping %s: %w", c, err)
			}
		}

		return nil
	})
	if err != nil {
		s.discardStaging()
		return err
	}

	return nil
}

func (s *Store) stage(c Collection, entries map[string][]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(c.staging()); err != nil && !errors.Is(err, bolterrors.ErrBucketNotFound) {
			return err
		}

		b, err := tx.CreateBucket(c.staging())
		if err != nil {
			return err
		}

		for k, v := range entries {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}

		return nil
	})
}

func swap(tx *bolt.Tx, c Collection) error {
	staged := tx.Bucket(c.staging())
	if staged == nil {
		return fmt.Errorf("staging bucket missing")
	}

	if err := tx.DeleteBucket(c.bucket()); err != nil && !errors.Is(err, bolterrors.ErrBucketNotFound) {
		return err
	}

	primary, err := tx.CreateBucket(c.bucket())
	if err != nil {
		return err
	}

	err = staged.ForEach(func(k, v []byte) error {
		return primary.Put(bytes.Clone(k), bytes.Clone(v))
	})
	if err != nil {
		return err
	}

	return tx.DeleteBucket(c.staging())
}

func (s *Store) discardStaging() {
	_ = s.db.Update(dropStaging)
}

func dropStaging(tx *bolt.Tx) error {
	var names [][]byte

	err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
		if strings.HasPrefix(string(name), stagingPrefix) {
			names = append(names, bytes.Clone(name))
		}

		return nil
	})
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := tx.DeleteBucket(name); err != nil {
			return err
		}
	}

	return nil
}

// hasStaging reports whether any staging bucket exists.
func (s *Store) hasStaging() bool {
	found := false

	_ = s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if strings.HasPrefix(string(name), stagingPrefix) {
				found = true
			}

			return nil
		})
	})

	return found
}

// EncodeEntries JSON-encodes values keyed by key(v), ready for a Snapshot.
func EncodeEntries[T any](values []T, key func(*T) string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(values))

	for i := range values {
		k := key(&values[i])
		if k == "" {
			return nil, fmt.Errorf("entry %d has an empty key", i)
		}

		data, err := json.Marshal(values[i])
		if err != nil {
			return nil, err
		}

		out[k] = data
	}

	return out, nil
}

// Key functions for the typed tables.
func ProfileKey(p *models.Profile) string { return p.ID }

func ChatKey(c *models.Chat) string { return c.ID }

func MemoryKey(m *models.MemoryRecord) string { return m.ProfileID }

func NamedAssetKey(a *models.NamedAsset) string { return a.ID }
