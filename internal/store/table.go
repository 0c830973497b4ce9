package store

import (
	"encoding/json"
	"fmt"

	"github.com/alexjbarnes/chatsync/internal/models"
	bolt "go.etcd.io/bbolt"
)

// Table is a typed view over one JSON-encoded collection.
type Table[T any] struct {
	s   *Store
	c   Collection
	key func(*T) string
}

// Profiles returns the profile table.
func (s *Store) Profiles() Table[models.Profile] {
	return Table[models.Profile]{s: s, c: Profiles, key: ProfileKey}
}

// Chats returns the conversation table.
func (s *Store) Chats() Table[models.Chat] {
	return Table[models.Chat]{s: s, c: Chats, key: ChatKey}
}

// Memory returns the memory table, keyed by profile ID.
func (s *Store) Memory() Table[models.MemoryRecord] {
	return Table[models.MemoryRecord]{s: s, c: Memory, key: MemoryKey}
}

// NamedAssets returns the user-named asset table.
func (s *Store) NamedAssets() Table[models.NamedAsset] {
	return Table[models.NamedAsset]{s: s, c: Assets, key: NamedAssetKey}
}

// Get returns the entity with the given ID, or nil if not found.
func (t Table[T]) Get(id string) (*T, error) {
	data, err := t.s.Get(t.c, id)
	if err != nil || data == nil {
		return nil, err
	}

	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("decoding %s %s: %w", t.c, id, err)
	}

	return v, nil
}

// GetAll returns every entity ordered by key.
func (t Table[T]) GetAll() ([]T, error) {
	var out []T

	err := t.s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(t.c.bucket()).ForEach(func(k, data []byte) error {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return fmt.Errorf("decoding %s %s: %w", t.c, k, err)
			}

			out = append(out, v)

			return nil
		})
	})

	return out, err
}

// Put stores the entity under its key.
func (t Table[T]) Put(v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return t.s.Put(t.c, t.key(&v), data)
}

// Delete removes the entity with the given ID.
func (t Table[T]) Delete(id string) error {
	return t.s.Delete(t.c, id)
}

// Clear removes every entity.
func (t Table[T]) Clear() error {
	return t.s.Clear(t.c)
}

// PutMedia stores an anonymous media payload.
func (s *Store) PutMedia(id string, data []byte) error {
	return s.Put(Media, id, data)
}

// MediaPayload returns a media payload, or nil if absent.
func (s *Store) MediaPayload(id string) ([]byte, error) {
	return s.Get(Media, id)
}
