// internal/storage/badger_store.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var (
	ErrNotFound = errors.New("entity not found")
	ErrExists   = errors.New("entity already exists")
)

// Entity represents any storable entity with an ID
type Entity interface {
	GetID() string
}

// BadgerStore keeps JSON entities under "prefix:id" keys.
type BadgerStore struct {
	db     *badger.DB
	prefix string
	codec  *Codec
}

func NewBadgerStore(db *badger.DB, prefix string, codec *Codec) *BadgerStore {
	if codec == nil {
		codec = PlainCodec()
	}
	return &BadgerStore{
		db:     db,
		prefix: prefix,
		codec:  codec,
	}
}

func (s *BadgerStore) makeKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", s.prefix, id))
}

func (s *BadgerStore) encode(entity Entity) ([]byte, error) {
	if entity.GetID() == "" {
		return nil, fmt.Errorf("entity ID cannot be empty")
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("marshaling entity %s: %w", entity.GetID(), err)
	}
	return s.codec.Encode(data)
}

func (s *BadgerStore) encodeAll(entities []Entity) ([][]byte, error) {
	encoded := make([][]byte, len(entities))
	for i, entity := range entities {
		data, err := s.encode(entity)
		if err != nil {
			return nil, err
		}
		encoded[i] = data
	}
	return encoded, nil
}

func (s *BadgerStore) decode(val []byte, entity any) error {
	data, err := s.codec.Decode(val)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, entity)
}

// Create writes entities that must not exist yet, in a single transaction.
// If any of them is already stored nothing is written and ErrExists is
// returned.
func (s *BadgerStore) Create(entities ...Entity) error {
	encoded, err := s.encodeAll(entities)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for i, entity := range entities {
			key := s.makeKey(entity.GetID())
			_, err := txn.Get(key)
			if err == nil {
				return fmt.Errorf("%w: %s", ErrExists, entity.GetID())
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(key, encoded[i]); err != nil {
				return fmt.Errorf("storing %s: %w", entity.GetID(), err)
			}
		}
		return nil
	})
}

func (s *BadgerStore) Get(id string, entity any) error {
	key := s.makeKey(id)

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return s.decode(val, entity)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

// Put writes every entity, created or replaced, in a single transaction:
// either all of them land or none do.
func (s *BadgerStore) Put(entities ...Entity) error {
	encoded, err := s.encodeAll(entities)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for i, entity := range entities {
			if err := txn.Set(s.makeKey(entity.GetID()), encoded[i]); err != nil {
				return fmt.Errorf("storing %s: %w", entity.GetID(), err)
			}
		}
		return nil
	})
}
