package inventory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	bucketName  = "inventory"
	itemsKey    = "items"
	settingsKey = "settings"
)

// Store defines the interface for inventory persistence. It is the single
// source of truth for items; all mutations are serialized.
type Store interface {
	// Add stores a new item, generating an id when none is set.
	Add(item Item) (Item, error)

	// Get retrieves an item by id.
	Get(id string) (Item, error)

	// Update merges patch fields into an existing item. It never partially
	// applies.
	Update(id string, patch ItemPatch) (Item, error)

	// Remove deletes an item. Removing an unknown id is a no-op.
	Remove(id string) error

	// List returns a snapshot of all items in insertion order.
	List() []Item

	// SaveSettings persists notification settings.
	SaveSettings(settings Settings) error

	// LoadSettings returns persisted settings, or defaults when absent.
	LoadSettings() (Settings, error)

	// Close closes the underlying database.
	Close() error
}

// IDGenerator generates unique ids for new items.
type IDGenerator interface {
	Generate() string
}

// uuidGenerator is collision-resistant under concurrent adds, unlike a raw
// wall-clock timestamp.
type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

// BoltStore implements Store using BoltDB. The ordered collection is held in
// memory; every mutation durably writes the entire collection as one JSON
// snapshot under a fixed key before it becomes visible to readers.
type BoltStore struct {
	db    *bbolt.DB
	idGen IDGenerator

	mu    sync.RWMutex
	items []Item
}

// OpenBoltStore opens (or creates) the database at path and loads the
// persisted snapshot. An unreadable snapshot degrades to an empty collection
// instead of failing startup.
func OpenBoltStore(path string) (*BoltStore, error) {
	return openBoltStore(path, uuidGenerator{})
}

// OpenBoltStoreWithIDs is OpenBoltStore with a custom id generator for tests.
func OpenBoltStoreWithIDs(path string, idGen IDGenerator) (*BoltStore, error) {
	return openBoltStore(path, idGen)
}

func openBoltStore(path string, idGen IDGenerator) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	s := &BoltStore{db: db, idGen: idGen}
	s.load()
	return s, nil
}

// load reads the item snapshot. Corrupt payloads are logged and discarded so
// startup never fails on a bad snapshot.
func (s *BoltStore) load() {
	var raw []byte
	s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket([]byte(bucketName)).Get([]byte(itemsKey)); data != nil {
			raw = slices.Clone(data)
		}
		return nil
	})
	if raw == nil {
		return
	}

	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		slog.Warn("Discarding unreadable item snapshot", "error", err)
		return
	}
	s.items = items
}

// persist writes the full collection under the items key. The in-memory
// collection is only swapped after the write succeeds.
func (s *BoltStore) persist(items []Item) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshaling items: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(itemsKey), data)
	})
	if err != nil {
		return fmt.Errorf("writing item snapshot: %w", err)
	}
	return nil
}

// Add validates and stores a new item. A fresh id is generated when the item
// carries none.
func (s *BoltStore) Add(item Item) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = s.idGen.Generate()
	}
	for _, existing := range s.items {
		if existing.ID == item.ID {
			return Item{}, fmt.Errorf("item id %s already exists", item.ID)
		}
	}
	if err := item.Validate(); err != nil {
		return Item{}, err
	}

	next := append(slices.Clone(s.items), item)
	if err := s.persist(next); err != nil {
		return Item{}, err
	}
	s.items = next
	return item, nil
}

// Get retrieves an item by id.
func (s *BoltStore) Get(id string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.ID == id {
			return item, nil
		}
	}
	return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Update merges patch fields into the stored item and persists the result.
// The patch is applied all-or-nothing.
func (s *BoltStore) Update(id string, patch ItemPatch) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, item := range s.items {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	updated := patch.apply(s.items[idx])
	if err := updated.Validate(); err != nil {
		return Item{}, err
	}

	next := slices.Clone(s.items)
	next[idx] = updated
	if err := s.persist(next); err != nil {
		return Item{}, err
	}
	s.items = next
	return updated, nil
}

// Remove deletes an item. Unknown ids are a silent no-op so deletes stay
// idempotent.
func (s *BoltStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, item := range s.items {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}

	next := slices.Delete(slices.Clone(s.items), idx, idx+1)
	if err := s.persist(next); err != nil {
		return err
	}
	s.items = next
	return nil
}

// List returns a copy of the collection in insertion order.
func (s *BoltStore) List() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// SaveSettings persists notification settings under their own key.
func (s *BoltStore) SaveSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(settingsKey), data)
	})
	if err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// LoadSettings returns persisted settings; missing or unreadable settings
// fall back to defaults.
func (s *BoltStore) LoadSettings() (Settings, error) {
	var raw []byte
	s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket([]byte(bucketName)).Get([]byte(settingsKey)); data != nil {
			raw = slices.Clone(data)
		}
		return nil
	})
	if raw == nil {
		return DefaultSettings(), nil
	}

	var settings Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		slog.Warn("Discarding unreadable settings", "error", err)
		return DefaultSettings(), nil
	}
	return settings, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
