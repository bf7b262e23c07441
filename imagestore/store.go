package imagestore

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/yumetose/wardrobe/model"
	"github.com/yumetose/wardrobe/outfit"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Blob is one stored image payload.
type Blob struct {
	Base64 string
	Width  int
	Height int
}

// ReferenceScanner reports whether any slot in any outfit of any identity
// still references a content key. Implemented by the wardrobe manager.
type ReferenceScanner interface {
	ImageKeyInUse(key string) bool
}

// Store is the content-addressed image blob store: blobs are keyed by the
// SHA-256 hex digest of their base64 payload, so identical uploads
// deduplicate to one entry.
//
// Blobs are held in memory and persisted to the database: loaded on startup,
// saved with batching.
type Store struct {
	mu     sync.RWMutex
	blobs  map[string]Blob
	db     *gorm.DB // nil = no persistence (tests)
	logger *zap.Logger

	// Batch persistence
	pendingMu  sync.Mutex
	pendingPut map[string]Blob
	pendingDel map[string]bool
}

// NewStore creates an empty Store with optional DB persistence.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{
		blobs:      make(map[string]Blob),
		db:         db,
		logger:     logger,
		pendingPut: make(map[string]Blob),
		pendingDel: make(map[string]bool),
	}
}

// Key computes the content digest of a base64 payload.
func Key(base64 string) string {
	sum := sha256.Sum256([]byte(base64))
	return hex.EncodeToString(sum[:])
}

// LoadFromDB populates the in-memory store from the database.
// Call once at startup after NewStore.
func (s *Store) LoadFromDB() error {
	if s.db == nil {
		return nil
	}
	var rows []model.ImageBlob
	if err := s.db.Find(&rows).Error; err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.blobs[r.Key] = Blob{Base64: r.Base64, Width: r.Width, Height: r.Height}
	}
	return nil
}

// Add stores a blob and returns its content key. A digest collision is true
// content equality, so an existing entry is kept as-is rather than
// overwritten.
func (s *Store) Add(base64 string, width, height int) string {
	key := Key(base64)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[key]; exists {
		return key
	}
	s.blobs[key] = Blob{Base64: base64, Width: width, Height: height}
	s.queuePut(key)
	return key
}

// Get returns the blob stored under key.
func (s *Store) Get(key string) (Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	return b, ok
}

// Has reports whether key exists in the store.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[key]
	return ok
}

// Len returns the number of stored blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Keys returns every stored content key.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.blobs))
	for k := range s.blobs {
		keys = append(keys, k)
	}
	return keys
}

// LookupBlob implements outfit.BlobResolver for attach-time validation.
func (s *Store) LookupBlob(key string) (outfit.BlobInfo, bool) {
	b, ok := s.Get(key)
	if !ok {
		return outfit.BlobInfo{}, false
	}
	return outfit.BlobInfo{Width: b.Width, Height: b.Height}, true
}

// TryDelete removes a blob once nothing references it. It returns false
// without mutating when the key is unknown or any slot anywhere still points
// at it. The reference check is a full sweep over every outfit; deletion is a
// rare user-initiated action, so no reverse index is kept.
//
// The scan runs outside the store lock: the scanner takes the manager lock,
// and attach validation takes the store lock under the manager lock, so the
// lock order is manager before store.
func (s *Store) TryDelete(key string, refs ReferenceScanner) bool {
	if !s.Has(key) {
		return false
	}
	if refs != nil && refs.ImageKeyInUse(key) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return false
	}
	delete(s.blobs, key)
	s.queueDel(key)
	return true
}

func (s *Store) queuePut(key string) {
	if s.db == nil {
		return
	}
	s.pendingMu.Lock()
	s.pendingPut[key] = s.blobs[key]
	delete(s.pendingDel, key)
	s.pendingMu.Unlock()
}

func (s *Store) queueDel(key string) {
	if s.db == nil {
		return
	}
	s.pendingMu.Lock()
	s.pendingDel[key] = true
	delete(s.pendingPut, key)
	s.pendingMu.Unlock()
}

// Flush writes all pending blob changes to the database. Called periodically
// by the scheduler and once at shutdown.
func (s *Store) Flush() {
	if s.db == nil {
		return
	}

	s.pendingMu.Lock()
	if len(s.pendingPut) == 0 && len(s.pendingDel) == 0 {
		s.pendingMu.Unlock()
		return
	}
	puts := s.pendingPut
	dels := s.pendingDel
	s.pendingPut = make(map[string]Blob)
	s.pendingDel = make(map[string]bool)
	s.pendingMu.Unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for key, b := range puts {
			row := &model.ImageBlob{Key: key, Base64: b.Base64, Width: b.Width, Height: b.Height, CreatedAt: time.Now()}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
				return err
			}
		}
		for key := range dels {
			if err := tx.Delete(&model.ImageBlob{}, "key = ?", key).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && s.logger != nil {
		s.logger.Error("failed to flush image blobs", zap.Error(err))
	}
}
