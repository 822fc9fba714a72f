// Package trades persists the append-only trade history in a segmented WAL.
package trades

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/solsniper/internal/domain"
)

const (
	// DefaultDir is used when no WAL directory is configured.
	DefaultDir   = "./wal/trades"
	segmentLimit = 1000
	maxSegments  = 100

	tradeKeyPrefix = "trade_"
)

// WALStore appends trade records to a write-ahead log. Records are never
// rewritten, only appended.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed trade store in the given directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "trade_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init trade WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends a trade record.
func (s *WALStore) Save(record domain.TradeRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("trade store is not initialized")
	}
	if record.Mint == "" {
		return fmt.Errorf("trade record mint is required")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal trade record")
	}

	key := fmt.Sprintf("%s%s_%s", tradeKeyPrefix, record.Side, record.Mint)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// RecordsAfter returns all trade records written after the provided WAL index.
func (s *WALStore) RecordsAfter(index uint64) ([]domain.TradeRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("trade store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.TradeRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		_, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}

		var record domain.TradeRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, errors.Wrap(err, "decode trade record")
		}
		records = append(records, record)
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("trade store is not initialized")
	}
	return s.wal.Close()
}
