// Package state persists the whole trading state as a single JSON document,
// replaced atomically on every save so a concurrent reader never observes a
// partial write.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/solsniper/internal/domain"
)

const stateFileName = "state.json"

// Document is the full persisted trading state.
type Document struct {
	Positions         []*domain.Position
	BalanceSol        decimal.Decimal
	DailyStartBalance decimal.Decimal
	DailyStartTime    time.Time
	LastUpdated       time.Time
}

// Store reads and writes the state document.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates the state directory and seeds an empty document when none exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create state dir")
	}

	s := &Store{path: filepath.Join(dir, stateFileName)}

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		initial := &Document{
			BalanceSol:        decimal.Zero,
			DailyStartBalance: decimal.Zero,
			DailyStartTime:    time.Now().UTC(),
		}
		if err := s.Save(initial); err != nil {
			return nil, errors.Wrap(err, "seed initial state")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "stat state file")
	}

	return s, nil
}

// Load reads the state document from disk.
func (s *Store) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "read state")
	}

	var stored storedDocument
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, errors.Wrap(err, "decode state")
	}

	return stored.toDocument()
}

// Save writes the document to disk atomically via temp file and rename.
func (s *Store) Save(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc.LastUpdated = time.Now().UTC()

	payload, err := json.MarshalIndent(newStoredDocument(doc), "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write state temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist state")
	}

	return nil
}

type storedPosition struct {
	ID              string     `json:"id"`
	Mint            string     `json:"mint"`
	QuoteMint       string     `json:"quote_mint,omitempty"`
	EntryPriceSol   string     `json:"entry_price_sol"`
	AmountTokens    string     `json:"amount_tokens"`
	OpenedAt        time.Time  `json:"opened_at"`
	TP1Taken        bool       `json:"tp1_taken"`
	HighestPriceSol string     `json:"highest_price_sol"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

type storedDocument struct {
	Positions         []storedPosition `json:"positions"`
	BalanceSol        string           `json:"balance_sol"`
	DailyStartBalance string           `json:"daily_start_balance"`
	DailyStartTime    time.Time        `json:"daily_start_time"`
	LastUpdated       time.Time        `json:"last_updated"`
}

func newStoredDocument(doc *Document) storedDocument {
	stored := storedDocument{
		Positions:         make([]storedPosition, 0, len(doc.Positions)),
		BalanceSol:        doc.BalanceSol.String(),
		DailyStartBalance: doc.DailyStartBalance.String(),
		DailyStartTime:    doc.DailyStartTime,
		LastUpdated:       doc.LastUpdated,
	}
	for _, pos := range doc.Positions {
		stored.Positions = append(stored.Positions, storedPosition{
			ID:              pos.ID,
			Mint:            pos.Mint,
			QuoteMint:       pos.QuoteMint,
			EntryPriceSol:   pos.EntryPriceSol.String(),
			AmountTokens:    pos.AmountTokens.String(),
			OpenedAt:        pos.OpenedAt,
			TP1Taken:        pos.TP1Taken,
			HighestPriceSol: pos.HighestPriceSol.String(),
			ClosedAt:        pos.ClosedAt,
		})
	}
	return stored
}

func (sd *storedDocument) toDocument() (*Document, error) {
	balance, err := parseDecimalOrZero(sd.BalanceSol)
	if err != nil {
		return nil, errors.Wrap(err, "decode balance")
	}
	dailyStart, err := parseDecimalOrZero(sd.DailyStartBalance)
	if err != nil {
		return nil, errors.Wrap(err, "decode daily start balance")
	}

	doc := &Document{
		Positions:         make([]*domain.Position, 0, len(sd.Positions)),
		BalanceSol:        balance,
		DailyStartBalance: dailyStart,
		DailyStartTime:    sd.DailyStartTime,
		LastUpdated:       sd.LastUpdated,
	}

	for _, sp := range sd.Positions {
		entryPrice, err := decimal.NewFromString(sp.EntryPriceSol)
		if err != nil {
			return nil, errors.Wrapf(err, "decode entry price for position %s", sp.ID)
		}
		amount, err := decimal.NewFromString(sp.AmountTokens)
		if err != nil {
			return nil, errors.Wrapf(err, "decode amount for position %s", sp.ID)
		}
		peak, err := parseDecimalOrZero(sp.HighestPriceSol)
		if err != nil {
			return nil, errors.Wrapf(err, "decode peak price for position %s", sp.ID)
		}
		if peak.LessThan(entryPrice) {
			peak = entryPrice
		}

		quoteMint := sp.QuoteMint
		if quoteMint == "" {
			// legacy documents predate the quote mint field
			quoteMint = domain.WSOLMint
		}

		doc.Positions = append(doc.Positions, &domain.Position{
			ID:              sp.ID,
			Mint:            sp.Mint,
			QuoteMint:       quoteMint,
			EntryPriceSol:   entryPrice,
			AmountTokens:    amount,
			OpenedAt:        sp.OpenedAt,
			TP1Taken:        sp.TP1Taken,
			HighestPriceSol: peak,
			ClosedAt:        sp.ClosedAt,
		})
	}

	return doc, nil
}

func parseDecimalOrZero(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}
