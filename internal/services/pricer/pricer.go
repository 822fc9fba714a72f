// Package pricer resolves point-in-time market snapshots for mints.
package pricer

import (
	"context"

	"github.com/vadiminshakov/solsniper/internal/domain"
)

// Pricer provides a market snapshot for a mint.
type Pricer interface {
	GetPrice(ctx context.Context, mint string) (domain.PriceSnapshot, error)
}
