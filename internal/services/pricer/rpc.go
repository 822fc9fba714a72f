package pricer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/solsniper/internal/clients"
	"github.com/vadiminshakov/solsniper/internal/domain"
	"github.com/vadiminshakov/solsniper/pkg/retrier"
)

// DefaultTTL bounds how long a snapshot may be served from cache.
const DefaultTTL = 20 * time.Second

var hundred = decimal.NewFromInt(100)

// marketData is the subset of the RPC client the oracle needs.
type marketData interface {
	GetAsset(ctx context.Context, mint string) (clients.AssetInfo, error)
	GetTokenSupply(ctx context.Context, mint string) (clients.TokenSupply, error)
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]clients.TokenAccountBalance, error)
	GetAccountOwner(ctx context.Context, mint string) (string, error)
}

type cacheEntry struct {
	snapshot  domain.PriceSnapshot
	expiresAt time.Time
}

// RPCPricer assembles snapshots from several node calls and caches them per
// mint for the configured TTL. A failed retrieval always propagates; the
// oracle never fabricates a zero-valued snapshot.
type RPCPricer struct {
	client  marketData
	retrier *retrier.Retrier
	ttl     time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// NewRPCPricer creates a pricer over the given RPC client. A non-positive ttl
// falls back to DefaultTTL.
func NewRPCPricer(client *clients.RPCClient, ttl time.Duration) *RPCPricer {
	return newRPCPricer(client, ttl)
}

func newRPCPricer(client marketData, ttl time.Duration) *RPCPricer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RPCPricer{
		client:  client,
		retrier: retrier.New(),
		ttl:     ttl,
		cache:   make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// GetPrice returns a cached snapshot while it is fresh, otherwise retrieves a
// new one from the node.
func (p *RPCPricer) GetPrice(ctx context.Context, mint string) (domain.PriceSnapshot, error) {
	p.mu.Lock()
	entry, ok := p.cache[mint]
	p.mu.Unlock()

	if ok && entry.expiresAt.After(p.now()) {
		return entry.snapshot, nil
	}

	snapshot, err := retrier.DoWithData(p.retrier, ctx, func(ctx context.Context) (domain.PriceSnapshot, error) {
		return p.fetch(ctx, mint)
	})
	if err != nil {
		return domain.PriceSnapshot{}, errors.Wrapf(err, "fetch snapshot for %s", mint)
	}

	p.mu.Lock()
	p.cache[mint] = cacheEntry{snapshot: snapshot, expiresAt: p.now().Add(p.ttl)}
	p.mu.Unlock()

	return snapshot, nil
}

func (p *RPCPricer) fetch(ctx context.Context, mint string) (domain.PriceSnapshot, error) {
	asset, err := p.client.GetAsset(ctx, mint)
	if err != nil {
		return domain.PriceSnapshot{}, errors.Wrap(err, "get asset")
	}

	supply, err := p.client.GetTokenSupply(ctx, mint)
	if err != nil {
		return domain.PriceSnapshot{}, errors.Wrap(err, "get token supply")
	}

	largest, err := p.client.GetTokenLargestAccounts(ctx, mint)
	if err != nil {
		return domain.PriceSnapshot{}, errors.Wrap(err, "get largest accounts")
	}

	owner, err := p.client.GetAccountOwner(ctx, mint)
	if err != nil {
		return domain.PriceSnapshot{}, errors.Wrap(err, "get account owner")
	}

	price := decimal.Zero
	if asset.PriceInfo != nil {
		price = decimal.NewFromFloat(asset.PriceInfo.PricePerToken)
	}
	supplyAmount := decimal.NewFromFloat(supply.UIAmount)

	// liquidity and market cap intentionally share one derivation
	liquidity := price.Mul(supplyAmount)

	topHolderPct := decimal.Zero
	if len(largest) > 0 && largest[0].Amount != "" {
		topHolderRaw, err := decimal.NewFromString(largest[0].Amount)
		if err != nil {
			return domain.PriceSnapshot{}, errors.Wrap(err, "parse top holder amount")
		}
		rawSupply := supplyAmount.Mul(decimal.New(1, int32(supply.Decimals)))
		if rawSupply.IsPositive() {
			topHolderPct = topHolderRaw.Div(rawSupply).Mul(hundred)
		}
	}

	return domain.PriceSnapshot{
		Mint:         mint,
		PriceSol:     price,
		LiquiditySol: liquidity,
		MarketCap:    liquidity,
		Supply:       supplyAmount,
		TopHolderPct: topHolderPct,
		IsToken2022:  owner != clients.TokenProgram,
		UpdatedAt:    p.now(),
	}, nil
}
