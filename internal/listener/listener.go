// Package listener watches the chain for new Raydium liquidity pools and
// turns pool creation transactions into trade candidates.
package listener

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/solsniper/internal/domain"
)

// RaydiumProgramID is the Raydium AMM v4 program.
const RaydiumProgramID = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

// poolInitLogMarker appears in the log output of a pool creation transaction.
const poolInitLogMarker = "initialize2"

// Positions of the pool accounts inside an initialize2 transaction.
const (
	poolAccountIndex = 4
	baseMintIndex    = 5
	quoteMintIndex   = 6
)

const (
	candidateBuffer       = 64
	initialReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
	maxSeenSignatures     = 10_000
)

// txFetcher resolves a transaction signature to its account keys.
type txFetcher interface {
	GetTransactionAccountKeys(ctx context.Context, signature string) ([]string, error)
}

// Listener subscribes to Raydium program logs over a websocket and emits pool
// candidates on a bounded channel. When the consumer falls behind, new
// candidates are dropped rather than blocking the stream.
type Listener struct {
	wsURL      string
	rpc        txFetcher
	logger     *zap.Logger
	candidates chan domain.PoolCandidate
	seen       map[string]struct{}
	now        func() time.Time
}

// New creates a listener for the given websocket endpoint.
func New(wsURL string, rpc txFetcher, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		wsURL:      wsURL,
		rpc:        rpc,
		logger:     logger,
		candidates: make(chan domain.PoolCandidate, candidateBuffer),
		seen:       make(map[string]struct{}),
		now:        time.Now,
	}
}

// Candidates returns the channel of detected pools.
func (l *Listener) Candidates() <-chan domain.PoolCandidate {
	return l.candidates
}

// Run maintains the subscription until the context is cancelled, reconnecting
// with capped exponential backoff after any stream failure.
func (l *Listener) Run(ctx context.Context) error {
	backoff := initialReconnectDelay

	for {
		established, err := l.listenOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if established {
			backoff = initialReconnectDelay
		}

		l.logger.Warn("pool stream disconnected",
			zap.Duration("reconnect_in", backoff), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectDelay {
			backoff = maxReconnectDelay
		}
	}
}

type logMessage struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Value logValue `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

type logValue struct {
	Signature string          `json:"signature"`
	Err       json.RawMessage `json:"err"`
	Logs      []string        `json:"logs"`
}

func (l *Listener) listenOnce(ctx context.Context) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.wsURL, nil)
	if err != nil {
		return false, errors.Wrap(err, "dial websocket")
	}
	defer conn.Close()

	// unblock the read loop when the context ends
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	subscribe := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "logsSubscribe",
		"params": []interface{}{
			map[string]interface{}{"mentions": []string{RaydiumProgramID}},
			map[string]string{"commitment": "confirmed"},
		},
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		return false, errors.Wrap(err, "subscribe to program logs")
	}

	l.logger.Info("subscribed to pool creation logs", zap.String("program", RaydiumProgramID))

	established := false
	for {
		var msg logMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return established, errors.Wrap(err, "read log message")
		}
		established = true

		if msg.Method != "logsNotification" {
			continue
		}
		l.handleNotification(ctx, msg.Params.Result.Value)
	}
}

func (l *Listener) handleNotification(ctx context.Context, value logValue) {
	if len(value.Err) > 0 && string(value.Err) != "null" {
		return
	}
	if !containsPoolInit(value.Logs) {
		return
	}

	if _, dup := l.seen[value.Signature]; dup {
		return
	}
	if len(l.seen) >= maxSeenSignatures {
		l.seen = make(map[string]struct{})
	}
	l.seen[value.Signature] = struct{}{}

	keys, err := l.rpc.GetTransactionAccountKeys(ctx, value.Signature)
	if err != nil {
		l.logger.Warn("failed to resolve pool transaction",
			zap.String("signature", value.Signature), zap.Error(err))
		return
	}

	candidate, ok := candidateFromKeys(value.Signature, keys, l.now())
	if !ok {
		l.logger.Debug("transaction has no recognizable pool accounts",
			zap.String("signature", value.Signature))
		return
	}

	select {
	case l.candidates <- candidate:
		l.logger.Info("new pool detected",
			zap.String("mint", candidate.BaseMint), zap.String("pool", candidate.PoolAddress))
	default:
		l.logger.Warn("candidate buffer full, dropping pool",
			zap.String("mint", candidate.BaseMint))
	}
}

func containsPoolInit(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, poolInitLogMarker) {
			return true
		}
	}
	return false
}

// candidateFromKeys extracts the pool and mint accounts from an initialize2
// transaction. When wrapped SOL sits in the base slot the mints are swapped so
// the candidate token is always the base.
func candidateFromKeys(signature string, keys []string, detectedAt time.Time) (domain.PoolCandidate, bool) {
	if len(keys) <= quoteMintIndex {
		return domain.PoolCandidate{}, false
	}

	base, quote := keys[baseMintIndex], keys[quoteMintIndex]
	if base == domain.WSOLMint {
		base, quote = quote, base
	}

	return domain.PoolCandidate{
		BaseMint:    base,
		QuoteMint:   quote,
		PoolAddress: keys[poolAccountIndex],
		Signature:   signature,
		DetectedAt:  detectedAt,
	}, true
}
