// Package domain holds the core trading types shared by every service.
package domain

import "time"

// WSOLMint is the wrapped SOL mint address. Only pools quoted in wrapped SOL
// are traded.
const WSOLMint = "So11111111111111111111111111111111111111112"

// PoolCandidate is a freshly detected liquidity pool, as extracted from the
// pool creation transaction.
type PoolCandidate struct {
	// BaseMint the token under consideration.
	BaseMint string
	// QuoteMint the asset the pool is priced in.
	QuoteMint string
	// PoolAddress the AMM pool account.
	PoolAddress string
	// Signature the pool creation transaction signature.
	Signature  string
	DetectedAt time.Time
}
