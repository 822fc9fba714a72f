package trader

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/solsniper/internal/clients"
)

const (
	defaultJupiterURL  = "https://quote-api.jup.ag/v6"
	defaultSlippageBps = 100
)

var lamportsPerSol = decimal.NewFromInt(1_000_000_000)

// JupiterTrader executes real swaps: it asks the Jupiter aggregator for a
// route, signs the returned serialized transaction with the wallet key and
// submits it through the RPC node. Route construction and slippage handling
// are the aggregator's concern.
type JupiterTrader struct {
	rpc         *clients.RPCClient
	httpClient  *http.Client
	baseURL     string
	key         ed25519.PrivateKey
	pubkey      string
	slippageBps int
	logger      *zap.Logger
}

// JupiterOption configures JupiterTrader.
type JupiterOption func(*JupiterTrader)

// WithBaseURL overrides the aggregator endpoint.
func WithBaseURL(u string) JupiterOption {
	return func(t *JupiterTrader) {
		t.baseURL = u
	}
}

// WithSlippageBps sets the allowed slippage in basis points.
func WithSlippageBps(bps int) JupiterOption {
	return func(t *JupiterTrader) {
		t.slippageBps = bps
	}
}

// NewJupiterTrader creates a live executor from a base58-encoded secret key.
func NewJupiterTrader(rpc *clients.RPCClient, secretKey string, logger *zap.Logger, opts ...JupiterOption) (*JupiterTrader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	decoded, err := base58.Decode(secretKey)
	if err != nil {
		return nil, errors.Wrap(err, "decode wallet secret key")
	}
	if len(decoded) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(decoded))
	}

	key := ed25519.PrivateKey(decoded)
	pubkey := base58.Encode(key.Public().(ed25519.PublicKey))

	t := &JupiterTrader{
		rpc:         rpc,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     defaultJupiterURL,
		key:         key,
		pubkey:      pubkey,
		slippageBps: defaultSlippageBps,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// PublicKey returns the wallet address in base58.
func (t *JupiterTrader) PublicKey() string {
	return t.pubkey
}

// Buy swaps amountSol of the quote asset into the token.
func (t *JupiterTrader) Buy(ctx context.Context, mint, quoteMint string, amountSol decimal.Decimal) (ExecutionResult, error) {
	lamports := amountSol.Mul(lamportsPerSol).Round(0)

	quote, err := t.quote(ctx, quoteMint, mint, lamports.String())
	if err != nil {
		return ExecutionResult{}, errors.Wrap(err, "quote buy")
	}

	signature, err := t.swapAndSend(ctx, quote)
	if err != nil {
		return ExecutionResult{}, errors.Wrap(err, "execute buy")
	}

	supply, err := t.rpc.GetTokenSupply(ctx, mint)
	if err != nil {
		return ExecutionResult{}, errors.Wrap(err, "resolve token decimals")
	}

	outRaw, err := decimal.NewFromString(quote.OutAmount)
	if err != nil {
		return ExecutionResult{}, errors.Wrap(err, "parse quoted out amount")
	}
	received := outRaw.Div(decimal.New(1, int32(supply.Decimals)))

	t.logger.Info("buy executed",
		zap.String("mint", mint),
		zap.String("signature", signature),
		zap.String("tokens", received.String()))

	return ExecutionResult{Signature: signature, AmountTokens: received}, nil
}

// Sell swaps amountTokens of the token back into the quote asset.
func (t *JupiterTrader) Sell(ctx context.Context, mint, quoteMint string, amountTokens decimal.Decimal) (ExecutionResult, error) {
	supply, err := t.rpc.GetTokenSupply(ctx, mint)
	if err != nil {
		return ExecutionResult{}, errors.Wrap(err, "resolve token decimals")
	}

	raw := amountTokens.Mul(decimal.New(1, int32(supply.Decimals))).Round(0)

	quote, err := t.quote(ctx, mint, quoteMint, raw.String())
	if err != nil {
		return ExecutionResult{}, errors.Wrap(err, "quote sell")
	}

	signature, err := t.swapAndSend(ctx, quote)
	if err != nil {
		return ExecutionResult{}, errors.Wrap(err, "execute sell")
	}

	t.logger.Info("sell executed",
		zap.String("mint", mint),
		zap.String("signature", signature),
		zap.String("tokens", amountTokens.String()))

	return ExecutionResult{Signature: signature, AmountTokens: amountTokens}, nil
}

type quoteResponse struct {
	InputMint  string          `json:"inputMint"`
	OutputMint string          `json:"outputMint"`
	InAmount   string          `json:"inAmount"`
	OutAmount  string          `json:"outAmount"`
	Raw        json.RawMessage `json:"-"`
}

func (t *JupiterTrader) quote(ctx context.Context, inputMint, outputMint, rawAmount string) (*quoteResponse, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", rawAmount)
	params.Set("slippageBps", strconv.Itoa(t.slippageBps))

	endpoint := fmt.Sprintf("%s/quote?%s", t.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create quote request")
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request quote")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read quote response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var quote quoteResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, errors.Wrap(err, "decode quote response")
	}
	quote.Raw = body

	return &quote, nil
}

func (t *JupiterTrader) swapAndSend(ctx context.Context, quote *quoteResponse) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"quoteResponse":             json.RawMessage(quote.Raw),
		"userPublicKey":             t.pubkey,
		"wrapAndUnwrapSol":          true,
		"dynamicComputeUnitLimit":   true,
		"prioritizationFeeLamports": "auto",
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal swap request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "create swap request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "request swap")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("swap: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var swapResp struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&swapResp); err != nil {
		return "", errors.Wrap(err, "decode swap response")
	}

	signed, err := signTransaction(swapResp.SwapTransaction, t.key)
	if err != nil {
		return "", errors.Wrap(err, "sign transaction")
	}

	return t.rpc.SendTransaction(ctx, signed)
}

// signTransaction places the wallet signature into the fee-payer slot of a
// serialized unsigned transaction and returns it re-encoded.
func signTransaction(txBase64 string, key ed25519.PrivateKey) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", errors.Wrap(err, "decode transaction")
	}

	numSigs, offset, err := decodeCompactU16(raw)
	if err != nil {
		return "", err
	}
	if numSigs < 1 {
		return "", fmt.Errorf("transaction declares no signature slots")
	}

	messageStart := offset + numSigs*ed25519.SignatureSize
	if len(raw) <= messageStart {
		return "", fmt.Errorf("transaction shorter than its signature section")
	}

	signature := ed25519.Sign(key, raw[messageStart:])
	copy(raw[offset:offset+ed25519.SignatureSize], signature)

	return base64.StdEncoding.EncodeToString(raw), nil
}

// decodeCompactU16 reads a compact-u16 length prefix, returning the value and
// the number of bytes consumed.
func decodeCompactU16(data []byte) (int, int, error) {
	value := 0
	for i := 0; i < 3; i++ {
		if i >= len(data) {
			return 0, 0, fmt.Errorf("truncated compact-u16")
		}
		b := int(data[i])
		value |= (b & 0x7f) << (7 * i)
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("compact-u16 too long")
}
