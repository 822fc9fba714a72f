package clients

import (
	"context"

	"github.com/pkg/errors"
)

// AssetInfo is the subset of the getAsset response the bot consumes.
type AssetInfo struct {
	PriceInfo *struct {
		PricePerToken float64 `json:"pricePerToken"`
	} `json:"priceInfo"`
}

// GetAsset fetches asset metadata including the current per-token price.
func (c *RPCClient) GetAsset(ctx context.Context, mint string) (AssetInfo, error) {
	var info AssetInfo
	err := c.Call(ctx, "getAsset", []interface{}{mint}, &info)
	return info, err
}

// TokenSupply is the getTokenSupply response value.
type TokenSupply struct {
	UIAmount float64 `json:"uiAmount"`
	Decimals int     `json:"decimals"`
}

// GetTokenSupply fetches the circulating supply and decimals of a mint.
func (c *RPCClient) GetTokenSupply(ctx context.Context, mint string) (TokenSupply, error) {
	var result struct {
		Value TokenSupply `json:"value"`
	}
	err := c.Call(ctx, "getTokenSupply", []interface{}{mint}, &result)
	return result.Value, err
}

// TokenAccountBalance is one entry of the getTokenLargestAccounts response.
type TokenAccountBalance struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// GetTokenLargestAccounts fetches the largest holder accounts of a mint.
func (c *RPCClient) GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountBalance, error) {
	var result struct {
		Value []TokenAccountBalance `json:"value"`
	}
	err := c.Call(ctx, "getTokenLargestAccounts", []interface{}{mint}, &result)
	return result.Value, err
}

// GetAccountOwner fetches the owning program of an account. Empty string when
// the account does not exist.
func (c *RPCClient) GetAccountOwner(ctx context.Context, pubkey string) (string, error) {
	var result struct {
		Value *struct {
			Owner string `json:"owner"`
		} `json:"value"`
	}
	err := c.Call(ctx, "getAccountInfo", []interface{}{pubkey, map[string]string{"encoding": "jsonParsed"}}, &result)
	if err != nil {
		return "", err
	}
	if result.Value == nil {
		return "", nil
	}
	return result.Value.Owner, nil
}

// GetBalance fetches the lamport balance of an account.
func (c *RPCClient) GetBalance(ctx context.Context, pubkey string) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	err := c.Call(ctx, "getBalance", []interface{}{pubkey}, &result)
	return result.Value, err
}

// GetTransactionAccountKeys fetches the account keys of a confirmed transaction.
func (c *RPCClient) GetTransactionAccountKeys(ctx context.Context, signature string) ([]string, error) {
	var result struct {
		Transaction struct {
			Message struct {
				AccountKeys []string `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
	}
	params := []interface{}{
		signature,
		map[string]interface{}{"commitment": "confirmed", "maxSupportedTransactionVersion": 0},
	}
	if err := c.Call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	return result.Transaction.Message.AccountKeys, nil
}

// SendTransaction submits a base64-encoded signed transaction and returns its signature.
func (c *RPCClient) SendTransaction(ctx context.Context, txBase64 string) (string, error) {
	var signature string
	params := []interface{}{
		txBase64,
		map[string]interface{}{"encoding": "base64", "skipPreflight": false},
	}
	if err := c.Call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	if signature == "" {
		return "", errors.New("sendTransaction returned empty signature")
	}
	return signature, nil
}
