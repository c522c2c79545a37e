package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Mint is one observed credit-token issuance event.
type Mint struct {
	Block    uint64
	Operator common.Address
	From     common.Address
	To       common.Address
	TokenID  *big.Int
	Value    *big.Int
	TxHash   common.Hash
}

// Client is the narrow view of the chain this system needs: token
// reads, nonce-explicit writes, and credit-mint event scans. Write
// operations never pick their own nonce; the caller sequences them.
type Client interface {
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	TokenSymbol(ctx context.Context, token common.Address) (string, error)

	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonce(ctx context.Context, wallet common.Address) (uint64, error)

	Approve(ctx context.Context, token, spender common.Address, amount *big.Int, nonce uint64) (common.Hash, error)
	Transfer(ctx context.Context, token, to common.Address, amount *big.Int, nonce uint64) (common.Hash, error)
	SwapTokensForExactTokens(ctx context.Context, amountOut, amountInMax *big.Int, path []common.Address, to common.Address, nonce uint64) (common.Hash, error)

	// QuoteExactOutput returns the input of tokenIn required to
	// receive exactly amountOut of tokenOut through the configured
	// pool, before slippage bounding.
	QuoteExactOutput(ctx context.Context, tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error)

	// FilterCreditMints scans TransferSingle events on contract from
	// fromBlock onward, matched by operator and recipient. The token
	// id is not a topic, so callers re-check it on the results.
	FilterCreditMints(ctx context.Context, contract, operator, to common.Address, fromBlock uint64) ([]Mint, error)
}
