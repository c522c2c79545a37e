package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	gasLimitApprove  = 80_000
	gasLimitTransfer = 100_000
	gasLimitSwap     = 300_000
)

var (
	erc20ABI = mustParseABI(`[
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`)

	routerABI = mustParseABI(`[
		{"name":"swapTokensForExactTokens","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountOut","type":"uint256"},{"name":"amountInMax","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
	]`)

	pairABI = mustParseABI(`[
		{"name":"getReserves","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}]},
		{"name":"token0","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
	]`)

	erc1155ABI = mustParseABI(`[
		{"name":"TransferSingle","type":"event","inputs":[{"name":"operator","type":"address","indexed":true},{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"id","type":"uint256","indexed":false},{"name":"value","type":"uint256","indexed":false}]}
	]`)

	transferSingleTopic = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))
)

func mustParseABI(fragment string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(fragment))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ETHClient implements Client against a JSON-RPC endpoint with a
// single signing key and a single liquidity pool between the
// orchestrator's settlement token and each agent's.
type ETHClient struct {
	rpc     *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	wallet  common.Address
	router  common.Address
	pool    common.Address
}

func NewETHClient(rpcURL string, chainID int64, privateKeyHex string, router, pool common.Address) (*ETHClient, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: parse signing key: %w", err)
	}
	return &ETHClient{
		rpc:     rpc,
		chainID: big.NewInt(chainID),
		key:     key,
		wallet:  crypto.PubkeyToAddress(key.PublicKey),
		router:  router,
		pool:    pool,
	}, nil
}

// Wallet is the address transactions are signed from.
func (c *ETHClient) Wallet() common.Address { return c.wallet }

func (c *ETHClient) call(ctx context.Context, parsed abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	raw, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", method, err)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return out, nil
}

func (c *ETHClient) send(ctx context.Context, to common.Address, data []byte, gasLimit uint64, nonce uint64) (common.Hash, error) {
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: suggest gas price: %w", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: sign tx: %w", err)
	}
	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("chain: send tx: %w", err)
	}
	return signed.Hash(), nil
}

func (c *ETHClient) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := c.call(ctx, erc20ABI, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *ETHClient) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := c.call(ctx, erc20ABI, token, "decimals")
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

func (c *ETHClient) TokenSymbol(ctx context.Context, token common.Address) (string, error) {
	out, err := c.call(ctx, erc20ABI, token, "symbol")
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (c *ETHClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.rpc.BlockNumber(ctx)
}

func (c *ETHClient) PendingNonce(ctx context.Context, wallet common.Address) (uint64, error) {
	return c.rpc.PendingNonceAt(ctx, wallet)
}

func (c *ETHClient) Approve(ctx context.Context, token, spender common.Address, amount *big.Int, nonce uint64) (common.Hash, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: pack approve: %w", err)
	}
	return c.send(ctx, token, data, gasLimitApprove, nonce)
}

func (c *ETHClient) Transfer(ctx context.Context, token, to common.Address, amount *big.Int, nonce uint64) (common.Hash, error) {
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: pack transfer: %w", err)
	}
	return c.send(ctx, token, data, gasLimitTransfer, nonce)
}

func (c *ETHClient) SwapTokensForExactTokens(ctx context.Context, amountOut, amountInMax *big.Int, path []common.Address, to common.Address, nonce uint64) (common.Hash, error) {
	deadline := big.NewInt(time.Now().Add(10 * time.Minute).Unix())
	data, err := routerABI.Pack("swapTokensForExactTokens", amountOut, amountInMax, path, to, deadline)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: pack swap: %w", err)
	}
	return c.send(ctx, c.router, data, gasLimitSwap, nonce)
}

func (c *ETHClient) QuoteExactOutput(ctx context.Context, tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	out, err := c.call(ctx, pairABI, c.pool, "getReserves")
	if err != nil {
		return nil, err
	}
	reserve0 := abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	reserve1 := abi.ConvertType(out[1], new(big.Int)).(*big.Int)

	t0, err := c.call(ctx, pairABI, c.pool, "token0")
	if err != nil {
		return nil, err
	}
	token0 := *abi.ConvertType(t0[0], new(common.Address)).(*common.Address)

	reserveIn, reserveOut := reserve0, reserve1
	if token0 != tokenIn {
		reserveIn, reserveOut = reserve1, reserve0
	}
	return AmountIn(reserveIn, reserveOut, amountOut)
}

func (c *ETHClient) FilterCreditMints(ctx context.Context, contract, operator, to common.Address, fromBlock uint64) ([]Mint, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{contract},
		Topics: [][]common.Hash{
			{transferSingleTopic},
			{common.BytesToHash(operator.Bytes())},
			nil, // from: any (mints come from the zero address, but the contract decides)
			{common.BytesToHash(to.Bytes())},
		},
	}
	logs, err := c.rpc.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chain: filter credit mints: %w", err)
	}

	mints := make([]Mint, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) < 4 {
			continue
		}
		unpacked, err := erc1155ABI.Unpack("TransferSingle", lg.Data)
		if err != nil || len(unpacked) != 2 {
			continue
		}
		mints = append(mints, Mint{
			Block:    lg.BlockNumber,
			Operator: common.BytesToAddress(lg.Topics[1].Bytes()),
			From:     common.BytesToAddress(lg.Topics[2].Bytes()),
			To:       common.BytesToAddress(lg.Topics[3].Bytes()),
			TokenID:  abi.ConvertType(unpacked[0], new(big.Int)).(*big.Int),
			Value:    abi.ConvertType(unpacked[1], new(big.Int)).(*big.Int),
			TxHash:   lg.TxHash,
		})
	}
	return mints, nil
}
