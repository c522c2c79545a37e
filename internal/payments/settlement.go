package payments

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tuneframe/orchestrator/internal/chain"
	"github.com/tuneframe/orchestrator/internal/ledger"
	"github.com/tuneframe/orchestrator/internal/observability"
	"github.com/tuneframe/orchestrator/internal/retry"
)

const (
	// Each externally-fallible sub-step gets 2 retries (3 attempts).
	settleRetries = 2

	// Exact-output swaps bound the maximum input, not the output.
	slippageBps = 100 // 1%
)

// LedgerAPI is the slice of the ledger the settlement protocol uses.
type LedgerAPI interface {
	GetPlanBalance(ctx context.Context, planID string) (*ledger.Balance, error)
	OrderPlan(ctx context.Context, planID string) (*ledger.OrderResult, error)
}

// Narrator receives user-facing settlement narration.
type Narrator interface {
	Progress(taskID, message string)
	Warning(taskID, message string)
}

// Protocol guarantees that a plan holds enough credits before a
// stage handler spends them, autonomously swapping currency and
// ordering more credit when it does not.
//
// One Protocol instance serves one orchestrator wallet. Concurrent
// settlements against the same wallet would race the nonce sequence;
// running them is an operational error, not something this type
// defends against.
type Protocol struct {
	ledger   LedgerAPI
	chain    chain.Client
	wallet   common.Address
	router   common.Address
	own      *PlanAccount
	narrator Narrator
	log      *observability.Logger
}

func NewProtocol(api LedgerAPI, chainClient chain.Client, wallet, router common.Address, own *PlanAccount, narrator Narrator, logger *observability.Logger) *Protocol {
	return &Protocol{
		ledger:   api,
		chain:    chainClient,
		wallet:   wallet,
		router:   router,
		own:      own,
		narrator: narrator,
		log:      logger,
	}
}

// EnsureBalance succeeds once the plan holds at least required
// credits. The fast path (sufficient balance or plan owner) performs
// zero chain writes. Otherwise it acquires the plan's settlement
// token if it differs from the orchestrator's own, orders credit
// through the ledger, and confirms the purchase by correlating the
// mint event on chain.
func (p *Protocol) EnsureBalance(ctx context.Context, taskID string, plan *PlanAccount, required int64) error {
	bal, err := retry.Do(func() (*ledger.Balance, error) {
		return p.ledger.GetPlanBalance(ctx, plan.ID())
	}, settleRetries, p.retryNotify(taskID, "balance check"))
	if err != nil {
		return p.fail(plan, "could not read plan balance", err)
	}

	if bal.IsOwner || bal.Credits >= required {
		p.log.LogSettlement(taskID, plan.ID(), "sufficient", map[string]any{
			"balance":  bal.Credits,
			"required": required,
			"is_owner": bal.IsOwner,
		})
		return nil
	}

	p.narrator.Progress(taskID, fmt.Sprintf(
		"Plan %s holds %d credits but this stage needs %d. Buying more.",
		plan.ID(), bal.Credits, required))

	ownToken, err := p.own.TokenAddress(ctx)
	if err != nil {
		return p.fail(plan, "could not resolve own settlement token", err)
	}
	targetToken, err := plan.TokenAddress(ctx)
	if err != nil {
		return p.fail(plan, "could not resolve plan settlement token", err)
	}

	if targetToken != ownToken {
		if err := p.acquireTargetToken(ctx, taskID, plan, ownToken, targetToken); err != nil {
			return p.fail(plan, "could not acquire settlement token", err)
		}
	}

	startBlock, err := retry.Do(func() (uint64, error) {
		return p.chain.BlockNumber(ctx)
	}, settleRetries, p.retryNotify(taskID, "block height"))
	if err != nil {
		return p.fail(plan, "could not read block height", err)
	}

	order, err := retry.Do(func() (*ledger.OrderResult, error) {
		return p.ledger.OrderPlan(ctx, plan.ID())
	}, settleRetries, p.retryNotify(taskID, "credit order"))
	if err != nil {
		return p.fail(plan, "credit order failed", err)
	}
	if !order.Success {
		return p.fail(plan, "credit order was rejected", nil)
	}
	p.log.LogSettlement(taskID, plan.ID(), "ordered", map[string]any{
		"agreement_id": order.AgreementID,
	})

	// The order itself succeeded; mint confirmation is best-effort.
	p.confirmMint(ctx, taskID, plan, startBlock)
	return nil
}

// acquireTargetToken makes sure the orchestrator wallet holds the
// plan's unit price in the plan's own token and pays it to the
// plan's receiving wallet: swap on the pool if the wallet is short,
// then transfer. Approve, swap and transfer share one fetched-once
// nonce sequence. Partially completed sequences are surfaced as
// failures; the transactions already sent are not rolled back.
func (p *Protocol) acquireTargetToken(ctx context.Context, taskID string, plan *PlanAccount, ownToken, targetToken common.Address) error {
	price, err := plan.Price(ctx)
	if err != nil {
		return err
	}
	receiver, err := plan.ReceiverWallet(ctx)
	if err != nil {
		return err
	}

	held, err := retry.Do(func() (*big.Int, error) {
		return p.chain.TokenBalance(ctx, targetToken, p.wallet)
	}, settleRetries, p.retryNotify(taskID, "wallet balance"))
	if err != nil {
		return err
	}

	seq, err := StartSequence(ctx, p.chain, p.wallet)
	if err != nil {
		return fmt.Errorf("could not start nonce sequence: %w", err)
	}

	if held.Cmp(price) < 0 {
		quote, err := retry.Do(func() (*big.Int, error) {
			return p.chain.QuoteExactOutput(ctx, ownToken, targetToken, price)
		}, settleRetries, p.retryNotify(taskID, "swap quote"))
		if err != nil {
			return err
		}
		maxIn := chain.WithSlippage(quote, slippageBps)

		symbol, _ := plan.TokenSymbol(ctx)
		display := price.String()
		if decimals, err := p.chain.TokenDecimals(ctx, targetToken); err == nil {
			display = formatUnits(price, decimals)
		}
		p.narrator.Progress(taskID, fmt.Sprintf(
			"Swapping for %s %s to pay the agent.", display, symbol))

		approveNonce := seq.Next()
		approveHash, err := retry.Do(func() (common.Hash, error) {
			return p.chain.Approve(ctx, ownToken, p.router, maxIn, approveNonce)
		}, settleRetries, p.retryNotify(taskID, "approve"))
		if err != nil {
			return fmt.Errorf("approve failed: %w", err)
		}
		p.log.LogChain(taskID, "approve", approveHash.Hex())

		swapNonce := seq.Next()
		swapHash, err := retry.Do(func() (common.Hash, error) {
			return p.chain.SwapTokensForExactTokens(ctx, price, maxIn,
				[]common.Address{ownToken, targetToken}, p.wallet, swapNonce)
		}, settleRetries, p.retryNotify(taskID, "swap"))
		if err != nil {
			return fmt.Errorf("swap failed after approve %s: %w", approveHash.Hex(), err)
		}
		p.log.LogChain(taskID, "swap", swapHash.Hex())
	}

	transferNonce := seq.Next()
	transferHash, err := retry.Do(func() (common.Hash, error) {
		return p.chain.Transfer(ctx, targetToken, receiver, price, transferNonce)
	}, settleRetries, p.retryNotify(taskID, "transfer"))
	if err != nil {
		return fmt.Errorf("transfer to %s failed: %w", receiver.Hex(), err)
	}
	p.log.LogChain(taskID, "transfer", transferHash.Hex())
	return nil
}

// confirmMint scans for a credit mint to our wallet from startBlock
// onward and narrates the most recent match. The chain filter cannot
// match the token id server-side, so it is re-checked here. Absence
// of a match is a warning, not a failure: the order call already
// reported success, and silently swallowing the desync would hide a
// ledger/chain disagreement from operators.
func (p *Protocol) confirmMint(ctx context.Context, taskID string, plan *PlanAccount, startBlock uint64) {
	contract, err := plan.CreditContract(ctx)
	if err != nil {
		p.warnUnconfirmed(taskID, plan, err)
		return
	}
	operator, ok, err := plan.MintOperator(ctx)
	if err != nil || !ok {
		p.warnUnconfirmed(taskID, plan, err)
		return
	}
	tokenID, hasTokenID, err := plan.CreditTokenID(ctx)
	if err != nil {
		p.warnUnconfirmed(taskID, plan, err)
		return
	}

	mints, err := retry.Do(func() ([]chain.Mint, error) {
		return p.chain.FilterCreditMints(ctx, contract, operator, p.wallet, startBlock)
	}, settleRetries, p.retryNotify(taskID, "mint scan"))
	if err != nil {
		p.warnUnconfirmed(taskID, plan, err)
		return
	}

	var latest *chain.Mint
	for i := range mints {
		m := &mints[i]
		if hasTokenID && m.TokenID.Cmp(tokenID) != 0 {
			continue
		}
		if latest == nil || m.Block >= latest.Block {
			latest = m
		}
	}
	if latest == nil {
		p.warnUnconfirmed(taskID, plan, nil)
		return
	}

	p.log.LogSettlement(taskID, plan.ID(), "confirmed", map[string]any{
		"value":   latest.Value.String(),
		"block":   latest.Block,
		"tx_hash": latest.TxHash.Hex(),
	})
	observability.SetLastSettlement(fmt.Sprintf("%s +%s", plan.ID(), latest.Value))
	p.narrator.Progress(taskID, fmt.Sprintf(
		"Purchased %s credits on plan %s (tx %s).",
		latest.Value, plan.ID(), latest.TxHash.Hex()))
}

func (p *Protocol) warnUnconfirmed(taskID string, plan *PlanAccount, cause error) {
	detail := map[string]any{"confirmed": false}
	if cause != nil {
		detail["error"] = cause.Error()
	}
	p.log.LogSettlement(taskID, plan.ID(), "unconfirmed", detail)
	p.narrator.Warning(taskID, fmt.Sprintf(
		"Credit order on plan %s succeeded but no mint event was observed; the ledger and chain may be out of sync.",
		plan.ID()))
}

func (p *Protocol) fail(plan *PlanAccount, reason string, err error) error {
	return &InsufficientBalanceError{PlanID: plan.ID(), Reason: reason, Err: err}
}

// formatUnits renders a smallest-unit amount in whole-token units
// with the trailing zeros of the fraction trimmed.
func formatUnits(amount *big.Int, decimals uint8) string {
	if decimals == 0 {
		return amount.String()
	}
	div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(amount, div, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	padded := fmt.Sprintf("%0*s", int(decimals), frac.String())
	return whole.String() + "." + strings.TrimRight(padded, "0")
}

func (p *Protocol) retryNotify(taskID, op string) retry.OnError {
	return func(err error, attempt, retries int) {
		p.log.LogRetry(taskID, op, attempt, retries, err)
		p.narrator.Progress(taskID, fmt.Sprintf(
			"Hit a snag during %s (attempt %d of %d), retrying.", op, attempt+1, retries+1))
	}
}
