package payments

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tuneframe/orchestrator/internal/ledger"
)

// DescriptorSource resolves plan identifiers into registry documents.
type DescriptorSource interface {
	GetAssetDDO(ctx context.Context, planID string) (*ledger.DDO, error)
}

// PlanAccount is a read-through cache over one payment plan's
// descriptor. The descriptor is loaded on first access and then
// treated as immutable for the lifetime of the account: no accessor
// re-fetches mid-settlement.
type PlanAccount struct {
	planID string
	source DescriptorSource

	mu  sync.Mutex
	ddo *ledger.DDO
}

func NewPlanAccount(planID string, source DescriptorSource) *PlanAccount {
	return &PlanAccount{planID: planID, source: source}
}

// ID returns the plan identifier this account is bound to.
func (p *PlanAccount) ID() string { return p.planID }

func (p *PlanAccount) load(ctx context.Context) (*ledger.DDO, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ddo != nil {
		return p.ddo, nil
	}
	ddo, err := p.source.GetAssetDDO(ctx, p.planID)
	if err != nil {
		return nil, fmt.Errorf("%w: plan %s: %v", ErrDescriptorUnavailable, p.planID, err)
	}
	p.ddo = ddo
	return ddo, nil
}

// TokenAddress is the settlement token the plan is denominated in.
func (p *PlanAccount) TokenAddress(ctx context.Context) (common.Address, error) {
	ddo, err := p.load(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(ddo.Price.TokenAddress), nil
}

// TokenSymbol is the settlement token's display symbol.
func (p *PlanAccount) TokenSymbol(ctx context.Context) (string, error) {
	ddo, err := p.load(ctx)
	if err != nil {
		return "", err
	}
	return ddo.Price.TokenSymbol, nil
}

// Price is the plan's unit price in the settlement token's smallest
// units.
func (p *PlanAccount) Price(ctx context.Context) (*big.Int, error) {
	ddo, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(ddo.Price.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("payments: plan %s: malformed price %q", p.planID, ddo.Price.Amount)
	}
	return amount, nil
}

// ReceiverWallet is the wallet that receives settlement payments.
func (p *PlanAccount) ReceiverWallet(ctx context.Context) (common.Address, error) {
	ddo, err := p.load(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(ddo.Price.ReceiverWallet), nil
}

// CreditContract is the fungible-NFT contract used for credit
// accounting.
func (p *PlanAccount) CreditContract(ctx context.Context) (common.Address, error) {
	ddo, err := p.load(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(ddo.Credits.ContractAddress), nil
}

// CreditTokenID is the plan's credit token id. The second return is
// false when the registry omits the field.
func (p *PlanAccount) CreditTokenID(ctx context.Context) (*big.Int, bool, error) {
	ddo, err := p.load(ctx)
	if err != nil {
		return nil, false, err
	}
	if ddo.Credits.TokenID == "" {
		return nil, false, nil
	}
	id, ok := new(big.Int).SetString(ddo.Credits.TokenID, 10)
	if !ok {
		return nil, false, fmt.Errorf("payments: plan %s: malformed token id %q", p.planID, ddo.Credits.TokenID)
	}
	return id, true, nil
}

// MintOperator is the address authorized to mint plan credits. The
// second return is false when the registry omits the field.
func (p *PlanAccount) MintOperator(ctx context.Context) (common.Address, bool, error) {
	ddo, err := p.load(ctx)
	if err != nil {
		return common.Address{}, false, err
	}
	if ddo.Credits.MintOperator == "" {
		return common.Address{}, false, nil
	}
	return common.HexToAddress(ddo.Credits.MintOperator), true, nil
}

// BurnOperator is the address authorized to burn plan credits. The
// second return is false when the registry omits the field.
func (p *PlanAccount) BurnOperator(ctx context.Context) (common.Address, bool, error) {
	ddo, err := p.load(ctx)
	if err != nil {
		return common.Address{}, false, err
	}
	if ddo.Credits.BurnOperator == "" {
		return common.Address{}, false, nil
	}
	return common.HexToAddress(ddo.Credits.BurnOperator), true, nil
}
