package payments

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/tuneframe/orchestrator/internal/ledger"
)

type fakeSource struct {
	ddo   *ledger.DDO
	err   error
	calls int
}

func (f *fakeSource) GetAssetDDO(ctx context.Context, planID string) (*ledger.DDO, error) {
	f.calls++
	return f.ddo, f.err
}

func testDDO() *ledger.DDO {
	return &ledger.DDO{
		PlanID: "plan-1",
		Price: ledger.PriceConfig{
			TokenAddress:   "0x00000000000000000000000000000000000000aa",
			TokenSymbol:    "USDC",
			Amount:         "1500000",
			ReceiverWallet: "0x00000000000000000000000000000000000000bb",
		},
		Credits: ledger.CreditsConfig{
			ContractAddress: "0x00000000000000000000000000000000000000cc",
			TokenID:         "7",
			MintOperator:    "0x00000000000000000000000000000000000000dd",
		},
	}
}

func TestPlanAccount_LoadsOnceAndMemoizes(t *testing.T) {
	src := &fakeSource{ddo: testDDO()}
	acct := NewPlanAccount("plan-1", src)
	ctx := context.Background()

	symbol, err := acct.TokenSymbol(ctx)
	if err != nil {
		t.Fatalf("TokenSymbol failed: %v", err)
	}
	if symbol != "USDC" {
		t.Errorf("Expected USDC, got %s", symbol)
	}

	price, err := acct.Price(ctx)
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if price.Cmp(big.NewInt(1500000)) != 0 {
		t.Errorf("Expected 1500000, got %s", price)
	}

	if _, err := acct.ReceiverWallet(ctx); err != nil {
		t.Fatalf("ReceiverWallet failed: %v", err)
	}

	if src.calls != 1 {
		t.Errorf("Expected 1 registry call, got %d", src.calls)
	}
}

func TestPlanAccount_DescriptorUnavailable(t *testing.T) {
	src := &fakeSource{err: errors.New("registry down")}
	acct := NewPlanAccount("plan-x", src)

	_, err := acct.TokenAddress(context.Background())
	if !errors.Is(err, ErrDescriptorUnavailable) {
		t.Errorf("Expected ErrDescriptorUnavailable, got %v", err)
	}
}

func TestPlanAccount_OptionalFieldsAbsent(t *testing.T) {
	ddo := testDDO()
	ddo.Credits.TokenID = ""
	ddo.Credits.MintOperator = ""
	ddo.Credits.BurnOperator = ""
	acct := NewPlanAccount("plan-1", &fakeSource{ddo: ddo})
	ctx := context.Background()

	if _, ok, err := acct.CreditTokenID(ctx); err != nil || ok {
		t.Errorf("Expected absent token id, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := acct.MintOperator(ctx); err != nil || ok {
		t.Errorf("Expected absent mint operator, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := acct.BurnOperator(ctx); err != nil || ok {
		t.Errorf("Expected absent burn operator, got ok=%v err=%v", ok, err)
	}
}

func TestPlanAccount_MalformedPrice(t *testing.T) {
	ddo := testDDO()
	ddo.Price.Amount = "not-a-number"
	acct := NewPlanAccount("plan-1", &fakeSource{ddo: ddo})

	if _, err := acct.Price(context.Background()); err == nil {
		t.Error("Expected error for malformed price")
	}
}
