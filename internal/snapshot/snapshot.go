package snapshot

import (
	"errors"
	"fmt"
	"math/big"

	"ledwatcher/internal/chain"
)

// ErrUninitialized signals that a derived figure was requested before all
// inputs were populated. This is a caller-discipline contract: it must
// never surface to a user-facing path.
var ErrUninitialized = errors.New("snapshot not fully initialized")

// WeiPerToken is the 18-decimal fixed-point scale shared by every on-chain
// quantity in the protocol.
var WeiPerToken = big.NewInt(1_000_000_000_000_000_000)

// Snapshot holds the derived balance figures for one address at one instant.
// All values are wei-scale integers.
type Snapshot struct {
	USDAssets *big.Int
	LEDAssets *big.Int
	LEDDebt   *big.Int
	Price     *big.Int
}

// FromRaw combines the six raw balances and the sampled price into the
// three intermediate figures:
//
//	ledAssets = tokenBalance + stabilityDeposit
//	usdAssets = stableBalance + stabilityCollateralGain + collateral
//	ledDebt   = debt
//
// Every input must be a non-negative integer; a nil input yields
// ErrUninitialized.
func FromRaw(raw chain.AddressBalances, price *big.Int) (Snapshot, error) {
	inputs := []*big.Int{
		raw.TokenBalance,
		raw.StableBalance,
		raw.StabilityDeposit,
		raw.StabilityCollateralGain,
		raw.Debt,
		raw.Collateral,
		price,
	}
	for _, v := range inputs {
		if v == nil {
			return Snapshot{}, ErrUninitialized
		}
		if v.Sign() < 0 {
			return Snapshot{}, fmt.Errorf("negative balance input: %s", v)
		}
	}

	led := new(big.Int).Add(raw.TokenBalance, raw.StabilityDeposit)

	usd := new(big.Int).Add(raw.StableBalance, raw.StabilityCollateralGain)
	usd.Add(usd, raw.Collateral)

	return Snapshot{
		USDAssets: usd,
		LEDAssets: led,
		LEDDebt:   new(big.Int).Set(raw.Debt),
		Price:     new(big.Int).Set(price),
	}, nil
}

// LEDNet returns ledAssets - ledDebt. May be negative.
func (s Snapshot) LEDNet() (*big.Int, error) {
	if s.LEDAssets == nil || s.LEDDebt == nil {
		return nil, ErrUninitialized
	}
	return new(big.Int).Sub(s.LEDAssets, s.LEDDebt), nil
}

// NetValue returns usdAssets + (ledAssets-ledDebt)*price/1e18. The division
// is integer division truncating toward zero, so the result is biased
// downward by strictly less than one wei of price units.
func (s Snapshot) NetValue() (*big.Int, error) {
	if s.USDAssets == nil || s.LEDAssets == nil || s.LEDDebt == nil || s.Price == nil {
		return nil, ErrUninitialized
	}

	net, err := s.LEDNet()
	if err != nil {
		return nil, err
	}

	ledValue := new(big.Int).Mul(net, s.Price)
	ledValue.Quo(ledValue, WeiPerToken)

	return ledValue.Add(ledValue, s.USDAssets), nil
}
