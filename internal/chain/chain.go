package chain

import (
	"context"
	"errors"
	"math/big"
)

var (
	// ErrChainUnavailable indicates an RPC/network failure talking to the node.
	ErrChainUnavailable = errors.New("chain unavailable")
	// ErrInvalidAddress indicates a malformed 20-byte hex address.
	ErrInvalidAddress = errors.New("invalid address")
)

// ProtocolMetrics holds the five protocol-wide price feed readings.
// Each field comes from a distinct eth_call; no atomicity across them.
type ProtocolMetrics struct {
	DeviationFactor *big.Int
	RedemptionRate  *big.Int
	OraclePrice     *big.Int
	LastGoodPrice   *big.Int
	MarketPrice     *big.Int
}

// AddressBalances holds the six per-address readings used by a snapshot.
type AddressBalances struct {
	TokenBalance            *big.Int
	StableBalance           *big.Int
	StabilityDeposit        *big.Int
	StabilityCollateralGain *big.Int
	Debt                    *big.Int
	Collateral              *big.Int
}

// Reader exposes the read-only contract surface.
type Reader interface {
	ProtocolMetrics(ctx context.Context) (ProtocolMetrics, error)
	AddressBalances(ctx context.Context, address string) (AddressBalances, error)
	LatestBlockTimestamp(ctx context.Context) (int64, error)
}

// Minter exposes the faucet write path.
type Minter interface {
	MintTo(ctx context.Context, address string, amount *big.Int) (string, error)
}
