package faucet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/rs/zerolog"

	"ledwatcher/internal/chain"
	"ledwatcher/internal/snapshot"
	"ledwatcher/internal/storage"
)

var (
	// ErrAlreadyGranted indicates the address or requester already
	// received the one-time grant.
	ErrAlreadyGranted = errors.New("address or user has already received funds")
	// ErrMintFailed indicates the on-chain mint reverted or timed out.
	// No grant row is persisted, so the same request may be retried.
	ErrMintFailed = errors.New("mint transaction failed")
)

// Registry enforces the at-most-once faucet grant per (network, address)
// and per (network, requester).
type Registry struct {
	network string
	amount  *big.Int
	grants  storage.GrantStore
	minter  chain.Minter
	logger  zerolog.Logger

	// Serialises the check -> mint -> persist sequence so two concurrent
	// requests for the same never-granted key cannot both mint. The
	// conditional insert remains the cross-process backstop.
	mu sync.Mutex
}

// New constructs a Registry minting amountTokens whole tokens per grant.
func New(network string, amountTokens int64, grants storage.GrantStore, minter chain.Minter, logger zerolog.Logger) *Registry {
	amount := new(big.Int).Mul(big.NewInt(amountTokens), snapshot.WeiPerToken)
	return &Registry{
		network: network,
		amount:  amount,
		grants:  grants,
		minter:  minter,
		logger:  logger.With().Str("component", "faucet").Logger(),
	}
}

// RequestGrant mints the fixed grant to address on behalf of requesterID
// and records it. Returns the mint transaction reference.
func (r *Registry) RequestGrant(ctx context.Context, address, requesterID string) (string, error) {
	if err := chain.ValidateAddress(address); err != nil {
		return "", err
	}
	if requesterID == "" {
		return "", fmt.Errorf("requester id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	exists, err := r.grants.GrantExists(ctx, r.network, address, requesterID)
	if err != nil {
		return "", fmt.Errorf("check existing grant: %w", err)
	}
	if exists {
		return "", ErrAlreadyGranted
	}

	txRef, err := r.minter.MintTo(ctx, address, r.amount)
	if err != nil {
		r.logger.Error().Err(err).Str("address", address).Msg("mint failed; no grant recorded")
		return "", fmt.Errorf("%w: %w", ErrMintFailed, err)
	}

	grant := storage.FaucetGrant{
		Network:     r.network,
		Address:     address,
		RequesterID: requesterID,
		GrantTxRef:  txRef,
	}
	if err := r.grants.InsertGrantIfAbsent(ctx, grant); err != nil {
		if errors.Is(err, storage.ErrAlreadyGranted) {
			// Lost a cross-process race after minting; the extra mint is
			// the accepted risk, the grant record stays unique.
			r.logger.Warn().Str("address", address).Msg("grant raced another writer after mint")
			return "", ErrAlreadyGranted
		}
		return "", fmt.Errorf("persist grant: %w", err)
	}

	r.logger.Info().
		Str("address", address).
		Str("requester", requesterID).
		Str("tx", txRef).
		Msg("faucet grant issued")
	return txRef, nil
}

// GrantAmount returns the wei-scale amount minted per grant.
func (r *Registry) GrantAmount() *big.Int {
	return new(big.Int).Set(r.amount)
}
