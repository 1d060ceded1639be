package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// MintTo mints test tokens to the given address and returns the
// transaction hash. This is the only mutating chain call in the system.
func (c *Client) MintTo(ctx context.Context, address string, amount *big.Int) (string, error) {
	if err := ValidateAddress(address); err != nil {
		return "", err
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", errors.New("mint amount must be positive")
	}
	if c.opts.DeployerKey == "" {
		return "", errors.New("deployer key not configured")
	}

	token, err := c.contractAddress(c.opts.LEDTokenAddress, "led token")
	if err != nil {
		return "", err
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return "", err
	}

	key, err := crypto.HexToECDSA(c.opts.DeployerKey)
	if err != nil {
		return "", fmt.Errorf("parse deployer key: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("chain id: %w: %w", ErrChainUnavailable, err)
	}

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w: %w", ErrChainUnavailable, err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w: %w", ErrChainUnavailable, err)
	}

	payload, err := erc20ABI.Pack("mint", common.HexToAddress(address), amount)
	if err != nil {
		return "", fmt.Errorf("pack mint: %w", err)
	}

	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &token,
		Data: payload,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w: %w", ErrChainUnavailable, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &token,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     payload,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return "", fmt.Errorf("sign mint tx: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send mint tx: %w: %w", ErrChainUnavailable, err)
	}

	hash := signed.Hash().Hex()
	c.logger.Info().Str("to", address).Str("tx", hash).Msg("mint transaction submitted")
	return hash, nil
}
