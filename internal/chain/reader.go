package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const (
	priceFeedABIJSON = `[
{"inputs":[],"name":"deviationFactor","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"redemptionRate","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"LEDPrice","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"lastGoodPrice","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getMarketPrice","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

	erc20ABIJSON = `[
{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"account","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"mint","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

	stabilityPoolABIJSON = `[
{"inputs":[{"internalType":"address","name":"depositor","type":"address"}],"name":"getCompoundedLEDDeposit","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"depositor","type":"address"}],"name":"getDepositorCollateralGain","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

	troveManagerABIJSON = `[
{"inputs":[{"internalType":"address","name":"borrower","type":"address"}],"name":"getTroveDebt","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"borrower","type":"address"}],"name":"getTroveColl","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
)

var (
	priceFeedABI     abi.ABI
	erc20ABI         abi.ABI
	stabilityPoolABI abi.ABI
	troveManagerABI  abi.ABI
)

func init() {
	for _, entry := range []struct {
		json   string
		target *abi.ABI
	}{
		{priceFeedABIJSON, &priceFeedABI},
		{erc20ABIJSON, &erc20ABI},
		{stabilityPoolABIJSON, &stabilityPoolABI},
		{troveManagerABIJSON, &troveManagerABI},
	} {
		parsed, err := abi.JSON(strings.NewReader(entry.json))
		if err != nil {
			panic("failed to parse contract ABI: " + err.Error())
		}
		*entry.target = parsed
	}
}

// Options parameterise the chain client.
type Options struct {
	RPCURL              string
	PriceFeedAddress    string
	LEDTokenAddress     string
	StableTokenAddress  string
	StabilityPoolAddr   string
	TroveManagerAddress string
	DeployerKey         string
	Timeout             time.Duration
}

// Client reads protocol and account state over Ethereum RPC.
type Client struct {
	opts      Options
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewClient builds a chain client. The RPC connection is dialled lazily.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	return &Client{opts: opts, logger: logger.With().Str("component", "chain_client").Logger()}
}

// ValidateAddress rejects anything that is not a 42-character 0x hex address.
func ValidateAddress(address string) error {
	if len(address) != 42 || !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return nil
}

// ProtocolMetrics reads the five price feed values. Each value is a
// separate eth_call and may observe a different block.
func (c *Client) ProtocolMetrics(ctx context.Context) (ProtocolMetrics, error) {
	feed, err := c.contractAddress(c.opts.PriceFeedAddress, "price feed")
	if err != nil {
		return ProtocolMetrics{}, err
	}

	var metrics ProtocolMetrics
	reads := []struct {
		method string
		target **big.Int
	}{
		{"deviationFactor", &metrics.DeviationFactor},
		{"redemptionRate", &metrics.RedemptionRate},
		{"LEDPrice", &metrics.OraclePrice},
		{"lastGoodPrice", &metrics.LastGoodPrice},
		{"getMarketPrice", &metrics.MarketPrice},
	}
	for _, read := range reads {
		value, err := c.callUint(ctx, feed, priceFeedABI, read.method)
		if err != nil {
			return ProtocolMetrics{}, err
		}
		*read.target = value
	}
	return metrics, nil
}

// AddressBalances reads the six balance figures for one account.
func (c *Client) AddressBalances(ctx context.Context, address string) (AddressBalances, error) {
	if err := ValidateAddress(address); err != nil {
		return AddressBalances{}, err
	}
	account := common.HexToAddress(address)

	led, err := c.contractAddress(c.opts.LEDTokenAddress, "led token")
	if err != nil {
		return AddressBalances{}, err
	}
	stable, err := c.contractAddress(c.opts.StableTokenAddress, "stable token")
	if err != nil {
		return AddressBalances{}, err
	}
	pool, err := c.contractAddress(c.opts.StabilityPoolAddr, "stability pool")
	if err != nil {
		return AddressBalances{}, err
	}
	troves, err := c.contractAddress(c.opts.TroveManagerAddress, "trove manager")
	if err != nil {
		return AddressBalances{}, err
	}

	var balances AddressBalances
	reads := []struct {
		contract common.Address
		abi      abi.ABI
		method   string
		target   **big.Int
	}{
		{led, erc20ABI, "balanceOf", &balances.TokenBalance},
		{stable, erc20ABI, "balanceOf", &balances.StableBalance},
		{pool, stabilityPoolABI, "getCompoundedLEDDeposit", &balances.StabilityDeposit},
		{pool, stabilityPoolABI, "getDepositorCollateralGain", &balances.StabilityCollateralGain},
		{troves, troveManagerABI, "getTroveDebt", &balances.Debt},
		{troves, troveManagerABI, "getTroveColl", &balances.Collateral},
	}
	for _, read := range reads {
		value, err := c.callUint(ctx, read.contract, read.abi, read.method, account)
		if err != nil {
			return AddressBalances{}, err
		}
		*read.target = value
	}
	return balances, nil
}

// LatestBlockTimestamp returns the timestamp of the most recent block.
func (c *Client) LatestBlockTimestamp(ctx context.Context) (int64, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("latest header: %w: %w", ErrChainUnavailable, err)
	}
	return int64(header.Time), nil
}

func (c *Client) callUint(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w: %w", method, ErrChainUnavailable, err)
	}

	outputs, err := parsed.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected %s response", method)
	}

	value, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to decode %s output", method)
	}
	return value, nil
}

func (c *Client) contractAddress(hex, name string) (common.Address, error) {
	if hex == "" {
		return common.Address{}, fmt.Errorf("%s contract address not configured", name)
	}
	return common.HexToAddress(hex), nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Client) getClient(ctx context.Context) (*ethclient.Client, error) {
	if c.opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}

	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w: %w", ErrChainUnavailable, err)
	}
	c.client = client
	return client, nil
}

var (
	_ Reader = (*Client)(nil)
	_ Minter = (*Client)(nil)
)
