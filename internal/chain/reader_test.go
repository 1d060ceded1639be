package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
)

func TestValidateAddress(t *testing.T) {
	valid := []string{
		"0x00000000219ab540356cBB839Cbe05303d7705Fa",
		"0xde0b295669a9fd93d5f28d9ec85e40f4cb697bae",
	}
	for _, addr := range valid {
		if err := ValidateAddress(addr); err != nil {
			t.Fatalf("地址 %q 应合法: %v", addr, err)
		}
	}

	invalid := []string{
		"",
		"0x123",
		"00000000219ab540356cBB839Cbe05303d7705Fa",
		"0x00000000219ab540356cBB839Cbe05303d7705FaFF",
		"0xzz000000219ab540356cBB839Cbe05303d7705Fa",
	}
	for _, addr := range invalid {
		if err := ValidateAddress(addr); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("地址 %q 应返回 ErrInvalidAddress, 实际 %v", addr, err)
		}
	}
}

func TestMintToRejectsInvalidAddress(t *testing.T) {
	c := NewClient(Options{RPCURL: "http://localhost:1"}, zerolog.Nop())
	if _, err := c.MintTo(context.Background(), "0x123", big.NewInt(1)); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("非法地址应返回 ErrInvalidAddress, 实际 %v", err)
	}
}

func TestAddressBalancesRejectsInvalidAddress(t *testing.T) {
	c := NewClient(Options{RPCURL: "http://localhost:1"}, zerolog.Nop())
	if _, err := c.AddressBalances(context.Background(), "not-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("非法地址应返回 ErrInvalidAddress, 实际 %v", err)
	}
}
