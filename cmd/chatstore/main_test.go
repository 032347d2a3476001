package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SatsAndSports/cashu-mls-chat/pkg/wallet"
)

func TestMintBalanceLines(t *testing.T) {
	url := wallet.MintURL("https://mint.example")
	proofs := []wallet.ProofInfo{
		{Proof: wallet.Proof{Amount: 4}, Unit: wallet.UnitSat},
		{Proof: wallet.Proof{Amount: 8}, Unit: wallet.UnitSat},
		{Proof: wallet.Proof{Amount: 2}, Unit: wallet.UnitUSD},
	}

	assert.Equal(t, []string{
		"mint https://mint.example: 12 unspent sat",
		"mint https://mint.example: 2 unspent usd",
	}, mintBalanceLines(url, proofs))

	assert.Equal(t, []string{
		"mint https://mint.example: no unspent proofs",
	}, mintBalanceLines(url, nil))
}
