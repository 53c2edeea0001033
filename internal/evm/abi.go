package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Minimal ABI fragments for the contracts the bridge talks to.
const (
	erc20ABIJSON = `[
		{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
	]`

	gameControllerABIJSON = `[
		{"name":"claimReward","type":"function","inputs":[],"outputs":[]}
	]`
)

func mustParseABI(jsonStr string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(jsonStr))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

var (
	erc20ABI          = mustParseABI(erc20ABIJSON)
	gameControllerABI = mustParseABI(gameControllerABIJSON)
)

// packTransfer builds calldata for ERC-20 transfer(to, amount).
func packTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", to, amount)
}

// packBalanceOf builds calldata for ERC-20 balanceOf(account).
func packBalanceOf(account common.Address) ([]byte, error) {
	return erc20ABI.Pack("balanceOf", account)
}

// packDecimals builds calldata for ERC-20 decimals().
func packDecimals() ([]byte, error) {
	return erc20ABI.Pack("decimals")
}

// packClaimReward builds calldata for the game controller's claimReward().
func packClaimReward() ([]byte, error) {
	return gameControllerABI.Pack("claimReward")
}
