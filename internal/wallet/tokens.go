package wallet

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token describes an ERC-20 token the agent can move or quote.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
}

// NativeTokenAddress is the aggregator convention for the chain's native coin.
var NativeTokenAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

var (
	TokenETH = Token{
		Symbol:   "ETH",
		Address:  NativeTokenAddress,
		Decimals: 18,
	}
	TokenSTRK = Token{
		Symbol:   "STRK",
		Address:  common.HexToAddress("0xCa14007Eff0dB1f8135f4C25B34De49AB0d42766"),
		Decimals: 18,
	}
)

// knownTokens maps lowercase symbols to their canonical tokens.
var knownTokens = map[string]Token{
	"eth":  TokenETH,
	"strk": TokenSTRK,
}

// NormalizeTokenAddress resolves case-insensitive symbolic aliases ("eth",
// "STRK") to their canonical contract address. Anything else is assumed to
// already be an address and passes through checksummed.
func NormalizeTokenAddress(symbolOrAddress string) string {
	s := strings.TrimSpace(symbolOrAddress)
	if t, ok := knownTokens[strings.ToLower(s)]; ok {
		return t.Address.Hex()
	}
	if common.IsHexAddress(s) {
		return common.HexToAddress(s).Hex()
	}
	return s
}

// LookupToken returns the known token for a symbol or address, if any.
func LookupToken(symbolOrAddress string) (Token, bool) {
	s := strings.TrimSpace(symbolOrAddress)
	if t, ok := knownTokens[strings.ToLower(s)]; ok {
		return t, true
	}
	if !common.IsHexAddress(s) {
		return Token{}, false
	}
	addr := common.HexToAddress(s)
	for _, t := range knownTokens {
		if t.Address == addr {
			return t, true
		}
	}
	return Token{}, false
}
