package gateway

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// GatewayABI covers the order gateway's perform entry point
const GatewayABI = `[
  {"type":"function","name":"perform","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"_data","type":"tuple","components":[
      {"name":"maker","type":"address"},
      {"name":"taker","type":"address"},
      {"name":"actions","type":"tuple[]","components":[
        {"name":"kind","type":"uint8"},
        {"name":"proxy","type":"uint32"},
        {"name":"token","type":"address"},
        {"name":"param1","type":"bytes32"},
        {"name":"to","type":"address"},
        {"name":"value","type":"uint256"}]},
      {"name":"seed","type":"uint256"},
      {"name":"expiration","type":"uint256"}]},
    {"name":"_signature","type":"tuple","components":[
      {"name":"r","type":"bytes32"},
      {"name":"s","type":"bytes32"},
      {"name":"v","type":"uint8"},
      {"name":"kind","type":"uint8"}]}]}
]`

// ParsedABI is GatewayABI decoded once at start-up
var ParsedABI = mustParse(GatewayABI)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ActionData is the on-chain encoding of one order action
type ActionData struct {
	Kind   uint8
	Proxy  uint32
	Token  common.Address
	Param1 [32]byte
	To     common.Address
	Value  *big.Int
}

// OrderData is the on-chain encoding of an order
type OrderData struct {
	Maker      common.Address
	Taker      common.Address
	Actions    []ActionData
	Seed       *big.Int
	Expiration *big.Int
}

// SignatureData is the on-chain encoding of a claim
type SignatureData struct {
	R    [32]byte
	S    [32]byte
	V    uint8
	Kind uint8
}
