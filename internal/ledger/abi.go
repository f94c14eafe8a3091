package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// LedgerABI is the subset of the asset ledger contract interface the gateway uses
const LedgerABI = `[
  {"type":"constructor","stateMutability":"nonpayable","inputs":[
    {"name":"_name","type":"string"},
    {"name":"_symbol","type":"string"},
    {"name":"_uriBase","type":"string"},
    {"name":"_schemaId","type":"bytes32"},
    {"name":"_capabilities","type":"bytes4[]"}]},
  {"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"uriBase","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"schemaId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"_owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"_tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"tokenURI","stateMutability":"view","inputs":[{"name":"_tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"tokenImprint","stateMutability":"view","inputs":[{"name":"_tokenId","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"supportsInterface","stateMutability":"view","inputs":[{"name":"_interfaceID","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"create","stateMutability":"nonpayable","inputs":[
    {"name":"_to","type":"address"},
    {"name":"_id","type":"uint256"},
    {"name":"_imprint","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[
    {"name":"_from","type":"address"},
    {"name":"_to","type":"address"},
    {"name":"_tokenId","type":"uint256"}],"outputs":[]}
]`

// ParsedABI is LedgerABI decoded once at start-up
var ParsedABI = mustParse(LedgerABI)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
