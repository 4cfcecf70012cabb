package wallet

import "github.com/ethereum/go-ethereum/common"

// accountCreationHex is the compiled creation bytecode of the single-owner
// account contract (solc 0.8.24, optimizer on). The constructor takes the
// owner address as its only argument.
const accountCreationHex = "0x6080604052348015600e575f5ffd5b5060405161045f38038061045f833981016040819052602b91604e565b5f80546001600160a01b0319166001600160a01b0392909216919091179055607b565b5f60208284031215605d575f5ffd5b81516001600160a01b03811681146072575f5ffd5b9392505050565b6103d7806100885f395ff3fe60806040526004361061001d575f3560e01c8063b61d27f614610028575f5ffd5b3661002457005b5f5ffd5b61003b6100363660046102a1565b610051565b6040516100489190610326565b60405180910390f35b60605f546001600160a01b0316336001600160a01b0316146100b05760405162461bcd60e51b815260206004820152601360248201527226bab9ba1031329030b1b1b7bab73a1037bbb732b960691b604482015260640160405180910390fd5b5f856001600160a01b03168585856040516100cc929190610358565b5f6040518083038185875af1925050503d805f8114610106576040519150601f19603f3d011682016040523d82523d5f602084013e61010b565b606091505b50925090508061015d5760405162461bcd60e51b815260206004820152601460248201527318d85b1b08195e1958dd5d1a5bdb8819985a5b195960621b604482015260640160405180910390fd5b50949350505050565b80356001600160a01b038116811461017c575f5ffd5b919050565b5f5f5f5f606085870312156102b4575f5ffd5b6102bd85610166565b935060208501359250604085013567ffffffffffffffff8111156102df575f5ffd5b8501601f810187136102ef575f5ffd5b803567ffffffffffffffff811115610305575f5ffd5b876020828401011115610316575f5ffd5b949793965060200194505050565b602081525f82518060208401528060208501604085015e5f604082850101526040601f19601f83011684010191505092915050565b818382375f910190815291905056fea264697066735822122046f3c1b1f8b80e2f1a54c9fd1a9f3d0c4be1e6a37dd0788b4cfe5a4f8b21d75364736f6c634300081800330000000000000000000000000000000000000000000000000000000000000000"

// accountInitCode appends the abi-encoded owner constructor argument to the
// creation bytecode.
func accountInitCode(owner common.Address) []byte {
	code := common.FromHex(accountCreationHex)
	// strip the zeroed placeholder argument baked into the artifact
	code = code[:len(code)-32]
	return append(code, common.LeftPadBytes(owner.Bytes(), 32)...)
}
