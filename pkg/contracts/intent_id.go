package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ComputeIntentID mirrors the portal's computeIntentId view:
// keccak256(abi.encode(sender, nonce, action, payload, expiry)).
func ComputeIntentID(sender common.Address, nonce *big.Int, action uint32, payload []byte, expiry uint64) ([32]byte, error) {
	method := ParsedPortalABI.Methods["computeIntentId"]
	packed, err := method.Inputs.Pack(sender, nonce, action, payload, expiry)
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}

// EncodeIntentSubmitted builds the non-indexed data section of an IntentSubmitted log.
// Used by tooling and tests that need synthetic logs.
func EncodeIntentSubmitted(action uint32, expiry uint64, nonce *big.Int, payload []byte, payloadHash [32]byte) ([]byte, error) {
	var nonIndexed abi.Arguments = ParsedPortalABI.Events[IntentSubmittedEvent].Inputs.NonIndexed()
	return nonIndexed.Pack(action, expiry, nonce, payload, payloadHash)
}
