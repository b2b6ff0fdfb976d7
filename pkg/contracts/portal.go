package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PortalABI is the subset of the ClickRegenPortal ABI used by the indexer and relayer
const PortalABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "bytes32", "name": "intentId", "type": "bytes32"},
			{"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
			{"indexed": false, "internalType": "uint32", "name": "action", "type": "uint32"},
			{"indexed": false, "internalType": "uint64", "name": "expiry", "type": "uint64"},
			{"indexed": false, "internalType": "uint256", "name": "nonce", "type": "uint256"},
			{"indexed": false, "internalType": "bytes", "name": "payload", "type": "bytes"},
			{"indexed": false, "internalType": "bytes32", "name": "payloadHash", "type": "bytes32"}
		],
		"name": "IntentSubmitted",
		"type": "event"
	},
	{
		"inputs": [
			{"internalType": "bytes32", "name": "intentId", "type": "bytes32"},
			{"internalType": "bool", "name": "success", "type": "bool"},
			{"internalType": "uint32", "name": "errorCode", "type": "uint32"},
			{"internalType": "bytes32", "name": "stateHash", "type": "bytes32"},
			{"internalType": "bytes32", "name": "execRefHash", "type": "bytes32"},
			{"internalType": "bytes", "name": "resultPayload", "type": "bytes"}
		],
		"name": "finalizeReceipt",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "sender", "type": "address"},
			{"internalType": "uint256", "name": "nonce", "type": "uint256"},
			{"internalType": "uint32", "name": "action", "type": "uint32"},
			{"internalType": "bytes", "name": "payload", "type": "bytes"},
			{"internalType": "uint64", "name": "expiry", "type": "uint64"}
		],
		"name": "computeIntentId",
		"outputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

const (
	// IntentSubmittedEvent is the name of the intent submission event
	IntentSubmittedEvent = "IntentSubmitted"
	// FinalizeReceiptMethod is the name of the relayer's finalize call
	FinalizeReceiptMethod = "finalizeReceipt"
)

// ParsedPortalABI is PortalABI parsed once at package load
var ParsedPortalABI = mustParseABI(PortalABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// IntentSubmittedTopic returns topic0 of the IntentSubmitted event
func IntentSubmittedTopic() common.Hash {
	return ParsedPortalABI.Events[IntentSubmittedEvent].ID
}

// Portal is a Go binding around the ClickRegenPortal contract.
type Portal struct {
	PortalCaller     // Read-only binding to the contract
	PortalTransactor // Write-only binding to the contract
	PortalFilterer   // Log parsing for contract events
}

// PortalCaller is a read-only binding around the portal.
type PortalCaller struct {
	contract *bind.BoundContract
}

// PortalTransactor is a write-only binding around the portal.
type PortalTransactor struct {
	contract *bind.BoundContract
}

// PortalFilterer is a log parsing binding around the portal's events.
type PortalFilterer struct {
	contract *bind.BoundContract
}

// PortalIntentSubmitted represents an IntentSubmitted event raised by the portal.
type PortalIntentSubmitted struct {
	IntentId    [32]byte
	Sender      common.Address
	Action      uint32
	Expiry      uint64
	Nonce       *big.Int
	Payload     []byte
	PayloadHash [32]byte
	Raw         types.Log // Blockchain specific contextual infos
}

// NewPortal creates a new instance of Portal, bound to a specific deployed contract.
func NewPortal(address common.Address, backend bind.ContractBackend) *Portal {
	contract := bind.NewBoundContract(address, ParsedPortalABI, backend, backend, backend)
	return &Portal{
		PortalCaller:     PortalCaller{contract: contract},
		PortalTransactor: PortalTransactor{contract: contract},
		PortalFilterer:   PortalFilterer{contract: contract},
	}
}

// NewPortalFilterer creates a log parser that needs no backend.
func NewPortalFilterer(address common.Address) *PortalFilterer {
	return &PortalFilterer{contract: bind.NewBoundContract(address, ParsedPortalABI, nil, nil, nil)}
}

// ComputeIntentId is a free data retrieval call binding the contract method computeIntentId.
//
// Solidity: function computeIntentId(address sender, uint256 nonce, uint32 action, bytes payload, uint64 expiry) view returns(bytes32)
func (_Portal *PortalCaller) ComputeIntentId(opts *bind.CallOpts, sender common.Address, nonce *big.Int, action uint32, payload []byte, expiry uint64) ([32]byte, error) {
	var out []interface{}
	err := _Portal.contract.Call(opts, &out, "computeIntentId", sender, nonce, action, payload, expiry)
	if err != nil {
		return [32]byte{}, err
	}
	return *abi.ConvertType(out[0], new([32]byte)).(*[32]byte), nil
}

// FinalizeReceipt is a paid mutator transaction binding the contract method finalizeReceipt.
//
// Solidity: function finalizeReceipt(bytes32 intentId, bool success, uint32 errorCode, bytes32 stateHash, bytes32 execRefHash, bytes resultPayload) returns()
func (_Portal *PortalTransactor) FinalizeReceipt(opts *bind.TransactOpts, intentId [32]byte, success bool, errorCode uint32, stateHash [32]byte, execRefHash [32]byte, resultPayload []byte) (*types.Transaction, error) {
	return _Portal.contract.Transact(opts, FinalizeReceiptMethod, intentId, success, errorCode, stateHash, execRefHash, resultPayload)
}

// ParseIntentSubmitted is a log parse operation binding the contract event IntentSubmitted.
//
// Solidity: event IntentSubmitted(bytes32 indexed intentId, address indexed sender, uint32 action, uint64 expiry, uint256 nonce, bytes payload, bytes32 payloadHash)
func (_Portal *PortalFilterer) ParseIntentSubmitted(log types.Log) (*PortalIntentSubmitted, error) {
	event := new(PortalIntentSubmitted)
	if err := _Portal.contract.UnpackLog(event, IntentSubmittedEvent, log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}
