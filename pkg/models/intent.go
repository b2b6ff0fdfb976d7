package models

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Action is the portal's intent action enum
type Action uint32

const (
	ActionClick  Action = 1
	ActionInfer  Action = 2
	ActionRetire Action = 3
	ActionTask   Action = 4
)

var actionNames = map[Action]string{
	ActionClick:  "CLICK",
	ActionInfer:  "INFER",
	ActionRetire: "RETIRE",
	ActionTask:   "TASK",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("ACTION(%d)", uint32(a))
}

// ParseAction maps an action name (CLICK, INFER, ...) or a decimal value to an Action
func ParseAction(s string) (Action, error) {
	for action, name := range actionNames {
		if name == s {
			return action, nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown action %q", s)
	}
	return Action(n), nil
}

// Intent is an IntentSubmitted event observed on the portal contract
type Intent struct {
	ID          [32]byte
	Sender      common.Address
	Action      Action
	Expiry      uint64
	Nonce       *big.Int
	Payload     []byte
	PayloadHash [32]byte

	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// IDHex returns the 0x-prefixed hex form of the intent id
func (i Intent) IDHex() string {
	return hexutil.Encode(i.ID[:])
}

// PayloadMatches reports whether PayloadHash is the keccak256 of Payload
func (i Intent) PayloadMatches() bool {
	return crypto.Keccak256Hash(i.Payload) == common.Hash(i.PayloadHash)
}
