package models

// ExecutionResult is the outcome of executing an intent off-chain.
// It is computed fresh for every finalize attempt and never persisted.
type ExecutionResult struct {
	Success       bool
	ErrorCode     uint32
	StateHash     [32]byte
	ExecRef       string
	ExecRefHash   [32]byte
	ResultPayload []byte
}
