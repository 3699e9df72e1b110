package codec

import (
	"encoding/json"
	"fmt"
)

// TxEnvelope is the transaction container.
//
// CometBFT transactions are opaque bytes; the engine uses JSON-encoded
// txs routed by type. Caller authentication is handled by the hosting
// substrate and is not part of this engine.
type TxEnvelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// ---- Bank ----

type BankMintTx struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type BankSendTx struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// ---- Game ----

// Deploy strategies. "preferred" uses the provided square mask;
// "random" derives a mask of Count squares from the authority and round
// id. An empty strategy means "preferred".
const (
	StrategyPreferred = "preferred"
	StrategyRandom    = "random"
)

type DeployTx struct {
	Authority string `json:"authority"`
	RoundID   uint64 `json:"roundId"`

	// Amount is the stake placed on each selected square, in base
	// units. Total collected = amount x newly funded squares.
	Amount uint64 `json:"amount"`

	// Squares is a 25-bit mask of square indices (preferred strategy).
	Squares uint32 `json:"squares,omitempty"`

	Strategy string `json:"strategy,omitempty"`

	// Count is the number of squares to select (random strategy).
	Count uint8 `json:"count,omitempty"`
}

type SubmitCommitTx struct {
	Authority  string `json:"authority"`
	Commitment []byte `json:"commitment"` // 32 bytes, base64 in JSON
}

type RevealChoiceTx struct {
	Authority string `json:"authority"`
	Square    uint8  `json:"square"`
	Salt      []byte `json:"salt"` // 16 bytes, base64 in JSON
}

type SubmitPredictionTx struct {
	Authority string `json:"authority"`
	Square    uint8  `json:"square"`
}

// ResetTx finalizes the active round once its reveal phase has elapsed
// and opens the next one. Callable by anyone.
type ResetTx struct {
	Caller string `json:"caller"`
}

// CheckpointTx settles one miner against one finalized round. Callable
// by anyone; idempotent.
type CheckpointTx struct {
	Caller    string `json:"caller"`
	Authority string `json:"authority"`
	RoundID   uint64 `json:"roundId"`
}

type ClaimStakeTx struct {
	Authority string `json:"authority"`
}

type ClaimTokenTx struct {
	Authority string `json:"authority"`
}

// CloseRoundTx reclaims an expired round's storage. Rent payer only.
type CloseRoundTx struct {
	Caller  string `json:"caller"`
	RoundID uint64 `json:"roundId"`
}
