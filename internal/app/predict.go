package app

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Jpatching/skill-mine/internal/codec"
	"github.com/Jpatching/skill-mine/internal/state"
)

// applySubmitPrediction records a winning-square guess for the board's
// current round. Predictions feed the skill multiplier at settlement
// and may be submitted any time while the round is current, including
// before the miner redeploys into it.
func (a *SkillApp) applySubmitPrediction(st *state.State, msg codec.SubmitPredictionTx) ([]abci.Event, error) {
	if msg.Authority == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing authority")
	}
	if msg.Square > 24 {
		return nil, errorsmod.Wrapf(ErrInvalidSquare, "square %d out of range", msg.Square)
	}

	m, ok := st.Miners[msg.Authority]
	if !ok {
		return nil, errorsmod.Wrap(ErrMinerNotFound, "unknown miner")
	}
	roundID := st.Board.RoundID
	if m.HasPredictionForRound(roundID) {
		return nil, errorsmod.Wrap(ErrDuplicatePrediction, "prediction already submitted")
	}

	m.SubmitPrediction(msg.Square, roundID)

	return okEvent(EventTypePredictionSubmitted, map[string]string{
		"authority": msg.Authority,
		"round":     fmt.Sprintf("%d", roundID),
		"square":    fmt.Sprintf("%d", msg.Square),
	}), nil
}
