package app

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Jpatching/skill-mine/internal/codec"
	"github.com/Jpatching/skill-mine/internal/state"
)

func (a *SkillApp) applySubmitCommit(st *state.State, now uint64, msg codec.SubmitCommitTx) ([]abci.Event, error) {
	if msg.Authority == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing authority")
	}
	if len(msg.Commitment) != state.CommitmentSize {
		return nil, errorsmod.Wrapf(ErrInvalidRequest, "commitment must be %d bytes", state.CommitmentSize)
	}
	if allZero(msg.Commitment) {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "commitment is all zero")
	}

	roundID := st.Board.RoundID
	r, ok := st.Rounds[roundID]
	if !ok {
		return nil, errorsmod.Wrapf(ErrRoundNotFound, "round %d has no deployments", roundID)
	}
	if !r.IsCommitPhase(now) {
		return nil, errorsmod.Wrap(ErrWrongPhase, "commit window is not open")
	}

	m, ok := st.Miners[msg.Authority]
	if !ok || m.RoundID != roundID {
		return nil, errorsmod.Wrap(ErrNotStaked, "no stake deployed this round")
	}
	if m.HasCommitmentForRound(roundID) {
		return nil, errorsmod.Wrap(ErrDuplicateCommit, "commitment already submitted")
	}

	m.SubmitCommitment(msg.Commitment, roundID)

	return okEvent(EventTypeCommitSubmitted, map[string]string{
		"authority": msg.Authority,
		"round":     fmt.Sprintf("%d", roundID),
	}), nil
}

func (a *SkillApp) applyRevealChoice(st *state.State, now uint64, msg codec.RevealChoiceTx) ([]abci.Event, error) {
	if msg.Authority == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing authority")
	}
	if msg.Square > 24 {
		return nil, errorsmod.Wrapf(ErrInvalidSquare, "square %d out of range", msg.Square)
	}
	if len(msg.Salt) != state.SaltSize {
		return nil, errorsmod.Wrapf(ErrInvalidRequest, "salt must be %d bytes", state.SaltSize)
	}

	roundID := st.Board.RoundID
	r, ok := st.Rounds[roundID]
	if !ok {
		return nil, errorsmod.Wrapf(ErrRoundNotFound, "round %d has no deployments", roundID)
	}
	if !r.IsRevealPhase(now) {
		return nil, errorsmod.Wrap(ErrWrongPhase, "reveal window is not open")
	}

	m, ok := st.Miners[msg.Authority]
	if !ok || m.RoundID != roundID {
		return nil, errorsmod.Wrap(ErrNotStaked, "no stake deployed this round")
	}
	if !m.HasCommitmentForRound(roundID) {
		return nil, errorsmod.Wrap(ErrNoCommitment, "nothing to reveal")
	}
	if m.HasRevealedForRound(roundID) {
		return nil, errorsmod.Wrap(ErrAlreadyRevealed, "choice already revealed")
	}
	if !m.VerifyCommitment(msg.Square, msg.Salt) {
		return nil, errorsmod.Wrap(ErrCommitMismatch, "reveal does not match commitment")
	}

	m.RevealChoice(msg.Square, roundID)
	r.RevealedCount[msg.Square]++
	r.TotalReveals++

	return okEvent(EventTypeChoiceRevealed, map[string]string{
		"authority": msg.Authority,
		"round":     fmt.Sprintf("%d", roundID),
		"square":    fmt.Sprintf("%d", msg.Square),
	}), nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
