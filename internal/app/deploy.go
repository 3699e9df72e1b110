package app

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/bits"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Jpatching/skill-mine/internal/codec"
	"github.com/Jpatching/skill-mine/internal/state"
)

// applyDeploy stakes funds across board squares for the current round.
// The first deploy of a round freezes the phase schedule on the board
// and creates the round record; later deploys join the same schedule.
func (a *SkillApp) applyDeploy(st *state.State, now uint64, msg codec.DeployTx) ([]abci.Event, error) {
	if msg.Authority == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing authority")
	}
	if msg.Amount == 0 {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "amount must be positive")
	}
	if msg.RoundID != st.Board.RoundID {
		return nil, errorsmod.Wrapf(ErrStaleRound, "round %d is not current (current %d)", msg.RoundID, st.Board.RoundID)
	}

	mask, err := resolveStrategy(msg)
	if err != nil {
		return nil, err
	}
	if bits.OnesCount32(mask) == 0 {
		return nil, errorsmod.Wrap(ErrInvalidSquare, "no squares selected")
	}

	r, exists := st.Rounds[msg.RoundID]
	if exists {
		if !r.IsDeployPhase(now) {
			return nil, errorsmod.Wrap(ErrWrongPhase, "deploy window has closed")
		}
	} else {
		r = &state.Round{
			ID:           msg.RoundID,
			CommitStart:  now + state.DeployPhaseTicks,
			RentPayer:    msg.Authority,
			BonusSquares: state.GenerateBonusSquares(st.Board.LastSeed),
		}
		r.RevealStart = r.CommitStart + state.CommitPhaseTicks
		r.ExpiresAt = r.RevealStart + state.RevealPhaseTicks + state.GracePeriodTicks
		st.Board.StartTick = now
		st.Board.EndTick = r.RevealStart + state.RevealPhaseTicks
		st.Rounds[msg.RoundID] = r
	}

	m, ok := st.Miners[msg.Authority]
	if !ok {
		m = state.NewMiner(msg.Authority)
		m.RoundID = msg.RoundID
		st.Miners[msg.Authority] = m
	}
	if m.RoundID != msg.RoundID {
		// Joining a new round requires the previous one settled first,
		// otherwise the per-round tallies would be silently dropped.
		if m.CheckpointID != m.RoundID {
			return nil, errorsmod.Wrapf(ErrUnsettledRound, "round %d must be checkpointed before redeploying", m.RoundID)
		}
		m.Deployed = [25]uint64{}
		m.RoundID = msg.RoundID
		m.CheckpointFee = 0
	}

	// Escrow the crank fee once per miner per round. Whoever later
	// checkpoints this miner inside the bot window collects it.
	var feeEscrowed uint64
	if m.CheckpointFee == 0 {
		if err := st.Debit(msg.Authority, checkpointFee); err != nil {
			return nil, errorsmod.Wrap(ErrInsufficientFunds, err.Error())
		}
		if err := st.Credit(escrowAccount, checkpointFee); err != nil {
			return nil, errorsmod.Wrap(ErrInvariant, err.Error())
		}
		m.CheckpointFee = checkpointFee
		feeEscrowed = checkpointFee
	}

	// The full amount lands on every selected square the miner has not
	// funded yet; already funded squares are skipped, not errors.
	var deployed uint64
	var squaresHit uint64
	for sq := 0; sq < 25; sq++ {
		if mask&(1<<uint(sq)) == 0 {
			continue
		}
		if m.Deployed[sq] > 0 {
			continue
		}
		m.Cumulative[sq] = r.Deployed[sq]
		var aerr error
		m.Deployed[sq] = msg.Amount
		r.Deployed[sq], aerr = addUint64Checked(r.Deployed[sq], msg.Amount, "square stake")
		if aerr != nil {
			return nil, aerr
		}
		r.Count[sq]++
		r.TotalDeployed, aerr = addUint64Checked(r.TotalDeployed, msg.Amount, "round stake")
		if aerr != nil {
			return nil, aerr
		}
		deployed, aerr = addUint64Checked(deployed, msg.Amount, "deploy total")
		if aerr != nil {
			return nil, aerr
		}
		squaresHit++
	}
	if squaresHit == 0 {
		return nil, errorsmod.Wrap(ErrInvalidSquare, "all selected squares already funded")
	}

	if err := st.Debit(msg.Authority, deployed); err != nil {
		return nil, errorsmod.Wrap(ErrInsufficientFunds, err.Error())
	}
	if err := st.Credit(roundPoolAccount(msg.RoundID), deployed); err != nil {
		return nil, errorsmod.Wrap(ErrInvariant, err.Error())
	}

	return okEvent(EventTypeStakeDeployed, map[string]string{
		"authority":   msg.Authority,
		"round":       fmt.Sprintf("%d", msg.RoundID),
		"amount":      fmt.Sprintf("%d", deployed),
		"squares":     fmt.Sprintf("%d", squaresHit),
		"fee_escrow":  fmt.Sprintf("%d", feeEscrowed),
		"commence_at": fmt.Sprintf("%d", r.CommitStart),
	}), nil
}

// resolveStrategy turns a deploy request into a 25-bit square mask.
// Preferred deploys use the caller's mask verbatim. Random deploys
// sample Count distinct squares from a digest of the authority and
// round, so the selection is stable under replay.
func resolveStrategy(msg codec.DeployTx) (uint32, error) {
	switch msg.Strategy {
	case codec.StrategyPreferred, "":
		if msg.Squares == 0 || msg.Squares >= 1<<25 {
			return 0, errorsmod.Wrap(ErrInvalidSquare, "square mask out of range")
		}
		return msg.Squares, nil
	case codec.StrategyRandom:
		if msg.Count == 0 || msg.Count > 25 {
			return 0, errorsmod.Wrap(ErrInvalidSquare, "random count out of range")
		}
		return randomMask(msg.Authority, msg.RoundID, msg.Count), nil
	default:
		return 0, errorsmod.Wrapf(ErrInvalidRequest, "unknown strategy: %s", msg.Strategy)
	}
}

func randomMask(authority string, roundID uint64, count uint8) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], roundID)
	h := sha256.New()
	h.Write([]byte(authority))
	h.Write(buf[:])
	digest := h.Sum(nil)

	// Reservoir selection of count squares out of 25, one digest byte
	// per position.
	var selected [25]uint8
	for i := uint8(0); i < count; i++ {
		selected[i] = i
	}
	for i := count; i < 25; i++ {
		j := digest[i] % (i + 1)
		if j < count {
			selected[j] = i
		}
	}

	var mask uint32
	for i := uint8(0); i < count; i++ {
		mask |= 1 << uint(selected[i])
	}
	return mask
}
