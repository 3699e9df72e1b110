package app

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Jpatching/skill-mine/internal/codec"
	"github.com/Jpatching/skill-mine/internal/state"
)

// applyReset finalizes the current round and opens the next one. Any
// caller may crank it once the reveal window has closed. The outcome
// seed is drawn from the last block hash, so the winning draws cannot
// be known when stakes are placed.
func (a *SkillApp) applyReset(st *state.State, now uint64, msg codec.ResetTx) ([]abci.Event, error) {
	if msg.Caller == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing caller")
	}
	if st.Board.EndTick == math.MaxUint64 {
		return nil, errorsmod.Wrap(ErrWrongPhase, "no round in progress")
	}
	if now < st.Board.EndTick {
		return nil, errorsmod.Wrapf(ErrWrongPhase, "round runs until tick %d", st.Board.EndTick)
	}

	roundID := st.Board.RoundID
	r, ok := st.Rounds[roundID]
	if !ok {
		return nil, errorsmod.Wrapf(ErrRoundNotFound, "round %d was never opened", roundID)
	}
	if r.Finalized() {
		return nil, errorsmod.Wrapf(ErrWrongPhase, "round %d already finalized", roundID)
	}

	seed := outcomeSeed(st.LastBlockHash, roundID)
	r.OutcomeSeed = seed
	r.WinningSquare = r.WinningSquareArgmax()
	r.TotalWinnings = r.CalculateTotalWinnings(r.WinningSquare)

	motherlodeHit := false
	if r.TotalDeployed > 0 {
		r.TopMinerReward = baseEmission

		rng, _ := r.RNG()
		// Split rounds are marked here; single-winner rounds leave
		// TopMiner empty until a checkpoint lands in the sampled
		// interval.
		if r.IsSplitReward(rng) {
			r.TopMiner = state.SplitMarker
		}
		accrual := baseEmission / motherlodeShareDiv
		pot, err := addUint64Checked(st.Treasury.Motherlode, accrual, "motherlode pot")
		if err != nil {
			return nil, err
		}
		st.Treasury.Motherlode = pot
		if r.DidHitMotherlode(rng) {
			r.Motherlode = st.Treasury.Motherlode
			st.Treasury.Motherlode = 0
			motherlodeHit = true
		}
	}

	st.Board.LastSeed = seed
	st.Board.RoundID++
	st.Board.StartTick = math.MaxUint64
	st.Board.EndTick = math.MaxUint64

	a.logger.Info("round finalized",
		"round", roundID,
		"winning_square", r.WinningSquare,
		"total_deployed", r.TotalDeployed,
		"motherlode_hit", motherlodeHit,
	)

	return okEvent(EventTypeRoundFinalized, map[string]string{
		"caller":         msg.Caller,
		"round":          fmt.Sprintf("%d", roundID),
		"winning_square": fmt.Sprintf("%d", r.WinningSquare),
		"total_winnings": fmt.Sprintf("%d", r.TotalWinnings),
		"motherlode_hit": fmt.Sprintf("%t", motherlodeHit),
		"next_round":     fmt.Sprintf("%d", st.Board.RoundID),
	}), nil
}

// outcomeSeed hashes the block hash with the round id. An all-zero
// digest would read as "not finalized", so its last byte is remapped.
func outcomeSeed(blockHash []byte, roundID uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], roundID)
	h := sha256.New()
	h.Write(blockHash)
	h.Write(buf[:])
	seed := h.Sum(nil)

	zero := true
	for _, b := range seed {
		if b != 0 {
			zero = false
			break
		}
	}
	if zero {
		seed[len(seed)-1] = 1
	}
	return seed
}
