package app

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Jpatching/skill-mine/internal/codec"
	"github.com/Jpatching/skill-mine/internal/state"
)

// applyCheckpoint settles one miner's position in a finalized round.
// Settlement is per-miner and crankable by anyone: the miner usually
// cranks their own, and the escrowed fee pays third-party bots to
// sweep stragglers near the end of the grace period. The operation is
// idempotent per (miner, round).
func (a *SkillApp) applyCheckpoint(st *state.State, now uint64, msg codec.CheckpointTx) ([]abci.Event, error) {
	if msg.Caller == "" || msg.Authority == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing caller/authority")
	}

	m, ok := st.Miners[msg.Authority]
	if !ok {
		return nil, errorsmod.Wrap(ErrMinerNotFound, "unknown miner")
	}

	if m.CheckpointID == msg.RoundID {
		return okEvent(EventTypeCheckpointDeferred, map[string]string{
			"authority": msg.Authority,
			"round":     fmt.Sprintf("%d", msg.RoundID),
			"reason":    "already settled",
		}), nil
	}
	if m.RoundID != msg.RoundID {
		return nil, errorsmod.Wrapf(ErrInvalidRequest, "miner is staked in round %d, not %d", m.RoundID, msg.RoundID)
	}

	r, roundExists := st.Rounds[msg.RoundID]
	if roundExists {
		if msg.RoundID == st.Board.RoundID || !r.Finalized() {
			return okEvent(EventTypeCheckpointDeferred, map[string]string{
				"authority": msg.Authority,
				"round":     fmt.Sprintf("%d", msg.RoundID),
				"reason":    "round not finalized",
			}), nil
		}
	}

	// Release the escrowed crank fee. Inside the bot window (or once
	// the round is gone altogether) it pays whoever cranked; before
	// that it returns to the miner.
	feePaid, feeTo := uint64(0), ""
	if m.CheckpointFee > 0 {
		feeTo = msg.Authority
		if !roundExists || now+state.BotWindowTicks >= r.ExpiresAt {
			feeTo = msg.Caller
		}
		if err := st.Debit(escrowAccount, m.CheckpointFee); err != nil {
			return nil, errorsmod.Wrap(ErrInvariant, err.Error())
		}
		if err := st.Credit(feeTo, m.CheckpointFee); err != nil {
			return nil, errorsmod.Wrap(ErrInvariant, err.Error())
		}
		feePaid = m.CheckpointFee
		m.CheckpointFee = 0
	}

	if !roundExists || now >= r.ExpiresAt {
		// Grace period over (or the round record already closed): the
		// position is forfeited. The abandoned stake stays in the round
		// pool and is swept to the vault at close.
		m.Deployed = [25]uint64{}
		m.CheckpointID = msg.RoundID
		return okEvent(EventTypeRewardsForfeited, map[string]string{
			"authority": msg.Authority,
			"caller":    msg.Caller,
			"round":     fmt.Sprintf("%d", msg.RoundID),
			"fee_paid":  fmt.Sprintf("%d", feePaid),
			"fee_to":    feeTo,
		}), nil
	}

	w := r.WinningSquare
	dep := m.Deployed[w]
	if dep > r.Deployed[w] {
		return nil, errorsmod.Wrapf(ErrInvariant, "miner stake %d exceeds square stake %d", dep, r.Deployed[w])
	}

	var stakePayout, tokenPayout uint64
	topMinerHit := false

	if r.TotalDeployed == 0 {
		// Nothing was staked in this round; nothing to settle.
	} else if dep > 0 {
		adminFee := dep / 100
		if adminFee == 0 {
			adminFee = 1
		}

		netDeposit, err := subUint64Checked(dep, adminFee, "net deposit")
		if err != nil {
			return nil, err
		}
		winningsShare, err := mulDivUint64(r.TotalWinnings, dep, r.Deployed[w], "winnings share")
		if err != nil {
			return nil, err
		}
		stakePayout, err = addUint64Checked(netDeposit, winningsShare, "stake payout")
		if err != nil {
			return nil, err
		}
		r.TotalVaulted, err = addUint64Checked(r.TotalVaulted, adminFee, "vaulted fees")
		if err != nil {
			return nil, err
		}

		rng, ok := r.RNG()
		if !ok {
			return nil, errorsmod.Wrap(ErrInvariant, "finalized round has no rng")
		}
		if r.TopMiner == state.SplitMarker {
			tokenPayout, err = mulDivUint64(r.TopMinerReward, dep, r.Deployed[w], "token share")
			if err != nil {
				return nil, err
			}
		} else {
			sample := r.TopMinerSample(rng, w)
			if sample >= m.Cumulative[w] && sample < m.Cumulative[w]+dep {
				tokenPayout = r.TopMinerReward
				r.TopMiner = msg.Authority
				topMinerHit = true
			}
		}
		if r.Motherlode > 0 {
			mlShare, err := mulDivUint64(r.Motherlode, dep, r.Deployed[w], "motherlode share")
			if err != nil {
				return nil, err
			}
			tokenPayout, err = addUint64Checked(tokenPayout, mlShare, "token payout")
			if err != nil {
				return nil, err
			}
		}
	}

	// Pull pooled accrual at the pre-settlement weight before this
	// round's token payout changes it.
	if err := m.UpdateRewards(&st.Treasury); err != nil {
		return nil, errorsmod.Wrap(ErrInvariant, err.Error())
	}

	mult := m.EvaluatePrediction(w, msg.RoundID)
	if mult > 100 && tokenPayout > 0 {
		boosted, err := mulDivUint64(tokenPayout, mult, 100, "boosted token payout")
		if err != nil {
			return nil, err
		}
		tokenPayout = boosted
	}

	if stakePayout > 0 {
		if err := st.Debit(roundPoolAccount(msg.RoundID), stakePayout); err != nil {
			return nil, errorsmod.Wrap(ErrInvariant, err.Error())
		}
		if err := st.Credit(escrowAccount, stakePayout); err != nil {
			return nil, errorsmod.Wrap(ErrInvariant, err.Error())
		}
		var err error
		if m.RewardsStake, err = addUint64Checked(m.RewardsStake, stakePayout, "claimable stake"); err != nil {
			return nil, err
		}
		if m.LifetimeStake, err = addUint64Checked(m.LifetimeStake, stakePayout, "lifetime stake"); err != nil {
			return nil, err
		}
	}
	if tokenPayout > 0 {
		var err error
		if m.RewardsToken, err = addUint64Checked(m.RewardsToken, tokenPayout, "claimable token"); err != nil {
			return nil, err
		}
		if m.LifetimeToken, err = addUint64Checked(m.LifetimeToken, tokenPayout, "lifetime token"); err != nil {
			return nil, err
		}
		if st.Treasury.TotalUnclaimed, err = addUint64Checked(st.Treasury.TotalUnclaimed, tokenPayout, "unclaimed pool"); err != nil {
			return nil, err
		}
	}

	m.Deployed = [25]uint64{}
	m.CheckpointID = msg.RoundID

	return okEvent(EventTypeCheckpointed, map[string]string{
		"authority":    msg.Authority,
		"caller":       msg.Caller,
		"round":        fmt.Sprintf("%d", msg.RoundID),
		"stake_payout": fmt.Sprintf("%d", stakePayout),
		"token_payout": fmt.Sprintf("%d", tokenPayout),
		"multiplier":   fmt.Sprintf("%d", mult),
		"top_miner":    fmt.Sprintf("%t", topMinerHit),
		"fee_paid":     fmt.Sprintf("%d", feePaid),
		"fee_to":       feeTo,
	}), nil
}
