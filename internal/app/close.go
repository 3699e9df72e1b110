package app

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Jpatching/skill-mine/internal/codec"
	"github.com/Jpatching/skill-mine/internal/state"
)

// applyCloseRound retires an expired round record. Whatever remains in
// the round pool (admin fees, rounding dust, forfeited stakes) is swept
// to the vault. Only the rent payer who opened the round may close it.
func (a *SkillApp) applyCloseRound(st *state.State, now uint64, msg codec.CloseRoundTx) ([]abci.Event, error) {
	if msg.Caller == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing caller")
	}
	r, ok := st.Rounds[msg.RoundID]
	if !ok {
		return nil, errorsmod.Wrapf(ErrRoundNotFound, "round %d not found", msg.RoundID)
	}
	if now < r.ExpiresAt {
		return nil, errorsmod.Wrapf(ErrRoundActive, "round %d claimable until tick %d", msg.RoundID, r.ExpiresAt)
	}
	if msg.Caller != r.RentPayer {
		return nil, errorsmod.Wrapf(ErrUnauthorized, "only rent payer %s may close", r.RentPayer)
	}

	pool := roundPoolAccount(msg.RoundID)
	swept := st.Balance(pool)
	if swept > 0 {
		if err := st.Debit(pool, swept); err != nil {
			return nil, errorsmod.Wrap(ErrInvariant, err.Error())
		}
		if err := st.Credit(vaultAccount, swept); err != nil {
			return nil, errorsmod.Wrap(ErrInvariant, err.Error())
		}
		var err error
		if st.Treasury.Balance, err = addUint64Checked(st.Treasury.Balance, swept, "treasury balance"); err != nil {
			return nil, err
		}
	}
	delete(st.Accounts, pool)
	delete(st.Rounds, msg.RoundID)

	return okEvent(EventTypeRoundClosed, map[string]string{
		"caller": msg.Caller,
		"round":  fmt.Sprintf("%d", msg.RoundID),
		"swept":  fmt.Sprintf("%d", swept),
	}), nil
}
