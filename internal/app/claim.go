package app

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Jpatching/skill-mine/internal/codec"
	"github.com/Jpatching/skill-mine/internal/state"
)

func (a *SkillApp) applyClaimStake(st *state.State, now uint64, msg codec.ClaimStakeTx) ([]abci.Event, error) {
	if msg.Authority == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing authority")
	}
	m, ok := st.Miners[msg.Authority]
	if !ok {
		return nil, errorsmod.Wrap(ErrMinerNotFound, "unknown miner")
	}
	if m.RewardsStake == 0 {
		return nil, errorsmod.Wrap(ErrNothingToClaim, "no stake rewards")
	}

	amount := m.ClaimStake(now)
	if err := st.Debit(escrowAccount, amount); err != nil {
		return nil, errorsmod.Wrap(ErrInvariant, err.Error())
	}
	if err := st.Credit(msg.Authority, amount); err != nil {
		return nil, errorsmod.Wrap(ErrInvariant, err.Error())
	}

	return okEvent(EventTypeStakeClaimed, map[string]string{
		"authority": msg.Authority,
		"amount":    fmt.Sprintf("%d", amount),
	}), nil
}

func (a *SkillApp) applyClaimToken(st *state.State, now uint64, msg codec.ClaimTokenTx) ([]abci.Event, error) {
	if msg.Authority == "" {
		return nil, errorsmod.Wrap(ErrInvalidRequest, "missing authority")
	}
	m, ok := st.Miners[msg.Authority]
	if !ok {
		return nil, errorsmod.Wrap(ErrMinerNotFound, "unknown miner")
	}

	amount, err := m.ClaimToken(now, &st.Treasury)
	if err != nil {
		return nil, errorsmod.Wrap(ErrInvariant, err.Error())
	}
	if amount == 0 {
		return nil, errorsmod.Wrap(ErrNothingToClaim, "no token rewards")
	}
	if err := st.CreditToken(msg.Authority, amount); err != nil {
		return nil, errorsmod.Wrap(ErrInvariant, err.Error())
	}

	return okEvent(EventTypeTokenClaimed, map[string]string{
		"authority": msg.Authority,
		"amount":    fmt.Sprintf("%d", amount),
	}), nil
}
