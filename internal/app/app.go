package app

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/Jpatching/skill-mine/internal/codec"
	"github.com/Jpatching/skill-mine/internal/state"
)

const (
	AppVersion uint64 = 1
)

// SkillApp hosts the round settlement engine as a CometBFT ABCI
// application. The block height is the engine's logical clock: every
// phase boundary is expressed in ticks of it.
type SkillApp struct {
	*abci.BaseApplication

	home   string
	logger log.Logger

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
}

func New(home string, logger log.Logger) (*SkillApp, error) {
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome)
	if err != nil {
		return nil, err
	}
	a := &SkillApp{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		logger:          logger,
		st:              st,
		lastHash:        st.AppHash(),
	}
	return a, nil
}

func (a *SkillApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "skill-mine",
		Version:          "v1",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *SkillApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	_, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	// Structural validation only; stateful checks run at delivery.
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *SkillApp) InitChain(_ context.Context, _ *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	return &abci.InitChainResponse{}, nil
}

func (a *SkillApp) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height
	if len(req.Hash) > 0 {
		a.st.LastBlockHash = append([]byte(nil), req.Hash...)
	}

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		res := a.deliverTx(txBytes, uint64(req.Height))
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *SkillApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	// Persist after each block. Returning the error halts the node
	// loudly rather than running on unsaved state.
	appHome := filepath.Join(a.home, "app")
	if err := a.st.Save(appHome); err != nil {
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

func (a *SkillApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Paths:
	// - /board
	// - /treasury
	// - /round/<id>
	// - /miner/<addr>
	// - /account/<addr>
	// - /token/<addr>
	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/board":
		b, _ := json.Marshal(a.st.Board)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case path == "/treasury":
		b, _ := json.Marshal(a.st.Treasury)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/round/"):
		raw := strings.TrimPrefix(path, "/round/")
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: "invalid round id", Height: a.st.Height}, nil
		}
		r, ok := a.st.Rounds[id]
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: "round not found", Height: a.st.Height}, nil
		}
		view := struct {
			*state.Round
			RevealWinningSquare uint8  `json:"revealWinningSquare"`
			ContrarianBonus     uint64 `json:"contrarianBonus"`
		}{
			Round:               r,
			RevealWinningSquare: r.WinningSquareFromReveals(),
			ContrarianBonus:     r.ContrarianBonus(r.WinningSquare),
		}
		b, _ := json.Marshal(view)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/miner/"):
		addr := strings.TrimPrefix(path, "/miner/")
		m, ok := a.st.Miners[addr]
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: "miner not found", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(m)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/account/"):
		addr := strings.TrimPrefix(path, "/account/")
		b, _ := json.Marshal(map[string]any{"addr": addr, "balance": a.st.Balance(addr)})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/token/"):
		addr := strings.TrimPrefix(path, "/token/")
		b, _ := json.Marshal(map[string]any{"addr": addr, "balance": a.st.TokenBalance(addr)})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	default:
		return &abci.QueryResponse{Code: 1, Log: "unknown query path", Height: a.st.Height}, nil
	}
}

// deliverTx executes one transaction against a staged copy of state,
// committing the copy only on success. A failed tx therefore mutates
// nothing, including on the fatal invariant-violation path.
func (a *SkillApp) deliverTx(txBytes []byte, now uint64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}

	staged, err := a.st.Clone()
	if err != nil {
		return errResult(errorsmod.Wrap(ErrInvariant, err.Error()))
	}

	events, err := a.routeTx(staged, now, env)
	if err != nil {
		a.logger.Debug("tx rejected", "type", env.Type, "err", err)
		return errResult(err)
	}

	a.st = staged
	return &abci.ExecTxResult{Code: 0, Events: events}
}

func (a *SkillApp) routeTx(st *state.State, now uint64, env codec.TxEnvelope) ([]abci.Event, error) {
	switch env.Type {
	case "bank/mint":
		var msg codec.BankMintTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad bank/mint value")
		}
		if msg.To == "" || msg.Amount == 0 {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "missing to/amount")
		}
		if err := st.Credit(msg.To, msg.Amount); err != nil {
			return nil, errorsmod.Wrap(ErrInvariant, err.Error())
		}
		return okEvent(EventTypeBankMinted, map[string]string{
			"to":     msg.To,
			"amount": fmt.Sprintf("%d", msg.Amount),
		}), nil

	case "bank/send":
		var msg codec.BankSendTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad bank/send value")
		}
		if msg.From == "" || msg.To == "" || msg.Amount == 0 {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "missing from/to/amount")
		}
		if err := st.Debit(msg.From, msg.Amount); err != nil {
			return nil, errorsmod.Wrap(ErrInsufficientFunds, err.Error())
		}
		if err := st.Credit(msg.To, msg.Amount); err != nil {
			return nil, errorsmod.Wrap(ErrInvariant, err.Error())
		}
		return okEvent(EventTypeBankSent, map[string]string{
			"from":   msg.From,
			"to":     msg.To,
			"amount": fmt.Sprintf("%d", msg.Amount),
		}), nil

	case "game/deploy":
		var msg codec.DeployTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad game/deploy value")
		}
		return a.applyDeploy(st, now, msg)

	case "game/commit":
		var msg codec.SubmitCommitTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad game/commit value")
		}
		return a.applySubmitCommit(st, now, msg)

	case "game/reveal":
		var msg codec.RevealChoiceTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad game/reveal value")
		}
		return a.applyRevealChoice(st, now, msg)

	case "game/predict":
		var msg codec.SubmitPredictionTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad game/predict value")
		}
		return a.applySubmitPrediction(st, msg)

	case "game/reset":
		var msg codec.ResetTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad game/reset value")
		}
		return a.applyReset(st, now, msg)

	case "game/checkpoint":
		var msg codec.CheckpointTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad game/checkpoint value")
		}
		return a.applyCheckpoint(st, now, msg)

	case "game/claim_stake":
		var msg codec.ClaimStakeTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad game/claim_stake value")
		}
		return a.applyClaimStake(st, now, msg)

	case "game/claim_token":
		var msg codec.ClaimTokenTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad game/claim_token value")
		}
		return a.applyClaimToken(st, now, msg)

	case "game/close_round":
		var msg codec.CloseRoundTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidRequest, "bad game/close_round value")
		}
		return a.applyCloseRound(st, now, msg)

	default:
		return nil, errorsmod.Wrapf(ErrInvalidRequest, "unknown tx type: %s", env.Type)
	}
}

func errResult(err error) *abci.ExecTxResult {
	codespace, code, logMsg := errorsmod.ABCIInfo(err, false)
	return &abci.ExecTxResult{Code: code, Codespace: codespace, Log: logMsg}
}

func okEvent(typ string, attrs map[string]string) []abci.Event {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return []abci.Event{ev}
}
