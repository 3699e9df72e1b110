package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	sdkmath "cosmossdk.io/math"
)

// Board is the singleton round cursor. StartTick/EndTick are MaxUint64
// until the active round receives its first deploy.
type Board struct {
	RoundID   uint64 `json:"roundId"`
	StartTick uint64 `json:"startTick"`
	EndTick   uint64 `json:"endTick"`

	// LastSeed is the previous round's outcome seed; it feeds the next
	// round's bonus squares.
	LastSeed []byte `json:"lastSeed,omitempty"`
}

// Treasury holds the global token-reward accumulator and pool counters.
// MinerRewardsFactor only ever increases; each miner remembers the value
// it last observed, which is what makes claim-fee redistribution O(1).
type Treasury struct {
	// Balance mirrors the vault account: admin fees and swept pools.
	Balance            uint64            `json:"balance"`
	Motherlode         uint64            `json:"motherlode"`
	MinerRewardsFactor sdkmath.LegacyDec `json:"minerRewardsFactor"`
	TotalUnclaimed     uint64            `json:"totalUnclaimed"`
	TotalRefined       uint64            `json:"totalRefined"`
}

func (t *Treasury) normalize() {
	if t.MinerRewardsFactor.IsNil() {
		t.MinerRewardsFactor = sdkmath.LegacyZeroDec()
	}
}

type State struct {
	Height int64 `json:"height"`

	Board    Board    `json:"board"`
	Treasury Treasury `json:"treasury"`

	// Stake-currency and token-currency account balances.
	Accounts      map[string]uint64 `json:"accounts"`
	TokenAccounts map[string]uint64 `json:"tokenAccounts,omitempty"`

	Rounds map[uint64]*Round `json:"rounds"`
	Miners map[string]*Miner `json:"miners"`

	// LastBlockHash is the entropy source sampled when a round is
	// finalized; refreshed every block.
	LastBlockHash []byte `json:"lastBlockHash,omitempty"`
}

func NewState() *State {
	return &State{
		Height: 0,
		Board: Board{
			RoundID:   1,
			StartTick: math.MaxUint64,
			EndTick:   math.MaxUint64,
		},
		Treasury: Treasury{
			MinerRewardsFactor: sdkmath.LegacyZeroDec(),
		},
		Accounts:      map[string]uint64{},
		TokenAccounts: map[string]uint64{},
		Rounds:        map[uint64]*Round{},
		Miners:        map[string]*Miner{},
	}
}

func (s *State) normalize() {
	if s.Accounts == nil {
		s.Accounts = map[string]uint64{}
	}
	if s.TokenAccounts == nil {
		s.TokenAccounts = map[string]uint64{}
	}
	if s.Rounds == nil {
		s.Rounds = map[uint64]*Round{}
	}
	if s.Miners == nil {
		s.Miners = map[string]*Miner{}
	}
	if s.Board.RoundID == 0 {
		s.Board.RoundID = 1
		s.Board.StartTick = math.MaxUint64
		s.Board.EndTick = math.MaxUint64
	}
	s.Treasury.normalize()
	for _, m := range s.Miners {
		m.normalize()
	}
}

func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.normalize()
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	out.normalize()
	return &out, nil
}

// AppHash hashes a normalized view of state. encoding/json does not
// guarantee map key order, so maps are flattened into sorted slices
// first.
func (s *State) AppHash() []byte {
	type accountKV struct {
		Addr    string `json:"addr"`
		Balance uint64 `json:"balance"`
	}
	type roundKV struct {
		ID    uint64 `json:"id"`
		Round *Round `json:"round"`
	}
	type minerKV struct {
		Authority string `json:"authority"`
		Miner     *Miner `json:"miner"`
	}

	sortAccounts := func(m map[string]uint64) []accountKV {
		out := make([]accountKV, 0, len(m))
		for k, v := range m {
			out = append(out, accountKV{Addr: k, Balance: v})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
		return out
	}

	rounds := make([]roundKV, 0, len(s.Rounds))
	for id, r := range s.Rounds {
		rounds = append(rounds, roundKV{ID: id, Round: r})
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].ID < rounds[j].ID })

	miners := make([]minerKV, 0, len(s.Miners))
	for addr, m := range s.Miners {
		miners = append(miners, minerKV{Authority: addr, Miner: m})
	}
	sort.Slice(miners, func(i, j int) bool { return miners[i].Authority < miners[j].Authority })

	normalized := struct {
		Height        int64       `json:"height"`
		Board         Board       `json:"board"`
		Treasury      Treasury    `json:"treasury"`
		Accounts      []accountKV `json:"accounts"`
		TokenAccounts []accountKV `json:"tokenAccounts"`
		Rounds        []roundKV   `json:"rounds"`
		Miners        []minerKV   `json:"miners"`
		LastBlockHash []byte      `json:"lastBlockHash,omitempty"`
	}{
		Height:        s.Height,
		Board:         s.Board,
		Treasury:      s.Treasury,
		Accounts:      sortAccounts(s.Accounts),
		TokenAccounts: sortAccounts(s.TokenAccounts),
		Rounds:        rounds,
		Miners:        miners,
		LastBlockHash: s.LastBlockHash,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// ---- Bank (stake currency) ----

func (s *State) Balance(addr string) uint64 {
	return s.Accounts[addr]
}

func (s *State) Credit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal > ^uint64(0)-amount {
		return fmt.Errorf("balance overflow: have=%d add=%d", bal, amount)
	}
	s.Accounts[addr] = bal + amount
	return nil
}

func (s *State) Debit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal < amount {
		return fmt.Errorf("insufficient funds: have=%d need=%d", bal, amount)
	}
	s.Accounts[addr] = bal - amount
	return nil
}

// ---- Bank (token currency) ----

func (s *State) TokenBalance(addr string) uint64 {
	return s.TokenAccounts[addr]
}

func (s *State) CreditToken(addr string, amount uint64) error {
	bal := s.TokenAccounts[addr]
	if bal > ^uint64(0)-amount {
		return fmt.Errorf("token balance overflow: have=%d add=%d", bal, amount)
	}
	s.TokenAccounts[addr] = bal + amount
	return nil
}
