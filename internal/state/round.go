package state

import (
	"encoding/binary"
	"math/bits"
)

// Round timing, in ticks (block heights).
const (
	DeployPhaseTicks uint64 = 60
	CommitPhaseTicks uint64 = 30
	RevealPhaseTicks uint64 = 30

	// GracePeriodTicks is how long after a round ends its record stays
	// claimable before unsettled miners forfeit.
	GracePeriodTicks uint64 = 216_000

	// BotWindowTicks is the tail of the grace period during which any
	// caller may checkpoint a miner and collect the escrowed fee.
	BotWindowTicks uint64 = 108_000
)

// SplitMarker is the TopMiner sentinel for rounds whose token reward is
// split pro-rata instead of awarded to a single sampled winner.
const SplitMarker = "skillmine/split"

// Round is the per-round ledger. One round is active at a time; settled
// rounds are retained until they expire and are closed.
type Round struct {
	ID uint64 `json:"id"`

	// Stake deployed and miner count per square. Written only during the
	// deploy phase.
	Deployed [25]uint64 `json:"deployed"`
	Count    [25]uint64 `json:"count"`

	// OutcomeSeed is sampled from the block hash when the round is
	// finalized. Empty means "not yet finalized".
	OutcomeSeed []byte `json:"outcomeSeed,omitempty"`

	// WinningSquare is stored directly at finalize time (argmax of
	// Deployed, ties toward the lowest index) so the outcome stays
	// unambiguous even for degenerate seeds.
	WinningSquare uint8 `json:"winningSquare"`

	// Phase boundaries, fixed by the first deploy of the round.
	CommitStart uint64 `json:"commitStart"`
	RevealStart uint64 `json:"revealStart"`
	ExpiresAt   uint64 `json:"expiresAt"`

	// Bonus squares derived from the previous round's seed. Reserved:
	// settlement does not read them yet.
	BonusSquares [3]uint8 `json:"bonusSquares"`

	Motherlode     uint64 `json:"motherlode"`
	TopMiner       string `json:"topMiner,omitempty"`
	TopMinerReward uint64 `json:"topMinerReward"`

	TotalDeployed uint64 `json:"totalDeployed"`
	TotalVaulted  uint64 `json:"totalVaulted"`
	TotalWinnings uint64 `json:"totalWinnings"`

	// Reveal tallies. Written only during the reveal phase.
	RevealedCount [25]uint64 `json:"revealedCount"`
	TotalReveals  uint64     `json:"totalReveals"`

	// RentPayer funded the round record and may close it after expiry.
	RentPayer string `json:"rentPayer,omitempty"`
}

func (r *Round) Finalized() bool {
	for _, b := range r.OutcomeSeed {
		if b != 0 {
			return true
		}
	}
	return false
}

func (r *Round) IsDeployPhase(now uint64) bool {
	return now < r.CommitStart
}

func (r *Round) IsCommitPhase(now uint64) bool {
	return now >= r.CommitStart && now < r.RevealStart
}

func (r *Round) IsRevealPhase(now uint64) bool {
	return now >= r.RevealStart
}

// RNG folds the outcome seed into a single uint64 used for the split,
// motherlode and top-miner draws. Returns false if the round has not
// been finalized.
func (r *Round) RNG() (uint64, bool) {
	if !r.Finalized() || len(r.OutcomeSeed) < 32 {
		return 0, false
	}
	v := binary.LittleEndian.Uint64(r.OutcomeSeed[0:8])
	v ^= binary.LittleEndian.Uint64(r.OutcomeSeed[8:16])
	v ^= binary.LittleEndian.Uint64(r.OutcomeSeed[16:24])
	v ^= binary.LittleEndian.Uint64(r.OutcomeSeed[24:32])
	return v, true
}

// WinningSquareArgmax returns the square with the most stake, ties broken
// toward the lowest index.
func (r *Round) WinningSquareArgmax() uint8 {
	best := uint8(0)
	for i := 1; i < 25; i++ {
		if r.Deployed[i] > r.Deployed[best] {
			best = uint8(i)
		}
	}
	return best
}

// CalculateTotalWinnings sums the stake on every losing square.
func (r *Round) CalculateTotalWinnings(winningSquare uint8) uint64 {
	var total uint64
	for i, deployed := range r.Deployed {
		if uint8(i) != winningSquare {
			total += deployed
		}
	}
	return total
}

// IsSplitReward decides the lottery mode: roughly half of all rounds
// split the token reward pro-rata instead of sampling one winner.
func (r *Round) IsSplitReward(rng uint64) bool {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], bits.Reverse64(rng))
	v := binary.LittleEndian.Uint16(buf[0:2])
	v ^= binary.LittleEndian.Uint16(buf[2:4])
	v ^= binary.LittleEndian.Uint16(buf[4:6])
	v ^= binary.LittleEndian.Uint16(buf[6:8])
	return v%2 == 0
}

func (r *Round) DidHitMotherlode(rng uint64) bool {
	return bits.Reverse64(rng)%625 == 0
}

// TopMinerSample draws a point in [0, Deployed[winningSquare]). A miner
// wins the whole token reward iff the point falls inside the interval
// [cumulative, cumulative+deposit) captured at deploy time.
func (r *Round) TopMinerSample(rng uint64, winningSquare uint8) uint64 {
	if r.Deployed[winningSquare] == 0 {
		return 0
	}
	return bits.Reverse64(rng) % r.Deployed[winningSquare]
}

// WinningSquareFromReveals is the reveal-based argmax. Settlement does
// not consult it; it is surfaced via query only.
func (r *Round) WinningSquareFromReveals() uint8 {
	if r.TotalReveals == 0 {
		return r.WinningSquareArgmax()
	}
	best := uint8(0)
	for i := 1; i < 25; i++ {
		if r.RevealedCount[i] > r.RevealedCount[best] {
			best = uint8(i)
		}
	}
	return best
}

// ContrarianBonus scores how unpopular the winning square was among
// revealed choices, in hundredths (100 = no bonus, 148 = max). Not read
// by settlement; surfaced via query only.
func (r *Round) ContrarianBonus(winningSquare uint8) uint64 {
	if r.TotalReveals == 0 {
		return 100
	}
	popularity := r.RevealedCount[winningSquare]
	pct := popularity * 100 / r.TotalReveals
	bonus := uint64(0)
	if pct < 100 {
		bonus = 100 - pct
	}
	if bonus > 48 {
		bonus = 48
	}
	return 100 + bonus
}

// GenerateBonusSquares derives three distinct squares from a round seed.
func GenerateBonusSquares(seed []byte) [3]uint8 {
	if len(seed) < 17 {
		return [3]uint8{}
	}
	s1 := seed[0] % 25
	s2 := seed[8] % 25
	s3 := seed[16] % 25

	if s2 == s1 {
		s2 = (s2 + 1) % 25
	}
	if s3 == s1 || s3 == s2 {
		s3 = (s3 + 1) % 25
	}
	if s3 == s1 || s3 == s2 {
		s3 = (s3 + 1) % 25
	}
	return [3]uint8{s1, s2, s3}
}

func (r *Round) IsBonusSquare(square uint8) bool {
	for _, s := range r.BonusSquares {
		if s == square {
			return true
		}
	}
	return false
}
