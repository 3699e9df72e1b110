package state

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"math/bits"

	sdkmath "cosmossdk.io/math"
)

const (
	// NoPrediction is the Prediction sentinel for "none".
	NoPrediction uint8 = 255

	// PointsPerWin is the skill score awarded per correct prediction.
	PointsPerWin uint64 = 100

	// MaxSkillMultiplier caps the settlement boost at 1.50x.
	MaxSkillMultiplier uint64 = 150

	// SaltSize is the byte length of a reveal salt.
	SaltSize = 16

	// CommitmentSize is the byte length of a commitment hash.
	CommitmentSize = 32
)

// Miner is the durable per-identity ledger. Created on first deploy,
// never deleted.
type Miner struct {
	Authority string `json:"authority"`

	// Stake per square for the round in progress, and the aggregate per
	// square as it stood before this miner's own deposit (the lottery
	// interval lower bound).
	Deployed   [25]uint64 `json:"deployed"`
	Cumulative [25]uint64 `json:"cumulative"`

	// RoundID is the round this miner is staked in; CheckpointID is the
	// last round settled. Deploying into a new round requires the two to
	// match first.
	RoundID      uint64 `json:"roundId"`
	CheckpointID uint64 `json:"checkpointId"`

	// CheckpointFee is escrowed once per round so settlement is
	// self-funded even if the miner goes away.
	CheckpointFee uint64 `json:"checkpointFee"`

	// RewardsFactor is the treasury accumulator value last observed by
	// this miner (pull-based token accrual).
	RewardsFactor sdkmath.LegacyDec `json:"rewardsFactor"`

	RewardsStake uint64 `json:"rewardsStake"`
	RewardsToken uint64 `json:"rewardsToken"`
	RefinedToken uint64 `json:"refinedToken"`

	LifetimeStake uint64 `json:"lifetimeStake"`
	LifetimeToken uint64 `json:"lifetimeToken"`

	LastClaimStakeAt uint64 `json:"lastClaimStakeAt,omitempty"`
	LastClaimTokenAt uint64 `json:"lastClaimTokenAt,omitempty"`

	// Commit-reveal state for the round in progress.
	Commitment      []byte `json:"commitment,omitempty"`
	CommitmentRound uint64 `json:"commitmentRound,omitempty"`
	RevealedRound   uint64 `json:"revealedRound,omitempty"`
	RevealedSquare  uint8  `json:"revealedSquare,omitempty"`

	// Skill state. SkillScore never decreases; Streak resets on a miss.
	SkillScore      uint64 `json:"skillScore"`
	Prediction      uint8  `json:"prediction"`
	PredictionRound uint64 `json:"predictionRound,omitempty"`
	Streak          uint16 `json:"streak"`
	ChallengeCount  uint64 `json:"challengeCount"`
	ChallengeWins   uint64 `json:"challengeWins"`
}

func NewMiner(authority string) *Miner {
	return &Miner{
		Authority:     authority,
		RewardsFactor: sdkmath.LegacyZeroDec(),
		Prediction:    NoPrediction,
	}
}

// normalize repairs zero values after a JSON round trip so arithmetic on
// RewardsFactor never hits a nil inner Int.
func (m *Miner) normalize() {
	if m.RewardsFactor.IsNil() {
		m.RewardsFactor = sdkmath.LegacyZeroDec()
	}
}

// ---- Commit-reveal ----

// CommitmentDigest binds (square, salt) to an identity:
// sha256(square || salt || authority).
func CommitmentDigest(square uint8, salt []byte, authority string) []byte {
	h := sha256.New()
	h.Write([]byte{square})
	h.Write(salt)
	h.Write([]byte(authority))
	return h.Sum(nil)
}

func (m *Miner) HasCommitmentForRound(roundID uint64) bool {
	return m.CommitmentRound == roundID && len(m.Commitment) == CommitmentSize
}

func (m *Miner) SubmitCommitment(commitment []byte, roundID uint64) {
	m.Commitment = append([]byte(nil), commitment...)
	m.CommitmentRound = roundID
}

func (m *Miner) HasRevealedForRound(roundID uint64) bool {
	return m.RevealedRound == roundID
}

func (m *Miner) VerifyCommitment(square uint8, salt []byte) bool {
	if len(m.Commitment) != CommitmentSize {
		return false
	}
	return bytes.Equal(CommitmentDigest(square, salt, m.Authority), m.Commitment)
}

func (m *Miner) RevealChoice(square uint8, roundID uint64) {
	m.RevealedRound = roundID
	m.RevealedSquare = square
}

// ---- Token accrual (pull model) ----

// UpdateRewards pulls any accrual owed since the last observed treasury
// factor, weighted by the miner's outstanding token balance, then
// advances the observed factor.
func (m *Miner) UpdateRewards(t *Treasury) error {
	m.normalize()
	t.normalize()

	if t.MinerRewardsFactor.GT(m.RewardsFactor) {
		delta := t.MinerRewardsFactor.Sub(m.RewardsFactor)
		if delta.IsNegative() {
			return fmt.Errorf("accumulated rewards delta is negative")
		}
		personal := delta.MulInt(sdkmath.NewIntFromUint64(m.RewardsToken)).TruncateInt()
		if !personal.IsUint64() {
			return fmt.Errorf("accrued token rewards overflow uint64")
		}
		p := personal.Uint64()
		var err error
		if m.RefinedToken, err = addU64(m.RefinedToken, p, "refined token balance"); err != nil {
			return err
		}
		if m.LifetimeToken, err = addU64(m.LifetimeToken, p, "lifetime token total"); err != nil {
			return err
		}
	}

	m.RewardsFactor = t.MinerRewardsFactor
	return nil
}

// ClaimStake drains the claimable stake balance.
func (m *Miner) ClaimStake(now uint64) uint64 {
	amount := m.RewardsStake
	m.RewardsStake = 0
	m.LastClaimStakeAt = now
	return amount
}

// ClaimToken drains both token balances, skimming a 10% fee off the
// pooled portion and redistributing it through the treasury accumulator.
// The fee is computed on the balance as it stood before zeroing, and the
// accumulator is bumped before the caller's own factor advances, so the
// caller cannot recapture a slice of their own fee.
func (m *Miner) ClaimToken(now uint64, t *Treasury) (uint64, error) {
	if err := m.UpdateRewards(t); err != nil {
		return 0, err
	}

	refined := m.RefinedToken
	rewards := m.RewardsToken
	amount, err := addU64(refined, rewards, "claimable token total")
	if err != nil {
		return 0, err
	}
	m.RefinedToken = 0
	m.RewardsToken = 0

	if t.TotalUnclaimed < rewards {
		return 0, fmt.Errorf("treasury unclaimed pool %d below claimed rewards %d", t.TotalUnclaimed, rewards)
	}
	t.TotalUnclaimed -= rewards
	if t.TotalRefined < refined {
		return 0, fmt.Errorf("treasury refined pool %d below claimed refined %d", t.TotalRefined, refined)
	}
	t.TotalRefined -= refined
	m.LastClaimTokenAt = now

	if t.TotalUnclaimed > 0 {
		fee := rewards / 10
		amount -= fee
		feeShare := sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(fee)).
			QuoInt(sdkmath.NewIntFromUint64(t.TotalUnclaimed))
		t.MinerRewardsFactor = t.MinerRewardsFactor.Add(feeShare)
		if t.TotalRefined, err = addU64(t.TotalRefined, fee, "treasury refined pool"); err != nil {
			return 0, err
		}
		if m.LifetimeToken < fee {
			return 0, fmt.Errorf("lifetime token total %d below claim fee %d", m.LifetimeToken, fee)
		}
		m.LifetimeToken -= fee
	}

	return amount, nil
}

// ---- Skill ----

// CalculateSkillMultiplier is a pure function of (SkillScore, Streak),
// in hundredths: base 100, +5 per order of magnitude of score, +2 per
// streak up to 10, capped at 150.
func (m *Miner) CalculateSkillMultiplier() uint64 {
	base := uint64(100)

	var scoreBonus uint64
	if m.SkillScore > 0 {
		logApprox := uint64(64-bits.LeadingZeros64(m.SkillScore)) * 3 / 10
		scoreBonus = logApprox * 5
	}

	streak := uint64(m.Streak)
	if streak > 10 {
		streak = 10
	}
	streakBonus := streak * 2

	total := base + scoreBonus + streakBonus
	if total > MaxSkillMultiplier {
		return MaxSkillMultiplier
	}
	return total
}

func (m *Miner) HasPredictionForRound(roundID uint64) bool {
	return m.PredictionRound == roundID && m.Prediction != NoPrediction
}

func (m *Miner) SubmitPrediction(square uint8, roundID uint64) {
	m.Prediction = square
	m.PredictionRound = roundID
	m.ChallengeCount++
}

// EvaluatePrediction scores the stored prediction against the finalized
// winning square, clears it, and returns the multiplier to apply to the
// round's token payout. With no prediction stored for the round the
// streak resets and the multiplier is neutral.
func (m *Miner) EvaluatePrediction(winningSquare uint8, roundID uint64) uint64 {
	if m.PredictionRound != roundID || m.Prediction == NoPrediction {
		m.Streak = 0
		return 100
	}

	if m.Prediction == winningSquare {
		m.SkillScore += PointsPerWin
		m.Streak++
		m.ChallengeWins++
	} else {
		m.Streak = 0
	}

	m.Prediction = NoPrediction

	return m.CalculateSkillMultiplier()
}

func addU64(a, b uint64, field string) (uint64, error) {
	if a > ^uint64(0)-b {
		return 0, fmt.Errorf("%s overflows uint64", field)
	}
	return a + b, nil
}
