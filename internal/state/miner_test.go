package state

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func TestCommitmentLifecycle(t *testing.T) {
	m := NewMiner("alice")
	salt := make([]byte, SaltSize)
	for i := range salt {
		salt[i] = byte(i)
	}

	require.False(t, m.HasCommitmentForRound(3))

	digest := CommitmentDigest(7, salt, "alice")
	require.Len(t, digest, CommitmentSize)
	m.SubmitCommitment(digest, 3)

	require.True(t, m.HasCommitmentForRound(3))
	require.False(t, m.HasCommitmentForRound(4))

	require.True(t, m.VerifyCommitment(7, salt))
	require.False(t, m.VerifyCommitment(8, salt))

	badSalt := append([]byte(nil), salt...)
	badSalt[0] ^= 1
	require.False(t, m.VerifyCommitment(7, badSalt))

	// The digest binds the authority, so another miner cannot replay it.
	other := NewMiner("bob")
	other.SubmitCommitment(digest, 3)
	require.False(t, other.VerifyCommitment(7, salt))

	m.RevealChoice(7, 3)
	require.True(t, m.HasRevealedForRound(3))
	require.Equal(t, uint8(7), m.RevealedSquare)
}

func TestSkillMultiplier(t *testing.T) {
	m := NewMiner("alice")

	require.Equal(t, uint64(100), m.CalculateSkillMultiplier())

	// Pure in its inputs: calling twice changes nothing.
	m.SkillScore = 800
	m.Streak = 3
	first := m.CalculateSkillMultiplier()
	require.Equal(t, first, m.CalculateSkillMultiplier())
	require.Greater(t, first, uint64(100))

	// Streak contributes 2 per win, capped at 10 wins.
	m.Streak = 4
	require.Equal(t, first+2, m.CalculateSkillMultiplier())
	m.Streak = 10
	atCap := m.CalculateSkillMultiplier()
	m.Streak = 50
	require.Equal(t, atCap, m.CalculateSkillMultiplier())

	// The overall multiplier never exceeds 1.50x.
	m.SkillScore = ^uint64(0)
	m.Streak = 65535
	require.Equal(t, MaxSkillMultiplier, m.CalculateSkillMultiplier())
}

func TestEvaluatePrediction(t *testing.T) {
	m := NewMiner("alice")

	// No prediction stored: streak resets, multiplier neutral.
	m.Streak = 5
	require.Equal(t, uint64(100), m.EvaluatePrediction(3, 1))
	require.Equal(t, uint16(0), m.Streak)

	m.SubmitPrediction(3, 2)
	require.True(t, m.HasPredictionForRound(2))
	mult := m.EvaluatePrediction(3, 2)
	require.Greater(t, mult, uint64(100))
	require.Equal(t, PointsPerWin, m.SkillScore)
	require.Equal(t, uint16(1), m.Streak)
	require.Equal(t, uint64(1), m.ChallengeWins)
	require.False(t, m.HasPredictionForRound(2))

	// Wrong guess clears the streak but keeps the score.
	m.SubmitPrediction(9, 3)
	m.EvaluatePrediction(3, 3)
	require.Equal(t, uint16(0), m.Streak)
	require.Equal(t, PointsPerWin, m.SkillScore)
	require.Equal(t, uint64(2), m.ChallengeCount)
}

func TestUpdateRewardsAccrues(t *testing.T) {
	tr := &Treasury{MinerRewardsFactor: sdkmath.LegacyZeroDec()}
	m := NewMiner("alice")
	m.RewardsToken = 1000

	// No factor movement, no accrual.
	require.NoError(t, m.UpdateRewards(tr))
	require.Equal(t, uint64(0), m.RefinedToken)

	// Factor advances by 0.5: a 1000-token holder accrues 500.
	tr.MinerRewardsFactor = sdkmath.LegacyNewDecWithPrec(5, 1)
	require.NoError(t, m.UpdateRewards(tr))
	require.Equal(t, uint64(500), m.RefinedToken)
	require.Equal(t, uint64(500), m.LifetimeToken)

	// Re-pulling at the same factor accrues nothing more.
	require.NoError(t, m.UpdateRewards(tr))
	require.Equal(t, uint64(500), m.RefinedToken)
}

func TestClaimTokenFeeRedistribution(t *testing.T) {
	tr := &Treasury{MinerRewardsFactor: sdkmath.LegacyZeroDec()}

	alice := NewMiner("alice")
	alice.RewardsToken = 1000
	alice.LifetimeToken = 1000

	bob := NewMiner("bob")
	bob.RewardsToken = 9000
	bob.LifetimeToken = 9000

	tr.TotalUnclaimed = 10_000

	// Alice claims 1000; the pool still holds bob's 9000, so a 10% fee
	// is skimmed and redistributed through the accumulator.
	got, err := alice.ClaimToken(50, tr)
	require.NoError(t, err)
	require.Equal(t, uint64(900), got)
	require.Equal(t, uint64(9000), tr.TotalUnclaimed)
	require.Equal(t, uint64(100), tr.TotalRefined)
	require.Equal(t, uint64(900), alice.LifetimeToken)
	require.Equal(t, uint64(50), alice.LastClaimTokenAt)

	// Bob picks up the fee: 9000 pooled plus 99 accrued (the factor is
	// truncated at 18 decimals, so one unit of dust stays refined).
	got, err = bob.ClaimToken(60, tr)
	require.NoError(t, err)
	require.Equal(t, uint64(9099), got)
	require.Equal(t, uint64(0), tr.TotalUnclaimed)
	require.Equal(t, uint64(1), tr.TotalRefined)
	require.Equal(t, uint64(9099), bob.LifetimeToken)
}

func TestClaimTokenLastClaimantPaysNoFee(t *testing.T) {
	tr := &Treasury{MinerRewardsFactor: sdkmath.LegacyZeroDec()}
	m := NewMiner("alice")
	m.RewardsToken = 700
	m.LifetimeToken = 700
	tr.TotalUnclaimed = 700

	got, err := m.ClaimToken(10, tr)
	require.NoError(t, err)
	require.Equal(t, uint64(700), got)
	require.Equal(t, uint64(700), m.LifetimeToken)
}

func TestClaimStakeDrains(t *testing.T) {
	m := NewMiner("alice")
	m.RewardsStake = 450

	require.Equal(t, uint64(450), m.ClaimStake(33))
	require.Equal(t, uint64(0), m.RewardsStake)
	require.Equal(t, uint64(33), m.LastClaimStakeAt)
	require.Equal(t, uint64(0), m.ClaimStake(34))
}
