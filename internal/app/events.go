package app

const (
	EventTypeBankMinted = "BankMinted"
	EventTypeBankSent   = "BankSent"

	EventTypeStakeDeployed       = "StakeDeployed"
	EventTypeCommitSubmitted     = "CommitSubmitted"
	EventTypeChoiceRevealed      = "ChoiceRevealed"
	EventTypePredictionSubmitted = "PredictionSubmitted"

	EventTypeRoundFinalized = "RoundFinalized"
	EventTypeRoundClosed    = "RoundClosed"

	EventTypeCheckpointed       = "Checkpointed"
	EventTypeCheckpointDeferred = "CheckpointDeferred"
	EventTypeRewardsForfeited   = "RewardsForfeited"

	EventTypeStakeClaimed = "StakeClaimed"
	EventTypeTokenClaimed = "TokenClaimed"
)
