package app

import "fmt"

const (
	// Module accounts.
	escrowAccount = "skillmine/escrow"
	vaultAccount  = "skillmine/vault"

	// checkpointFee is escrowed once per round on a miner's first deploy
	// so crank callers can be paid for settling them.
	checkpointFee uint64 = 100_000

	// baseEmission is the token reward minted per round with non-zero
	// stake (9-decimal base units).
	baseEmission uint64 = 1_000_000_000

	// motherlodeShareDiv: 1/10 of each round's emission accrues to the
	// motherlode jackpot pool.
	motherlodeShareDiv uint64 = 10
)

func roundPoolAccount(roundID uint64) string {
	return fmt.Sprintf("skillmine/round/%d", roundID)
}
