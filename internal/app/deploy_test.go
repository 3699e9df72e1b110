package app

import (
	"math/bits"
	"testing"

	"github.com/Jpatching/skill-mine/internal/state"
)

func fund(t *testing.T, a *SkillApp, addr string, amount uint64) {
	t.Helper()
	mustOk(t, a.deliverTx(txBytes(t, "bank/mint", map[string]any{"to": addr, "amount": amount}), 1))
}

func deploy(t *testing.T, a *SkillApp, now uint64, authority string, roundID uint64, amount uint64, mask uint32) {
	t.Helper()
	mustOk(t, a.deliverTx(txBytes(t, "game/deploy", map[string]any{
		"authority": authority, "roundId": roundID, "amount": amount, "squares": mask,
	}), now))
}

func TestDeployOpensRoundAndFreezesSchedule(t *testing.T) {
	a := newTestApp(t)
	fund(t, a, "alice", 1_000_000)

	res := mustOk(t, a.deliverTx(txBytes(t, "game/deploy", map[string]any{
		"authority": "alice", "roundId": 1, "amount": 100, "squares": 1 << 5,
	}), 10))
	ev := findEvent(res.Events, EventTypeStakeDeployed)
	if ev == nil {
		t.Fatal("missing StakeDeployed event")
	}
	if got := parseU64(t, attr(ev, "commence_at")); got != 10+state.DeployPhaseTicks {
		t.Fatalf("commit start = %d, want %d", got, 10+state.DeployPhaseTicks)
	}

	r := a.st.Rounds[1]
	if r == nil {
		t.Fatal("round not created")
	}
	if r.CommitStart != 70 || r.RevealStart != 100 {
		t.Fatalf("schedule = (%d, %d), want (70, 100)", r.CommitStart, r.RevealStart)
	}
	if a.st.Board.EndTick != 130 {
		t.Fatalf("board end tick = %d, want 130", a.st.Board.EndTick)
	}
	if r.ExpiresAt != 130+state.GracePeriodTicks {
		t.Fatalf("expires at = %d", r.ExpiresAt)
	}
	if r.RentPayer != "alice" {
		t.Fatalf("rent payer = %q", r.RentPayer)
	}

	// A second deploy joins the same schedule.
	fund(t, a, "bob", 1_000_000)
	deploy(t, a, 20, "bob", 1, 200, 1<<5)
	if a.st.Rounds[1].CommitStart != 70 {
		t.Fatal("second deploy moved the schedule")
	}
}

func TestDeployMovesFundsAndEscrowsFee(t *testing.T) {
	a := newTestApp(t)
	fund(t, a, "alice", 1_000_000)

	// The amount lands on each selected square: 3 squares collect 300.
	deploy(t, a, 1, "alice", 1, 100, (1<<3)|(1<<7)|(1<<11))

	if got := a.st.Balance("alice"); got != 1_000_000-checkpointFee-300 {
		t.Fatalf("alice balance = %d", got)
	}
	if got := a.st.Balance(escrowAccount); got != checkpointFee {
		t.Fatalf("escrow = %d, want %d", got, checkpointFee)
	}
	if got := a.st.Balance(roundPoolAccount(1)); got != 300 {
		t.Fatalf("round pool = %d, want 300", got)
	}

	m := a.st.Miners["alice"]
	for _, sq := range []int{3, 7, 11} {
		if m.Deployed[sq] != 100 {
			t.Fatalf("square %d stake = %d, want 100", sq, m.Deployed[sq])
		}
	}
	r := a.st.Rounds[1]
	if r.TotalDeployed != 300 || r.Count[3] != 1 {
		t.Fatalf("round tallies off: total=%d count3=%d", r.TotalDeployed, r.Count[3])
	}

	// The fee is escrowed once; a top-up deploy pays stake only.
	deploy(t, a, 2, "alice", 1, 100, 1<<20)
	if got := a.st.Balance(escrowAccount); got != checkpointFee {
		t.Fatalf("escrow after top-up = %d, want %d", got, checkpointFee)
	}
}

func TestDeploySkipsFundedSquaresAndChargesTheRest(t *testing.T) {
	a := newTestApp(t)
	fund(t, a, "alice", 1_000_000)

	deploy(t, a, 1, "alice", 1, 100, (1<<0)|(1<<1))
	if got := a.st.Balance(roundPoolAccount(1)); got != 200 {
		t.Fatalf("round pool = %d, want 200", got)
	}

	// Square 1 is already funded: only square 2 is staked and charged.
	deploy(t, a, 2, "alice", 1, 100, (1<<1)|(1<<2))
	if got := a.st.Balance(roundPoolAccount(1)); got != 300 {
		t.Fatalf("round pool = %d, want 300", got)
	}
	if got := a.st.Balance("alice"); got != 1_000_000-checkpointFee-300 {
		t.Fatalf("alice balance = %d", got)
	}

	m := a.st.Miners["alice"]
	if m.Deployed[1] != 100 || m.Deployed[2] != 100 {
		t.Fatalf("square stakes = %d/%d, want 100/100", m.Deployed[1], m.Deployed[2])
	}
	if a.st.Rounds[1].Count[1] != 1 {
		t.Fatal("skipped square double counted")
	}
}

func TestDeployCumulativeIntervalsTile(t *testing.T) {
	a := newTestApp(t)
	for _, who := range []string{"alice", "bob", "carol"} {
		fund(t, a, who, 1_000_000)
	}
	deploy(t, a, 1, "alice", 1, 100, 1<<5)
	deploy(t, a, 2, "bob", 1, 200, 1<<5)
	deploy(t, a, 3, "carol", 1, 300, 1<<5)

	// Intervals [cumulative, cumulative+deposit) partition [0, 600).
	type iv struct{ lo, hi uint64 }
	var ivs []iv
	for _, who := range []string{"alice", "bob", "carol"} {
		m := a.st.Miners[who]
		ivs = append(ivs, iv{m.Cumulative[5], m.Cumulative[5] + m.Deployed[5]})
	}
	if ivs[0] != (iv{0, 100}) || ivs[1] != (iv{100, 300}) || ivs[2] != (iv{300, 600}) {
		t.Fatalf("intervals do not tile: %+v", ivs)
	}
}

func TestDeployValidation(t *testing.T) {
	a := newTestApp(t)
	fund(t, a, "alice", 1_000_000)

	mustFail(t, a.deliverTx(txBytes(t, "game/deploy", map[string]any{
		"authority": "alice", "roundId": 2, "amount": 100, "squares": 1,
	}), 1), ErrStaleRound)

	mustFail(t, a.deliverTx(txBytes(t, "game/deploy", map[string]any{
		"authority": "alice", "roundId": 1, "amount": 0, "squares": 1,
	}), 1), ErrInvalidRequest)

	mustFail(t, a.deliverTx(txBytes(t, "game/deploy", map[string]any{
		"authority": "alice", "roundId": 1, "amount": 100, "squares": 1 << 25,
	}), 1), ErrInvalidSquare)

	mustFail(t, a.deliverTx(txBytes(t, "game/deploy", map[string]any{
		"authority": "poor", "roundId": 1, "amount": 100, "squares": 1,
	}), 1), ErrInsufficientFunds)
}

func TestDeployClosesWithCommitPhase(t *testing.T) {
	a := newTestApp(t)
	fund(t, a, "alice", 1_000_000)
	fund(t, a, "bob", 1_000_000)

	deploy(t, a, 1, "alice", 1, 100, 1<<5)

	// Commit phase opened at tick 61.
	mustFail(t, a.deliverTx(txBytes(t, "game/deploy", map[string]any{
		"authority": "bob", "roundId": 1, "amount": 100, "squares": 1 << 5,
	}), 61), ErrWrongPhase)
}

func TestRedeployRequiresSettledRound(t *testing.T) {
	a := newTestApp(t)
	fund(t, a, "alice", 2_000_000)

	deploy(t, a, 1, "alice", 1, 100, 1<<5)
	mustOk(t, a.deliverTx(txBytes(t, "game/reset", map[string]any{"caller": "anyone"}), 130))

	mustFail(t, a.deliverTx(txBytes(t, "game/deploy", map[string]any{
		"authority": "alice", "roundId": 2, "amount": 100, "squares": 1 << 5,
	}), 131), ErrUnsettledRound)

	mustOk(t, a.deliverTx(txBytes(t, "game/checkpoint", map[string]any{
		"caller": "alice", "authority": "alice", "roundId": 1,
	}), 131))

	deploy(t, a, 132, "alice", 2, 100, 1<<5)
	if a.st.Miners["alice"].RoundID != 2 {
		t.Fatal("miner not moved to round 2")
	}
}

func TestRandomStrategyMask(t *testing.T) {
	for count := uint8(1); count <= 25; count++ {
		mask := randomMask("alice", 7, count)
		if mask >= 1<<25 {
			t.Fatalf("mask %#x out of range", mask)
		}
		if got := bits.OnesCount32(mask); got != int(count) {
			t.Fatalf("mask has %d squares, want %d", got, count)
		}
	}

	// Deterministic for identical inputs, so replays agree.
	if randomMask("alice", 7, 5) != randomMask("alice", 7, 5) {
		t.Fatal("random mask not deterministic")
	}
	if randomMask("alice", 7, 5) == randomMask("bob", 7, 5) &&
		randomMask("alice", 8, 5) == randomMask("bob", 8, 5) {
		t.Fatal("random mask ignores its inputs")
	}
}

func TestRandomStrategyDeploy(t *testing.T) {
	a := newTestApp(t)
	fund(t, a, "alice", 1_000_000)

	mustOk(t, a.deliverTx(txBytes(t, "game/deploy", map[string]any{
		"authority": "alice", "roundId": 1, "amount": 100, "strategy": "random", "count": 5,
	}), 1))

	m := a.st.Miners["alice"]
	var squares int
	for _, d := range m.Deployed {
		if d > 0 {
			if d != 100 {
				t.Fatalf("square stake = %d, want the full amount on each", d)
			}
			squares++
		}
	}
	if squares != 5 {
		t.Fatalf("deployed on %d squares, want 5", squares)
	}
	if got := a.st.Balance(roundPoolAccount(1)); got != 500 {
		t.Fatalf("round pool = %d, want 500", got)
	}
}
