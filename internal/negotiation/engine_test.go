package negotiation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/agrihub/internal/workitem"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func fresh(base float64) Negotiation {
	return GetOrCreate(nil, Key(workitem.CategoryLabour, "j1"), base, workitem.RoleFarmer, t0)
}

func TestKeyNeverCollides(t *testing.T) {
	assert.Equal(t, "job:42", Key(workitem.CategoryLabour, "42"))
	assert.Equal(t, "machine:42", Key(workitem.CategoryMachine, "42"))
}

func TestGetOrCreateSynthesizesInitialOffer(t *testing.T) {
	n := fresh(500)

	require.Len(t, n.History, 1)
	assert.Equal(t, workitem.RoleFarmer, n.History[0].By)
	assert.Equal(t, 500.0, n.History[0].Amount)
	assert.Equal(t, "Initial offer", n.History[0].Message)
	assert.Equal(t, 0, n.Rounds)
	assert.Equal(t, StatusPending, n.Status)
	assert.Nil(t, n.FinalPrice)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	n, _ := CounterOffer(fresh(500), workitem.RoleLabourer, 550, "", t0.Add(time.Minute))

	again := GetOrCreate(&n, n.Key, 999, workitem.RoleOwner, t0.Add(time.Hour))
	assert.Equal(t, n, again)
	assert.Equal(t, 500.0, again.BasePrice)
}

func TestRoundCap(t *testing.T) {
	n := fresh(500)
	amounts := []float64{450, 480, 470}
	for i, a := range amounts {
		var ok bool
		n, ok = CounterOffer(n, workitem.RoleLabourer, a, "", t0.Add(time.Duration(i+1)*time.Minute))
		require.True(t, ok, "counter %d", i+1)
		assert.Equal(t, i+1, n.Rounds)
		assert.Equal(t, n.Rounds, len(n.History)-1)
	}

	after, ok := CounterOffer(n, workitem.RoleFarmer, 460, "", t0.Add(time.Hour))
	assert.False(t, ok)
	assert.Equal(t, 3, after.Rounds)
	assert.Len(t, after.History, 4)
	assert.False(t, IsOpenForCounter(after, t0.Add(time.Hour)))
}

func TestCounterOfferDoesNotMutateInput(t *testing.T) {
	n := fresh(500)
	next, ok := CounterOffer(n, workitem.RoleLabourer, 520, "fuel costs", t0.Add(time.Minute))
	require.True(t, ok)

	assert.Len(t, n.History, 1)
	assert.Len(t, next.History, 2)
	assert.Equal(t, "fuel costs", next.History[1].Message)
	assert.Equal(t, t0.Add(time.Minute), next.UpdatedAt)
	assert.Equal(t, t0, n.UpdatedAt)
}

func TestCounterOfferRejectsUnusableAmounts(t *testing.T) {
	for _, amount := range []float64{0, -10, math.NaN(), math.Inf(1)} {
		n, ok := CounterOffer(fresh(500), workitem.RoleLabourer, amount, "", t0)
		assert.False(t, ok, "amount %v", amount)
		assert.Equal(t, 0, n.Rounds)
	}
}

func TestSameAmountDoesNotAutoAccept(t *testing.T) {
	n, ok := CounterOffer(fresh(500), workitem.RoleLabourer, 500, "", t0)
	require.True(t, ok)
	assert.Equal(t, StatusPending, n.Status)
	assert.Nil(t, n.FinalPrice)
}

func TestAcceptLocksFinalPrice(t *testing.T) {
	n, _ := CounterOffer(fresh(700), workitem.RoleLabourer, 750, "", t0.Add(time.Minute))

	agreed, ok := Accept(n, t0.Add(2*time.Minute))
	require.True(t, ok)
	require.NotNil(t, agreed.FinalPrice)
	assert.Equal(t, 750.0, *agreed.FinalPrice)
	assert.Equal(t, StatusAgreed, agreed.Status)

	after, ok := CounterOffer(agreed, workitem.RoleFarmer, 850, "", t0.Add(3*time.Minute))
	assert.False(t, ok)
	assert.Equal(t, agreed.History, after.History)

	_, ok = Accept(agreed, t0.Add(4*time.Minute))
	assert.False(t, ok, "accept is one-way")
	_, ok = Reject(agreed, t0.Add(4*time.Minute))
	assert.False(t, ok)
}

func TestAcceptWithEmptyHistoryIsNoOp(t *testing.T) {
	n := Negotiation{Status: StatusPending}
	out, ok := Accept(n, t0)
	assert.False(t, ok)
	assert.Equal(t, StatusPending, out.Status)
}

func TestRejectIsTerminal(t *testing.T) {
	n, ok := Reject(fresh(500), t0.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, StatusRejected, n.Status)
	assert.Equal(t, t0.Add(time.Minute), n.UpdatedAt)

	_, ok = CounterOffer(n, workitem.RoleLabourer, 520, "", t0.Add(2*time.Minute))
	assert.False(t, ok)
	_, ok = Accept(n, t0.Add(2*time.Minute))
	assert.False(t, ok)
}

func TestExpiryIsNonDestructive(t *testing.T) {
	n, _ := CounterOffer(fresh(500), workitem.RoleLabourer, 450, "", t0)
	before := n.clone()
	now := t0.Add(7 * time.Hour)

	assert.True(t, IsExpired(n, now))
	assert.False(t, IsOpenForCounter(n, now))
	assert.Equal(t, before, n)

	assert.False(t, IsExpired(n, t0.Add(6*time.Hour)), "exactly six hours is not yet expired")
}

func TestAcceptAfterExpiryLocksBasePrice(t *testing.T) {
	n, _ := CounterOffer(fresh(500), workitem.RoleLabourer, 450, "", t0)
	now := t0.Add(7 * time.Hour)

	agreed, ok := DefaultPolicy.Accept(n, workitem.RoleFarmer, now)
	require.True(t, ok)
	assert.Equal(t, StatusAgreed, agreed.Status)
	require.NotNil(t, agreed.FinalPrice)
	assert.Equal(t, 500.0, *agreed.FinalPrice)
	assert.Equal(t, DefaultPolicy.View(n, now).CurrentPrice, *agreed.FinalPrice)

	last, _ := agreed.LastOffer()
	assert.Equal(t, 500.0, last.Amount)
	assert.Equal(t, workitem.RoleFarmer, last.By)
	assert.Equal(t, n.Rounds, agreed.Rounds, "restoring the base price is not a round")
	assert.Len(t, n.History, 2, "input untouched")
}

func TestPolicyAcceptBeforeExpiryTakesLastOffer(t *testing.T) {
	n, _ := CounterOffer(fresh(500), workitem.RoleLabourer, 450, "", t0)

	agreed, ok := DefaultPolicy.Accept(n, workitem.RoleFarmer, t0.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, 450.0, *agreed.FinalPrice)
	assert.Len(t, agreed.History, 2)
}

func TestAgreedNeverExpires(t *testing.T) {
	n, _ := Accept(fresh(500), t0)
	assert.False(t, IsExpired(n, t0.Add(48*time.Hour)))
}

func TestClassifyFairness(t *testing.T) {
	cases := []struct {
		base float64
		want Fairness
	}{
		{599, FairnessLow},
		{600, FairnessFair},
		{800, FairnessFair},
		{801, FairnessHigh},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyFairness(c.base), "base %v", c.base)
	}
}

func TestViewRestoresBasePriceWhenExpired(t *testing.T) {
	n, _ := CounterOffer(fresh(500), workitem.RoleLabourer, 450, "", t0)

	live := DefaultPolicy.View(n, t0.Add(time.Hour))
	assert.Equal(t, 450.0, live.CurrentPrice)
	assert.False(t, live.Expired)
	assert.Equal(t, 2, live.RoundsRemaining)
	assert.Equal(t, FairnessLow, live.Fairness)

	stale := DefaultPolicy.View(n, t0.Add(7*time.Hour))
	assert.True(t, stale.Expired)
	assert.False(t, stale.OpenForCounter)
	assert.Equal(t, 500.0, stale.CurrentPrice)
	assert.Len(t, stale.History, 2)
}

func TestCustomPolicyRoundCap(t *testing.T) {
	p := DefaultPolicy
	p.MaxRounds = 1
	n, ok := p.CounterOffer(fresh(500), workitem.RoleLabourer, 450, "", t0)
	require.True(t, ok)
	_, ok = p.CounterOffer(n, workitem.RoleFarmer, 470, "", t0)
	assert.False(t, ok)
}
