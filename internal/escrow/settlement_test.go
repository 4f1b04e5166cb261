package escrow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/agrihub/internal/negotiation"
	"github.com/sudo-init-do/agrihub/internal/workitem"
)

func completedByLabour(t *testing.T, total float64) Payment {
	t.Helper()
	p, err := EnsurePayment(nil, labourJob(total), "lab-1", nil, t0)
	require.NoError(t, err)
	p, err = MarkCompletedByLabour(p, t0.Add(time.Hour))
	require.NoError(t, err)
	return p
}

func requireBlockedOn(t *testing.T, err error, role workitem.Role) {
	t.Helper()
	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked), "want BlockedError, got %v", err)
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, role, blocked.WaitingOn)
}

func TestMarkCompletedByLabourIssuesQR(t *testing.T) {
	p := completedByLabour(t, 500)

	assert.True(t, p.Settlement.WorkCompletedByLabour)
	assert.Equal(t, "QR-j1", p.Settlement.QRRef)
	assert.Equal(t, SettlementPendingFarmer, p.Settlement.NegotiationStatus)

	again, err := MarkCompletedByLabour(p, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, p, again)
}

func TestSettlementGate(t *testing.T) {
	p := completedByLabour(t, 500)

	_, err := MarkPaid(p, "qr", t0)
	requireBlockedOn(t, err, workitem.RoleFarmer)
	assert.ErrorIs(t, CanFinalize(p), ErrBlocked)

	p, err = ConfirmSatisfied(p, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Satisfied, p.Settlement.FarmerSatisfaction)
	assert.Equal(t, SettlementAgreed, p.Settlement.NegotiationStatus)
	require.NotNil(t, p.Settlement.FinalPayableAmount)
	assert.Equal(t, 500.0, *p.Settlement.FinalPayableAmount)

	p, err = MarkPaid(p, "qr", t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Paid, p.Settlement.PaymentStatus)
	assert.Equal(t, "Payment collected via QR-j1", p.History[0].Label)
	assert.NoError(t, CanFinalize(p))
}

func TestFarmerCannotReviewBeforeLabourFinishes(t *testing.T) {
	p, _ := EnsurePayment(nil, labourJob(500), "lab-1", nil, t0)

	_, err := ConfirmSatisfied(p, t0)
	requireBlockedOn(t, err, workitem.RoleLabourer)
	_, err = MarkPaid(p, "qr", t0)
	requireBlockedOn(t, err, workitem.RoleLabourer)
}

func TestRevisionAcceptedByLabourer(t *testing.T) {
	p := completedByLabour(t, 500)

	p, err := ReviseAmount(p, 420, "half day lost to rain", t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, NotSatisfied, p.Settlement.FarmerSatisfaction)
	assert.Equal(t, SettlementPendingLabour, p.Settlement.NegotiationStatus)
	assert.Nil(t, p.Settlement.FinalPayableAmount)
	assert.Equal(t, "half day lost to rain", p.Settlement.RevisedReason)

	_, err = MarkPaid(p, "qr", t0)
	requireBlockedOn(t, err, workitem.RoleLabourer)

	_, err = ConfirmSatisfied(p, t0)
	requireBlockedOn(t, err, workitem.RoleLabourer)

	p, err = AcceptRevision(p, t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, p.Settlement.FinalPayableAmount)
	assert.Equal(t, 420.0, *p.Settlement.FinalPayableAmount)
	assert.Equal(t, SettlementAgreed, p.Settlement.NegotiationStatus)

	p, err = MarkPaid(p, "qr", t0.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, Paid, p.Settlement.PaymentStatus)
}

func TestReviseAmountRejectsNonPositive(t *testing.T) {
	p := completedByLabour(t, 500)
	_, err := ReviseAmount(p, 0, "", t0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAgreedSettlementCannotBeReopened(t *testing.T) {
	p := completedByLabour(t, 500)
	p, _ = ConfirmSatisfied(p, t0)

	_, err := ReviseAmount(p, 300, "changed my mind", t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDisputeIsTerminalUntilResolved(t *testing.T) {
	p := completedByLabour(t, 500)
	p, _ = ReviseAmount(p, 200, "poor work", t0)

	p, err := RaiseDispute(p, "amount unfair", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SettlementDisputed, p.Settlement.NegotiationStatus)
	assert.Equal(t, "amount unfair", p.Settlement.DisputeReason)

	_, err = AcceptRevision(p, t0)
	assert.ErrorIs(t, err, ErrBlocked)
	_, err = MarkPaid(p, "qr", t0)
	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Empty(t, blocked.WaitingOn)

	resolved, err := ResolveDispute(p, ResolveRelease, 350, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SettlementAgreed, resolved.Settlement.NegotiationStatus)
	assert.Equal(t, 350.0, *resolved.Settlement.FinalPayableAmount)

	refunded, err := ResolveDispute(p, ResolveRefund, 0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, refunded.Status)

	untouched, err := ResolveDispute(p, ResolveNone, 0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SettlementDisputed, untouched.Settlement.NegotiationStatus)
}

func TestResolveDisputeNeedsDispute(t *testing.T) {
	p := completedByLabour(t, 500)
	_, err := ResolveDispute(p, ResolveRelease, 400, t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSettlementIsLabourOnly(t *testing.T) {
	item := workitem.WorkItem{ID: "m1", Category: workitem.CategoryMachine, BasePrice: 800}
	p, _ := EnsurePayment(nil, item, "o", nil, t0)

	_, err := MarkCompletedByLabour(p, t0)
	assert.ErrorIs(t, err, ErrWrongFlow)
	_, err = MarkPaid(p, "qr", t0)
	assert.ErrorIs(t, err, ErrWrongFlow)
}

// Base 500, farmer counters 450, labourer 480, farmer accepts, then the full
// payment and settlement run.
func TestNegotiationToReleaseScenario(t *testing.T) {
	n := negotiation.GetOrCreate(nil, negotiation.Key(workitem.CategoryLabour, "j1"), 500, workitem.RoleLabourer, t0)
	n, ok := negotiation.CounterOffer(n, workitem.RoleFarmer, 450, "", t0.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, 1, n.Rounds)
	n, ok = negotiation.CounterOffer(n, workitem.RoleLabourer, 480, "", t0.Add(2*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 2, n.Rounds)
	n, ok = negotiation.Accept(n, t0.Add(3*time.Minute))
	require.True(t, ok)
	require.Equal(t, negotiation.StatusAgreed, n.Status)
	require.Equal(t, 480.0, *n.FinalPrice)

	p, err := EnsurePayment(nil, labourJob(500), "lab-1", &n, t0.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 480.0, p.AmountTotal)
	assert.Equal(t, 192.0, p.AdvanceAmount)
	assert.Equal(t, 288.0, p.BalanceAmount)

	p, err = MarkCompletedByLabour(p, t0.Add(time.Hour))
	require.NoError(t, err)
	p, err = ConfirmSatisfied(p, t0.Add(2*time.Hour))
	require.NoError(t, err)
	p, err = MarkPaid(p, "qr", t0.Add(3*time.Hour))
	require.NoError(t, err)

	steps := []struct {
		apply func(Payment) (Payment, error)
		want  Status
	}{
		{func(p Payment) (Payment, error) { return MarkAdvancePaid(p, "upi", t0.Add(4*time.Hour)) }, StatusAdvancePaid},
		{func(p Payment) (Payment, error) { return MarkWorkStarted(p, t0.Add(5*time.Hour)) }, StatusHeld},
		{func(p Payment) (Payment, error) { return MarkWorkCompleted(p, t0.Add(6*time.Hour)) }, StatusCompleted},
		{func(p Payment) (Payment, error) { return MarkReleased(p, "upi", t0.Add(7*time.Hour)) }, StatusReleased},
	}
	for _, step := range steps {
		p, err = step.apply(p)
		require.NoError(t, err)
		assert.Equal(t, step.want, p.Status)
	}
	assert.NoError(t, CanFinalize(p))
	_, err = MarkRefunded(p, t0.Add(8*time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
