package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sudo-init-do/agrihub/internal/logger"
)

func TestNewTaskCarriesEvent(t *testing.T) {
	e := Event{
		Type:        TaskPaymentReleased,
		Reference:   "PAY-L-42",
		WorkItemID:  "42",
		Category:    "labour",
		RecipientID: "lab-1",
		Amount:      288,
		At:          time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	task, err := NewTask(e)
	require.NoError(t, err)
	assert.Equal(t, TaskPaymentReleased, task.Type())

	var decoded Event
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, e, decoded)
}

func TestEnvelopeText(t *testing.T) {
	env := Event{Type: TaskNegotiationAgreed, Category: "machine", WorkItemID: "7", Amount: 650}.Envelope()
	assert.Equal(t, "Price agreed", env.Title)
	assert.Contains(t, env.Body, "650.00")

	env = Event{Type: "notify:unknown", Category: "labour", WorkItemID: "1"}.Envelope()
	assert.Equal(t, "Update", env.Title)
}

func TestProcessorDeliversToInbox(t *testing.T) {
	inbox := NewMemoryInbox()
	p := &Processor{inbox: inbox, log: testLogger()}

	task, err := NewTask(Event{Type: TaskDisputeRaised, RecipientID: "farmer-1", Reference: "PAY-L-1", Reason: "short hours"})
	require.NoError(t, err)
	require.NoError(t, p.handle(context.Background(), task))

	items, err := inbox.List(context.Background(), "farmer-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Dispute raised", items[0].Title)
	assert.Equal(t, "PAY-L-1", items[0].Reference)
}

func TestProcessorSkipsRetryOnBadPayload(t *testing.T) {
	p := &Processor{inbox: NewMemoryInbox(), log: testLogger()}
	err := p.handle(context.Background(), asynq.NewTask(TaskDisputeRaised, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestMemoryInbox(t *testing.T) {
	ctx := context.Background()
	inbox := NewMemoryInbox()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, inbox.Add(ctx, Notification{UserID: "u", Title: "first", CreatedAt: base}))
	require.NoError(t, inbox.Add(ctx, Notification{UserID: "u", Title: "second", CreatedAt: base.Add(time.Minute)}))

	items, err := inbox.List(ctx, "u")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].Title)

	require.NoError(t, inbox.MarkRead(ctx, "u", items[0].ID))
	assert.ErrorIs(t, inbox.MarkRead(ctx, "u", items[0].ID), ErrNotificationNotFound)
	assert.ErrorIs(t, inbox.MarkRead(ctx, "other", items[1].ID), ErrNotificationNotFound)
}

func TestInlineNotifier(t *testing.T) {
	inbox := NewMemoryInbox()
	n := NewInline(inbox)
	require.NoError(t, n.Notify(context.Background(), Event{Type: TaskPaymentRefunded, RecipientID: "u"}))

	items, _ := inbox.List(context.Background(), "u")
	require.Len(t, items, 1)
	assert.Equal(t, "Payment refunded", items[0].Title)
}

func TestHandlers(t *testing.T) {
	inbox := NewMemoryInbox()
	require.NoError(t, inbox.Add(context.Background(), Notification{ID: "n1", UserID: "u", Title: "hello"}))
	h := NewHandler(inbox)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	require.NoError(t, h.ListNotifications(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.Set("user_id", "u")
	require.NoError(t, h.ListNotifications(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"hello"`)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodPatch, "/notifications/n1/read", nil), rec)
	c.Set("user_id", "u")
	c.SetParamNames("id")
	c.SetParamValues("n1")
	require.NoError(t, h.MarkNotificationRead(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodPatch, "/notifications/n1/read", nil), rec)
	c.Set("user_id", "u")
	c.SetParamNames("id")
	c.SetParamValues("n1")
	require.NoError(t, h.MarkNotificationRead(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func testLogger() *logrus.Entry {
	return logger.NewSublogger("alerts_test")
}
