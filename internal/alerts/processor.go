package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/sudo-init-do/agrihub/internal/logger"
)

// Processor consumes notification tasks into the inbox.
type Processor struct {
	server *asynq.Server
	inbox  Inbox
	log    *logrus.Entry
}

func NewProcessor(redisAddr string, concurrency int, inbox Inbox) *Processor {
	log := logger.NewSublogger("alerts")
	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueNotifications: 10,
		},
		Logger: log,
	})
	return &Processor{server: server, inbox: inbox, log: log}
}

// Mux routes every notification task type to the inbox handler.
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, t := range []string{
		TaskNegotiationAgreed,
		TaskNegotiationRejected,
		TaskWorkCompleted,
		TaskAmountRevised,
		TaskPaymentReleased,
		TaskPaymentRefunded,
		TaskPaymentCollected,
		TaskDisputeRaised,
		TaskDisputeResolved,
	} {
		mux.HandleFunc(t, p.handle)
	}
	return mux
}

// Start runs the server in the background.
func (p *Processor) Start() error {
	if err := p.server.Start(p.Mux()); err != nil {
		return fmt.Errorf("start notification processor: %w", err)
	}
	p.log.Info("Notification processor started")
	return nil
}

func (p *Processor) Shutdown() {
	p.server.Shutdown()
}

func (p *Processor) handle(ctx context.Context, t *asynq.Task) error {
	var e Event
	if err := json.Unmarshal(t.Payload(), &e); err != nil {
		// Retrying a malformed payload never helps
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if err := deliver(ctx, p.inbox, e); err != nil {
		p.log.WithError(err).WithField("task", t.Type()).Error("Notification delivery failed")
		return err
	}
	p.log.WithFields(logrus.Fields{"task": t.Type(), "recipient": e.RecipientID, "reference": e.Reference}).Info("Notification delivered")
	return nil
}

func deliver(ctx context.Context, inbox Inbox, e Event) error {
	env := e.Envelope()
	return inbox.Add(ctx, Notification{
		UserID:    e.RecipientID,
		Type:      e.Type,
		Title:     env.Title,
		Body:      env.Body,
		Reference: e.Reference,
		CreatedAt: e.At,
	})
}
