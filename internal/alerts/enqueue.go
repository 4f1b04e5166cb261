package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/sudo-init-do/agrihub/internal/logger"
)

const queueNotifications = "notifications"

// Notifier delivers events to users. Callers notify after the state change is
// stored; a delivery failure never undoes the change.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Queue enqueues events as asynq tasks for the Processor.
type Queue struct {
	client *asynq.Client
	log    *logrus.Entry
}

func NewQueue(redisAddr string) *Queue {
	return &Queue{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		log:    logger.NewSublogger("alerts"),
	}
}

// NewTask builds the asynq task carrying e
func NewTask(e Event) (*asynq.Task, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Type, err)
	}
	return asynq.NewTask(e.Type, b, asynq.Queue(queueNotifications), asynq.MaxRetry(5)), nil
}

func (q *Queue) Notify(ctx context.Context, e Event) error {
	task, err := NewTask(e)
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", e.Type, err)
	}
	q.log.WithFields(logrus.Fields{"task": e.Type, "id": info.ID, "recipient": e.RecipientID}).Debug("Notification enqueued")
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Inline writes events straight to an inbox, for single-process deployments
// without Redis.
type Inline struct {
	inbox Inbox
}

func NewInline(inbox Inbox) *Inline {
	return &Inline{inbox: inbox}
}

func (n *Inline) Notify(ctx context.Context, e Event) error {
	return deliver(ctx, n.inbox, e)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
