// Package pubsub backs the dispatch queue with Google Cloud Pub/Sub so
// scheduler and workers can run in separate deployments.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/wildsight/tigerwatch/internal/monitor"
)

// Queue publishes dispatch items to a Pub/Sub topic and, when a
// subscription is configured, streams them back out through Dequeue.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	items  chan monitor.QueueItem
	stop   context.CancelFunc
	logger *zap.Logger
}

// Options configures a Pub/Sub queue. SubscriptionID may be empty on
// scheduler-only deployments that never dequeue.
type Options struct {
	ProjectID      string
	TopicID        string
	SubscriptionID string
	Buffer         int
}

// NewQueue connects to Pub/Sub and verifies the topic exists. It
// authenticates with Application Default Credentials.
func NewQueue(ctx context.Context, opts Options, logger *zap.Logger) (*Queue, error) {
	client, err := pubsub.NewClient(ctx, opts.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(opts.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check pubsub topic %q: %w", opts.TopicID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", opts.TopicID, opts.ProjectID)
	}

	q := &Queue{
		client: client,
		topic:  topic,
		logger: logger,
	}

	if opts.SubscriptionID != "" {
		buffer := opts.Buffer
		if buffer <= 0 {
			buffer = 16
		}
		q.sub = client.Subscription(opts.SubscriptionID)
		q.items = make(chan monitor.QueueItem, buffer)
		recvCtx, cancel := context.WithCancel(context.Background())
		q.stop = cancel
		go q.receive(recvCtx)
	}

	return q, nil
}

// Enqueue publishes the item as JSON and waits for the server ack so a
// dispatch reported as scheduled is durably queued.
func (q *Queue) Enqueue(ctx context.Context, item monitor.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish queue item: %w", err)
	}
	return nil
}

// Dequeue returns the next item delivered on the subscription.
func (q *Queue) Dequeue(ctx context.Context) (monitor.QueueItem, error) {
	if q.sub == nil {
		return monitor.QueueItem{}, fmt.Errorf("pubsub queue has no subscription configured")
	}
	select {
	case <-ctx.Done():
		return monitor.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.items:
		if !ok {
			return monitor.QueueItem{}, fmt.Errorf("pubsub receive loop stopped")
		}
		return item, nil
	}
}

func (q *Queue) receive(ctx context.Context) {
	defer close(q.items)
	err := q.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var item monitor.QueueItem
		if err := json.Unmarshal(msg.Data, &item); err != nil {
			q.logger.Warn("discarding malformed queue message", zap.Error(err))
			msg.Ack()
			return
		}
		select {
		case q.items <- item:
			msg.Ack()
		case <-ctx.Done():
			msg.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		q.logger.Error("pubsub receive loop exited", zap.Error(err))
	}
}

// Close stops the receive loop and the publisher and releases the client.
func (q *Queue) Close() error {
	if q.stop != nil {
		q.stop()
	}
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
