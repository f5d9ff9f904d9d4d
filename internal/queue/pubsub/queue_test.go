package pubsub

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/wildsight/tigerwatch/internal/monitor"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	ctx := context.Background()

	// Fake Pub/Sub server.
	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "topic-id")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "sub-id", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	recvCtx, cancel := context.WithCancel(ctx)
	q := &Queue{
		client: client,
		topic:  topic,
		sub:    sub,
		items:  make(chan monitor.QueueItem, 1),
		stop:   cancel,
		logger: zap.NewNop(),
	}
	go q.receive(recvCtx)
	defer cancel()

	item := monitor.QueueItem{JobID: "job-1", FacilityID: "f1", Submitted: time.Now().Unix()}
	require.NoError(t, q.Enqueue(ctx, item))

	deqCtx, deqCancel := context.WithTimeout(ctx, 5*time.Second)
	defer deqCancel()
	got, err := q.Dequeue(deqCtx)
	require.NoError(t, err)
	assert.Equal(t, item, got)
}

func TestDequeueWithoutSubscription(t *testing.T) {
	q := &Queue{logger: zap.NewNop()}
	_, err := q.Dequeue(context.Background())
	assert.Error(t, err)
}
