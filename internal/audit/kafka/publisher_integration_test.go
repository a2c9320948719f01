//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"bxhive/internal/audit"
	auditkafka "bxhive/internal/audit/kafka"
	id "bxhive/pkg/domain"
	"bxhive/pkg/testutil/containers"
)

func TestPublisherDeliversEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	redpanda := containers.NewRedpandaContainer(t)
	const topic = "bxhive.audit.test"

	publisher, err := auditkafka.New([]string{redpanda.Broker}, topic)
	require.NoError(t, err)

	engine := id.NewAddress()
	actor := id.NewAddress()
	events := []audit.Event{
		{Timestamp: time.Now().UTC(), Action: audit.ActionVariationSpawned, Actor: actor, Engine: engine, Group: 0, Amount: 1000},
		{Timestamp: time.Now().UTC(), Action: audit.ActionMatchCompleted, Actor: actor, Engine: engine, Match: 0, Amount: 120},
	}
	for _, event := range events {
		require.NoError(t, publisher.Emit(ctx, event))
	}
	require.NoError(t, publisher.Close(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(redpanda.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var got []audit.Event
	for len(got) < len(events) {
		fetches := consumer.PollFetches(pollCtx)
		require.NoError(t, fetches.Err())
		fetches.EachRecord(func(record *kgo.Record) {
			require.Equal(t, string(engine), string(record.Key))
			var event audit.Event
			require.NoError(t, json.Unmarshal(record.Value, &event))
			got = append(got, event)
		})
	}

	require.Len(t, got, len(events))
	require.Equal(t, audit.ActionVariationSpawned, got[0].Action)
	require.Equal(t, uint64(1000), got[0].Amount)
	require.Equal(t, audit.ActionMatchCompleted, got[1].Action)
	require.Equal(t, engine, got[1].Engine)
}
