//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "credreg/pkg/platform/audit"
	"credreg/pkg/testutil/containers"
)

func TestSinkProducesEvents(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sink, err := New(ctx, Config{Brokers: []string{rp.Broker}, Topic: "credreg.telemetry.test", Partitions: 1})
	require.NoError(t, err)
	defer sink.Close()

	event := audit.Event{
		ID:           "evt-1",
		Action:       audit.ActionCredentialIssued,
		Outcome:      audit.OutcomeSuccess,
		CredentialID: "cred-1",
		Timestamp:    time.Now().UTC(),
	}
	require.NoError(t, sink.Write(ctx, []audit.Event{event}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics("credreg.telemetry.test"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "cred-1", string(records[0].Key))

	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, audit.ActionCredentialIssued, got.Action)
}

func TestNewIsIdempotentForExistingTopic(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := Config{Brokers: []string{rp.Broker}, Topic: "credreg.telemetry.twice", Partitions: 1}
	first, err := New(ctx, cfg)
	require.NoError(t, err)
	first.Close()

	second, err := New(ctx, cfg)
	require.NoError(t, err)
	second.Close()
}
