//go:build integration

package worker_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"proofgate/internal/platform/kafka"
	audit "proofgate/pkg/platform/audit"
	auditpostgres "proofgate/pkg/platform/audit/store/postgres"
	"proofgate/pkg/platform/audit/worker"
	"proofgate/pkg/testutil/containers"
)

func TestOutboxRelaysToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := containers.GetManager().Postgres(t)
	require.NoError(t, pg.Reset(ctx))
	rp := containers.GetManager().Redpanda(t)

	const topic = "proofgate.audit.test"
	producer, err := kafka.NewProducer(rp.Brokers, "proofgate-test")
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, producer.EnsureTopic(ctx, topic, 1, 1))

	outbox := auditpostgres.New(pg.DB)
	require.NoError(t, outbox.Append(ctx, audit.Event{
		Action:     string(audit.EventProofRevoked),
		SubjectID:  "subject-1",
		ResourceID: "PROOF-ABCDEFGH",
	}))

	w := worker.NewWorker(outbox, producer, topic,
		worker.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	n, err := w.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = w.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "published rows are checkpointed")

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollRecords(ctx, 1)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "PROOF-ABCDEFGH", string(records[0].Key))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(records[0].Value, &payload))
	assert.Equal(t, "proof_revoked", payload["action"])
	assert.Equal(t, "compliance", payload["category"])
}
