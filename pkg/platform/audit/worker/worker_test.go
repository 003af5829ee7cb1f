package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"proofgate/internal/platform/kafka"
	audit "proofgate/pkg/platform/audit"
	"proofgate/pkg/platform/audit/worker/mocks"
)

func TestRelayOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes batch then checkpoints it", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		source := mocks.NewMockOutboxSource(ctrl)
		sink := mocks.NewMockSink(ctrl)

		e1 := audit.OutboxEntry{ID: uuid.New(), AggregateID: "PROOF-AAAA1111", Payload: []byte(`{"a":1}`)}
		e2 := audit.OutboxEntry{ID: uuid.New(), AggregateID: "VF-ABC123", Payload: []byte(`{"a":2}`)}

		gomock.InOrder(
			source.EXPECT().FetchUnpublished(gomock.Any(), 50).Return([]audit.OutboxEntry{e1, e2}, nil),
			sink.EXPECT().Publish(gomock.Any(),
				kafka.Record{Topic: "proofgate.audit", Key: []byte("PROOF-AAAA1111"), Value: []byte(`{"a":1}`)},
				kafka.Record{Topic: "proofgate.audit", Key: []byte("VF-ABC123"), Value: []byte(`{"a":2}`)},
			).Return(nil),
			source.EXPECT().MarkPublished(gomock.Any(), []uuid.UUID{e1.ID, e2.ID}, gomock.Any()).Return(nil),
		)

		w := NewWorker(source, sink, "proofgate.audit", WithBatchSize(50))
		n, err := w.RelayOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("empty outbox does not publish", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		source := mocks.NewMockOutboxSource(ctrl)
		sink := mocks.NewMockSink(ctrl)

		source.EXPECT().FetchUnpublished(gomock.Any(), 100).Return(nil, nil)

		n, err := NewWorker(source, sink, "t").RelayOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("publish failure leaves rows unpublished", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		source := mocks.NewMockOutboxSource(ctrl)
		sink := mocks.NewMockSink(ctrl)

		source.EXPECT().FetchUnpublished(gomock.Any(), gomock.Any()).
			Return([]audit.OutboxEntry{{ID: uuid.New(), AggregateID: "x"}}, nil)
		sink.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

		_, err := NewWorker(source, sink, "t").RelayOnce(ctx)
		require.Error(t, err)
	})
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockOutboxSource(ctrl)
	sink := mocks.NewMockSink(ctrl)
	source.EXPECT().FetchUnpublished(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := NewWorker(source, sink, "t", WithInterval(5*time.Millisecond)).Run(ctx)
	assert.NoError(t, err)
}
