package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBus_DeliversInPublishOrderPerKey(t *testing.T) {
	b := NewInMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received []string

	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = b.Subscribe(ctx, TopicAuditEvents, "audit-consumer", func(_ context.Context, msg Message) error {
			mu.Lock()
			received = append(received, string(msg.Value))
			mu.Unlock()
			return nil
		})
	}()
	<-ready
	// allow the subscriber goroutine to register before publishing.
	time.Sleep(10 * time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(context.Background(), Message{
			Topic: TopicAuditEvents,
			Key:   "t1",
			Value: []byte{byte('0' + i)},
		}))
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 5)
	for i, v := range received {
		assert.Equal(t, string(byte('0'+i)), v)
	}
}

func TestInMemoryBus_PublishAfterCloseFails(t *testing.T) {
	b := NewInMemoryBus()
	require.NoError(t, b.Close())
	err := b.Publish(context.Background(), Message{Topic: TopicAlertsRaw})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestInMemoryBus_HandlerErrorPropagatesToPublisher(t *testing.T) {
	b := NewInMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	boom := assert.AnError
	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = b.Subscribe(ctx, TopicAlertsRaw, "g1", func(_ context.Context, _ Message) error {
			return boom
		})
	}()
	<-ready
	time.Sleep(10 * time.Millisecond)

	err := b.Publish(context.Background(), Message{Topic: TopicAlertsRaw})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
