package pubsub

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/EisukeHirata/profile-nanobanana/internal/config"

	ps "cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/require"
)

func TestNewPublisherRequiresProject(t *testing.T) {
	_, err := NewPublisher(context.Background(), &config.Config{})
	require.Error(t, err)
}

func TestPublishBillingNotificationWithEmulator(t *testing.T) {
	if os.Getenv("PUBSUB_EMULATOR_HOST") == "" {
		t.Skip("PUBSUB_EMULATOR_HOST is not set, skip emulator integration test")
	}

	ctx := context.Background()
	pub, err := NewPublisher(ctx, &config.Config{GCPProjectID: "test-project"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	topic, err := pub.client.CreateTopic(ctx, "billing-test")
	require.NoError(t, err)
	sub, err := pub.client.CreateSubscription(ctx, "billing-test-sub", ps.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	body := []byte(`{"event_id":"evt_1","credits_added":10}`)
	msgID, err := pub.Publish(ctx, "billing-test", body)
	require.NoError(t, err)
	require.NotEmpty(t, msgID)

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	received := make(chan *ps.Message, 1)
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, m *ps.Message) {
			m.Ack()
			received <- m
			cancel()
		})
	}()

	select {
	case m := <-received:
		require.Equal(t, body, m.Data)
		require.Equal(t, "application/json", m.Attributes["content_type"])
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message from emulator subscription")
	}
}
