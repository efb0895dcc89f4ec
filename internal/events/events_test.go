package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	require.NoError(t, err, "starting embedded NATS")
	srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(5*time.Second), "embedded NATS not ready")
	return srv.ClientURL()
}

type recordingPublisher struct {
	topics []string
	err    error
	closed bool
}

func (r *recordingPublisher) Publish(ctx context.Context, topic string, event any) error {
	r.topics = append(r.topics, topic)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return r.err
}

func TestPublishersImplementInterface(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
	var _ Publisher = (*NATSPublisher)(nil)
	var _ Publisher = Multi(nil)
}

func TestNoopPublisher(t *testing.T) {
	pub := &NoopPublisher{}
	assert.NoError(t, pub.Publish(context.Background(), TopicConfigSaved, ConfigSaved{}))
	assert.NoError(t, pub.Close())
}

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("down")}
	ok := &recordingPublisher{}
	m := Multi{failing, ok}

	err := m.Publish(context.Background(), TopicBackupCreated, BackupCreated{Filename: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, []string{TopicBackupCreated}, failing.topics)
	assert.Equal(t, []string{TopicBackupCreated}, ok.topics, "a failing publisher does not block the rest")

	require.Error(t, m.Close())
	assert.True(t, failing.closed)
	assert.True(t, ok.closed)
}

func TestNATSRoundTrip(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	require.NoError(t, err)
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicAll)
	require.NoError(t, err)
	defer cancel()

	at := time.Date(2025, 12, 6, 10, 30, 45, 0, time.UTC)
	require.NoError(t, pub.Publish(context.Background(), TopicBackupCreated, BackupCreated{
		Document: "company",
		Filename: "company-config.backup_2025-12-06T10-30-45-000Z.json",
		Size:     42,
		At:       at,
	}))
	require.NoError(t, pub.conn.Flush())

	select {
	case msg := <-ch:
		assert.Equal(t, TopicBackupCreated, msg.Topic)
		var got BackupCreated
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "company-config.backup_2025-12-06T10-30-45-000Z.json", got.Filename)
		assert.Equal(t, int64(42), got.Size)
		assert.True(t, at.Equal(got.At))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSSubscriberCancelClosesChannel(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	require.NoError(t, err)
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicConfigSaved)
	require.NoError(t, err)
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
}

func TestNewNATSPublisherUnreachable(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1")
	assert.Error(t, err)
}
