package objectstore_test

import (
	"context"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/chatterbox-service/internal/objectstore"
)

// startTestServer starts an in-memory NATS server for testing purposes.
func startTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func TestNATSStore_UploadDownload(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := startTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.NewNATS(jetstreamContext, "test-artifacts")
	require.NoError(t, err)

	ctx := context.Background()
	key := "artifact.wav"
	uploadData := []byte("generated audio bytes")

	err = store.Upload(ctx, key, uploadData)
	require.NoError(t, err)

	downloadData, err := store.Download(ctx, key)
	require.NoError(t, err)
	require.Equal(t, uploadData, downloadData)
}

func TestNATSStore_DownloadMissingKey(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := startTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.NewNATS(jetstreamContext, "test-artifacts-missing")
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "missing.wav")
	require.ErrorIs(t, err, objectstore.ErrObjectNotFound)
}
