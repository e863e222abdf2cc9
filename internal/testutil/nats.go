package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// RunServerOnPort starts a NATS server on the specified port. A storeDir
// enables JetStream.
func RunServerOnPort(port int, storeDir string) (*server.Server, error) {
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      port,
		NoLog:     true,
		NoSigs:    true,
		JetStream: storeDir != "",
		StoreDir:  storeDir,
	}

	s, err := server.NewServer(opts)
	if err != nil {
		return nil, err
	}

	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		s.Shutdown()
		return nil, nats.ErrTimeout
	}
	return s, nil
}

// StartJetStream starts a NATS server with JetStream enabled and returns
// a connected JetStream context plus a cleanup function
func StartJetStream(t *testing.T) (*server.Server, nats.JetStreamContext, func()) {
	t.Helper()

	s, err := RunServerOnPort(-1, t.TempDir())
	require.NoError(t, err)

	nc, err := nats.Connect(s.ClientURL(), nats.Timeout(5*time.Second))
	require.NoError(t, err)

	js, err := nc.JetStream(nats.MaxWait(5 * time.Second))
	require.NoError(t, err)

	cleanup := func() {
		nc.Close()
		s.Shutdown()
	}

	return s, js, cleanup
}
