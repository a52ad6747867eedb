package services

import (
	"context"
	"net"
	"testing"
	"time"

	charmssh "github.com/charmbracelet/ssh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"

	"github.com/imyashkale/fleetctl/internal/events"
	"github.com/imyashkale/fleetctl/internal/models"
	"github.com/imyashkale/fleetctl/internal/registry"
	"github.com/imyashkale/fleetctl/internal/sshclient"
)

// startUnresponsiveHost runs an SSH server that authenticates and then never
// answers a session channel open.
func startUnresponsiveHost(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &charmssh.Server{
		PasswordHandler: func(ctx charmssh.Context, password string) bool {
			return password == "secret"
		},
		ChannelHandlers: map[string]charmssh.ChannelHandler{
			"session": func(srv *charmssh.Server, conn *gossh.ServerConn, newChan gossh.NewChannel, ctx charmssh.Context) {
				<-ctx.Done()
			},
		},
	}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	return ln.Addr().(*net.TCPAddr).Port
}

func newSSHService(t *testing.T, execTimeout time.Duration) *LifecycleService {
	t.Helper()

	provider, err := sshclient.NewSSHProvider(sshclient.Options{
		ConnectTimeout: 2 * time.Second,
		ExecTimeout:    execTimeout,
	})
	require.NoError(t, err)

	bus := events.NewBus(256)
	t.Cleanup(func() { _ = bus.Close() })

	opts := testOptions()
	opts.StopTimeout = 2 * time.Second
	ls := NewLifecycleService(registry.New(), provider, bus, opts)

	_, err = ls.RegisterServer(models.ServerConfig{
		ID: "s1", Name: "Game Server 1", Type: models.TypeFabric,
		Host: "127.0.0.1", Port: startUnresponsiveHost(t), Username: "minecraft",
		CredentialRef: "password:secret", RemotePath: "/home/minecraft/server1",
	}, "fabric-server-launch.jar")
	require.NoError(t, err)
	return ls
}

// TestStartFailsWhenHostNeverOpensSession bounds the launch on a host that
// accepts the login but not the session
func TestStartFailsWhenHostNeverOpensSession(t *testing.T) {
	ls := newSSHService(t, 300*time.Millisecond)
	ctx := context.Background()

	began := time.Now()
	_, err := ls.Start(ctx, "s1")
	require.ErrorIs(t, err, models.ErrExecutionFailed)
	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.Less(t, time.Since(began), 3*time.Second)

	status, err := ls.GetStatus("s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, status.Status)
	assert.NotEmpty(t, status.LastError)

	// the slot is free again: a retry makes a fresh attempt
	_, err = ls.Start(ctx, "s1")
	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.NotErrorIs(t, err, models.ErrAlreadyActive)
	assert.NotErrorIs(t, err, models.ErrOperationInProgress)
	assert.Equal(t, models.StatusError, ls.Status("s1"))
}

// TestStopCancelsHangingLaunch aborts a start blocked on the session open
func TestStopCancelsHangingLaunch(t *testing.T) {
	ls := newSSHService(t, 10*time.Second)

	startErr := make(chan error, 1)
	go func() {
		_, err := ls.Start(context.Background(), "s1")
		startErr <- err
	}()
	waitForStatus(t, ls, "s1", models.StatusStarting)

	require.NoError(t, ls.Stop(context.Background(), "s1"))
	assert.Equal(t, models.StatusStopped, ls.Status("s1"))

	select {
	case err := <-startErr:
		assert.ErrorIs(t, err, models.ErrStartAborted)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after stop")
	}
}
