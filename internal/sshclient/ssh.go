package sshclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/imyashkale/fleetctl/internal/logger"
	"github.com/imyashkale/fleetctl/internal/models"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultExecTimeout    = 30 * time.Second
)

// Options configures the SSH provider
type Options struct {
	CredentialsDir string
	KnownHostsFile string
	ConnectTimeout time.Duration
	ExecTimeout    time.Duration
}

// SSHProvider implements Provider over golang.org/x/crypto/ssh
type SSHProvider struct {
	opts        Options
	credentials CredentialResolver
	hostKeys    ssh.HostKeyCallback
}

// NewSSHProvider creates a provider. Host keys are verified against
// KnownHostsFile when it is set.
func NewSSHProvider(opts Options) (*SSHProvider, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ExecTimeout <= 0 {
		opts.ExecTimeout = DefaultExecTimeout
	}

	hostKeys := ssh.InsecureIgnoreHostKey()
	if opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts %s: %w", opts.KnownHostsFile, err)
		}
		hostKeys = cb
	} else {
		logger.Warn("KNOWN_HOSTS_FILE not set, host keys of managed servers are not verified")
	}

	return &SSHProvider{
		opts:        opts,
		credentials: CredentialResolver{Dir: opts.CredentialsDir},
		hostKeys:    hostKeys,
	}, nil
}

type sshHandle struct {
	serverID string
	addr     string
	client   *ssh.Client
}

func (h *sshHandle) ServerID() string { return h.serverID }
func (h *sshHandle) Addr() string     { return h.addr }

// Connect dials and authenticates against cfg's host
func (p *SSHProvider) Connect(ctx context.Context, cfg models.ServerConfig) (Handle, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.SSHPort()))
	log := logger.WithServer(cfg.ID).WithField("addr", addr)

	auth, err := p.credentials.Resolve(cfg.CredentialRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConnectionFailed, err)
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: p.hostKeys,
		Timeout:         p.opts.ConnectTimeout,
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		log.WithField("error", err.Error()).Warn("SSH dial failed")
		return nil, connectError(ctx, err)
	}

	// the handshake has no context of its own
	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	stop()
	if err != nil {
		_ = conn.Close()
		log.WithField("error", err.Error()).Warn("SSH handshake failed")
		if isAuthError(err) {
			return nil, fmt.Errorf("%w: %w: %v", models.ErrConnectionFailed, ErrAuthentication, err)
		}
		return nil, connectError(ctx, err)
	}
	_ = conn.SetDeadline(time.Time{})

	log.Debug("SSH connection established")
	return &sshHandle{
		serverID: cfg.ID,
		addr:     addr,
		client:   ssh.NewClient(c, chans, reqs),
	}, nil
}

// Execute runs cmd to completion. A non-zero exit status is reported in the
// result, not as an error.
func (p *SSHProvider) Execute(ctx context.Context, h Handle, cmd string) (*ExecResult, error) {
	sh, err := asSSH(h)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrExecutionFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.ExecTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	session, err := p.openSession(ctx, sh, func(s *ssh.Session) error {
		s.Stdout = &stdout
		s.Stderr = &stderr
		return s.Start(cmd)
	})
	if err != nil {
		return nil, err
	}
	defer session.Close()

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Close()
		return nil, execError(ctx, sh.serverID)
	}

	result := &ExecResult{}
	if err != nil {
		var exitErr *ssh.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %v", models.ErrExecutionFailed, err)
		}
		result.ExitCode = exitErr.ExitStatus()
	}
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	return result, nil
}

// Launch starts cmd and streams its output until it exits. The process keeps
// using h until it is done; the caller disconnects h afterwards. Only opening
// the session and starting cmd are bounded by the exec timeout.
func (p *SSHProvider) Launch(ctx context.Context, h Handle, cmd string) (Process, error) {
	sh, err := asSSH(h)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrExecutionFailed, err)
	}

	var proc *sshProcess
	_, err = p.openSession(ctx, sh, func(s *ssh.Session) error {
		var err error
		proc, err = startProcess(s, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.WithServer(sh.serverID).WithField("command", cmd).Info("Remote process launched")
	return proc, nil
}

type openResult struct {
	session *ssh.Session
	err     error
}

// openSession opens a session on sh and runs begin on it, bounded by ctx and
// the exec timeout. On expiry the connection of sh is closed, which fails a
// channel open the host never answered; h is unusable afterwards.
func (p *SSHProvider) openSession(ctx context.Context, sh *sshHandle, begin func(*ssh.Session) error) (*ssh.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ExecTimeout)
	defer cancel()

	result := make(chan openResult, 1)
	go func() {
		session, err := sh.client.NewSession()
		if err == nil {
			if err = begin(session); err != nil {
				_ = session.Close()
			}
		}
		result <- openResult{session: session, err: err}
	}()

	select {
	case r := <-result:
		if r.err != nil {
			return nil, fmt.Errorf("%w: opening session: %v", models.ErrExecutionFailed, r.err)
		}
		return r.session, nil
	case <-ctx.Done():
		logger.WithServer(sh.serverID).Warn("Opening SSH session timed out, closing connection")
		_ = sh.client.Close()
		go func() {
			if r := <-result; r.err == nil {
				_ = r.session.Close()
			}
		}()
		return nil, execError(ctx, sh.serverID)
	}
}

func execError(ctx context.Context, serverID string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %s", models.ErrExecutionFailed, models.ErrTimeout, serverID)
	}
	return fmt.Errorf("%w: %v", models.ErrExecutionFailed, ctx.Err())
}

// Disconnect closes h and every session still open on it
func (p *SSHProvider) Disconnect(h Handle) error {
	sh, err := asSSH(h)
	if err != nil {
		return err
	}
	if err := sh.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func asSSH(h Handle) (*sshHandle, error) {
	sh, ok := h.(*sshHandle)
	if !ok || sh == nil {
		return nil, fmt.Errorf("%w: handle %T was not opened by this provider", models.ErrExecutionFailed, h)
	}
	return sh, nil
}

func connectError(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w: %v", models.ErrConnectionFailed, models.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", models.ErrConnectionFailed, err)
}

func isAuthError(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

var _ Provider = (*SSHProvider)(nil)
