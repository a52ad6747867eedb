package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/imyashkale/fleetctl/internal/models"
	"github.com/imyashkale/fleetctl/internal/sshclient"
)

// MockProcess is a scripted remote process
type MockProcess struct {
	lines chan string
	done  chan struct{}

	mu       sync.Mutex
	sent     []string
	signals  []sshclient.Signal
	exitCode int
	err      error
	closed   bool

	// ignoreStop keeps the process alive after a stop verb or SIGTERM
	ignoreStop bool
	// stuck ignores every way of ending the process, including kill
	stuck   bool
	sendErr error

	finishOnce sync.Once
}

func newMockProcess() *MockProcess {
	return &MockProcess{
		lines:    make(chan string, 64),
		done:     make(chan struct{}),
		exitCode: -1,
	}
}

// Emit writes one line of output
func (p *MockProcess) Emit(line string) {
	p.lines <- line
}

// Finish ends the process with the given exit code and transport error
func (p *MockProcess) Finish(code int, err error) {
	p.finishOnce.Do(func() {
		p.mu.Lock()
		p.exitCode = code
		p.err = err
		p.mu.Unlock()
		close(p.lines)
		close(p.done)
	})
}

func (p *MockProcess) Lines() <-chan string { return p.lines }
func (p *MockProcess) Done() <-chan struct{} { return p.done }

func (p *MockProcess) Send(line string) error {
	p.mu.Lock()
	if p.sendErr != nil {
		p.mu.Unlock()
		return p.sendErr
	}
	p.sent = append(p.sent, line)
	exits := !p.ignoreStop && !p.stuck && (line == "stop" || line == "end")
	p.mu.Unlock()

	if exits {
		go p.Finish(0, nil)
	}
	return nil
}

func (p *MockProcess) Signal(sig sshclient.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	stuck, ignoreStop := p.stuck, p.ignoreStop
	p.mu.Unlock()

	switch {
	case stuck:
	case sig == sshclient.SignalKill:
		go p.Finish(137, nil)
	case sig == sshclient.SignalTerm && !ignoreStop:
		go p.Finish(143, nil)
	}
	return nil
}

func (p *MockProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *MockProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *MockProcess) Close() error {
	p.mu.Lock()
	p.closed = true
	stuck := p.stuck
	p.mu.Unlock()
	if !stuck {
		p.Finish(-1, nil)
	}
	return nil
}

func (p *MockProcess) Sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

func (p *MockProcess) Signals() []sshclient.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sshclient.Signal(nil), p.signals...)
}

type mockHandle struct {
	serverID string
}

func (h *mockHandle) ServerID() string { return h.serverID }
func (h *mockHandle) Addr() string     { return h.serverID + ":22" }

// MockProvider is a mock implementation of sshclient.Provider for testing
type MockProvider struct {
	mu sync.Mutex

	connectErr   error
	connectGate  chan struct{} // when set, Connect blocks until it is closed
	connectCalls int

	launchErr error
	onLaunch  func(p *MockProcess)
	launched  []string
	procs     []*MockProcess

	execResult *sshclient.ExecResult
	execErr    error
	executed   []string

	disconnects int
}

func (m *MockProvider) Connect(ctx context.Context, cfg models.ServerConfig) (sshclient.Handle, error) {
	m.mu.Lock()
	m.connectCalls++
	gate, err := m.connectGate, m.connectErr
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", models.ErrConnectionFailed, ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	return &mockHandle{serverID: cfg.ID}, nil
}

func (m *MockProvider) Execute(ctx context.Context, h sshclient.Handle, cmd string) (*sshclient.ExecResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed = append(m.executed, cmd)
	if m.execErr != nil {
		return nil, m.execErr
	}
	if m.execResult == nil {
		return &sshclient.ExecResult{}, nil
	}
	res := *m.execResult
	return &res, nil
}

func (m *MockProvider) Launch(ctx context.Context, h sshclient.Handle, cmd string) (sshclient.Process, error) {
	m.mu.Lock()
	m.launched = append(m.launched, cmd)
	if m.launchErr != nil {
		err := m.launchErr
		m.mu.Unlock()
		return nil, err
	}
	p := newMockProcess()
	m.procs = append(m.procs, p)
	onLaunch := m.onLaunch
	m.mu.Unlock()

	if onLaunch != nil {
		onLaunch(p)
	}
	return p, nil
}

func (m *MockProvider) Disconnect(h sshclient.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	return nil
}

func (m *MockProvider) setConnectErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

func (m *MockProvider) setConnectGate(gate chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectGate = gate
}

func (m *MockProvider) ConnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectCalls
}

func (m *MockProvider) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

func (m *MockProvider) Launched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.launched...)
}

func (m *MockProvider) Executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.executed...)
}

// Proc returns the i-th launched process
func (m *MockProvider) Proc(i int) *MockProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i >= len(m.procs) {
		return nil
	}
	return m.procs[i]
}

var _ sshclient.Provider = (*MockProvider)(nil)
var _ sshclient.Process = (*MockProcess)(nil)
