package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/imyashkale/fleetctl/internal/command"
	"github.com/imyashkale/fleetctl/internal/console"
	"github.com/imyashkale/fleetctl/internal/events"
	"github.com/imyashkale/fleetctl/internal/logger"
	"github.com/imyashkale/fleetctl/internal/models"
	"github.com/imyashkale/fleetctl/internal/registry"
	"github.com/imyashkale/fleetctl/internal/sshclient"
)

const (
	DefaultStartupGrace    = 3 * time.Second
	DefaultStopTimeout     = 30 * time.Second
	DefaultConnectAttempts = 1
	DefaultConnectBackoff  = 500 * time.Millisecond

	// how long to wait for a killed process to be reported gone
	defaultKillWait = 5 * time.Second
)

// LifecycleOptions tunes the lifecycle controller
type LifecycleOptions struct {
	ConsoleCapacity  int
	StartupGrace     time.Duration
	StopTimeout      time.Duration
	ConnectAttempts  int
	ConnectBackoff   time.Duration
	DefaultMaxMemory string
}

// DefaultLifecycleOptions returns the options used when nothing is configured
func DefaultLifecycleOptions() LifecycleOptions {
	return LifecycleOptions{
		ConsoleCapacity:  console.DefaultCapacity,
		StartupGrace:     DefaultStartupGrace,
		StopTimeout:      DefaultStopTimeout,
		ConnectAttempts:  DefaultConnectAttempts,
		ConnectBackoff:   DefaultConnectBackoff,
		DefaultMaxMemory: command.DefaultMaxMemory,
	}
}

// run is one launched remote process and the connection it owns
type run struct {
	proc     sshclient.Process
	handle   sshclient.Handle
	stopVerb string        // console line asking the process to exit, "" to signal
	done     chan struct{} // closed once the monitor has drained the output
}

// instance is the runtime side of one registered server
type instance struct {
	id string

	// slot serializes lifecycle operations; holding it means owning the
	// right to change status through a transition
	slot chan struct{}

	mu          sync.RWMutex
	status      models.Status
	lastError   string
	desired     models.Status
	run         *run
	cancelStart context.CancelFunc

	console *console.Buffer
}

func (inst *instance) tryAcquire() bool {
	select {
	case inst.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

func (inst *instance) release() {
	<-inst.slot
}

func (inst *instance) state() (models.Status, string) {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.status, inst.lastError
}

// LifecycleService drives the start/stop state machine of every server
type LifecycleService struct {
	registry *registry.Registry
	provider sshclient.Provider
	bus      *events.Bus
	opts     LifecycleOptions
	killWait time.Duration

	mu        sync.RWMutex
	instances map[string]*instance
}

// NewLifecycleService creates a lifecycle service and installs it as the
// registry's status source.
func NewLifecycleService(reg *registry.Registry, provider sshclient.Provider, bus *events.Bus, opts LifecycleOptions) *LifecycleService {
	defaults := DefaultLifecycleOptions()
	if opts.ConsoleCapacity <= 0 {
		opts.ConsoleCapacity = defaults.ConsoleCapacity
	}
	if opts.StartupGrace < 0 {
		opts.StartupGrace = 0
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaults.StopTimeout
	}
	if opts.ConnectAttempts < 1 {
		opts.ConnectAttempts = defaults.ConnectAttempts
	}
	if opts.ConnectBackoff <= 0 {
		opts.ConnectBackoff = defaults.ConnectBackoff
	}
	if opts.DefaultMaxMemory == "" {
		opts.DefaultMaxMemory = defaults.DefaultMaxMemory
	}

	ls := &LifecycleService{
		registry:  reg,
		provider:  provider,
		bus:       bus,
		opts:      opts,
		killWait:  defaultKillWait,
		instances: make(map[string]*instance),
	}
	reg.SetStatusSource(ls)
	return ls
}

// instance returns the runtime record of id, creating it on first use.
// Only registration creates records.
func (ls *LifecycleService) instance(id string) *instance {
	ls.mu.RLock()
	inst, ok := ls.instances[id]
	ls.mu.RUnlock()
	if ok {
		return inst
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if inst, ok := ls.instances[id]; ok {
		return inst
	}
	inst = &instance{
		id:      id,
		slot:    make(chan struct{}, 1),
		status:  models.StatusStopped,
		desired: models.StatusStopped,
		console: console.NewBuffer(ls.opts.ConsoleCapacity),
	}
	ls.instances[id] = inst
	return inst
}

// lookup returns the runtime record of id without creating one; nil means
// the server was removed.
func (ls *LifecycleService) lookup(id string) *instance {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.instances[id]
}

func errRemoved(id string) error {
	return fmt.Errorf("%w: %s was removed", models.ErrNotFound, id)
}

// setStatusLocked must be called with inst.mu held
func (ls *LifecycleService) setStatusLocked(inst *instance, to models.Status, lastError string) {
	from := inst.status
	inst.status = to
	inst.lastError = lastError

	fields := map[string]interface{}{
		"server_id": inst.id,
		"from":      string(from),
		"status":    string(to),
	}
	if lastError != "" {
		fields["error"] = lastError
	}
	logger.WithFields(fields).Info("Server status changed")

	ls.bus.Publish(models.Event{
		ServerID: inst.id,
		Type:     models.EventStatusChanged,
		Payload:  models.StatusChange{From: from, To: to, LastError: lastError},
	})
}

func (ls *LifecycleService) setStatus(inst *instance, to models.Status, lastError string) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	ls.setStatusLocked(inst, to, lastError)
}

// Status implements registry.StatusSource
func (ls *LifecycleService) Status(id string) models.Status {
	inst := ls.lookup(id)
	if inst == nil {
		return models.StatusStopped
	}
	st, _ := inst.state()
	return st
}

// Start launches the server's startup artifact on its host
func (ls *LifecycleService) Start(ctx context.Context, id string) (models.StartResult, error) {
	entry, err := ls.registry.Get(id)
	if err != nil {
		return models.StartResult{}, err
	}
	inst := ls.lookup(id)
	if inst == nil {
		return models.StartResult{}, errRemoved(id)
	}

	if err := checkStartable(inst); err != nil {
		return models.StartResult{}, err
	}
	if !entry.Artifact.Ready() {
		return models.StartResult{}, fmt.Errorf("%w: select a startup file for %s first", models.ErrMissingArtifact, id)
	}

	if !inst.tryAcquire() {
		if err := checkStartable(inst); err != nil {
			return models.StartResult{}, err
		}
		return models.StartResult{}, fmt.Errorf("%w: %s", models.ErrOperationInProgress, id)
	}
	defer inst.release()

	return ls.startLocked(ctx, inst)
}

func checkStartable(inst *instance) error {
	switch st, _ := inst.state(); st {
	case models.StatusStarting, models.StatusRunning:
		return fmt.Errorf("%w: %s is %s", models.ErrAlreadyActive, inst.id, st)
	case models.StatusStopping:
		return fmt.Errorf("%w: %s is stopping", models.ErrOperationInProgress, inst.id)
	}
	return nil
}

// startLocked runs the start transition; the caller holds the slot
func (ls *LifecycleService) startLocked(ctx context.Context, inst *instance) (models.StartResult, error) {
	// the entry may have changed while waiting for the slot
	entry, err := ls.registry.Get(inst.id)
	if err != nil {
		return models.StartResult{}, err
	}
	if err := checkStartable(inst); err != nil {
		return models.StartResult{}, err
	}
	if !entry.Artifact.Ready() {
		return models.StartResult{}, fmt.Errorf("%w: select a startup file for %s first", models.ErrMissingArtifact, inst.id)
	}

	cfg := entry.Config
	cmd, err := command.Build(cfg.Type, entry.Artifact.SelectedPath, command.OptionsFor(cfg, ls.opts.DefaultMaxMemory))
	if err != nil {
		return models.StartResult{}, err
	}
	remoteCmd, err := command.Wrap(cfg.RemotePath, cmd)
	if err != nil {
		return models.StartResult{}, err
	}
	result := models.StartResult{StartupFile: entry.Artifact.SelectedPath, Command: cmd}

	log := logger.WithServer(inst.id).WithField("command", remoteCmd)

	// a start outlives the request that issued it; only a stop cancels it
	startCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	inst.mu.Lock()
	inst.desired = models.StatusRunning
	inst.cancelStart = cancel
	ls.setStatusLocked(inst, models.StatusStarting, "")
	inst.mu.Unlock()

	defer func() {
		inst.mu.Lock()
		inst.cancelStart = nil
		inst.mu.Unlock()
	}()

	log.Info("Starting server")

	handle, err := ls.connect(startCtx, cfg)
	if err != nil {
		if ls.stopRequested(inst) {
			return ls.abortStart(inst, nil)
		}
		if !models.IsTransport(err) {
			err = fmt.Errorf("%w: %v", models.ErrConnectionFailed, err)
		}
		return models.StartResult{}, ls.failStart(inst, err)
	}

	proc, err := ls.provider.Launch(startCtx, handle, remoteCmd)
	if err != nil {
		ls.disconnect(inst.id, handle)
		if ls.stopRequested(inst) {
			return ls.abortStart(inst, nil)
		}
		if !models.IsTransport(err) {
			err = fmt.Errorf("%w: %v", models.ErrExecutionFailed, err)
		}
		return models.StartResult{}, ls.failStart(inst, err)
	}

	r := &run{
		proc:     proc,
		handle:   handle,
		stopVerb: command.StopCommand(cfg.Type, entry.Artifact.SelectedPath),
		done:     make(chan struct{}),
	}
	inst.mu.Lock()
	inst.run = r
	inst.mu.Unlock()
	go ls.monitor(inst, r)

	if ls.opts.StartupGrace > 0 {
		timer := time.NewTimer(ls.opts.StartupGrace)
		select {
		case <-r.done:
			timer.Stop()
			return models.StartResult{}, ls.failEarlyExit(inst, r)
		case <-startCtx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	inst.mu.Lock()
	if inst.desired != models.StatusRunning {
		inst.mu.Unlock()
		return ls.abortStart(inst, r)
	}
	select {
	case <-proc.Done():
		inst.mu.Unlock()
		<-r.done
		return models.StartResult{}, ls.failEarlyExit(inst, r)
	default:
	}
	ls.setStatusLocked(inst, models.StatusRunning, "")
	inst.mu.Unlock()

	log.Info("Server running")
	return result, nil
}

// connect opens a handle with a bounded number of attempts
func (ls *LifecycleService) connect(ctx context.Context, cfg models.ServerConfig) (sshclient.Handle, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = ls.opts.ConnectBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(ls.opts.ConnectAttempts-1)), ctx)

	var (
		handle  sshclient.Handle
		attempt int
		lastErr error
	)
	err := backoff.Retry(func() error {
		attempt++
		h, err := ls.provider.Connect(ctx, cfg)
		if err != nil {
			lastErr = err
			logger.WithFields(map[string]interface{}{
				"server_id": cfg.ID,
				"attempt":   attempt,
				"error":     err.Error(),
			}).Warn("Connect attempt failed")
			if errors.Is(err, sshclient.ErrAuthentication) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		handle = h
		return nil
	}, policy)
	if err != nil {
		// a cancelled context surfaces as ctx.Err(); keep the transport error
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return handle, nil
}

func (ls *LifecycleService) stopRequested(inst *instance) bool {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.desired != models.StatusRunning
}

func (ls *LifecycleService) failStart(inst *instance, err error) error {
	logger.WithServer(inst.id).WithField("error", err.Error()).Error("Server failed to start")
	ls.setStatus(inst, models.StatusError, err.Error())
	return err
}

// failEarlyExit handles a process that ended within the startup grace period
func (ls *LifecycleService) failEarlyExit(inst *instance, r *run) error {
	ls.disconnect(inst.id, r.handle)

	var err error
	if perr := r.proc.Err(); perr != nil {
		err = perr
	} else {
		err = fmt.Errorf("%w: process exited during startup with code %d", models.ErrExecutionFailed, r.proc.ExitCode())
	}
	if tail := inst.console.Lines(); len(tail) > 0 {
		err = fmt.Errorf("%w (last output: %s)", err, tail[len(tail)-1])
	}

	inst.mu.Lock()
	if inst.run == r {
		inst.run = nil
	}
	inst.mu.Unlock()

	return ls.failStart(inst, err)
}

// abortStart tears down whatever the start acquired after a stop asked for it
func (ls *LifecycleService) abortStart(inst *instance, r *run) (models.StartResult, error) {
	logger.WithServer(inst.id).Info("Start aborted by stop request")

	if r != nil {
		ls.kill(inst.id, r)
	}

	inst.mu.Lock()
	if inst.run == r {
		inst.run = nil
	}
	inst.console.Clear()
	ls.setStatusLocked(inst, models.StatusStopped, "")
	inst.mu.Unlock()

	return models.StartResult{}, fmt.Errorf("%w: %s", models.ErrStartAborted, inst.id)
}

// monitor relays output of r into the console and reconciles an exit that
// no lifecycle operation asked for.
func (ls *LifecycleService) monitor(inst *instance, r *run) {
	defer close(r.done)

	for line := range r.proc.Lines() {
		inst.console.Append(line)
		ls.bus.Publish(models.Event{
			ServerID: inst.id,
			Type:     models.EventConsoleLine,
			Payload:  models.ConsoleLine{Line: line},
		})
	}
	<-r.proc.Done()

	inst.mu.Lock()
	if inst.run != r {
		inst.mu.Unlock()
		return
	}

	code := r.proc.ExitCode()
	switch inst.status {
	case models.StatusRunning:
		inst.run = nil
		if err := r.proc.Err(); err != nil {
			ls.setStatusLocked(inst, models.StatusError, err.Error())
		} else if code != 0 {
			ls.setStatusLocked(inst, models.StatusError, fmt.Sprintf("process exited with code %d", code))
		} else {
			ls.setStatusLocked(inst, models.StatusStopped, "")
		}
	case models.StatusError:
		inst.run = nil
	default:
		// starting or stopping: the operation in flight cleans up
		inst.mu.Unlock()
		return
	}
	inst.mu.Unlock()

	logger.WithServer(inst.id).WithField("exit_code", code).Warn("Server process exited unexpectedly")
	ls.disconnect(inst.id, r.handle)
}

// Stop shuts the server's process down. Stopping a server that is still
// starting cancels the start.
func (ls *LifecycleService) Stop(ctx context.Context, id string) error {
	if _, err := ls.registry.Get(id); err != nil {
		return err
	}
	inst := ls.lookup(id)
	if inst == nil {
		return errRemoved(id)
	}

	inst.mu.Lock()
	switch inst.status {
	case models.StatusStopped:
		inst.mu.Unlock()
		return fmt.Errorf("%w: %s is already stopped", models.ErrNotActive, id)
	case models.StatusStopping:
		inst.mu.Unlock()
		return fmt.Errorf("%w: %s is stopping", models.ErrOperationInProgress, id)
	case models.StatusStarting:
		inst.desired = models.StatusStopped
		if inst.cancelStart != nil {
			inst.cancelStart()
		}
		inst.mu.Unlock()

		logger.WithServer(id).Info("Stop requested while starting, cancelling start")
		if err := ls.waitSlot(ctx, inst); err != nil {
			return err
		}
	default:
		inst.mu.Unlock()
		if !inst.tryAcquire() {
			return fmt.Errorf("%w: %s", models.ErrOperationInProgress, id)
		}
	}
	defer inst.release()

	if st, _ := inst.state(); st == models.StatusStopped {
		// the cancelled start already wound down
		return nil
	}
	return ls.stopLocked(inst)
}

// waitSlot blocks until the slot is free, bounded by ctx and the stop timeout
func (ls *LifecycleService) waitSlot(ctx context.Context, inst *instance) error {
	timer := time.NewTimer(ls.opts.StopTimeout)
	defer timer.Stop()

	select {
	case inst.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", models.ErrOperationInProgress, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("%w: %w: start of %s did not wind down", models.ErrOperationInProgress, models.ErrTimeout, inst.id)
	}
}

// stopLocked runs the stop transition; the caller holds the slot
func (ls *LifecycleService) stopLocked(inst *instance) error {
	log := logger.WithServer(inst.id)

	inst.mu.Lock()
	if inst.status == models.StatusStopped {
		inst.mu.Unlock()
		return fmt.Errorf("%w: %s is already stopped", models.ErrNotActive, inst.id)
	}
	inst.desired = models.StatusStopped
	r := inst.run
	ls.setStatusLocked(inst, models.StatusStopping, inst.lastError)
	inst.mu.Unlock()

	exited := true
	if r != nil {
		log.Info("Stopping server")
		if err := requestStop(r); err != nil {
			log.WithField("error", err.Error()).Warn("Graceful stop could not be delivered")
		}

		if waitDone(r.done, ls.opts.StopTimeout) {
			ls.disconnect(inst.id, r.handle)
		} else {
			log.WithField("timeout", ls.opts.StopTimeout.String()).Warn("Server did not stop in time, killing")
			exited = ls.kill(inst.id, r)
		}
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.run == r {
		inst.run = nil
	}
	if !exited {
		err := fmt.Errorf("%w: %w: process of %s did not exit after kill", models.ErrExecutionFailed, models.ErrTimeout, inst.id)
		ls.setStatusLocked(inst, models.StatusError, err.Error())
		return err
	}

	inst.console.Clear()
	ls.setStatusLocked(inst, models.StatusStopped, "")
	log.Info("Server stopped")
	return nil
}

// requestStop asks the process to exit on its own: a console verb for
// Java servers, SIGTERM otherwise.
func requestStop(r *run) error {
	if r.stopVerb != "" {
		return r.proc.Send(r.stopVerb)
	}
	return r.proc.Signal(sshclient.SignalTerm)
}

// kill forces r down and reports whether its exit was observed
func (ls *LifecycleService) kill(id string, r *run) bool {
	if err := r.proc.Signal(sshclient.SignalKill); err != nil {
		logger.WithServer(id).WithField("error", err.Error()).Debug("Kill signal not delivered")
	}
	_ = r.proc.Close()
	ls.disconnect(id, r.handle)
	return waitDone(r.done, ls.killWait)
}

func (ls *LifecycleService) disconnect(id string, h sshclient.Handle) {
	if err := ls.provider.Disconnect(h); err != nil {
		logger.WithServer(id).WithField("error", err.Error()).Warn("Disconnect failed")
	}
}

func waitDone(done <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Restart stops the server, waits for the stop to complete, then starts it
// again. A failed stop leaves the server in error without starting it.
func (ls *LifecycleService) Restart(ctx context.Context, id string) (models.StartResult, error) {
	if _, err := ls.registry.Get(id); err != nil {
		return models.StartResult{}, err
	}
	inst := ls.lookup(id)
	if inst == nil {
		return models.StartResult{}, errRemoved(id)
	}

	switch st, _ := inst.state(); st {
	case models.StatusStopped:
		return models.StartResult{}, fmt.Errorf("%w: %s is stopped", models.ErrNotActive, id)
	case models.StatusStarting, models.StatusStopping:
		return models.StartResult{}, fmt.Errorf("%w: %s is %s", models.ErrOperationInProgress, id, st)
	}

	if !inst.tryAcquire() {
		return models.StartResult{}, fmt.Errorf("%w: %s", models.ErrOperationInProgress, id)
	}
	defer inst.release()

	logger.WithServer(id).Info("Restarting server")
	if err := ls.stopLocked(inst); err != nil {
		return models.StartResult{}, err
	}
	return ls.startLocked(ctx, inst)
}

// SendCommand writes text to the server's console input
func (ls *LifecycleService) SendCommand(ctx context.Context, id, text string) error {
	if _, err := ls.registry.Get(id); err != nil {
		return err
	}
	text = strings.TrimRight(text, "\r\n")
	if strings.TrimSpace(text) == "" || strings.ContainsAny(text, "\r\n") {
		return fmt.Errorf("%w: %q", models.ErrInvalidCommand, text)
	}

	inst := ls.lookup(id)
	if inst == nil {
		return errRemoved(id)
	}
	inst.mu.RLock()
	st, r := inst.status, inst.run
	inst.mu.RUnlock()
	if st != models.StatusRunning || r == nil {
		return fmt.Errorf("%w: %s is %s", models.ErrNotActive, id, st)
	}

	echo := "> " + text
	inst.console.Append(echo)
	ls.bus.Publish(models.Event{
		ServerID: id,
		Type:     models.EventConsoleLine,
		Payload:  models.ConsoleLine{Line: echo},
	})

	if err := r.proc.Send(text); err != nil {
		if !models.IsTransport(err) {
			err = fmt.Errorf("%w: %v", models.ErrExecutionFailed, err)
		}
		inst.mu.Lock()
		if inst.run == r && inst.status == models.StatusRunning {
			ls.setStatusLocked(inst, models.StatusError, err.Error())
		}
		inst.mu.Unlock()
		return err
	}

	logger.WithServer(id).WithField("command", text).Debug("Console command sent")
	return nil
}

// RegisterServer adds a server and optionally selects its startup file
func (ls *LifecycleService) RegisterServer(cfg models.ServerConfig, startupFile string) (models.ServerEntry, error) {
	if startupFile != "" {
		if err := registry.ValidateArtifactPath(startupFile); err != nil {
			return models.ServerEntry{}, err
		}
	}

	entry, err := ls.registry.Register(cfg)
	if err != nil {
		return models.ServerEntry{}, err
	}
	if startupFile != "" {
		art, err := ls.registry.SetStartupArtifact(entry.Config.ID, startupFile)
		if err != nil {
			_ = ls.registry.Remove(entry.Config.ID)
			return models.ServerEntry{}, err
		}
		entry.Artifact = art
		entry.Version++
	}
	ls.instance(entry.Config.ID)

	ls.bus.Publish(models.Event{
		ServerID: entry.Config.ID,
		Type:     models.EventServerAdded,
		Payload:  entry.ToResponse(),
	})
	return entry, nil
}

// UpdateServer applies patch to a server's config. Changes take effect on
// the next start.
func (ls *LifecycleService) UpdateServer(id string, patch models.ServerPatch) (models.ServerEntry, error) {
	if _, err := ls.registry.Get(id); err != nil {
		return models.ServerEntry{}, err
	}
	inst := ls.lookup(id)
	if inst == nil {
		return models.ServerEntry{}, errRemoved(id)
	}
	if !inst.tryAcquire() {
		return models.ServerEntry{}, fmt.Errorf("%w: %s", models.ErrOperationInProgress, id)
	}
	defer inst.release()

	entry, err := ls.registry.Update(id, patch)
	if err != nil {
		return models.ServerEntry{}, err
	}

	ls.bus.Publish(models.Event{
		ServerID: id,
		Type:     models.EventConfigChanged,
		Payload:  entry.ToResponse(),
	})
	return entry, nil
}

// RemoveServer deletes a stopped or errored server
func (ls *LifecycleService) RemoveServer(id string) error {
	if _, err := ls.registry.Get(id); err != nil {
		return err
	}
	inst := ls.lookup(id)
	if inst == nil {
		return errRemoved(id)
	}
	if !inst.tryAcquire() {
		return fmt.Errorf("%w: %s", models.ErrOperationInProgress, id)
	}
	defer inst.release()

	if err := ls.registry.Remove(id); err != nil {
		return err
	}

	ls.mu.Lock()
	if ls.instances[id] == inst {
		delete(ls.instances, id)
	}
	ls.mu.Unlock()
	inst.console.CloseSubscribers()

	ls.bus.Publish(models.Event{ServerID: id, Type: models.EventServerRemoved})
	return nil
}

// SetStartupFile selects the launcher file used by the next start
func (ls *LifecycleService) SetStartupFile(id, path string) (models.StartupArtifact, error) {
	if _, err := ls.registry.Get(id); err != nil {
		return models.StartupArtifact{}, err
	}
	inst := ls.lookup(id)
	if inst == nil {
		return models.StartupArtifact{}, errRemoved(id)
	}
	if !inst.tryAcquire() {
		return models.StartupArtifact{}, fmt.Errorf("%w: %s", models.ErrOperationInProgress, id)
	}
	defer inst.release()

	art, err := ls.registry.SetStartupArtifact(id, path)
	if err != nil {
		return models.StartupArtifact{}, err
	}

	ls.bus.Publish(models.Event{
		ServerID: id,
		Type:     models.EventArtifactChanged,
		Payload:  models.ArtifactChange{StartupFile: art.SelectedPath},
	})
	return art, nil
}

// GetStatus returns the detailed status of one server
func (ls *LifecycleService) GetStatus(id string) (models.ServerStatus, error) {
	entry, err := ls.registry.Get(id)
	if err != nil {
		return models.ServerStatus{}, err
	}
	status := models.ServerStatus{
		ID:          id,
		Status:      models.StatusStopped,
		StartupFile: entry.Artifact.SelectedPath,
		CanStart:    entry.Artifact.Ready(),
	}
	// removed since the registry read
	inst := ls.lookup(id)
	if inst == nil {
		return status, nil
	}
	status.Status, status.LastError = inst.state()
	status.ConsoleSize = inst.console.Len()
	return status, nil
}

// ListServers returns a summary row per registered server, ordered by id
func (ls *LifecycleService) ListServers() []models.ServerSummary {
	entries := ls.registry.List()
	out := make([]models.ServerSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.ServerSummary{
			ID:          e.Config.ID,
			Name:        e.Config.Name,
			Type:        e.Config.Type,
			Status:      ls.Status(e.Config.ID),
			StartupFile: e.Artifact.SelectedPath,
			CanStart:    e.Artifact.Ready(),
		})
	}
	return out
}

// GetServer returns the registry entry of one server
func (ls *LifecycleService) GetServer(id string) (models.ServerEntry, error) {
	return ls.registry.Get(id)
}

// Console returns the buffered console lines of a server and the buffer capacity
func (ls *LifecycleService) Console(id string) ([]string, int, error) {
	if _, err := ls.registry.Get(id); err != nil {
		return nil, 0, err
	}
	inst := ls.lookup(id)
	if inst == nil {
		return []string{}, ls.opts.ConsoleCapacity, nil
	}
	return inst.console.Lines(), inst.console.Capacity(), nil
}

// SubscribeConsole returns the console snapshot and a live subscription
func (ls *LifecycleService) SubscribeConsole(id string) ([]string, *console.Subscription, error) {
	if _, err := ls.registry.Get(id); err != nil {
		return nil, nil, err
	}
	inst := ls.lookup(id)
	if inst == nil {
		return nil, nil, errRemoved(id)
	}
	lines, sub := inst.console.Subscribe()
	return lines, sub, nil
}

// Shutdown stops every active server concurrently
func (ls *LifecycleService) Shutdown(ctx context.Context) error {
	ls.mu.RLock()
	ids := make([]string, 0, len(ls.instances))
	for id, inst := range ls.instances {
		if st, _ := inst.state(); st.Active() || st == models.StatusError {
			ids = append(ids, id)
		}
	}
	ls.mu.RUnlock()

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			logger.WithServer(id).Info("Stopping server for shutdown")
			err := ls.Stop(ctx, id)
			if err != nil && !errors.Is(err, models.ErrNotActive) {
				errs[i] = fmt.Errorf("%s: %w", id, err)
			}
		}(i, id)
	}
	wg.Wait()
	return errors.Join(errs...)
}
