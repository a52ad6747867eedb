package sshclient

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/imyashkale/fleetctl/internal/models"
)

const (
	lineBuffer    = 256
	maxLineLength = 1024 * 1024
)

// sshProcess is a command started on an ssh.Session with stdout and stderr
// merged into one line stream.
type sshProcess struct {
	session *ssh.Session
	stdin   io.WriteCloser
	lines   chan string
	done    chan struct{}

	sendMu sync.Mutex

	mu       sync.Mutex
	exitCode int
	err      error
	closed   bool

	closeOnce sync.Once
}

func startProcess(session *ssh.Session, cmd string) (*sshProcess, error) {
	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdin: %w", err)
	}

	pr, pw := io.Pipe()
	session.Stdout = pw
	session.Stderr = pw

	if err := session.Start(cmd); err != nil {
		_ = pw.Close()
		return nil, fmt.Errorf("starting command: %w", err)
	}

	p := &sshProcess{
		session:  session,
		stdin:    stdin,
		lines:    make(chan string, lineBuffer),
		done:     make(chan struct{}),
		exitCode: -1,
	}

	readDone := make(chan struct{})
	go p.read(pr, readDone)
	go p.wait(pw, readDone)
	return p, nil
}

func (p *sshProcess) read(r *io.PipeReader, readDone chan<- struct{}) {
	defer close(readDone)
	defer close(p.lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	for scanner.Scan() {
		p.lines <- strings.TrimRight(scanner.Text(), "\r")
	}
	if scanner.Err() != nil {
		// keep the writer unblocked so the session can finish
		_, _ = io.Copy(io.Discard, r)
	}
}

func (p *sshProcess) wait(w *io.PipeWriter, readDone <-chan struct{}) {
	err := p.session.Wait()
	_ = w.Close()
	<-readDone

	p.mu.Lock()
	var exitErr *ssh.ExitError
	switch {
	case err == nil:
		p.exitCode = 0
	case errors.As(err, &exitErr):
		p.exitCode = exitErr.ExitStatus()
	case p.closed:
		// closed locally, no exit status expected
	default:
		p.err = fmt.Errorf("%w: %v", models.ErrExecutionFailed, err)
	}
	p.mu.Unlock()

	close(p.done)
}

func (p *sshProcess) Lines() <-chan string {
	return p.lines
}

func (p *sshProcess) Send(line string) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	select {
	case <-p.done:
		return fmt.Errorf("%w: process has exited", models.ErrExecutionFailed)
	default:
	}

	if _, err := io.WriteString(p.stdin, line+"\n"); err != nil {
		return fmt.Errorf("%w: writing to stdin: %v", models.ErrExecutionFailed, err)
	}
	return nil
}

func (p *sshProcess) Signal(sig Signal) error {
	if err := p.session.Signal(ssh.Signal(sig)); err != nil {
		return fmt.Errorf("%w: sending %s: %v", models.ErrExecutionFailed, sig, err)
	}
	return nil
}

func (p *sshProcess) Done() <-chan struct{} {
	return p.done
}

func (p *sshProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *sshProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close ends the session without waiting for the remote command
func (p *sshProcess) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		_ = p.stdin.Close()
		if cerr := p.session.Close(); cerr != nil && !errors.Is(cerr, io.EOF) {
			err = cerr
		}
	})
	return err
}
