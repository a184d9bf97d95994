// Copyright 2025.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ssh provisions node hosts over a password-authenticated SSH
// connection.
//
// Security: host keys are not verified. Nodes are freshly rented machines the
// operator owns and has never connected to, so there is nothing to verify
// against. Set HostKeyCallback when that is not the case.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	gssh "golang.org/x/crypto/ssh"

	"github.com/Adembc/lazynode/internal/core/domain"
)

const (
	defaultDialTimeout = 10 * time.Second

	ptyTerm   = "xterm"
	ptyHeight = 40
	ptyWidth  = 120
)

// Provisioner runs NodeSetupCommands on a target host, stopping at the first
// command that fails. Commands already applied are not rolled back.
type Provisioner struct {
	logger *zap.SugaredLogger

	// DialTimeout bounds TCP connect plus SSH handshake.
	DialTimeout time.Duration

	// HostKeyCallback defaults to accepting any host key.
	HostKeyCallback gssh.HostKeyCallback

	commands func(certificate string) []string
}

func NewProvisioner(logger *zap.SugaredLogger) *Provisioner {
	return &Provisioner{
		logger:      logger,
		DialTimeout: defaultDialTimeout,
		commands:    NodeSetupCommands,
	}
}

// Provision opens one connection to target and runs the setup commands in
// order. On a command failure the partial log is returned together with a
// *domain.CommandError. If the connection cannot be opened nothing runs and a
// *domain.ProvisionError is returned.
func (p *Provisioner) Provision(ctx context.Context, target domain.NodeTarget, certificate string) (domain.ExecutionLog, error) {
	addr := target.Address()

	client, err := p.connect(ctx, target)
	if err != nil {
		p.logger.Errorw("failed to open remote session", "address", addr, "user", target.User, "error", err)
		return nil, &domain.ProvisionError{Address: addr, Err: err}
	}
	defer func() { _ = client.Close() }()

	p.logger.Infow("remote session established", "address", addr, "user", target.User)

	runner := &sessionRunner{client: client}
	log, err := runSequence(runner, addr, p.commands(certificate), func(r domain.CommandResult) {
		p.logger.Infow("remote command finished",
			"address", addr,
			"command", redact(r.Command, certificate),
			"exit_status", r.ExitStatus)
		p.logger.Debugw("remote command output", "address", addr, "stdout", r.Stdout, "stderr", r.Stderr)
	})
	if err != nil {
		p.logger.Errorw("provisioning stopped", "address", addr, "completed", len(log), "error", err)
		return log, err
	}

	p.logger.Infow("provisioning finished", "address", addr, "commands", len(log))
	return log, nil
}

func (p *Provisioner) connect(ctx context.Context, target domain.NodeTarget) (*gssh.Client, error) {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	hostKeyCallback := p.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = gssh.InsecureIgnoreHostKey() //nolint:gosec // nodes are new hosts with no known key
	}

	password := target.Password
	config := &gssh.ClientConfig{
		User: target.User,
		Auth: []gssh.AuthMethod{
			gssh.Password(password),
			gssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := target.Address()
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	// The handshake has no context of its own; bound it by the same deadline.
	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)

	sshConn, chans, reqs, err := gssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	return gssh.NewClient(sshConn, chans, reqs), nil
}

type commandRunner interface {
	Run(command string) (domain.CommandResult, error)
}

// runSequence executes commands one by one and stops at the first failure.
// The returned log always has one entry per command attempted.
func runSequence(runner commandRunner, addr string, commands []string, onResult func(domain.CommandResult)) (domain.ExecutionLog, error) {
	log := make(domain.ExecutionLog, 0, len(commands))
	for _, command := range commands {
		result, err := runner.Run(command)
		log = append(log, result)
		if onResult != nil {
			onResult(result)
		}
		if err != nil {
			return log, &domain.CommandError{Address: addr, Result: result, Err: err}
		}
		if !result.OK() {
			return log, &domain.CommandError{Address: addr, Result: result}
		}
	}
	return log, nil
}

// sessionRunner runs each command in its own session with a PTY, since sudo
// may want a terminal.
type sessionRunner struct {
	client *gssh.Client
}

func (r *sessionRunner) Run(command string) (domain.CommandResult, error) {
	result := domain.CommandResult{Command: command, ExitStatus: -1}

	session, err := r.client.NewSession()
	if err != nil {
		return result, fmt.Errorf("failed to create session: %w", err)
	}
	defer func() { _ = session.Close() }()

	modes := gssh.TerminalModes{
		gssh.ECHO:          0,
		gssh.TTY_OP_ISPEED: 14400,
		gssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(ptyTerm, ptyHeight, ptyWidth, modes); err != nil {
		return result, fmt.Errorf("failed to request pty: %w", err)
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	err = session.Run(command)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	var exitErr *gssh.ExitError
	switch {
	case err == nil:
		result.ExitStatus = 0
	case errors.As(err, &exitErr):
		result.ExitStatus = exitErr.ExitStatus()
	default:
		return result, err
	}
	return result, nil
}

// redact keeps the certificate out of logs.
func redact(command, certificate string) string {
	if certificate == "" {
		return command
	}
	return strings.ReplaceAll(command, certificate, "<certificate>")
}
