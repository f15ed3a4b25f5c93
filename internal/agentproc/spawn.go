// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package agentproc spawns a real ssh-agent binary for demo and test use.
// It is a collaborator with a contract only: the core client in the parent
// module never shells out, and never needs to — agentproc exists purely to
// give the example program something real to dial.
package agentproc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
)

// Agent describes a running ssh-agent process.
type Agent struct {
	Socket string // path suitable for $SSH_AUTH_SOCK
	pid    int
}

// Close terminates the agent process. It is safe to call more than once.
func (a *Agent) Close() error {
	if a.pid == 0 {
		return nil
	}
	proc, err := os.FindProcess(a.pid)
	if err != nil {
		return nil // already gone
	}
	err = proc.Signal(syscall.SIGTERM)
	a.pid = 0
	return err
}

// Spawn starts "ssh-agent" bound to a fresh socket in a private temp
// directory and returns once it has announced itself. The caller must
// call [Agent.Close] when done.
//
// ssh-agent's default (non-"-D") mode forks into the background and
// prints three lines of shell-exportable environment on its original
// stdout before the parent exits; Spawn scrapes SSH_AGENT_PID out of that
// announcement by cutting on a known marker rather than parsing the whole
// line grammar.
func Spawn(ctx context.Context) (*Agent, error) {
	dir, err := os.MkdirTemp("", "sshagent-spawn-*")
	if err != nil {
		return nil, fmt.Errorf("agentproc: create socket dir: %w", err)
	}
	sock := filepath.Join(dir, "agent.sock")

	cmd := exec.CommandContext(ctx, "ssh-agent", "-a", sock)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("agentproc: run ssh-agent: %w", err)
	}

	pid, err := parseAgentPID(out.Bytes())
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return &Agent{Socket: sock, pid: pid}, nil
}

// parseAgentPID extracts the numeric value of SSH_AGENT_PID from
// ssh-agent's announcement, e.g.:
//
//	SSH_AUTH_SOCK=/tmp/.../agent.sock; export SSH_AUTH_SOCK;
//	SSH_AGENT_PID=1234; export SSH_AGENT_PID;
//	echo Agent pid 1234;
func parseAgentPID(announcement []byte) (int, error) {
	const marker = "SSH_AGENT_PID="
	idx := bytes.Index(announcement, []byte(marker))
	if idx < 0 {
		return 0, fmt.Errorf("agentproc: no %s in ssh-agent output", marker)
	}
	rest := announcement[idx+len(marker):]
	end := bytes.IndexByte(rest, ';')
	if end < 0 {
		end = bytes.IndexByte(rest, '\n')
	}
	if end < 0 {
		return 0, fmt.Errorf("agentproc: malformed SSH_AGENT_PID announcement")
	}
	pid, err := strconv.Atoi(string(rest[:end]))
	if err != nil {
		return 0, fmt.Errorf("agentproc: parse SSH_AGENT_PID: %w", err)
	}
	return pid, nil
}
