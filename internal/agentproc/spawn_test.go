// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package agentproc

import "testing"

func TestParseAgentPID(t *testing.T) {
	const announcement = "SSH_AUTH_SOCK=/tmp/ssh-XXXX/agent.sock; export SSH_AUTH_SOCK;\n" +
		"SSH_AGENT_PID=4242; export SSH_AGENT_PID;\n" +
		"echo Agent pid 4242;\n"
	pid, err := parseAgentPID([]byte(announcement))
	if err != nil {
		t.Fatalf("parseAgentPID: %v", err)
	}
	if pid != 4242 {
		t.Errorf("pid = %d, want 4242", pid)
	}
}

func TestParseAgentPIDMissingMarker(t *testing.T) {
	if _, err := parseAgentPID([]byte("nothing useful here")); err == nil {
		t.Error("expected an error for an announcement with no SSH_AGENT_PID")
	}
}

func TestParseAgentPIDNewlineTerminated(t *testing.T) {
	// Some ssh-agent builds terminate the line with a bare newline instead
	// of "; export ...".
	pid, err := parseAgentPID([]byte("SSH_AGENT_PID=99\n"))
	if err != nil {
		t.Fatalf("parseAgentPID: %v", err)
	}
	if pid != 99 {
		t.Errorf("pid = %d, want 99", pid)
	}
}
