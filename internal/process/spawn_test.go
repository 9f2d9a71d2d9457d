package process

import (
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func waitExit(t *testing.T, pid int) unix.WaitStatus {
	t.Helper()
	var status unix.WaitStatus
	if _, err := unix.Wait4(pid, &status, 0, nil); err != nil {
		t.Fatalf("wait4 %d: %v", pid, err)
	}
	return status
}

func TestStartCreatesGroupLeader(t *testing.T) {
	pid, err := Start(Spec{Argv: []string{"sleep", "1"}, Ctty: -1})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		_ = SignalGroup(pid, syscall.SIGKILL)
		waitExit(t, pid)
	})

	pgid, err := unix.Getpgid(pid)
	if err != nil {
		t.Fatalf("getpgid: %v", err)
	}
	if pgid != pid {
		t.Fatalf("expected child to lead its group, pgid=%d pid=%d", pgid, pid)
	}
	if pgid == unix.Getpgrp() {
		t.Fatalf("child shares the test's process group")
	}
}

func TestStartJoinsExistingGroup(t *testing.T) {
	leader, err := Start(Spec{Argv: []string{"sleep", "1"}, Ctty: -1})
	if err != nil {
		t.Fatalf("start leader: %v", err)
	}
	member, err := Start(Spec{Argv: []string{"sleep", "1"}, Pgid: leader, Ctty: -1})
	if err != nil {
		t.Fatalf("start member: %v", err)
	}

	pgid, err := unix.Getpgid(member)
	if err != nil {
		t.Fatalf("getpgid: %v", err)
	}
	if pgid != leader {
		t.Fatalf("expected member in group %d, got %d", leader, pgid)
	}

	if err := Terminate(nil, leader, false); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	for _, pid := range []int{leader, member} {
		status := waitExit(t, pid)
		if !status.Signaled() || status.Signal() != syscall.SIGTERM {
			t.Fatalf("pid %d: expected SIGTERM, got %v", pid, status)
		}
	}
}

func TestStartWiresStdio(t *testing.T) {
	out, err := os.CreateTemp(t.TempDir(), "stdout")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	defer out.Close()

	pid, err := Start(Spec{Argv: []string{"echo", "hello"}, Stdout: out, Ctty: -1})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if status := waitExit(t, pid); status.ExitStatus() != 0 {
		t.Fatalf("unexpected status %v", status)
	}
	data, err := os.ReadFile(out.Name())
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "hello\n" {
		t.Fatalf("unexpected output %q", data)
	}
}

func TestResolveReportsMissingCommand(t *testing.T) {
	_, err := Resolve("definitely-not-a-command-jobsh")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := Start(Spec{Argv: []string{"definitely-not-a-command-jobsh"}, Ctty: -1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Start, got %v", err)
	}
}

func TestSignalGroupToleratesMissingGroup(t *testing.T) {
	pid, err := Start(Spec{Argv: []string{"true"}, Ctty: -1})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitExit(t, pid)
	// Give the kernel a moment to release the group.
	time.Sleep(10 * time.Millisecond)
	if err := SignalGroup(pid, syscall.SIGTERM); err != nil {
		t.Fatalf("expected no error for a vanished group, got %v", err)
	}
	if err := SignalGroup(0, syscall.SIGTERM); err == nil {
		t.Fatalf("expected error for invalid group")
	}
}

func TestTerminateContinuesStoppedGroup(t *testing.T) {
	var sent []syscall.Signal
	record := func(pgid int, sig syscall.Signal) error {
		if pgid != 42 {
			t.Fatalf("unexpected group %d", pgid)
		}
		sent = append(sent, sig)
		return nil
	}

	if err := Terminate(record, 42, true); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if len(sent) != 2 || sent[0] != syscall.SIGTERM || sent[1] != syscall.SIGCONT {
		t.Fatalf("expected SIGTERM then SIGCONT, got %v", sent)
	}

	sent = nil
	if err := Terminate(record, 42, false); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if len(sent) != 1 || sent[0] != syscall.SIGTERM {
		t.Fatalf("expected only SIGTERM, got %v", sent)
	}
}
