package media

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/amankumarsingh77/media-fetcher/internal/models"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunnerStreamsLines(t *testing.T) {
	requireShell(t)
	var stdout, stderr []string
	proc, err := NewExecRunner().Start(context.Background(), Command{
		Name:     "sh",
		Args:     []string{"-c", `printf '10.0%%\n55.5%%\r100%%\n'; echo oops >&2; exit 3`},
		OnStdout: func(line string) { stdout = append(stdout, line) },
		OnStderr: func(line string) { stderr = append(stderr, line) },
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	status, err := proc.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if status.Code != 3 || status.Signaled || status.Success() {
		t.Fatalf("status = %+v", status)
	}
	if len(stdout) != 3 || stdout[0] != "10.0%" || stdout[1] != "55.5%" || stdout[2] != "100%" {
		t.Fatalf("stdout = %q", stdout)
	}
	if len(stderr) != 1 || stderr[0] != "oops" {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestExecRunnerSuccess(t *testing.T) {
	requireShell(t)
	proc, err := NewExecRunner().Start(context.Background(), Command{Name: "sh", Args: []string{"-c", "exit 0"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	status, err := proc.Wait()
	if err != nil || !status.Success() {
		t.Fatalf("status = %+v, err = %v", status, err)
	}
	again, _ := proc.Wait()
	if again != status {
		t.Fatalf("second Wait = %+v", again)
	}
}

func TestExecRunnerSpawnFailure(t *testing.T) {
	_, err := NewExecRunner().Start(context.Background(), Command{Name: "definitely-not-a-real-tool-7c1f"})
	if !errors.Is(err, models.ErrEngineUnavailable) {
		t.Fatalf("err = %v, want engine unavailable", err)
	}
}

func TestExecRunnerTerminate(t *testing.T) {
	requireShell(t)
	ready := make(chan struct{})
	proc, err := NewExecRunner().Start(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo ready; exec sleep 30"},
		OnStdout: func(line string) {
			if line == "ready" {
				close(ready)
			}
		},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("process never became ready")
	}
	if err := proc.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	done := make(chan ExitStatus, 1)
	go func() {
		status, _ := proc.Wait()
		done <- status
	}()
	select {
	case status := <-done:
		if !status.Signaled || status.Success() {
			t.Fatalf("status = %+v, want signaled", status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after Terminate")
	}
	if err := proc.Terminate(); err != nil {
		t.Fatalf("Terminate after exit: %v", err)
	}
}
