package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/seqflow/internal/config"
	"github.com/me/seqflow/internal/registry"
	"github.com/me/seqflow/internal/server"
	"github.com/me/seqflow/internal/store"
)

// startTestServer starts a server with an in-memory SQLite store and one
// registered workflow, returning the URL.
func startTestServer(t *testing.T) string {
	t.Helper()
	srvLogger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))

	st, err := store.NewSQLiteStore(":memory:", srvLogger)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dir := t.TempDir()
	descriptor := "id: assembly\nname: Assembly\nversion: \"1.0\"\ndefinition: assembly.ga\n"
	if err := os.WriteFile(filepath.Join(dir, "assembly.yaml"), []byte(descriptor), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "assembly.ga"), []byte(`{"steps": {}}`), 0o644); err != nil {
		t.Fatalf("write definition: %v", err)
	}
	reg, err := registry.Load(dir, srvLogger)
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}

	srv := server.New(config.DefaultServerConfig(), st, st, reg, srvLogger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

// createTestSubmission creates a submission via HTTP and returns its ID.
func createTestSubmission(t *testing.T, serverURL string) string {
	t.Helper()

	srvLogger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	c := NewClient(serverURL, srvLogger)

	resp, err := c.Post("/api/v1/submissions/", map[string]any{
		"workflow_id":  "assembly",
		"submitted_by": "alice",
		"single_files": []map[string]any{{"locator": "https://seq.example/reads.fastq"}},
	})
	if err != nil {
		t.Fatalf("create submission: %v", err)
	}
	var data map[string]any
	json.Unmarshal(resp.Data, &data)
	return data["id"].(string)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

// captureStdout runs fn while capturing everything written to os.Stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func TestSubmitCommand(t *testing.T) {
	url := startTestServer(t)

	var err error
	output := captureStdout(t, func() {
		_, err = runCLI(t,
			"--server", url,
			"submit", "assembly",
			"--user", "alice",
			"--file", "https://seq.example/reads.fastq",
			"--pair", "https://seq.example/r1.fastq,https://seq.example/r2.fastq",
		)
	})

	if err != nil {
		t.Fatalf("submit error: %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "Submission created: sub_") {
		t.Errorf("expected 'Submission created: sub_' in output, got: %s", output)
	}
	if !strings.Contains(output, "CREATED") {
		t.Errorf("expected CREATED state in output, got: %s", output)
	}
}

func TestSubmitCommand_MalformedPair(t *testing.T) {
	url := startTestServer(t)
	_, err := runCLI(t,
		"--server", url,
		"submit", "assembly",
		"--user", "alice",
		"--pair", "only-forward",
	)
	if err == nil {
		t.Fatal("expected error for malformed pair")
	}
}

func TestSubmitCommand_UnknownWorkflow(t *testing.T) {
	url := startTestServer(t)
	_, err := runCLI(t,
		"--server", url,
		"submit", "no-such-workflow",
		"--user", "alice",
		"--file", "https://seq.example/reads.fastq",
	)
	if err == nil {
		t.Fatal("expected error for unknown workflow")
	}
}

func TestStatusCommand(t *testing.T) {
	url := startTestServer(t)
	subID := createTestSubmission(t, url)

	var err error
	output := captureStdout(t, func() {
		_, err = runCLI(t, "--server", url, "status", subID)
	})

	if err != nil {
		t.Fatalf("status error: %v", err)
	}
	if !strings.Contains(output, subID) {
		t.Errorf("expected submission ID in output, got: %s", output)
	}
	if !strings.Contains(output, "CREATED") {
		t.Errorf("expected CREATED state in output, got: %s", output)
	}
}

func TestListCommand(t *testing.T) {
	url := startTestServer(t)
	createTestSubmission(t, url)

	var err error
	output := captureStdout(t, func() {
		_, err = runCLI(t, "--server", url, "list")
	})

	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if !strings.Contains(output, "ID") {
		t.Errorf("expected table header in output, got: %s", output)
	}
	if !strings.Contains(output, "CREATED") {
		t.Errorf("expected submission state in output, got: %s", output)
	}
}

func TestDeleteCommand(t *testing.T) {
	url := startTestServer(t)
	subID := createTestSubmission(t, url)

	var err error
	output := captureStdout(t, func() {
		_, err = runCLI(t, "--server", url, "delete", subID)
	})

	if err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if !strings.Contains(output, "deleted") {
		t.Errorf("expected deletion confirmation, got: %s", output)
	}

	// The submission is gone now.
	_, err = runCLI(t, "--server", url, "status", subID)
	if err == nil {
		t.Fatal("expected error for deleted submission")
	}
}

func TestResultCommand_NotReady(t *testing.T) {
	url := startTestServer(t)
	subID := createTestSubmission(t, url)

	_, err := runCLI(t, "--server", url, "result", subID)
	if err == nil {
		t.Fatal("expected error for submission without a result")
	}
}

func TestWorkflowsCommand(t *testing.T) {
	url := startTestServer(t)

	var err error
	output := captureStdout(t, func() {
		_, err = runCLI(t, "--server", url, "workflows")
	})

	if err != nil {
		t.Fatalf("workflows error: %v", err)
	}
	if !strings.Contains(output, "assembly") {
		t.Errorf("expected workflow id in output, got: %s", output)
	}
}
