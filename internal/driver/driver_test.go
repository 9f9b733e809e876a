package driver

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/me/seqflow/internal/store"
	"github.com/me/seqflow/pkg/model"
)

// fakeStages records stage dispatches and advances the submission through
// the store so multi-tick progression can be observed.
type fakeStages struct {
	store store.SubmissionStore

	mu    sync.Mutex
	calls map[string][]string // submission id -> stage names in order

	failStage string // stage name that should fail without advancing
}

func newFakeStages(st store.SubmissionStore) *fakeStages {
	return &fakeStages{store: st, calls: make(map[string][]string)}
}

func (f *fakeStages) record(id, stage string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id] = append(f.calls[id], stage)
	return stage != f.failStage
}

func (f *fakeStages) stageCalls(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls[id]...)
}

func (f *fakeStages) DownloadFiles(ctx context.Context, id string) error {
	if !f.record(id, "download") {
		return &transientErr{}
	}
	return f.store.CompareAndAdvance(ctx, id, model.SubmissionStateCreated, model.SubmissionStateFilesMirrored, nil)
}

func (f *fakeStages) Prepare(ctx context.Context, id string) error {
	if !f.record(id, "prepare") {
		return &transientErr{}
	}
	return f.store.CompareAndAdvance(ctx, id, model.SubmissionStateFilesMirrored, model.SubmissionStatePrepared, nil)
}

func (f *fakeStages) Execute(ctx context.Context, id string) error {
	if !f.record(id, "execute") {
		return &transientErr{}
	}
	return f.store.CompareAndAdvance(ctx, id, model.SubmissionStatePrepared, model.SubmissionStateRunning, nil)
}

func (f *fakeStages) CollectResults(ctx context.Context, id string) (*model.Analysis, error) {
	if !f.record(id, "collect") {
		return nil, &transientErr{}
	}
	err := f.store.CompareAndAdvance(ctx, id, model.SubmissionStateRunning, model.SubmissionStateCompleted, nil)
	if err != nil {
		return nil, err
	}
	return &model.Analysis{SubmissionID: id}, nil
}

type transientErr struct{}

func (*transientErr) Error() string   { return "temporarily unavailable" }
func (*transientErr) Retryable() bool { return true }

func testSetup(t *testing.T) (*Loop, *fakeStages, store.SubmissionStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	stages := newFakeStages(st)
	return NewLoop(st, stages, DefaultConfig(), logger), stages, st
}

func seed(t *testing.T, st store.SubmissionStore, state model.SubmissionState) string {
	t.Helper()
	now := time.Now().UTC()
	sub := &model.AnalysisSubmission{
		ID:          "sub_" + uuid.NewString(),
		Name:        "test",
		WorkflowID:  "assembly",
		SubmittedBy: "alice",
		State:       state,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := st.CreateSubmission(context.Background(), sub); err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	return sub.ID
}

func TestTick_DispatchesStageForState(t *testing.T) {
	loop, stages, st := testSetup(t)
	ctx := context.Background()

	created := seed(t, st, model.SubmissionStateCreated)
	prepared := seed(t, st, model.SubmissionStatePrepared)
	done := seed(t, st, model.SubmissionStateCompleted)

	if err := loop.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if got := stages.stageCalls(created); len(got) != 1 || got[0] != "download" {
		t.Errorf("created submission stages = %v, want [download]", got)
	}
	if got := stages.stageCalls(prepared); len(got) != 1 || got[0] != "execute" {
		t.Errorf("prepared submission stages = %v, want [execute]", got)
	}
	if got := stages.stageCalls(done); len(got) != 0 {
		t.Errorf("terminal submission dispatched: %v", got)
	}
}

func TestTick_ProgressionAcrossTicks(t *testing.T) {
	loop, stages, st := testSetup(t)
	ctx := context.Background()

	id := seed(t, st, model.SubmissionStateCreated)

	// One stage per tick: each tick lists by the state committed in the
	// previous one.
	for i := 0; i < 4; i++ {
		if err := loop.Tick(ctx); err != nil {
			t.Fatalf("Tick %d: %v", i+1, err)
		}
	}

	sub, err := st.GetSubmission(ctx, id)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.State != model.SubmissionStateCompleted {
		t.Errorf("state = %s, want COMPLETED", sub.State)
	}

	want := []string{"download", "prepare", "execute", "collect"}
	got := stages.stageCalls(id)
	if len(got) != len(want) {
		t.Fatalf("stage calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stage calls = %v, want %v", got, want)
		}
	}
}

func TestTick_TransientFailureRetriedNextTick(t *testing.T) {
	loop, stages, st := testSetup(t)
	ctx := context.Background()

	id := seed(t, st, model.SubmissionStatePrepared)
	stages.failStage = "execute"

	if err := loop.Tick(ctx); err != nil {
		t.Fatalf("Tick 1: %v", err)
	}
	sub, err := st.GetSubmission(ctx, id)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.State != model.SubmissionStatePrepared {
		t.Fatalf("state = %s, want PREPARED after transient failure", sub.State)
	}

	stages.failStage = ""
	if err := loop.Tick(ctx); err != nil {
		t.Fatalf("Tick 2: %v", err)
	}
	sub, err = st.GetSubmission(ctx, id)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.State != model.SubmissionStateRunning {
		t.Fatalf("state = %s, want RUNNING after retry", sub.State)
	}

	if got := stages.stageCalls(id); len(got) != 2 {
		t.Errorf("stage calls = %v, want execute twice", got)
	}
}

func TestTick_EmptyStore(t *testing.T) {
	loop, _, _ := testSetup(t)
	if err := loop.Tick(context.Background()); err != nil {
		t.Fatalf("Tick with empty DB: %v", err)
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := Config{PollInterval: 10 * time.Millisecond}
	loop := NewLoop(st, newFakeStages(st), cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- loop.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Start returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}
