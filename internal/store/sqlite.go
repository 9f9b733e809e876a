package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/seqflow/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements SubmissionStore and ResultStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// A single connection serializes writers (avoids SQLITE_BUSY under
	// concurrent stage commits) and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Submissions ---

// CreateSubmission inserts the submission and all of its file references in
// one transaction.
func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *model.AnalysisSubmission) error {
	s.logger.Debug("sql", "op", "insert", "table", "submissions", "id", sub.ID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO submissions (id, name, workflow_id, submitted_by, state,
		 remote_workflow_id, remote_analysis_id, remote_input_data_id, analysis_id, error_reason,
		 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Name, sub.WorkflowID, sub.SubmittedBy, string(sub.State),
		sub.RemoteWorkflowID, sub.RemoteAnalysisID, sub.RemoteInputDataID, sub.AnalysisID, sub.ErrorReason,
		sub.CreatedAt.Format(time.RFC3339Nano), sub.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}

	for i := range sub.PairedFiles {
		pair := &sub.PairedFiles[i]
		if err := insertFileRef(ctx, tx, sub.ID, &pair.Forward, pair.ID, "forward", sub.CreatedAt); err != nil {
			return err
		}
		if err := insertFileRef(ctx, tx, sub.ID, &pair.Reverse, pair.ID, "reverse", sub.CreatedAt); err != nil {
			return err
		}
	}
	for i := range sub.SingleFiles {
		if err := insertFileRef(ctx, tx, sub.ID, &sub.SingleFiles[i], "", "", sub.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertFileRef(ctx context.Context, tx *sql.Tx, submissionID string, ref *model.RemoteFileReference, pairID, pairRole string, createdAt time.Time) error {
	metaJSON, err := json.Marshal(ref.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO file_refs (id, submission_id, locator, local_path, metadata, pair_id, pair_role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ref.ID, submissionID, ref.Locator, ref.LocalPath, string(metaJSON), pairID, pairRole,
		createdAt.Format(time.RFC3339Nano),
	)
	return err
}

// GetSubmission loads a submission and its file references.
// Returns nil, nil when no submission with the given id exists.
func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*model.AnalysisSubmission, error) {
	s.logger.Debug("sql", "op", "select", "table", "submissions", "id", id)

	sub, err := scanSubmission(s.db.QueryRowContext(ctx,
		`SELECT id, name, workflow_id, submitted_by, state,
		 remote_workflow_id, remote_analysis_id, remote_input_data_id, analysis_id, error_reason,
		 created_at, updated_at, completed_at
		 FROM submissions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadFileRefs(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// SubmissionExists reports whether a submission row with the given id exists.
func (s *SQLiteStore) SubmissionExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListSubmissions returns submissions ordered newest first, optionally
// filtered by state. File references are not loaded for listings.
func (s *SQLiteStore) ListSubmissions(ctx context.Context, opts model.ListOptions) ([]*model.AnalysisSubmission, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "submissions", "limit", opts.Limit, "offset", opts.Offset, "state", opts.State)
	opts.Clamp()

	where := ""
	args := []any{}
	if opts.State != "" {
		where = " WHERE state = ?"
		args = append(args, opts.State)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, name, workflow_id, submitted_by, state,
	 remote_workflow_id, remote_analysis_id, remote_input_data_id, analysis_id, error_reason,
	 created_at, updated_at, completed_at
	 FROM submissions` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var subs []*model.AnalysisSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, sub)
	}
	return subs, total, rows.Err()
}

// ListSubmissionsByState returns all submissions in the given state with
// their file references loaded, oldest first so the driver services long
// waiters before new arrivals.
func (s *SQLiteStore) ListSubmissionsByState(ctx context.Context, state model.SubmissionState) ([]*model.AnalysisSubmission, error) {
	s.logger.Debug("sql", "op", "select_by_state", "table", "submissions", "state", state)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, workflow_id, submitted_by, state,
		 remote_workflow_id, remote_analysis_id, remote_input_data_id, analysis_id, error_reason,
		 created_at, updated_at, completed_at
		 FROM submissions WHERE state = ? ORDER BY created_at ASC`, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*model.AnalysisSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, sub := range subs {
		if err := s.loadFileRefs(ctx, sub); err != nil {
			return nil, err
		}
	}
	return subs, nil
}

// DeleteSubmission removes a submission and its file references.
func (s *SQLiteStore) DeleteSubmission(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "submissions", "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return model.NewNotFoundError("submission", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM file_refs WHERE submission_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// advanceColumns is the set of bookkeeping columns a stage commit may write
// alongside its state transition.
var advanceColumns = map[string]bool{
	"remote_workflow_id":   true,
	"remote_analysis_id":   true,
	"remote_input_data_id": true,
	"analysis_id":          true,
}

// CompareAndAdvance performs the atomic check-and-advance every stage
// commit relies on: a single conditional UPDATE guarded by the expected
// state. Two racing invocations for the same submission resolve safely;
// exactly one sees the expected state.
func (s *SQLiteStore) CompareAndAdvance(ctx context.Context, id string, expected, next model.SubmissionState, updates map[string]string) error {
	s.logger.Debug("sql", "op", "advance", "table", "submissions", "id", id, "from", expected, "to", next)

	if !expected.CanTransitionTo(next) {
		return &model.PreconditionError{
			SubmissionID: id,
			Reason:       fmt.Sprintf("transition %s -> %s is not allowed", expected, next),
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	set := []string{"state = ?", "updated_at = ?"}
	args := []any{string(next), now}

	for col, val := range updates {
		if !advanceColumns[col] {
			return fmt.Errorf("compare-and-advance: column %q is not updatable", col)
		}
		set = append(set, col+" = ?")
		args = append(args, val)
	}
	if next.IsTerminal() {
		set = append(set, "completed_at = ?")
		args = append(args, now)
	}

	args = append(args, id, string(expected))
	result, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET `+strings.Join(set, ", ")+` WHERE id = ? AND state = ?`,
		args...,
	)
	if err != nil {
		return err
	}

	n, _ := result.RowsAffected()
	if n == 1 {
		return nil
	}

	// Zero rows: either the submission is gone or it is not in the expected
	// state. Distinguish so callers can stop retrying on deletion.
	var actual string
	err = s.db.QueryRowContext(ctx, `SELECT state FROM submissions WHERE id = ?`, id).Scan(&actual)
	if err == sql.ErrNoRows {
		return model.NewNotFoundError("submission", id)
	}
	if err != nil {
		return err
	}
	return &model.PreconditionError{
		SubmissionID: id,
		Expected:     expected,
		Actual:       model.SubmissionState(actual),
	}
}

// MarkError moves a submission to ERROR from any non-terminal state and
// records the failure reason. Marking an already-terminal submission is a
// no-op so a late failure report cannot clobber a completed result.
func (s *SQLiteStore) MarkError(ctx context.Context, id string, reason string) error {
	s.logger.Debug("sql", "op", "mark_error", "table", "submissions", "id", id)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := s.db.ExecContext(ctx,
		`UPDATE submissions SET state = ?, error_reason = ?, updated_at = ?, completed_at = ?
		 WHERE id = ? AND state NOT IN (?, ?)`,
		string(model.SubmissionStateError), reason, now, now,
		id, string(model.SubmissionStateCompleted), string(model.SubmissionStateError),
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		exists, err := s.SubmissionExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return model.NewNotFoundError("submission", id)
		}
	}
	return nil
}

// SetFileLocalPath records the mirrored local path on a file reference row.
func (s *SQLiteStore) SetFileLocalPath(ctx context.Context, refID string, localPath string) error {
	s.logger.Debug("sql", "op", "update", "table", "file_refs", "id", refID)

	result, err := s.db.ExecContext(ctx,
		`UPDATE file_refs SET local_path = ? WHERE id = ?`, localPath, refID)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return model.NewNotFoundError("file reference", refID)
	}
	return nil
}

// --- Analyses ---

// SaveAnalysis persists a finished result set.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, analysis *model.Analysis) error {
	s.logger.Debug("sql", "op", "insert", "table", "analyses", "id", analysis.ID)

	outputsJSON, err := json.Marshal(analysis.OutputFiles)
	if err != nil {
		return fmt.Errorf("marshal output files: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, submission_id, analysis_type, output_files, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		analysis.ID, analysis.SubmissionID, analysis.Type, string(outputsJSON),
		analysis.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// GetAnalysis loads a result set by id. Returns nil, nil when absent.
func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (*model.Analysis, error) {
	s.logger.Debug("sql", "op", "select", "table", "analyses", "id", id)

	var a model.Analysis
	var outputsJSON, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, submission_id, analysis_type, output_files, created_at FROM analyses WHERE id = ?`, id,
	).Scan(&a.ID, &a.SubmissionID, &a.Type, &outputsJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(outputsJSON), &a.OutputFiles); err != nil {
		return nil, fmt.Errorf("unmarshal output files: %w", err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &a, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*model.AnalysisSubmission, error) {
	var sub model.AnalysisSubmission
	var state, createdAt, updatedAt string
	var completedAt *string

	err := row.Scan(&sub.ID, &sub.Name, &sub.WorkflowID, &sub.SubmittedBy, &state,
		&sub.RemoteWorkflowID, &sub.RemoteAnalysisID, &sub.RemoteInputDataID, &sub.AnalysisID, &sub.ErrorReason,
		&createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	sub.State = model.SubmissionState(state)
	sub.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sub.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if completedAt != nil {
		t, err := time.Parse(time.RFC3339Nano, *completedAt)
		if err == nil {
			sub.CompletedAt = &t
		}
	}
	return &sub, nil
}

func (s *SQLiteStore) loadFileRefs(ctx context.Context, sub *model.AnalysisSubmission) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, locator, local_path, metadata, pair_id, pair_role
		 FROM file_refs WHERE submission_id = ? ORDER BY created_at ASC, id ASC`, sub.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	pairs := map[string]*model.FilePair{}
	var pairOrder []string

	for rows.Next() {
		var ref model.RemoteFileReference
		var metaJSON, pairID, pairRole string
		if err := rows.Scan(&ref.ID, &ref.Locator, &ref.LocalPath, &metaJSON, &pairID, &pairRole); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(metaJSON), &ref.Metadata); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}

		if pairID == "" {
			sub.SingleFiles = append(sub.SingleFiles, ref)
			continue
		}
		pair, ok := pairs[pairID]
		if !ok {
			pair = &model.FilePair{ID: pairID}
			pairs[pairID] = pair
			pairOrder = append(pairOrder, pairID)
		}
		if pairRole == "reverse" {
			pair.Reverse = ref
		} else {
			pair.Forward = ref
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, pairID := range pairOrder {
		sub.PairedFiles = append(sub.PairedFiles, *pairs[pairID])
	}
	return nil
}
