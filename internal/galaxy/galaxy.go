// Package galaxy implements the execution-backend contract against a
// Galaxy-style REST API: workflows are uploaded as documents, each
// submission runs inside a history (the execution workspace), inputs are
// collected into a dataset library, and results are read back from the
// history's contents.
package galaxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"path/filepath"
	"time"

	"github.com/me/seqflow/pkg/model"
)

// Config holds connection settings for the execution backend.
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:    60 * time.Second,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
	}
}

// Client talks to the backend's REST API. All calls carry the acting
// user's credential; the client itself holds no ambient identity.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
}

// NewClient creates a backend client with the given configuration.
func NewClient(config Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		logger:     logger.With("component", "galaxy-client"),
	}
}

// invocationRequest is the run payload built by BuildInputs and consumed
// by Run. It is the opaque bundle from the pipeline's point of view.
type invocationRequest struct {
	WorkflowID string            `json:"workflow_id"`
	HistoryID  string            `json:"history_id"`
	Inputs     map[string]string `json:"inputs"` // input name -> library dataset id
}

// UploadWorkflow uploads a workflow document and returns the backend's
// workflow id.
func (c *Client) UploadWorkflow(ctx context.Context, cred model.Credential, wf *model.WorkflowStructure) (string, error) {
	req := map[string]any{
		"name":       fmt.Sprintf("%s-%s", wf.ID, wf.Version),
		"definition": json.RawMessage(wf.Definition),
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, cred, http.MethodPost, "/api/workflows", req, &resp); err != nil {
		return "", err
	}
	c.logger.Debug("workflow uploaded", "workflow", wf.ID, "remote_id", resp.ID)
	return resp.ID, nil
}

// ProvisionWorkspace creates the history that will hold the submission's
// run and returns its id.
func (c *Client) ProvisionWorkspace(ctx context.Context, cred model.Credential, sub *model.AnalysisSubmission) (string, error) {
	req := map[string]any{
		"name": "seqflow-" + sub.ID,
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, cred, http.MethodPost, "/api/histories", req, &resp); err != nil {
		return "", err
	}
	c.logger.Debug("workspace provisioned", "submission", sub.ID, "history_id", resp.ID)
	return resp.ID, nil
}

// BuildInputs creates a dataset library for the submission, registers every
// mirrored file in it, and assembles the run payload. The returned
// InputDataID is the library's id.
func (c *Client) BuildInputs(ctx context.Context, cred model.Credential, sub *model.AnalysisSubmission) (*model.PreparedInputs, error) {
	libReq := map[string]any{"name": "seqflow-inputs-" + sub.ID}
	var lib struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, cred, http.MethodPost, "/api/libraries", libReq, &lib); err != nil {
		return nil, err
	}

	inputs := make(map[string]string)
	for _, ref := range sub.AllFiles() {
		if ref.LocalPath == "" {
			return nil, &Error{
				Op:         "BuildInputs",
				StatusCode: http.StatusBadRequest,
				Message:    fmt.Sprintf("file reference %s has no mirrored copy", ref.ID),
			}
		}
		dsReq := map[string]any{
			"name": filepath.Base(ref.LocalPath),
			"path": ref.LocalPath,
		}
		var ds struct {
			ID string `json:"id"`
		}
		if err := c.call(ctx, cred, http.MethodPost, "/api/libraries/"+lib.ID+"/contents", dsReq, &ds); err != nil {
			return nil, err
		}
		inputs[ref.ID] = ds.ID
	}

	c.logger.Debug("inputs built", "submission", sub.ID, "library_id", lib.ID, "datasets", len(inputs))
	return &model.PreparedInputs{
		Bundle: &invocationRequest{
			WorkflowID: sub.RemoteWorkflowID,
			HistoryID:  sub.RemoteAnalysisID,
			Inputs:     inputs,
		},
		InputDataID: lib.ID,
	}, nil
}

// Run starts the workflow invocation. The call returns once the backend
// has accepted the run; completion is observed later via FetchResults.
func (c *Client) Run(ctx context.Context, cred model.Credential, bundle any) error {
	inv, ok := bundle.(*invocationRequest)
	if !ok {
		return &Error{
			Op:         "Run",
			StatusCode: http.StatusBadRequest,
			Message:    fmt.Sprintf("unexpected input bundle type %T", bundle),
		}
	}
	path := "/api/workflows/" + inv.WorkflowID + "/invocations"
	if err := c.call(ctx, cred, http.MethodPost, path, inv, nil); err != nil {
		return err
	}
	c.logger.Debug("run started", "workflow_id", inv.WorkflowID, "history_id", inv.HistoryID)
	return nil
}

// FetchResults retrieves the finished result set of a submission's
// workspace. A run still in progress yields a NotReadyError; a failed run
// yields a permanent error.
func (c *Client) FetchResults(ctx context.Context, cred model.Credential, sub *model.AnalysisSubmission) (*model.Analysis, error) {
	var hist struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := c.call(ctx, cred, http.MethodGet, "/api/histories/"+sub.RemoteAnalysisID, nil, &hist); err != nil {
		return nil, err
	}
	switch hist.State {
	case "ok":
	case "error":
		return nil, &Error{
			Op:         "FetchResults",
			StatusCode: http.StatusUnprocessableEntity,
			Message:    fmt.Sprintf("remote run failed in workspace %s", sub.RemoteAnalysisID),
		}
	default:
		return nil, &NotReadyError{WorkspaceID: sub.RemoteAnalysisID, State: hist.State}
	}

	var contents []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.call(ctx, cred, http.MethodGet, "/api/histories/"+sub.RemoteAnalysisID+"/contents", nil, &contents); err != nil {
		return nil, err
	}

	outputs := make([]model.OutputFile, 0, len(contents))
	for _, ds := range contents {
		outputs = append(outputs, model.OutputFile{
			Name:     ds.Name,
			Path:     c.config.BaseURL + "/api/datasets/" + ds.ID + "/download",
			RemoteID: ds.ID,
		})
	}

	c.logger.Debug("results fetched", "submission", sub.ID, "outputs", len(outputs))
	return &model.Analysis{
		SubmissionID: sub.ID,
		Type:         sub.WorkflowID,
		OutputFiles:  outputs,
	}, nil
}

// call executes one API call with bounded exponential-backoff retries for
// transient failures. Permanent rejections return immediately.
func (c *Client) call(ctx context.Context, cred model.Credential, method, path string, body, out any) error {
	op := method + " " + path
	logger := c.logger.With("method", method, "path", path)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.config.RetryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			logger.Debug("retrying after delay", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.doRequest(ctx, cred, method, path, payload, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsRetryable(err) {
			return err
		}
		logger.Debug("request failed, will retry", "error", err, "attempt", attempt)
		lastErr = err
	}

	return &Error{Op: op, Err: fmt.Errorf("all retries exhausted: %w", lastErr)}
}

// doRequest performs a single HTTP request and decodes the response.
func (c *Client) doRequest(ctx context.Context, cred model.Credential, method, path string, payload []byte, out any) error {
	op := method + " " + path

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cred.APIKey != "" {
		req.Header.Set("X-API-Key", cred.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		var apiErr struct {
			Message string `json:"err_msg"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &Error{Op: op, Err: fmt.Errorf("unmarshal response: %w", err)}
		}
	}
	return nil
}
