package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	err := NewNotFoundError("submission", "sub_1")
	if !IsNotFound(err) {
		t.Error("IsNotFound should match NotFoundError")
	}
	if !IsNotFound(fmt.Errorf("collect: %w", err)) {
		t.Error("IsNotFound should match wrapped NotFoundError")
	}
	if IsNotFound(errors.New("boom")) {
		t.Error("IsNotFound should not match plain errors")
	}
}

func TestIsPrecondition(t *testing.T) {
	err := &PreconditionError{
		SubmissionID: "sub_1",
		Expected:     SubmissionStateCreated,
		Actual:       SubmissionStateRunning,
	}
	if !IsPrecondition(err) {
		t.Error("IsPrecondition should match PreconditionError")
	}
	if !IsPrecondition(fmt.Errorf("stage: %w", err)) {
		t.Error("IsPrecondition should match wrapped PreconditionError")
	}
	if IsPrecondition(NewNotFoundError("submission", "sub_1")) {
		t.Error("IsPrecondition should not match NotFoundError")
	}
}

func TestPreconditionErrorMessage(t *testing.T) {
	err := &PreconditionError{
		SubmissionID: "sub_1",
		Expected:     SubmissionStateFilesMirrored,
		Actual:       SubmissionStatePrepared,
	}
	want := "submission sub_1: precondition failed: state is PREPARED, want FILES_MIRRORED"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	withReason := &PreconditionError{SubmissionID: "sub_1", Reason: "remote workflow id already set"}
	if withReason.Error() != "submission sub_1: precondition failed: remote workflow id already set" {
		t.Errorf("Error() = %q", withReason.Error())
	}
}
