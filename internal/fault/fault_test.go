package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{NotFoundError{Kind: "project", ID: "p1"}, "project p1 not found"},
		{ConflictError{Kind: "project", ID: "p1", Status: "assigned"}, "project p1 already assigned"},
		{InvalidStateError{Kind: "quote", ID: "q1", Status: "withdrawn", Action: "edit"}, "cannot edit quote q1: status is withdrawn"},
		{IllegalTransitionError{ProjectID: "p1", From: "open", To: "completed"}, "project p1: illegal transition open -> completed"},
		{TransientError{Op: "assign project", Err: errors.New("database is locked")}, "assign project: database is locked"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("%T renders %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	locked := TransientError{Op: "assign project", Err: errors.New("database is locked")}
	if !Retryable(locked) {
		t.Fatal("lock contention must be retryable")
	}
	if !Retryable(ConflictError{Kind: "project", ID: "p1", Status: "assigned"}) {
		t.Fatal("losing a race must be retryable")
	}
	if !Retryable(fmt.Errorf("wrapped: %w", locked)) {
		t.Fatal("wrapping must not hide retryability")
	}
	if Retryable(ForbiddenError{Action: "approve"}) || Retryable(NotFoundError{Kind: "quote", ID: "q1"}) {
		t.Fatal("authorization and lookup failures are not retryable")
	}
}
