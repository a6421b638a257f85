package apperr

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestServiceErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := NotFound("diary.get", "entry_missing", cause)

	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected error to match ErrNotFound")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected error to wrap its cause")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatalf("did not expect conflict kind")
	}
	if CodeOf(err) != "diary.get.entry_missing" {
		t.Fatalf("unexpected code %q", CodeOf(err))
	}
	if ReasonOf(err, "fallback") != "entry_missing" {
		t.Fatalf("unexpected reason %q", ReasonOf(err, "fallback"))
	}
}

func TestReasonOfFallsBackForPlainErrors(t *testing.T) {
	if ReasonOf(errors.New("plain"), "internal_error") != "internal_error" {
		t.Fatalf("expected fallback reason")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Fatalf("expected empty code for plain errors")
	}
}

func TestIsDuplicateKey(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "mysql", err: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, want: true},
		{name: "mysql-other", err: &mysql.MySQLError{Number: 1045}, want: false},
		{name: "sqlite", err: errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), want: true},
		{name: "postgres", err: errors.New(`ERROR: duplicate key value violates unique constraint "idx_users_email"`), want: true},
		{name: "other", err: errors.New("connection refused"), want: false},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := IsDuplicateKey(testCase.err); got != testCase.want {
				t.Fatalf("IsDuplicateKey() = %v, want %v", got, testCase.want)
			}
		})
	}
}
