package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", &ValidationError{Field: "dose", Reason: "must be non-negative"}, KindValidation},
		{"joined validation", errors.Join(&ValidationError{Field: "a"}, &ValidationError{Field: "b"}), KindValidation},
		{"instability", &InstabilityError{Step: 3, Time: 1.5, Reason: "NaN"}, KindInstability},
		{"io", &IOError{Op: "write", Path: "/tmp/x.csv", Err: os.ErrPermission}, KindIO},
		{"wrapped in run error", &RunError{Params: DefaultParameters(), Err: &InstabilityError{}}, KindInstability},
		{"fmt wrapped", fmt.Errorf("sweep: %w", &ValidationError{Field: "x"}), KindValidation},
		{"canceled", context.Canceled, KindCanceled},
		{"deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), KindCanceled},
		{"other", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{"validation with value", &ValidationError{Field: "dose", Value: -1.0, Reason: "must be non-negative"}, []string{"invalid dose=-1", "non-negative"}},
		{"validation without value", &ValidationError{Field: "scheme", Reason: "unknown"}, []string{"invalid scheme: unknown"}},
		{"instability before stepping", &InstabilityError{Reason: "time_step too large"}, []string{"numeric instability: time_step"}},
		{"instability mid-run", &InstabilityError{Step: 7, Time: 0.5, Reason: "NaN"}, []string{"step 7", "t=0.5"}},
		{"io", &IOError{Op: "rename", Path: "/data/out.csv", Err: os.ErrNotExist}, []string{"rename /data/out.csv"}},
		{"run", &RunError{Params: DefaultParameters(), Err: errors.New("boom")}, []string{"dose=1", "boom"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, w := range tt.want {
				if !strings.Contains(msg, w) {
					t.Errorf("Error() = %q, want substring %q", msg, w)
				}
			}
		})
	}
}

func TestIOError_Unwrap(t *testing.T) {
	err := &IOError{Op: "open", Path: "x", Err: os.ErrNotExist}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("IOError should unwrap to its cause")
	}
}
