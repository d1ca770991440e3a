package planerr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestInputError_Is(t *testing.T) {
	err := fmt.Errorf("plan: %w", Invalid("shrinkage", "must be < 1, got %v", 1.2))

	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("errors.Is(ErrInvalidInput) = false for %v", err)
	}

	var ie *InputError
	if !errors.As(err, &ie) {
		t.Fatal("errors.As(*InputError) = false")
	}
	if ie.Field != "shrinkage" {
		t.Errorf("Field = %q, want %q", ie.Field, "shrinkage")
	}
	if got, want := ie.Error(), "invalid shrinkage: must be < 1, got 1.2"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestInfeasibleError(t *testing.T) {
	tests := []struct {
		name string
		err  *InfeasibleError
		want string
	}{
		{
			name: "with interval",
			err:  &InfeasibleError{Interval: 3, Required: 5},
			want: "infeasible coverage at interval 3 (required 5)",
		},
		{
			name: "with interval and reason",
			err:  &InfeasibleError{Interval: 0, Required: 1, Reason: "no template covers it"},
			want: "infeasible coverage at interval 0 (required 1): no template covers it",
		},
		{
			name: "solver proof",
			err:  &InfeasibleError{Interval: -1},
			want: "infeasible coverage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !errors.Is(tt.err, ErrInfeasibleCoverage) {
				t.Error("errors.Is(ErrInfeasibleCoverage) = false")
			}
			if errors.Is(tt.err, ErrSolverTimeout) {
				t.Error("infeasible must not match ErrSolverTimeout")
			}
		})
	}
}

func TestSolverError(t *testing.T) {
	timeout := &SolverError{Timeout: true, Cause: context.DeadlineExceeded, Incumbent: map[string]int{"early": 3}}
	if !errors.Is(timeout, ErrSolverTimeout) {
		t.Error("timeout should match ErrSolverTimeout")
	}
	if !errors.Is(timeout, context.DeadlineExceeded) {
		t.Error("timeout should match its cause")
	}
	if errors.Is(timeout, ErrSolverFailed) {
		t.Error("timeout should not match ErrSolverFailed")
	}
	if !timeout.HasIncumbent() {
		t.Error("HasIncumbent() = false, want true")
	}

	failed := &SolverError{}
	if !errors.Is(failed, ErrSolverFailed) {
		t.Error("failure should match ErrSolverFailed")
	}
	if failed.Error() != "solver failed" {
		t.Errorf("Error() = %q", failed.Error())
	}
	if failed.HasIncumbent() {
		t.Error("HasIncumbent() = true, want false")
	}
}
