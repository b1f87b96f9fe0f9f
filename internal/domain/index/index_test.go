package index

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecondary_DefaultsToEnsurePrimary(t *testing.T) {
	s := Secondary("users", "user_by_type", "kind = 'user'")
	assert.True(t, s.EnsurePrimary)

	off := s.WithEnsurePrimary(false)
	assert.False(t, off.EnsurePrimary)
	assert.True(t, s.EnsurePrimary, "original spec must not change")
}

func TestSpec_Key(t *testing.T) {
	assert.Equal(t, "users/primary/#primary", Primary("users").Key())
	assert.Equal(t, "users/primary/#primary", Spec{Kind: KindPrimary, Namespace: "users"}.Key())
	assert.Equal(t, "users/secondary/by_type", Secondary("users", "by_type", "x").Key())
	assert.Equal(t, "users/view/user/all", View("users", "user", "all", ViewDefinition{Map: "m"}).Key())
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"primary", Primary("users"), false},
		{"secondary", Secondary("users", "by_type", "kind = 'user'"), false},
		{"view", View("users", "user", "all", ViewDefinition{Map: "m"}), false},
		{"empty namespace", Primary(""), true},
		{"blank namespace", Secondary("  ", "by_type", "f"), true},
		{"secondary without filter", Secondary("users", "by_type", ""), true},
		{"secondary without name", Secondary("users", "", "f"), true},
		{"secondary named primary", Secondary("users", PrimaryName, "f"), true},
		{"secondary with view fields", Spec{Kind: KindSecondary, Namespace: "users", Name: "a", Filter: "f", ViewName: "v"}, true},
		{"unnamed primary", Spec{Kind: KindPrimary, Namespace: "users"}, false},
		{"primary with custom name", Spec{Kind: KindPrimary, Namespace: "users", Name: "pk"}, true},
		{"primary with filter", Spec{Kind: KindPrimary, Namespace: "users", Filter: "f"}, true},
		{"view without design doc", View("users", "", "all", ViewDefinition{}), true},
		{"view with filter", Spec{Kind: KindView, Namespace: "users", DesignDocument: "d", ViewName: "v", Filter: "f"}, true},
		{"view with ensure primary", View("users", "d", "v", ViewDefinition{}).WithEnsurePrimary(true), true},
		{"unknown kind", Spec{Kind: "fulltext", Namespace: "users"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSpecification)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateAll_ReportsPosition(t *testing.T) {
	err := ValidateAll([]Spec{Primary("users"), Primary("")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSpecification)
	assert.Contains(t, err.Error(), "spec 1")

	assert.NoError(t, ValidateAll(nil))
}

func TestOutcome_Reason(t *testing.T) {
	assert.Equal(t, "", Outcome{Status: StatusCreated}.Reason())
	assert.Equal(t, "timeout", Outcome{Status: StatusFailed, Err: fmt.Errorf("exists check: %w", ErrTimeout)}.Reason())
	assert.Equal(t, "circuit_open", Outcome{Status: StatusFailed, Err: ErrCircuitOpen}.Reason())
	assert.Equal(t, "unavailable", Outcome{Status: StatusFailed, Err: ErrUnavailable}.Reason())
	assert.Equal(t, "store_error", Outcome{Status: StatusFailed, Err: fmt.Errorf("permission denied")}.Reason())
}

func TestOutcomes_Helpers(t *testing.T) {
	outs := Outcomes{
		{Spec: Primary("users"), Status: StatusCreated},
		{Spec: Secondary("users", "a", "f"), Status: StatusFailed, Err: fmt.Errorf("boom")},
		{Spec: Secondary("users", "b", "f"), Status: StatusAlreadyExists},
	}

	assert.False(t, outs.AllSucceeded())
	assert.Len(t, outs.Failed(), 1)
	assert.Equal(t, "boom", outs.Failed()[0].Message())
	assert.Equal(t, 1, outs.Count(StatusCreated))
	assert.Equal(t, 1, outs.Count(StatusAlreadyExists))
	assert.True(t, Outcomes{}.AllSucceeded())
}
