package errors

import (
	stderrors "errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(Transient(stderrors.New("rate limited"))))
	assert.True(t, IsTransient(fmt.Errorf("fetch: %w", syscall.ECONNREFUSED)))
	assert.False(t, IsTransient(PermissionDenied("calendar", stderrors.New("forbidden"))))
	assert.False(t, IsTransient(stderrors.New("plain")))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"transient", Transient(stderrors.New("503")), KindTransient},
		{"permission", PermissionDenied("gmail", stderrors.New("401")), KindPermissionDenied},
		{"ambiguous", fmt.Errorf("move: %w", ErrAmbiguousTarget), KindAmbiguousTarget},
		{"stale", fmt.Errorf("edit: %w", ErrStaleRevision), KindStaleRevision},
		{"not found", ErrNotFound, KindNotFound},
		{"schema", &SchemaViolationError{Err: stderrors.New("bad json")}, KindSchemaViolation},
		{"config", &ConfigurationError{Field: "database_path", Err: stderrors.New("missing")}, KindConfiguration},
		{"untyped", stderrors.New("mystery"), KindInvariantViolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "stale_plan_revision", KindStaleRevision.String())
	assert.Equal(t, "transient_provider", KindTransient.String())
}

func TestUnwrap(t *testing.T) {
	inner := stderrors.New("inner")
	assert.ErrorIs(t, Transient(inner), inner)
	assert.ErrorIs(t, PermissionDenied("store", inner), inner)
}
