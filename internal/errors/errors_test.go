package errors_test

import (
	"fmt"
	"testing"

	apperrors "github.com/jrsteele09/findcourse-client/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestWrapf(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		require.NoError(t, apperrors.Wrapf(nil, "refresh %s", "x"))
	})

	t.Run("keeps the chain", func(t *testing.T) {
		err := apperrors.Wrapf(apperrors.ErrUnauthorized, "refresh for %s", "user-1")
		require.EqualError(t, err, "refresh for user-1: unauthorized")
		require.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
		require.False(t, apperrors.Is(err, apperrors.ErrTransport))
	})
}

type statusErr struct{ code int }

func (s statusErr) Error() string { return fmt.Sprintf("status %d", s.code) }

func TestAs(t *testing.T) {
	err := fmt.Errorf("call failed: %w", statusErr{code: 401})

	var target statusErr
	require.True(t, apperrors.As(err, &target))
	require.Equal(t, 401, target.code)
}
