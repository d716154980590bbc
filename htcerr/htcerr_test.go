package htcerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOfReturnsKind(t *testing.T) {
	err := New(BadKeyOrder, "key %d out of order", 5)
	require.Equal(t, BadKeyOrder, Of(err))
}

func TestOfUnwrapsWrappedErrors(t *testing.T) {
	inner := New(LocalIOError, "disk full")
	outer := fmt.Errorf("writing store: %w", inner)
	require.Equal(t, LocalIOError, Of(outer))
}

func TestOfReturnsZeroForPlainError(t *testing.T) {
	require.Equal(t, Kind(0), Of(errors.New("plain")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(BlockCompressorInflateError, cause, "decompress failed")
	require.Equal(t, cause, errors.Unwrap(err))
}

func TestIsMatchesByKindOnly(t *testing.T) {
	a := New(RangeNotFound, "range x not found")
	b := Sentinel(RangeNotFound)
	require.True(t, errors.Is(a, b))

	c := Sentinel(RangeAlreadyLoaded)
	require.False(t, errors.Is(a, c))
}

func TestKindStringUnknown(t *testing.T) {
	require.Contains(t, Kind(9999).String(), "UNKNOWN_ERROR_KIND")
}
