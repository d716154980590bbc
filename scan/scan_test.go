package scan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchesRowRegexpEmptyMatchesEverything(t *testing.T) {
	ctx := NewContext(Spec{})
	require.True(t, ctx.MatchesRowRegexp([]byte("anything")))
}

func TestMatchesRowRegexpFiltersByPattern(t *testing.T) {
	ctx := NewContext(Spec{RowRegexp: "^user:"})
	require.True(t, ctx.MatchesRowRegexp([]byte("user:42")))
	require.False(t, ctx.MatchesRowRegexp([]byte("order:42")))
}

func TestMatchesRowRegexpFailsClosedOnInvalidPattern(t *testing.T) {
	ctx := NewContext(Spec{RowRegexp: "("})
	require.False(t, ctx.MatchesRowRegexp([]byte("anything")))
}

func TestIncludesRowUnaffectedByRowLimitFields(t *testing.T) {
	ctx := NewContext(Spec{RowLimit: 1, RowOffset: 5})
	require.True(t, ctx.IncludesRow([]byte("r")))
}
