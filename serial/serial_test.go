package serial

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVintRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40, ^uint64(0)} {
		buf := PutVint64(nil, v)
		got, n, err := GetVint64(buf)
		require.NoError(t, err)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}
}

func TestVint32Truncated(t *testing.T) {
	_, _, err := GetVint32([]byte{0x80, 0x80})
	require.Error(t, err)
}

func TestBytes32RoundTrip(t *testing.T) {
	buf := PutBytes32(nil, []byte("hello world"))
	got, n, err := GetBytes32(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, []byte("hello world"), got)
}

func TestBytes32Overrun(t *testing.T) {
	buf := PutVint32(nil, 10)
	_, _, err := GetBytes32(buf)
	require.Error(t, err)
}

func TestStr16RoundTrip(t *testing.T) {
	buf := PutStr16(nil, "column-family")
	got, n, err := GetStr16(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, "column-family", got)
}

func TestFletcher32Deterministic(t *testing.T) {
	data := make([]byte, 8192)
	for i := range data {
		data[i] = byte(i * 7)
	}
	a := Fletcher32(data)
	b := Fletcher32(data)
	require.Equal(t, a, b)

	flipped := append([]byte(nil), data...)
	flipped[100] ^= 0x01
	require.NotEqual(t, a, Fletcher32(flipped))
}

func TestAdler32Basic(t *testing.T) {
	require.Equal(t, uint32(1), Adler32(nil))
	require.NotEqual(t, uint32(0), Adler32([]byte("hypertable")))
}
