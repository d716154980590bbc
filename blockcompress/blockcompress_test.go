package blockcompress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func payloadFixture() []byte {
	var buf bytes.Buffer
	for i := 0; i < 4096; i++ {
		buf.WriteByte(byte(i % 251))
	}
	return buf.Bytes()
}

func TestEncodeDecodeRoundTripAllCodecs(t *testing.T) {
	for _, codec := range []Type{None, LZO, QuickLZ} {
		payload := payloadFixture()
		frame, err := EncodeBlock(codec, payload)
		require.NoError(t, err)
		got, consumed, err := DecodeBlock(frame)
		require.NoError(t, err)
		require.Equal(t, len(frame), consumed)
		require.Equal(t, payload, got)
	}
}

func TestEncodeFallsBackToNoneWhenNotSmaller(t *testing.T) {
	payload := []byte("x")
	frame, err := EncodeBlock(LZO, payload)
	require.NoError(t, err)
	require.Equal(t, byte(None), frame[11], "compression type byte must be NONE")
	got, _, err := DecodeBlock(frame)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestDecodeBadMagic(t *testing.T) {
	_, _, err := DecodeBlock(make([]byte, 20))
	require.Error(t, err)
}

func TestDecodeDetectsPayloadCorruption(t *testing.T) {
	frame, err := EncodeBlock(QuickLZ, payloadFixture())
	require.NoError(t, err)
	frame[len(frame)-1] ^= 0xFF
	_, _, err = DecodeBlock(frame)
	require.Error(t, err)
}

func TestDecodeTruncated(t *testing.T) {
	frame, err := EncodeBlock(None, payloadFixture())
	require.NoError(t, err)
	_, _, err = DecodeBlock(frame[:len(frame)-5])
	require.Error(t, err)
}

func TestCompressPayloadWrappers(t *testing.T) {
	payload := payloadFixture()
	compressed, err := CompressPayload(QuickLZ, payload)
	require.NoError(t, err)
	out, err := DecompressPayload(QuickLZ, compressed, len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, out)
}
