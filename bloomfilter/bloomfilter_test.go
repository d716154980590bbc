package bloomfilter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoFalseNegatives(t *testing.T) {
	f := New(1000, 0.01)
	present := make([][]byte, 0, 1000)
	for i := 0; i < 1000; i++ {
		k := []byte(fmt.Sprintf("key-%d", i))
		f.Add(k)
		present = append(present, k)
	}
	for _, k := range present {
		require.True(t, f.MayContain(k), "false negative for %s", k)
	}
}

func TestFalsePositiveRateBounded(t *testing.T) {
	f := New(1000, 0.01)
	for i := 0; i < 1000; i++ {
		f.Add([]byte(fmt.Sprintf("present-%d", i)))
	}
	falsePositives := 0
	trials := 5000
	for i := 0; i < trials; i++ {
		k := []byte(fmt.Sprintf("absent-%d", i))
		if f.MayContain(k) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / float64(trials)
	require.Less(t, rate, 0.05, "observed false-positive rate %.4f far exceeds configured 0.01", rate)
}

func TestSerializeRoundTrip(t *testing.T) {
	f := New(100, 0.02)
	for i := 0; i < 100; i++ {
		f.Add([]byte(fmt.Sprintf("k%d", i)))
	}
	data := f.Serialize()
	got, n, err := Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, f.NumBits(), got.NumBits())
	require.Equal(t, f.NumHashes(), got.NumHashes())
	for i := 0; i < 100; i++ {
		require.True(t, got.MayContain([]byte(fmt.Sprintf("k%d", i))))
	}
}

func TestDeserializeChecksumMismatch(t *testing.T) {
	f := New(10, 0.01)
	f.Add([]byte("a"))
	data := f.Serialize()
	corrupt := append([]byte(nil), data...)
	corrupt[len(corrupt)-1] ^= 0xFF
	_, _, err := Deserialize(corrupt)
	require.Error(t, err)
}
