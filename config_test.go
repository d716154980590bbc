package hypertable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewConfigAppliesDefaults(t *testing.T) {
	c := NewConfig("")
	require.Equal(t, "HYPERTABLE_RANGESERVER_", c.EnvPrefix)
	require.Equal(t, uint64(256<<20), c.BlockCacheMemory)
	require.Equal(t, 10000, c.QueryCacheEntries)
	require.Equal(t, 65536, c.DefaultBlockSize)
	require.Equal(t, "quicklz", c.DefaultCompression)
	require.Equal(t, ".", c.Dir)
	require.NotNil(t, c.Log)
}

func TestNewConfigAppliesOptsOverDefaults(t *testing.T) {
	c := NewConfig("", OptDir("/data"), OptBlockCacheMemory(1<<20))
	require.Equal(t, "/data", c.Dir)
	require.Equal(t, uint64(1<<20), c.BlockCacheMemory)
}

func TestEnvPrefixOverridesCores(t *testing.T) {
	t.Setenv("TESTPFX_CORES", "7")
	c := NewConfig("TESTPFX_")
	require.Equal(t, 7, c.Cores)
}
