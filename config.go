package hypertable

import (
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config configures a RangeServer. Grounded on the teacher's
// NewValuesStoreOpts env-prefixed defaulting idiom (valuesstore.go):
// every field may be left zero and is defaulted by resolveConfig. Only
// Cores and BlockCacheMemory also read an environment variable with the
// given prefix (CORES, BLOCK_CACHE_MEMORY), which takes the place of the
// built-in default when present.
type Config struct {
	Dir                  string
	EnvPrefix            string
	Cores                int
	BlockCacheMemory     uint64
	QueryCacheEntries    int
	DefaultBlockSize     int
	DefaultCompression   string // "none", "lzo", "quicklz"
	GroupCommitDelay     time.Duration
	GroupCommitMaxBytes  int64
	CommitLogRollSize    int64
	MaintenanceInterval  time.Duration
	Log                  LogFunc
}

// Opt mutates a Config; applied in order by NewConfig, following the
// teacher's functional-option convention elsewhere in this module's
// ambient stack (see OptDir, OptBlockCacheMemory and OptLog below, and
// cmd/rangeserver's flag-to-Opt translation).
type Opt func(*Config)

// OptDir sets the on-disk root for ranges, commit logs, and metalogs.
func OptDir(dir string) Opt { return func(c *Config) { c.Dir = dir } }

// OptBlockCacheMemory sets the file block cache's byte budget.
func OptBlockCacheMemory(n uint64) Opt { return func(c *Config) { c.BlockCacheMemory = n } }

// OptLog installs a LogFunc, overriding whatever resolveConfig would
// otherwise default to.
func OptLog(fn LogFunc) Opt { return func(c *Config) { c.Log = fn } }

// NewConfig builds a resolved Config from zero or more Opts, after first
// seeding defaults the way the teacher's NewValuesStoreOpts seeds from
// environment variables under envPrefix (default
// "HYPERTABLE_RANGESERVER_").
func NewConfig(envPrefix string, opts ...Opt) *Config {
	c := &Config{EnvPrefix: envPrefix}
	resolveConfig(c)
	for _, o := range opts {
		o(c)
	}
	resolveConfig(c)
	return c
}

func resolveConfig(c *Config) {
	prefix := c.EnvPrefix
	if prefix == "" {
		prefix = "HYPERTABLE_RANGESERVER_"
	}
	c.EnvPrefix = prefix

	if c.Cores <= 0 {
		if env := os.Getenv(prefix + "CORES"); env != "" {
			if v, err := strconv.Atoi(env); err == nil {
				c.Cores = v
			}
		}
	}
	if c.Cores <= 0 {
		c.Cores = runtime.GOMAXPROCS(0)
	}

	if c.BlockCacheMemory == 0 {
		if env := os.Getenv(prefix + "BLOCK_CACHE_MEMORY"); env != "" {
			if v, err := strconv.ParseUint(env, 10, 64); err == nil {
				c.BlockCacheMemory = v
			}
		}
	}
	if c.BlockCacheMemory == 0 {
		c.BlockCacheMemory = 256 << 20
	}

	if c.QueryCacheEntries <= 0 {
		c.QueryCacheEntries = 10000
	}
	if c.DefaultBlockSize <= 0 {
		c.DefaultBlockSize = 65536
	}
	if c.DefaultCompression == "" {
		c.DefaultCompression = "quicklz"
	}
	if c.GroupCommitDelay <= 0 {
		c.GroupCommitDelay = 10 * time.Millisecond
	}
	if c.GroupCommitMaxBytes <= 0 {
		c.GroupCommitMaxBytes = 1 << 20
	}
	if c.CommitLogRollSize <= 0 {
		c.CommitLogRollSize = 64 << 20
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = 5 * time.Second
	}
	if c.Log == nil {
		c.Log = func(string, ...interface{}) {}
	}
	if c.Dir == "" {
		c.Dir = "."
	}
}
