package shardqueue

import (
	"time"

	"github.com/rs/zerolog"
)

// WaitForRoom as EnqueueTimeout makes Submit block until the shard has room,
// the executor stops or the submit context ends.
const WaitForRoom time.Duration = -1

// Config groups the executor tunables.
type Config struct {
	Shards    int
	QueueSize int
	// EnqueueTimeout bounds how long Submit waits on a full shard. Zero
	// selects the default; WaitForRoom disables the bound.
	EnqueueTimeout time.Duration

	// ErrorHandler is called synchronously after a Job returns a non-nil
	// error or panics. Leave nil if you do not care.
	ErrorHandler func(key string, err error)

	Logger zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Shards <= 0 {
		c.Shards = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.EnqueueTimeout == 0 {
		c.EnqueueTimeout = 100 * time.Millisecond
	}
	return c
}
