// Package shardqueue provides a sharded work queue that runs jobs for the
// same key strictly one after another while allowing parallelism across
// shards. The scheduler keys it by AREA id so a slow evaluation can never
// overlap with the next evaluation of the same AREA.
package shardqueue

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

type queuedJob struct {
	ctx context.Context
	key string
	job Job
}

// ShardExecutor executes Jobs on worker goroutines partitioned by a stable
// hash of the key. FIFO ordering is preserved within a shard.
type ShardExecutor struct {
	cfg    Config
	queues []chan queuedJob

	done   chan struct{} // closed in Stop()
	closed atomic.Bool

	wg sync.WaitGroup
}

// NewShardExecutor constructs the executor and starts its shard workers.
func NewShardExecutor(cfg Config) *ShardExecutor {
	cfg = cfg.withDefaults()
	p := &ShardExecutor{
		cfg:    cfg,
		queues: make([]chan queuedJob, cfg.Shards),
		done:   make(chan struct{}),
	}
	for i := 0; i < cfg.Shards; i++ {
		ch := make(chan queuedJob, cfg.QueueSize)
		p.queues[i] = ch
		p.wg.Add(1)
		go p.runWorker(i, ch)
	}
	return p
}

// Submit enqueues job for the shard derived from key.
//
//   - Returns nil on success.
//   - Returns ErrExecutorClosed if the executor is stopped.
//   - Returns ErrQueueFull (wrapped in *QueueFullError) if the shard is full
//     after EnqueueTimeout elapses.
//   - Returns ctx.Err() if the caller-provided context is cancelled first.
func (p *ShardExecutor) Submit(ctx context.Context, key string, job Job) error {
	if p.closed.Load() {
		return ErrExecutorClosed
	}
	select {
	case <-p.done:
		return ErrExecutorClosed
	default:
	}

	shard := p.shardFor(key)
	ch := p.queues[shard]

	var expired <-chan time.Time
	if p.cfg.EnqueueTimeout > 0 {
		timer := time.NewTimer(p.cfg.EnqueueTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case ch <- queuedJob{ctx: ctx, key: key, job: job}:
		submissionsTotal.WithLabelValues(labelFor(shard)).Inc()
		return nil
	case <-p.done:
		return ErrExecutorClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		queueFullTotal.WithLabelValues(labelFor(shard)).Inc()
		return &QueueFullError{Shard: shard, Length: len(ch), Capacity: cap(ch)}
	}
}

// Stop signals every worker to finish draining its queue and waits for them
// to terminate. It is idempotent and safe for concurrent use.
func (p *ShardExecutor) Stop() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.cfg.Logger.Debug().Int("shards", p.cfg.Shards).Msg("shardqueue: stopping executor")
	close(p.done)
	p.wg.Wait()
	p.cfg.Logger.Debug().Msg("shardqueue: executor stopped, all queues drained")
}

// Close lets ShardExecutor satisfy io.Closer.
func (p *ShardExecutor) Close() error {
	p.Stop()
	return nil
}

func (p *ShardExecutor) runWorker(idx int, ch <-chan queuedJob) {
	defer p.wg.Done()
	label := labelFor(idx)

	for {
		select {
		case qj := <-ch:
			p.run(label, qj)
			queueDepth.WithLabelValues(label).Set(float64(len(ch)))

		case <-p.done:
			// Drain remaining jobs in FIFO order, then exit.
			drained := 0
			for {
				select {
				case qj := <-ch:
					p.run(label, qj)
					drained++
				default:
					if drained > 0 {
						p.cfg.Logger.Debug().Int("worker", idx).Int("drained", drained).Msg("shardqueue: drained remaining jobs")
					}
					queueDepth.WithLabelValues(label).Set(0)
					return
				}
			}
		}
	}
}

// run executes one job. A cancelled job is reported without running, and a
// panic is recovered so the shard keeps serving its other keys.
func (p *ShardExecutor) run(label string, qj queuedJob) {
	if qj.job == nil {
		return
	}
	if err := qj.ctx.Err(); err != nil {
		p.safeHandleError(qj.key, err)
		return
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				p.cfg.Logger.Error().Str("key", qj.key).Interface("panic", r).Msg("shardqueue: job panic")
				err = &PanicError{Value: r}
			}
		}()
		return qj.job.Run(qj.ctx)
	}()
	runDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	if err != nil {
		p.safeHandleError(qj.key, err)
	}
}

func (p *ShardExecutor) safeHandleError(key string, err error) {
	if err == nil || p.cfg.ErrorHandler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.cfg.Logger.Error().Interface("panic", r).Msg("shardqueue: error handler panic")
		}
	}()
	p.cfg.ErrorHandler(key, err)
}

func (p *ShardExecutor) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.cfg.Shards))
}
