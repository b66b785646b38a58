package native

import (
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpures/gpucore"
	"github.com/gogpu/gpures/internal/logging"
)

type submission struct {
	index uint64
	seq   gpucore.SequenceID
}

// Clock is a gpucore.SequenceClock driven by a hal.Queue. Sequence ids are
// issued by Next and tied to HAL submission indexes by Submit; Completed
// polls the queue and reports the highest sequence whose submission has
// finished.
//
// Clock is safe for concurrent use.
type Clock struct {
	mu        sync.Mutex
	queue     hal.Queue
	issued    gpucore.SequenceID
	submitted gpucore.SequenceID
	completed gpucore.SequenceID
	pending   []submission
}

// NewClock wraps queue.
func NewClock(queue hal.Queue) (*Clock, error) {
	if queue == nil {
		return nil, ErrNilHALQueue
	}
	return &Clock{queue: queue}, nil
}

// Queue returns the underlying HAL queue.
func (c *Clock) Queue() hal.Queue { return c.queue }

// Next issues the sequence id of the next batch.
func (c *Clock) Next() gpucore.SequenceID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	return c.issued
}

// Submit submits the command buffers of batch seq. Batches must be
// submitted in sequence order.
func (c *Clock) Submit(seq gpucore.SequenceID, cmds ...hal.CommandBuffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq > c.issued || seq <= c.submitted {
		return gpucore.Violation(gpucore.ErrStaleSequence,
			"submit of sequence %d, issued %d, submitted %d", seq, c.issued, c.submitted)
	}
	index, err := c.queue.Submit(cmds)
	if err != nil {
		return err
	}
	if n := len(c.pending); n > 0 && index <= c.pending[n-1].index {
		logging.Logger().Warn("native: submission index went backwards",
			"index", index, "previous", c.pending[n-1].index)
	}
	c.submitted = seq
	c.pending = append(c.pending, submission{index: index, seq: seq})
	return nil
}

// Completed polls the queue and returns the highest completed sequence id.
func (c *Clock) Completed() gpucore.SequenceID {
	c.mu.Lock()
	defer c.mu.Unlock()

	done := c.queue.PollCompleted()
	n := 0
	for n < len(c.pending) && c.pending[n].index <= done {
		c.completed = c.pending[n].seq
		n++
	}
	c.pending = c.pending[n:]
	return c.completed
}

// InFlight returns the number of submitted batches not yet completed as of
// the last poll.
func (c *Clock) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

var _ gpucore.SequenceClock = (*Clock)(nil)
