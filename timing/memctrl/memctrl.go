// Package memctrl provides the memory controller that serializes cache line
// fills and write-backs against a fixed-latency main memory.
package memctrl

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rv32sim/emu"
)

// Kind distinguishes line fills from write-backs.
type Kind uint8

// Request kinds.
const (
	KindFill Kind = iota
	KindWriteback
)

func (k Kind) String() string {
	if k == KindWriteback {
		return "writeback"
	}
	return "fill"
}

// Hook positions invoked by the controller. The hook item is the *Request.
var (
	HookPosReqStart    = &sim.HookPos{Name: "MemCtrl Request Start"}
	HookPosReqComplete = &sim.HookPos{Name: "MemCtrl Request Complete"}
)

// Request is a single line transfer between a cache and main memory.
type Request struct {
	ID        uint64
	Kind      Kind
	Addr      uint32
	Size      uint32
	Requester string

	// Data holds the line being written back, or the line read once a fill
	// completes.
	Data []byte

	// Err is set if memory rejected the transfer at completion.
	Err error

	SubmitCycle   uint64
	CompleteCycle uint64
	Done          bool

	remaining  uint64
	onComplete func(*Request)
}

// Statistics holds memory controller statistics.
type Statistics struct {
	Fills        uint64
	Writebacks   uint64
	BusyCycles   uint64
	BytesRead    uint64
	BytesWritten uint64
	QueuePeak    int
}

// Controller owns main memory. It services one request at a time in FIFO
// order; each request occupies it for Latency ticks, and memory is touched
// only when the request completes.
type Controller struct {
	*sim.HookableBase

	memory  *emu.Memory
	latency uint64

	queue   []*Request
	current *Request

	cycle  uint64
	nextID uint64
	stats  Statistics
}

// New creates a controller in front of memory. A latency of 0 is treated
// as 1.
func New(memory *emu.Memory, latency uint64) *Controller {
	if latency == 0 {
		latency = 1
	}

	return &Controller{
		HookableBase: sim.NewHookableBase(),
		memory:       memory,
		latency:      latency,
	}
}

// Memory returns the main memory behind the controller.
func (c *Controller) Memory() *emu.Memory {
	return c.memory
}

// Latency returns the per-request occupancy in ticks.
func (c *Controller) Latency() uint64 {
	return c.latency
}

// Stats returns controller statistics.
func (c *Controller) Stats() Statistics {
	return c.stats
}

// Busy returns true while any request is queued or in service.
func (c *Controller) Busy() bool {
	return c.current != nil || len(c.queue) > 0
}

// Pending returns the number of requests queued or in service.
func (c *Controller) Pending() int {
	n := len(c.queue)
	if c.current != nil {
		n++
	}
	return n
}

// Fill queues a read of size bytes at addr. onComplete runs during the Tick
// that completes the request, after Data is populated.
func (c *Controller) Fill(
	addr, size uint32,
	requester string,
	onComplete func(*Request),
) (*Request, error) {
	if err := c.memory.CheckRange(addr, size); err != nil {
		return nil, err
	}

	req := c.newRequest(KindFill, addr, size, requester, onComplete)
	c.enqueue(req)

	return req, nil
}

// Writeback queues a write of data at addr. The data is copied.
func (c *Controller) Writeback(
	addr uint32,
	data []byte,
	requester string,
	onComplete func(*Request),
) (*Request, error) {
	if err := c.memory.CheckRange(addr, uint32(len(data))); err != nil {
		return nil, err
	}

	req := c.newRequest(KindWriteback, addr, uint32(len(data)), requester, onComplete)
	req.Data = append([]byte(nil), data...)
	c.enqueue(req)

	return req, nil
}

func (c *Controller) newRequest(
	kind Kind,
	addr, size uint32,
	requester string,
	onComplete func(*Request),
) *Request {
	c.nextID++

	return &Request{
		ID:          c.nextID,
		Kind:        kind,
		Addr:        addr,
		Size:        size,
		Requester:   requester,
		SubmitCycle: c.cycle,
		onComplete:  onComplete,
	}
}

func (c *Controller) enqueue(req *Request) {
	c.queue = append(c.queue, req)

	if n := c.Pending(); n > c.stats.QueuePeak {
		c.stats.QueuePeak = n
	}
}

// Tick advances the controller by one cycle.
func (c *Controller) Tick() {
	c.cycle++

	if c.current == nil {
		if len(c.queue) == 0 {
			return
		}

		c.current = c.queue[0]
		c.queue = c.queue[1:]
		c.current.remaining = c.latency

		c.InvokeHook(sim.HookCtx{
			Domain: c,
			Pos:    HookPosReqStart,
			Item:   c.current,
		})
	}

	c.stats.BusyCycles++
	c.current.remaining--
	if c.current.remaining > 0 {
		return
	}

	req := c.current
	c.current = nil
	c.complete(req)
}

func (c *Controller) complete(req *Request) {
	switch req.Kind {
	case KindFill:
		req.Data, req.Err = c.memory.ReadBlock(req.Addr, req.Size)
		c.stats.Fills++
		c.stats.BytesRead += uint64(req.Size)
	case KindWriteback:
		req.Err = c.memory.WriteBlock(req.Addr, req.Data)
		c.stats.Writebacks++
		c.stats.BytesWritten += uint64(req.Size)
	}

	req.Done = true
	req.CompleteCycle = c.cycle

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosReqComplete,
		Item:   req,
	})

	if req.onComplete != nil {
		req.onComplete(req)
	}
}

// ReadBlock reads memory immediately, bypassing the request queue.
func (c *Controller) ReadBlock(addr, n uint32) ([]byte, error) {
	return c.memory.ReadBlock(addr, n)
}

// WriteBlock writes memory immediately, bypassing the request queue.
func (c *Controller) WriteBlock(addr uint32, data []byte) error {
	return c.memory.WriteBlock(addr, data)
}

// DrainWritebacks commits every queued or in-flight write-back to memory at
// once, in FIFO order, and drops pending fills. Completion callbacks do not
// run.
func (c *Controller) DrainWritebacks() error {
	reqs := c.queue
	if c.current != nil {
		reqs = append([]*Request{c.current}, reqs...)
	}
	c.current = nil
	c.queue = nil

	for _, req := range reqs {
		if req.Kind != KindWriteback {
			continue
		}

		if err := c.memory.WriteBlock(req.Addr, req.Data); err != nil {
			return err
		}
		c.stats.Writebacks++
		c.stats.BytesWritten += uint64(req.Size)
	}

	return nil
}

// Reset drops all queued and in-flight requests and clears statistics.
func (c *Controller) Reset() {
	c.queue = nil
	c.current = nil
	c.cycle = 0
	c.stats = Statistics{}
}
