package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sarchlab/ev6sim/insts"
)

// Queue errors.
var (
	// ErrQueueFull is returned by Insert on a full queue. It is
	// backpressure, never an exception.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueClosed is returned by Claim once the queue is closed.
	ErrQueueClosed = errors.New("queue closed")
)

// Pipe is an execution pipeline.
type Pipe uint8

// Execution pipelines: four in the integer box, two in the floating-point
// box.
const (
	PipeU0 Pipe = iota
	PipeU1
	PipeL0
	PipeL1
	PipeFA
	PipeFM
	numPipes
)

var pipeNames = [...]string{"U0", "U1", "L0", "L1", "FA", "FM"}

func (p Pipe) String() string {
	if p < numPipes {
		return pipeNames[p]
	}
	return fmt.Sprintf("pipe(%d)", uint8(p))
}

// PipeMask is a set of pipes.
type PipeMask uint8

// Has reports whether p is in the set.
func (m PipeMask) Has(p Pipe) bool {
	return m&(1<<p) != 0
}

func pipes(ps ...Pipe) PipeMask {
	var m PipeMask
	for _, p := range ps {
		m |= 1 << p
	}
	return m
}

// PipesFor returns the pipes that may execute an instruction class. Classes
// that need no pipe return an empty set.
func PipesFor(class insts.Class) PipeMask {
	switch class {
	case insts.ClassIntALU:
		return pipes(PipeU0, PipeU1, PipeL0, PipeL1)
	case insts.ClassLoadAddr, insts.ClassLoad, insts.ClassStore, insts.ClassIntToFP:
		return pipes(PipeL0, PipeL1)
	case insts.ClassIntShift, insts.ClassBranch, insts.ClassJump, insts.ClassMisc:
		return pipes(PipeU0, PipeU1)
	case insts.ClassIntMul:
		return pipes(PipeU1)
	case insts.ClassFPMul:
		return pipes(PipeFM)
	case insts.ClassFPAdd, insts.ClassFPDiv, insts.ClassFPBranch, insts.ClassFPToInt:
		return pipes(PipeFA)
	}
	return 0
}

// UsesFloatQueue reports whether a class issues from the floating-point
// queue.
func UsesFloatQueue(class insts.Class) bool {
	m := PipesFor(class)
	return m.Has(PipeFA) || m.Has(PipeFM)
}

// QueueEntry is a node of an issue queue.
type QueueEntry struct {
	Inst  *Instruction
	prev  *QueueEntry
	next  *QueueEntry
	queue *Queue
}

// Queue is a bounded issue queue kept in program order. Pipes claim the
// oldest ready entry they can execute.
type Queue struct {
	name string
	mu   sync.Mutex
	cond *sync.Cond

	head, tail *QueueEntry
	count      int
	max        int
	closed     bool

	// ready is evaluated under the queue lock.
	ready func(*Instruction) bool
}

// NewQueue creates a queue holding up to size entries. ready decides whether
// an entry's operands are available.
func NewQueue(name string, size int, ready func(*Instruction) bool) *Queue {
	if size <= 0 {
		panic(fmt.Sprintf("pipeline: queue %s needs a positive size", name))
	}
	q := &Queue{name: name, max: size, ready: ready}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Len returns the number of entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the capacity.
func (q *Queue) Cap() int { return q.max }

// Free returns the number of empty slots.
func (q *Queue) Free() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.max - q.count
}

// Insert appends inst. It returns ErrQueueFull, changing nothing, when the
// queue is full.
func (q *Queue) Insert(inst *Instruction) (*QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count >= q.max {
		return nil, ErrQueueFull
	}

	e := &QueueEntry{Inst: inst, prev: q.tail, queue: q}
	if q.tail != nil {
		q.tail.next = e
	} else {
		q.head = e
	}
	q.tail = e
	q.count++

	inst.queue = q
	inst.queueEntry = e
	q.cond.Broadcast()
	return e, nil
}

// unlink removes e. Callers hold the lock.
func (q *Queue) unlink(e *QueueEntry) {
	if e.queue != q {
		panic(fmt.Sprintf("pipeline: entry %s is not in queue %s", e.Inst, q.name))
	}
	if q.count == 0 {
		panic(fmt.Sprintf("pipeline: queue %s underflow", q.name))
	}

	if e.prev != nil {
		e.prev.next = e.next
	} else {
		q.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		q.tail = e.prev
	}
	e.prev, e.next, e.queue = nil, nil, nil
	e.Inst.queueEntry = nil
	q.count--
}

// Remove drops inst if it is still waiting in the queue.
func (q *Queue) Remove(inst *Instruction) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if inst.queueEntry == nil {
		return false
	}
	q.unlink(inst.queueEntry)
	return true
}

// Claim removes and returns the oldest entry that pipe can execute and whose
// operands are ready, moving it to the executing state before the lock is
// released. It blocks until such an entry exists, the queue is closed or
// ctx is done.
func (q *Queue) Claim(ctx context.Context, pipe Pipe) (*Instruction, error) {
	stop := context.AfterFunc(ctx, q.Notify)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed || ctx.Err() != nil {
			return nil, ErrQueueClosed
		}

		for e := q.head; e != nil; e = e.next {
			inst := e.Inst
			if !PipesFor(inst.Class()).Has(pipe) || inst.State() != StateQueued {
				continue
			}
			if q.ready != nil && !q.ready(inst) {
				continue
			}
			if !inst.Transition(EventIssue) {
				continue
			}
			q.unlink(e)
			return inst, nil
		}

		q.cond.Wait()
	}
}

// Notify wakes blocked claimers so that they re-check readiness.
func (q *Queue) Notify() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Close wakes every claimer with ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Open re-enables a closed queue.
func (q *Queue) Open() {
	q.mu.Lock()
	q.closed = false
	q.mu.Unlock()
}

// Entries returns the waiting instructions, oldest first.
func (q *Queue) Entries() []*Instruction {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Instruction, 0, q.count)
	for e := q.head; e != nil; e = e.next {
		out = append(out, e.Inst)
	}
	return out
}

// Clear drops every entry.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head != nil {
		q.unlink(q.head)
	}
}
