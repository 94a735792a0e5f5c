package pool

import (
	"math"
	"runtime/debug"
	"slices"

	"github.com/rs/zerolog"
)

const (
	// MinCapacity is the capacity used when little memory is available.
	MinCapacity = 50
	// DefaultCapacity is used when a non-positive ceiling is given.
	DefaultCapacity = 100

	lowMemoryMiB = 100
)

// Resettable is a pointer to T that can restore itself to zero state.
type Resettable[T any] interface {
	*T
	Reset()
}

// Pool is a bounded stack of reusable records.
// It is not safe for concurrent use.
type Pool[T any, PT Resettable[T]] struct {
	name     string
	items    []PT
	capacity int
	log      *zerolog.Logger
}

// New creates a pool whose capacity is derived once from the process memory
// limit and clamped to ceiling.
func New[T any, PT Resettable[T]](name string, ceiling int, logger *zerolog.Logger) *Pool[T, PT] {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if ceiling <= 0 {
		ceiling = DefaultCapacity
	}

	capacity := capacityFor(availableMiB(), ceiling)
	l := logger.With().Str("pool", name).Logger()
	l.Debug().Int("capacity", capacity).Msg("pool created")

	return &Pool[T, PT]{
		name:     name,
		items:    make([]PT, 0, capacity),
		capacity: capacity,
		log:      &l,
	}
}

// Acquire returns a pooled record or a freshly allocated one.
func (p *Pool[T, PT]) Acquire() PT {
	if n := len(p.items); n > 0 {
		item := p.items[n-1]
		p.items[n-1] = nil
		p.items = p.items[:n-1]
		return item
	}
	return PT(new(T))
}

// Release resets the record and keeps it if there is room.
func (p *Pool[T, PT]) Release(item PT) {
	if item == nil {
		return
	}
	item.Reset()

	if slices.Contains(p.items, item) {
		return
	}
	if len(p.items) >= p.capacity {
		p.log.Debug().Int("size", len(p.items)).Msg("pool full, discarding record")
		return
	}
	p.items = append(p.items, item)
}

// Capacity returns the maximum number of pooled records.
func (p *Pool[T, PT]) Capacity() int {
	return p.capacity
}

// Len returns the number of records currently pooled.
func (p *Pool[T, PT]) Len() int {
	return len(p.items)
}

// Clear drops every pooled record. Records already handed out are unaffected.
func (p *Pool[T, PT]) Clear() {
	clear(p.items)
	p.items = p.items[:0]
	p.log.Debug().Msg("pool cleared")
}

// Stats describes a pool for diagnostics.
type Stats struct {
	Name     string
	Size     int
	Capacity int
}

// Stats returns the current size and capacity.
func (p *Pool[T, PT]) Stats() Stats {
	return Stats{Name: p.name, Size: len(p.items), Capacity: p.capacity}
}

// availableMiB reads the runtime soft memory limit. An unset limit reports
// as math.MaxInt64, which is treated as plenty of memory.
func availableMiB() int64 {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return math.MaxInt64 >> 20
	}
	return limit >> 20
}

func capacityFor(availMiB int64, ceiling int) int {
	floor := min(MinCapacity, ceiling)
	if availMiB < lowMemoryMiB {
		return floor
	}
	half := availMiB / 2
	if half > int64(ceiling) {
		return ceiling
	}
	return max(floor, int(half))
}
