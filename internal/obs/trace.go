package obs

import (
	"strconv"
	"sync/atomic"
	"time"
)

// TraceGenerator hands out increasing ids for order tags. A nil generator
// yields empty tags.
type TraceGenerator struct {
	last atomic.Uint64
}

// NewTraceGenerator starts after seed. Zero seeds from the wall clock.
func NewTraceGenerator(seed uint64) *TraceGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	g := &TraceGenerator{}
	g.last.Store(seed)
	return g
}

func (g *TraceGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return g.last.Add(1)
}

// Tag returns "<prefix>-<id>".
func (g *TraceGenerator) Tag(prefix string) string {
	if g == nil {
		return ""
	}
	return prefix + "-" + strconv.FormatUint(g.Next(), 10)
}
