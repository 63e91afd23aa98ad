package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler lets num out of every den events through. A zero ratio lets
// everything through.
type ratioSampler struct {
	ratio atomic.Uint64 // num<<32 | den
	seen  atomic.Uint64
}

func newRatioSampler(num, den int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(num, den)
	return s
}

// Set changes the ratio and restarts the count.
func (s *ratioSampler) Set(num, den int) {
	var packed uint64
	if num > 0 && den > 0 {
		packed = uint64(min(num, den))<<32 | uint64(den)
	}
	s.ratio.Store(packed)
	s.seen.Store(0)
}

// Allow reports whether the next event passes.
func (s *ratioSampler) Allow() bool {
	packed := s.ratio.Load()
	if packed == 0 {
		return true
	}
	num, den := packed>>32, packed&0xffffffff
	return (s.seen.Add(1)-1)%den < num
}

// parseRatioSpec reads "n/d" or "d" (meaning 1/d). Anything else, or a
// non-positive d, yields 0, 0.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	numStr, denStr, ok := strings.Cut(spec, "/")
	if !ok {
		numStr, denStr = "1", spec
	}
	num, err1 := strconv.Atoi(strings.TrimSpace(numStr))
	den, err2 := strconv.Atoi(strings.TrimSpace(denStr))
	if err1 != nil || err2 != nil || den <= 0 {
		return 0, 0
	}
	return num, den
}
