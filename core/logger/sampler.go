package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler lets through num of every den events. A zero ratio lets everything through.
type ratioSampler struct {
	ratio atomic.Uint64 // num<<32 | den
	n     atomic.Uint64
}

func newRatioSampler(num, den int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(num, den)
	return s
}

func (s *ratioSampler) Set(num, den int) {
	if num <= 0 || den <= 0 {
		s.ratio.Store(0)
	} else {
		num = min(num, den)
		s.ratio.Store(uint64(num)<<32 | uint64(uint32(den)))
	}
	s.n.Store(0)
}

func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	if r == 0 {
		return true
	}
	num, den := r>>32, r&0xffffffff
	return (s.n.Add(1)-1)%den < num
}

// parseRatioSpec accepts "num/den", a bare "den" meaning 1/den, or "off".
// Unparseable specs yield 0/0.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	if spec == "" || spec == "off" {
		return 0, 0
	}
	num, den, ok := strings.Cut(spec, "/")
	if !ok {
		num, den = "1", spec
	}
	n, err1 := strconv.Atoi(strings.TrimSpace(num))
	d, err2 := strconv.Atoi(strings.TrimSpace(den))
	if err1 != nil || err2 != nil || d <= 0 {
		return 0, 0
	}
	return n, d
}
