package set

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type (
	// Bitmap is a set of small non-negative ints.
	// The zero value is an empty set.
	Bitmap struct {
		b  []uint64
		b0 [1]uint64
	}
)

func (s *Bitmap) Set(i int) {
	i, j := i/64, i%64

	for i >= len(s.b) {
		s.b = append(s.b, 0)
	}

	s.b[i] |= 1 << j
}

func (s *Bitmap) IsSet(i int) bool {
	i, j := i/64, i%64

	if s == nil || i >= len(s.b) {
		return false
	}

	return s.b[i]&(1<<j) != 0
}

func (s *Bitmap) Size() (r int) {
	if s == nil {
		return 0
	}

	for _, w := range s.b {
		r += bits.OnesCount64(w)
	}

	return r
}

// Range calls f for set elements in increasing order until f returns false.
func (s *Bitmap) Range(f func(i int) bool) {
	if s == nil {
		return
	}

	for i, w := range s.b {
		for w != 0 {
			j := bits.TrailingZeros64(w)
			w &^= 1 << j

			if !f(i*64 + j) {
				return
			}
		}
	}
}

func (s *Bitmap) Slice() (r []int) {
	s.Range(func(i int) bool {
		r = append(r, i)
		return true
	})

	return r
}

func (s Bitmap) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if s.b == nil {
		return e.AppendNil(b)
	}

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Range(func(i int) bool {
		b = e.AppendInt(b, i)

		return true
	})

	b = e.AppendBreak(b)

	return b
}
