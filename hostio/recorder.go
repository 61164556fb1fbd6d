package hostio

import (
	"fmt"
	"math/rand/v2"
)

// ExceptionEvent records a single RaiseException call.
type ExceptionEvent struct {
	Code uint32
}

// Recorder is a HostContext that records every call instead of driving
// real hardware. It exists so the core's translation and mediation
// logic can be exercised as a pure function of its own state
// (spec.md P5) without a real decoder or memory bus attached.
type Recorder struct {
	Exceptions []ExceptionEvent
	Flushes    []uint32
	rng        *rand.Rand
	Mem        map[uint64]uint64
	MMIORanges []MMIORange
}

// MMIORange is a half-open [Start, End) guest physical address range
// classified as MMIO/IOCSR space.
type MMIORange struct {
	Start, End uint64
}

// NewRecorder builds a Recorder seeded deterministically so tests are
// reproducible; pass a nonzero seed to vary the TLB-fill replacement
// sequence across test cases.
func NewRecorder(seed uint64) *Recorder {
	return &Recorder{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		Mem: make(map[uint64]uint64),
	}
}

func (r *Recorder) RaiseException(code uint32) {
	r.Exceptions = append(r.Exceptions, ExceptionEvent{Code: code})
}

func (r *Recorder) FlushTranslationCache(mmuIdxMask uint32) {
	r.Flushes = append(r.Flushes, mmuIdxMask)
}

func (r *Recorder) GuestRandom32() uint32 {
	return r.rng.Uint32()
}

func (r *Recorder) LoadPhys64(addr uint64) (uint64, error) {
	v, ok := r.Mem[addr&^uint64(7)]
	if !ok {
		return 0, fmt.Errorf("hostio: no host physical memory backing address %#x", addr)
	}

	return v, nil
}

func (r *Recorder) AddMMIORange(start, end uint64) {
	r.MMIORanges = append(r.MMIORanges, MMIORange{Start: start, End: end})
}

func (r *Recorder) IsMMIO(gpa uint64) bool {
	for _, rng := range r.MMIORanges {
		if gpa >= rng.Start && gpa < rng.End {
			return true
		}
	}

	return false
}

// LastException returns the most recently raised exception code, or
// false if none has been raised yet.
func (r *Recorder) LastException() (uint32, bool) {
	if len(r.Exceptions) == 0 {
		return 0, false
	}

	return r.Exceptions[len(r.Exceptions)-1].Code, true
}
