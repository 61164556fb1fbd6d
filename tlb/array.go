package tlb

import "fmt"

// STLBSets and STLBWays give the set-associative STLB its shape
// (spec.md §4.3: "256 sets x 8 ways" — set selected by VPN[7:0],
// searched within a set by way).
const (
	STLBSets = 256
	STLBWays = 8
	STLBSize = STLBSets * STLBWays

	MTLBSize = 64
)

// Array is the unified STLB+MTLB the core searches on every
// translation. STLB entries are addressed [set][way]; MTLB entries are
// fully associative and searched linearly, matching
// original_source's helper_tlbsrch two-phase search (STLB set lookup,
// then full MTLB scan).
type Array struct {
	STLB [STLBSets][STLBWays]Entry
	MTLB [MTLBSize]Entry
}

// stlbSet computes the STLB set index from a VPPN: the low 8 bits
// (original_source: stlb_idx = vpn & 0xff, cpu_helper.c).
func stlbSet(vppn uint64) int {
	return int(vppn & 0xff)
}

// Index identifies a located entry for Tlbrd/Tlbwr/tlbsrch.
type Index struct {
	MTLB bool
	Set  int // valid only when !MTLB
	Way  int
}

// Lookup searches the array for an entry whose VPPN (va[47:13], same
// convention as TLBEHI.VPPN), page size, and GID match. includeGlobal
// controls whether global (ASID-independent) entries are eligible,
// matching the ASID-vs-global distinction in original_source's
// loongarch_map_tlb_entry search.
func (a *Array) Lookup(vppn uint64, ps uint8, asid uint16, gid uint8, includeGlobal bool) (Index, bool) {
	set := stlbSet(vppn)
	for way := 0; way < STLBWays; way++ {
		e := &a.STLB[set][way]
		if matches(e, vppn, ps, asid, gid, includeGlobal) {
			return Index{Set: set, Way: way}, true
		}
	}

	for way := 0; way < MTLBSize; way++ {
		e := &a.MTLB[way]
		if matches(e, vppn, ps, asid, gid, includeGlobal) {
			return Index{MTLB: true, Way: way}, true
		}
	}

	return Index{}, false
}

// matches compares a candidate entry against a lookup key.
func matches(e *Entry, vppn uint64, ps uint8, asid uint16, gid uint8, includeGlobal bool) bool {
	if !e.Valid() {
		return false
	}

	if e.PS() != ps || e.GID() != gid || e.VPPN() != vppn {
		return false
	}

	if e.Global() {
		return includeGlobal
	}

	return e.ASID() == asid
}

// Get returns the entry at idx.
func (a *Array) Get(idx Index) Entry {
	if idx.MTLB {
		return a.MTLB[idx.Way]
	}

	return a.STLB[idx.Set][idx.Way]
}

// Set writes e at idx.
func (a *Array) Set(idx Index, e Entry) {
	if idx.MTLB {
		a.MTLB[idx.Way] = e
		return
	}

	a.STLB[idx.Set][idx.Way] = e
}

// InvalidateAll clears every entry in both the STLB and the MTLB,
// regardless of GID or ASID. The GID-filtered TLB helpers in tlbops do
// not use it; they invalidate through Each.
func (a *Array) InvalidateAll() {
	for s := range a.STLB {
		for w := range a.STLB[s] {
			a.STLB[s][w] = Entry{}
		}
	}

	for w := range a.MTLB {
		a.MTLB[w] = Entry{}
	}
}

// Each calls fn for every live (valid) entry along with its Index,
// used by the invtlb_* family to filter-and-clear by predicate.
func (a *Array) Each(fn func(Index, *Entry)) {
	for s := range a.STLB {
		for w := range a.STLB[s] {
			if a.STLB[s][w].Valid() {
				fn(Index{Set: s, Way: w}, &a.STLB[s][w])
			}
		}
	}

	for w := range a.MTLB {
		if a.MTLB[w].Valid() {
			fn(Index{MTLB: true, Way: w}, &a.MTLB[w])
		}
	}
}

func (idx Index) String() string {
	if idx.MTLB {
		return fmt.Sprintf("mtlb[%d]", idx.Way)
	}

	return fmt.Sprintf("stlb[%d][%d]", idx.Set, idx.Way)
}
