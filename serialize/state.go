// Package serialize defines the migratable state shape of this core
// (spec.md §4.5) and the framed transport it travels over. Guest
// general-purpose memory and FPU/SIMD state are external subsections
// and are not part of this package.
package serialize

import (
	"github.com/loongvirt/lvzcore/csr"
	"github.com/loongvirt/lvzcore/tlb"
	"github.com/loongvirt/lvzcore/vmexit"
)

// MajorVersion is the base CPU image version. Bump on any field list
// change, never on reordering (spec.md §6 "Persisted state").
const MajorVersion = 2

// TLBSubsectionVersion and LVZSubsectionVersion are versioned
// independently of MajorVersion, per spec.md §6.
const (
	TLBSubsectionVersion = 0
	LVZSubsectionVersion = 1
)

// TLBEntrySnapshot is the 3-word wire form of a tlb.Entry.
type TLBEntrySnapshot struct {
	Misc, Entry0, Entry1 uint64
}

func snapshotEntry(e tlb.Entry) TLBEntrySnapshot {
	return TLBEntrySnapshot{Misc: e.Misc, Entry0: e.Entry0, Entry1: e.Entry1}
}

func (s TLBEntrySnapshot) toEntry() tlb.Entry {
	return tlb.Entry{Misc: s.Misc, Entry0: s.Entry0, Entry1: s.Entry1}
}

// TLBSnapshot is the full STLB+MTLB array, flattened to a single slice
// in STLB-then-MTLB order so the field count matches spec.md §4.5's
// "TLB array of TLB_MAX entries x 3 x u64" regardless of the
// in-memory [sets][ways] shape.
type TLBSnapshot struct {
	Version int
	Entries []TLBEntrySnapshot
}

// SnapshotTLB flattens arr into wire order.
func SnapshotTLB(arr *tlb.Array) TLBSnapshot {
	out := make([]TLBEntrySnapshot, 0, tlb.STLBSize+tlb.MTLBSize)

	for s := range arr.STLB {
		for w := range arr.STLB[s] {
			out = append(out, snapshotEntry(arr.STLB[s][w]))
		}
	}

	for w := range arr.MTLB {
		out = append(out, snapshotEntry(arr.MTLB[w]))
	}

	return TLBSnapshot{Version: TLBSubsectionVersion, Entries: out}
}

// RestoreTLB unflattens snap back into arr. It returns an error if the
// entry count doesn't match the array's fixed size, or if the
// subsection version is newer than this core understands.
func (snap TLBSnapshot) RestoreTLB(arr *tlb.Array) error {
	if int(snap.Version) > TLBSubsectionVersion {
		return errUnknownTLBVersion
	}

	want := tlb.STLBSize + tlb.MTLBSize
	if len(snap.Entries) != want {
		return errTLBEntryCountMismatch
	}

	i := 0

	for s := range arr.STLB {
		for w := range arr.STLB[s] {
			arr.STLB[s][w] = snap.Entries[i].toEntry()
			i++
		}
	}

	for w := range arr.MTLB {
		arr.MTLB[w] = snap.Entries[i].toEntry()
		i++
	}

	return nil
}

// HostCSRSnapshot and GuestCSRSnapshot mirror csr.HostBank/GuestBank
// field-for-field; kept as distinct named types (rather than a gob of
// the bank directly) so the wire shape is decoupled from in-memory
// struct layout changes.
type HostCSRSnapshot struct {
	Bank csr.HostBank
}

type GuestCSRSnapshot struct {
	// Present is false when cpucfg2.LVZ is unset for this vCPU, in
	// which case the guest bank subsection is omitted entirely
	// (spec.md §4.5: "a needed-subsection predicate keyed on
	// cpucfg2.LVZ").
	Present bool
	Bank    csr.GuestBank
}

// LVZSnapshot is the LVZ block named in spec.md §4.5.
type LVZSnapshot struct {
	Version                   int
	GSTAT, GCFG, GINTC, GCNTC uint64
	GTLBC, TRGP               uint64
	Enabled                   bool
	ExitContext               vmexit.Context
}

// Snapshot is the complete migratable image of one vCPU's LVZ-core
// state.
type Snapshot struct {
	MajorVersion int

	Host  HostCSRSnapshot
	Guest GuestCSRSnapshot
	TLB   TLBSnapshot
	LVZ   LVZSnapshot
}
