package translate

import (
	"github.com/loongvirt/lvzcore/csr"
	"github.com/loongvirt/lvzcore/hostio"
	"github.com/loongvirt/lvzcore/tlb"
)

// PrivLevel names the three privilege indices the engine checks
// against, matching the DA pseudo-level used while CRMD.DA is set.
type PrivLevel uint8

const (
	Kernel PrivLevel = 0
	User   PrivLevel = 3
	DA     PrivLevel = 4
)

// VALen is the number of implemented virtual address bits; bits above
// it must be a sign-extension of bit VALen-1 (the canonical-address
// check, spec.md §4.1 step 3).
const VALen = 48

// CSRView is the minimal slice of a CSR bank the engine needs, handed
// in by the caller already resolved to whichever bank (host or guest)
// is architecturally effective — the engine itself never chooses a
// bank (spec.md DESIGN NOTES: "route through the selector").
type CSRView struct {
	CRMD   uint64
	DMW    [csr.DMWSlots]uint64
	STLBPS uint64
	ASID   uint64
}

// Key carries the TLB lookup parameters that depend on which mode
// (host or guest) and which guest is current.
type Key struct {
	GID           uint8
	IncludeGlobal bool
}

// Translate runs the first-stage (or, when lvz is disabled, the only
// stage) translation algorithm of spec.md §4.1 over view/arr for va.
func Translate(view CSRView, arr *tlb.Array, va uint64, at AccessType, plv PrivLevel, key Key) Result {
	da := csr.CRMDDA(view.CRMD)
	pg := csr.CRMDPG(view.CRMD)

	if da && !pg {
		return Result{PA: va, Prot: ProtRead | ProtWrite | ProtExec, Fault: NoFault}
	}

	for _, dmw := range view.DMW {
		if csr.DMWPLVMask(dmw)&(1<<plv) == 0 {
			continue
		}

		if csr.DMWVSeg(dmw) != va>>61 {
			continue
		}

		pa := (csr.DMWPSeg(dmw) << 61) | (va & (1<<61 - 1))

		return Result{PA: pa, Prot: ProtRead | ProtWrite | ProtExec, Fault: NoFault}
	}

	if !canonical(va) {
		return Result{Fault: BadAddr}
	}

	vppn, ps := vpnForLookup(va, view.STLBPS, arr)

	idx, ok := arr.Lookup(vppn, ps, csr.ASIDValue(view.ASID), key.GID, key.IncludeGlobal)
	if !ok {
		return Result{Fault: NoMatch}
	}

	entry := arr.Get(idx)

	half := tlb.Even
	if va&(1<<entry.PS()) != 0 {
		half = tlb.Odd
	}

	if !entry.V(half) {
		return Result{Fault: Invalid}
	}

	if at == Store && !entry.D(half) {
		return Result{Fault: Dirty}
	}

	if at == Fetch && entry.NX(half) {
		return Result{Fault: ExecInhibit}
	}

	if at == Load && entry.NR(half) {
		return Result{Fault: ReadInhibit}
	}

	tlbPLV := entry.PLV(half)
	switch {
	case !entry.RPLV(half) && uint8(plv) > tlbPLV:
		return Result{Fault: Privilege}
	case entry.RPLV(half) && uint8(plv) != tlbPLV:
		return Result{Fault: Privilege}
	}

	pageSize := entry.PS()
	ppn := entry.PPN(half, pageSize)
	offsetMask := uint64(1)<<pageSize - 1
	// PPN is always in 4 KiB (1<<12) units regardless of the entry's
	// own page size; larger pages simply leave its low bits masked
	// off (Entry.PPN's "PPN low-bit masking"), so composition always
	// shifts by the 4 KiB granule, never by pageSize itself.
	pa := (ppn << 12) | (va & offsetMask)

	prot := ProtRead
	if entry.D(half) {
		prot |= ProtWrite
	}

	if !entry.NX(half) {
		prot |= ProtExec
	}

	return Result{PA: pa, Prot: prot, Fault: NoFault}
}

// vpnForLookup derives the lookup VPPN (va[47:13], the same convention
// TLBEHI.VPPN uses) and the page size to search at. Page size is taken
// from STLBPS; an MTLB entry search is still tried at every recorded
// MTLB page size by Array.Lookup's separate MTLB scan in principle,
// but the first-pass STLB key uses STLBPS per spec.md §4.3.
func vpnForLookup(va uint64, stlbps uint64, _ *tlb.Array) (uint64, uint8) {
	ps := csr.STLBPSValue(stlbps)
	if ps == 0 {
		ps = 1 // spec.md §4.1 tie-break: PS=0 logged, not faulted; 1-byte sentinel page.
	}

	return csr.TLBEHIVPPN(va), ps
}

func canonical(va uint64) bool {
	high := va >> (VALen - 1)

	return high == 0 || high == ^uint64(0)>>(VALen-1)
}

// SecondLevel implements spec.md §4.1's "Second-level translation":
// a GPA→HPA lookup against the GID==0 entries of the same array.
// mmio reports whether the classifier flagged gpa as MMIO/IOCSR space
// when the lookup missed, so the caller can choose vm-exit reason
// MMIO vs a plain stage-2 TLB fault; either way the core itself never
// identity-maps a cold miss (spec.md §9 open question: the original's
// identity-map fallback is unsafe and is not carried forward here).
func SecondLevel(arr *tlb.Array, gpa uint64, stlbps uint64, classifier hostio.MMIOClassifier) (hpa uint64, fault Fault, mmio bool) {
	ps := csr.STLBPSValue(stlbps)
	if ps == 0 {
		ps = 1
	}

	vppn := csr.TLBEHIVPPN(gpa)

	idx, ok := arr.Lookup(vppn, ps, 0, 0, false)
	if !ok {
		return 0, SecondLevelFault, classifier != nil && classifier.IsMMIO(gpa)
	}

	entry := arr.Get(idx)

	half := tlb.Even
	if gpa&(1<<entry.PS()) != 0 {
		half = tlb.Odd
	}

	if !entry.V(half) {
		return 0, SecondLevelFault, classifier != nil && classifier.IsMMIO(gpa)
	}

	offsetMask := uint64(1)<<entry.PS() - 1
	hpa = (entry.PPN(half, entry.PS()) << 12) | (gpa & offsetMask)

	return hpa, NoFault, false
}
