// Package tlbops implements the guest-aware TLB instruction helpers
// of spec.md §4.3: tlbsrch, tlbrd, tlbwr, tlbfill, tlbclr, tlbflush,
// and the invtlb_* invalidate-by-predicate family. Every helper reads
// and writes through the effective CSR bank and touches only entries
// whose GID tag matches the current effective GID.
package tlbops

import (
	"github.com/loongvirt/lvzcore/csr"
	"github.com/loongvirt/lvzcore/hostio"
	"github.com/loongvirt/lvzcore/tlb"
)

// EffectiveCSR is the subset of a CSR bank the TLB helpers read and
// write, supplied already resolved to the guest or host bank by the
// caller (vcpu), matching the "effective bank" convention used
// throughout this core.
type EffectiveCSR struct {
	TLBIDX  *uint64
	TLBEHI  *uint64
	TLBELO0 *uint64
	TLBELO1 *uint64
	ASID    *uint64
	STLBPS  uint64

	TLBRERA  *uint64
	TLBRBADV *uint64
	TLBREHI  *uint64
}

// Ops binds an Array and a GID filter for the duration of one
// instruction.
type Ops struct {
	Arr  *tlb.Array
	GID  uint8
	Host hostio.HostContext
}

func (o Ops) lookupVPPN(vppn uint64, ps uint8, asid uint16) (tlb.Index, bool) {
	if idx, ok := o.Arr.Lookup(vppn, ps, asid, o.GID, false); ok {
		return idx, true
	}

	if o.GID != 0 {
		// VMM (second-stage) entries are GID==0 and participate in
		// every guest's lookup too (spec.md §4.3 invariant 3).
		return o.Arr.Lookup(vppn, ps, asid, 0, false)
	}

	return tlb.Index{}, false
}

// Tlbsrch implements spec.md §4.3 "tlbsrch".
func (o Ops) Tlbsrch(c EffectiveCSR) {
	effPS := csr.STLBPSValue(c.STLBPS)
	vppn := csr.TLBEHIVPPN(*c.TLBEHI)
	asid := csr.ASIDValue(*c.ASID)

	idx, ok := o.lookupVPPN(vppn, effPS, asid)
	if !ok {
		csr.SetTLBIDXNE(c.TLBIDX, true)
		return
	}

	csr.SetTLBIDXNE(c.TLBIDX, false)

	if idx.MTLB {
		csr.SetTLBIDXIndex(c.TLBIDX, uint32(tlb.STLBSize+idx.Way))
	} else {
		csr.SetTLBIDXIndex(c.TLBIDX, uint32(idx.Set*tlb.STLBWays+idx.Way))
	}
}

func indexFromFlat(flat uint32) tlb.Index {
	if int(flat) >= tlb.STLBSize {
		return tlb.Index{MTLB: true, Way: int(flat) - tlb.STLBSize}
	}

	return tlb.Index{Set: int(flat) / tlb.STLBWays, Way: int(flat) % tlb.STLBWays}
}

// Tlbrd implements spec.md §4.3 "tlbrd".
func (o Ops) Tlbrd(c EffectiveCSR) {
	idx := indexFromFlat(csr.TLBIDXIndex(*c.TLBIDX))
	e := o.Arr.Get(idx)

	if !e.Valid() || (e.GID() != o.GID && e.GID() != 0) {
		*c.TLBEHI = 0
		*c.TLBELO0 = 0
		*c.TLBELO1 = 0
		csr.SetTLBIDXNE(c.TLBIDX, true)

		return
	}

	csr.SetTLBEHIVPPN(c.TLBEHI, e.VPPN())
	csr.SetASIDValue(c.ASID, e.ASID())
	csr.SetTLBIDXPS(c.TLBIDX, e.PS())
	csr.SetTLBIDXNE(c.TLBIDX, false)
	*c.TLBELO0 = e.Entry0
	*c.TLBELO1 = e.Entry1
}

// Tlbwr implements spec.md §4.3 "tlbwr".
func (o Ops) Tlbwr(c EffectiveCSR) {
	idx := indexFromFlat(csr.TLBIDXIndex(*c.TLBIDX))
	o.invalidateAndFlush(idx)

	if csr.TLBIDXNE(*c.TLBIDX) {
		e := o.Arr.Get(idx)
		e.SetValid(false)
		o.Arr.Set(idx, e)

		return
	}

	o.fillAt(idx, c)
}

func (o Ops) fillAt(idx tlb.Index, c EffectiveCSR) {
	var e tlb.Entry
	e.SetVPPN(csr.TLBEHIVPPN(*c.TLBEHI))
	e.SetASID(csr.ASIDValue(*c.ASID))
	e.SetPS(csr.TLBIDXPS(*c.TLBIDX))
	e.SetGID(o.GID)
	e.SetValid(true)
	e.Entry0 = *c.TLBELO0
	e.Entry1 = *c.TLBELO1

	o.Arr.Set(idx, e)
}

func (o Ops) invalidateAndFlush(idx tlb.Index) {
	e := o.Arr.Get(idx)
	if e.Valid() {
		o.Host.FlushTranslationCache(0)
	}
}

// Tlbfill implements spec.md §4.3 "tlbfill": a random index, chosen
// from the STLB set matching VPN when TLBIDX.PS == STLBPS, else a
// random MTLB index, as the replacement-policy fix for the open
// question in spec.md §9 (the original's hard-coded indices 0/1).
func (o Ops) Tlbfill(c EffectiveCSR) {
	ps := csr.TLBIDXPS(*c.TLBIDX)

	var idx tlb.Index
	if ps == csr.STLBPSValue(c.STLBPS) {
		vppn := csr.TLBEHIVPPN(*c.TLBEHI)
		set := int(vppn & (tlb.STLBSets - 1))
		way := int(o.Host.GuestRandom32() % tlb.STLBWays)
		idx = tlb.Index{Set: set, Way: way}
	} else {
		way := int(o.Host.GuestRandom32() % tlb.MTLBSize)
		idx = tlb.Index{MTLB: true, Way: way}
	}

	o.invalidateAndFlush(idx)
	o.fillAt(idx, c)
}

// Tlbclr implements spec.md §4.3 "tlbclr": restricted to entries
// matching current GID, further restricted to non-global entries
// whose ASID equals the effective ASID.
func (o Ops) Tlbclr(c EffectiveCSR) {
	asid := csr.ASIDValue(*c.ASID)

	o.Arr.Each(func(idx tlb.Index, e *tlb.Entry) {
		if e.GID() != o.GID {
			return
		}

		if e.Global() {
			return
		}

		if e.ASID() != asid {
			return
		}

		e.SetValid(false)
	})

	o.Host.FlushTranslationCache(0)
}

// Tlbflush implements spec.md §4.3 "tlbflush": restricted to entries
// matching current GID, with no ASID/global restriction.
func (o Ops) Tlbflush() {
	o.Arr.Each(func(idx tlb.Index, e *tlb.Entry) {
		if e.GID() == o.GID {
			e.SetValid(false)
		}
	})

	o.Host.FlushTranslationCache(0)
}

// InvtlbAll invalidates every entry tagged with the current GID,
// regardless of ASID or global bit.
func (o Ops) InvtlbAll() {
	o.Arr.Each(func(_ tlb.Index, e *tlb.Entry) {
		if e.GID() == o.GID {
			e.SetValid(false)
		}
	})

	o.Host.FlushTranslationCache(0)
}

// InvtlbAllG invalidates entries tagged with the current GID whose
// global bit equals g.
func (o Ops) InvtlbAllG(g bool) {
	o.Arr.Each(func(_ tlb.Index, e *tlb.Entry) {
		if e.GID() == o.GID && e.Global() == g {
			e.SetValid(false)
		}
	})

	o.Host.FlushTranslationCache(0)
}

// InvtlbAllASID invalidates non-global entries tagged with the
// current GID whose ASID matches asid.
func (o Ops) InvtlbAllASID(asid uint16) {
	o.Arr.Each(func(_ tlb.Index, e *tlb.Entry) {
		if e.GID() == o.GID && !e.Global() && e.ASID() == asid {
			e.SetValid(false)
		}
	})

	o.Host.FlushTranslationCache(0)
}

// InvtlbPageASID invalidates the entry covering addr for asid, but —
// per spec.md B3 — does NOT invalidate a matching global entry.
func (o Ops) InvtlbPageASID(asid uint16, addr uint64, ps uint8) {
	vppn := csr.TLBEHIVPPN(addr)

	o.Arr.Each(func(_ tlb.Index, e *tlb.Entry) {
		if e.GID() != o.GID || e.Global() {
			return
		}

		if e.PS() == ps && e.VPPN() == vppn && e.ASID() == asid {
			e.SetValid(false)
		}
	})

	o.Host.FlushTranslationCache(0)
}

// InvtlbPageASIDOrG invalidates the entry covering addr for asid,
// including a matching global entry (spec.md B3's "or_g" variant).
func (o Ops) InvtlbPageASIDOrG(asid uint16, addr uint64, ps uint8) {
	vppn := csr.TLBEHIVPPN(addr)

	o.Arr.Each(func(_ tlb.Index, e *tlb.Entry) {
		if e.GID() != o.GID {
			return
		}

		if e.PS() != ps || e.VPPN() != vppn {
			return
		}

		if e.Global() || e.ASID() == asid {
			e.SetValid(false)
		}
	})

	o.Host.FlushTranslationCache(0)
}
