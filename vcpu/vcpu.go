// Package vcpu aggregates the CSR banks, TLB array, LVZ control state,
// and VM-exit controller into the single per-vCPU value this core
// exposes to its host emulator, and implements every operation named
// in spec.md §6 "External Interfaces" as a method on it. The CPU
// owns its TLB array and both CSR banks by value (spec.md DESIGN
// NOTES: "Cycle-free ownership"); it holds a HostContext collaborator
// it never uses to reach back into ownership, only to call out the
// four primitives spec.md §1 names and, for second-level misses, the
// MMIO classifier hostio.HostContext also carries.
package vcpu

import (
	"errors"
	"fmt"

	"github.com/loongvirt/lvzcore/csr"
	"github.com/loongvirt/lvzcore/csrmed"
	"github.com/loongvirt/lvzcore/guestlog"
	"github.com/loongvirt/lvzcore/hostio"
	"github.com/loongvirt/lvzcore/serialize"
	"github.com/loongvirt/lvzcore/tlb"
	"github.com/loongvirt/lvzcore/tlbops"
	"github.com/loongvirt/lvzcore/translate"
	"github.com/loongvirt/lvzcore/vmexit"
	"github.com/loongvirt/lvzcore/vmstate"
)

var errIllegalGuestOnly = errors.New("vcpu: instruction is legal only in guest mode")

// CPU is one virtual CPU's LVZ-core state.
type CPU struct {
	Host  csr.HostBank
	Guest csr.GuestBank
	LVZ   vmstate.LVZControl
	TLB   tlb.Array

	PC uint64

	// CPUCfg2LVZ mirrors cpucfg leaf 2's LVZ feature bit; it lives
	// outside the CSR banks (spec.md §4.4: "lvz_enabled &&
	// cpucfg2.LVZ").
	CPUCfg2LVZ bool

	// VCPUIndex backs the computed CPUID CSR read (spec.md §4.2).
	VCPUIndex uint64

	ExitCtx vmexit.Context

	Ctx hostio.HostContext
	Log *guestlog.Logger

	exit vmexit.Controller
}

// New constructs a freshly reset vCPU bound to ctx. log may be nil, in
// which case invariant violations are silently dropped.
func New(ctx hostio.HostContext, log *guestlog.Logger, vcpuIndex uint64) *CPU {
	c := &CPU{
		Host:      csr.ResetHost(),
		Guest:     csr.ResetGuest(),
		Ctx:       ctx,
		Log:       log,
		VCPUIndex: vcpuIndex,
	}
	c.exit = vmexit.Controller{LVZ: &c.LVZ}

	return c
}

// effectiveBank returns which bank is currently architecturally
// visible (invariant P1 in spec.md §8).
func (c *CPU) effectiveBank() csrmed.EffectiveBank {
	if c.LVZ.Mode() == vmstate.Guest {
		return csrmed.GuestBank
	}

	return csrmed.HostBank
}

func (c *CPU) currentGID() uint8 {
	if c.LVZ.Mode() == vmstate.Guest {
		return c.LVZ.GID()
	}

	return 0
}

func (c *CPU) exitBanks() vmexit.Banks {
	return vmexit.Banks{
		HostCRMD:   &c.Host.CRMD,
		GuestPRMD:  &c.Guest.PRMD,
		GuestERA:   &c.Guest.ERA,
		GuestESTAT: &c.Guest.ESTAT,
		GuestBADV:  &c.Guest.BADV,
		HostBADV:   &c.Host.BADV,
		HostTRGP:   &c.Host.TRGP,
	}
}

// computedRead implements spec.md §4.2's "for the special cases PGD,
// TVAL, CPUID, the engine computes a value ... rather than reading a
// literal field", applied when the guest bank is the effective bank.
func (c *CPU) computedRead(bank csrmed.EffectiveBank, index uint32) (uint64, bool) {
	if bank != csrmed.GuestBank {
		return 0, false
	}

	switch index {
	case csr.PGD:
		// Page-directory base selection: the sign bit of the faulting
		// address's BADV picks PGDL (user, bit clear) vs PGDH
		// (kernel/negative, bit set) — spec.md SUPPLEMENTED FEATURES.
		if int64(c.Guest.BADV) < 0 {
			return c.Guest.PGDH, true
		}

		return c.Guest.PGDL, true
	case csr.TVAL:
		return c.Guest.TCFG, true // constant-timer read surfaces the configured period.
	case csr.CPUIDCSR:
		return c.VCPUIndex, true
	default:
		return 0, false
	}
}

func (c *CPU) rawRead(bank csrmed.EffectiveBank, index uint32) uint64 {
	if v, ok := c.computedRead(bank, index); ok {
		return v
	}

	if bank == csrmed.HostBank {
		if p, ok := hostField(&c.Host, index); ok {
			return *p
		}

		return 0
	}

	if p, ok := guestField(&c.Guest, index); ok {
		return *p
	}

	return 0
}

func (c *CPU) rawWrite(bank csrmed.EffectiveBank, index uint32, v uint64) {
	if bank == csrmed.HostBank {
		switch index {
		case csr.ESTAT:
			csr.WriteESTATMasked(&c.Host.ESTAT, v)
			return
		case csr.TICLR:
			if csr.TICLRClear(v) {
				csr.ClearESTATTimerIRQ(&c.Host.ESTAT)
			}

			return
		case csr.ASID:
			csr.SetASIDValue(&c.Host.ASID, uint16(v))
			return
		}

		if p, ok := hostField(&c.Host, index); ok {
			*p = v
		}

		return
	}

	switch index {
	case csr.ESTAT:
		csr.WriteESTATMasked(&c.Guest.ESTAT, v)
		return
	case csr.TICLR:
		if csr.TICLRClear(v) {
			csr.ClearESTATTimerIRQ(&c.Guest.ESTAT)
		}

		return
	case csr.ASID:
		csr.SetASIDValue(&c.Guest.ASID, uint16(v))
		return
	}

	if p, ok := guestField(&c.Guest, index); ok {
		*p = v
	}
}

func (c *CPU) banks() csrmed.Banks {
	return csrmed.Banks{Read: c.rawRead, Write: c.rawWrite}
}

func (c *CPU) mediator() *csrmed.Mediator {
	return &csrmed.Mediator{
		LVZ:       &c.LVZ,
		Exit:      c.exit,
		ExitBanks: c.exitBanks,
		Flusher:   c,
		GID:       c.currentGID(),
	}
}

// FlushTranslationCache and FlushGuestASID implement csrmed.ASIDFlusher.
func (c *CPU) FlushTranslationCache(mmuIdxMask uint32) {
	c.Ctx.FlushTranslationCache(mmuIdxMask)
}

func (c *CPU) FlushGuestASID(gid uint8, oldASID uint16) {
	c.TLB.Each(func(_ tlb.Index, e *tlb.Entry) {
		if e.GID() == gid && !e.Global() && e.ASID() == oldASID {
			e.SetValid(false)
		}
	})
}

// Csrrd implements csrrd(csr) (spec.md §6).
func (c *CPU) Csrrd(index uint32) uint64 {
	v, trapped, exit := c.mediator().Read(c.banks(), index, c.PC)
	if trapped {
		c.ExitCtx = exit
	}

	return v
}

// Csrwr implements csrwr(csr, val), returning the old value.
func (c *CPU) Csrwr(index uint32, val uint64) uint64 {
	old, trapped, exit := c.mediator().Write(c.banks(), index, val, c.PC)
	if trapped {
		c.ExitCtx = exit
	}

	return old
}

// Csrxchg implements csrxchg(csr, rj, rd), where new = (old & ~rd) | (rj & rd).
func (c *CPU) Csrxchg(index uint32, rj, rd uint64) uint64 {
	old, trapped, exit := c.mediator().Exchange(c.banks(), index, rj, rd, c.PC)
	if trapped {
		c.ExitCtx = exit
	}

	return old
}

// Gcsrrd/Gcsrwr/Gcsrxchg implement the guest-CSR-only forms, legal
// only in guest mode; illegal elsewhere (raises IPE).
func (c *CPU) Gcsrrd(index uint32) (uint64, error) {
	if c.LVZ.Mode() != vmstate.Guest {
		c.Ctx.RaiseException(csr.ExcIPE)
		return 0, errIllegalGuestOnly
	}

	if p, ok := guestField(&c.Guest, index); ok {
		return *p, nil
	}

	return 0, nil
}

func (c *CPU) Gcsrwr(index uint32, val uint64) (uint64, error) {
	if c.LVZ.Mode() != vmstate.Guest {
		c.Ctx.RaiseException(csr.ExcIPE)
		return 0, errIllegalGuestOnly
	}

	p, ok := guestField(&c.Guest, index)
	if !ok {
		return 0, nil
	}

	old := *p
	*p = val

	return old, nil
}

func (c *CPU) Gcsrxchg(index uint32, rj, rd uint64) (uint64, error) {
	if c.LVZ.Mode() != vmstate.Guest {
		c.Ctx.RaiseException(csr.ExcIPE)
		return 0, errIllegalGuestOnly
	}

	p, ok := guestField(&c.Guest, index)
	if !ok {
		return 0, nil
	}

	old := *p
	*p = (old &^ rd) | (rj & rd)

	return old, nil
}

func (c *CPU) tlbOps() tlbops.Ops {
	return tlbops.Ops{Arr: &c.TLB, GID: c.LVZ.EffectiveGID(), Host: c.Ctx}
}

func (c *CPU) effectiveCSR() tlbops.EffectiveCSR {
	if c.effectiveBank() == csrmed.GuestBank {
		return tlbops.EffectiveCSR{
			TLBIDX: &c.Guest.TLBIDX, TLBEHI: &c.Guest.TLBEHI,
			TLBELO0: &c.Guest.TLBELO0, TLBELO1: &c.Guest.TLBELO1,
			ASID: &c.Guest.ASID, STLBPS: c.Guest.STLBPS,
			TLBRERA: &c.Guest.TLBRERA, TLBRBADV: &c.Guest.TLBRBADV, TLBREHI: &c.Guest.TLBREHI,
		}
	}

	return tlbops.EffectiveCSR{
		TLBIDX: &c.Host.TLBIDX, TLBEHI: &c.Host.TLBEHI,
		TLBELO0: &c.Host.TLBELO0, TLBELO1: &c.Host.TLBELO1,
		ASID: &c.Host.ASID, STLBPS: c.Host.STLBPS,
		TLBRERA: &c.Host.TLBRERA, TLBRBADV: &c.Host.TLBRBADV, TLBREHI: &c.Host.TLBREHI,
	}
}

func (c *CPU) Tlbsrch()   { c.tlbOps().Tlbsrch(c.effectiveCSR()) }
func (c *CPU) Tlbrd()     { c.tlbOps().Tlbrd(c.effectiveCSR()) }
func (c *CPU) Tlbwr()     { c.tlbOps().Tlbwr(c.effectiveCSR()) }
func (c *CPU) Tlbfill()   { c.tlbOps().Tlbfill(c.effectiveCSR()) }
func (c *CPU) Tlbclr()    { c.tlbOps().Tlbclr(c.effectiveCSR()) }
func (c *CPU) Tlbflush()  { c.tlbOps().Tlbflush() }

func (c *CPU) InvtlbAll()                    { c.tlbOps().InvtlbAll() }
func (c *CPU) InvtlbAllG(g bool)             { c.tlbOps().InvtlbAllG(g) }
func (c *CPU) InvtlbAllASID(asid uint16)     { c.tlbOps().InvtlbAllASID(asid) }
func (c *CPU) InvtlbPageASID(asid uint16, addr uint64, ps uint8) {
	c.tlbOps().InvtlbPageASID(asid, addr, ps)
}
func (c *CPU) InvtlbPageASIDOrG(asid uint16, addr uint64, ps uint8) {
	c.tlbOps().InvtlbPageASIDOrG(asid, addr, ps)
}

// Ertn implements exception return (spec.md §6, §4.4 "Transition via ertn").
func (c *CPU) Ertn() {
	wasGuest := c.LVZ.Mode() == vmstate.Guest

	prmd := c.Host.PRMD
	if wasGuest {
		prmd = c.Guest.PRMD
	}

	c.exit.Ertn(vmexit.ErtnBanks{EffectivePRMD: prmd, CRMD: &c.Host.CRMD, WasGuest: wasGuest})
}

// Hvcl implements hvcl code: unconditionally VM-exits with reason
// HYPERCALL; illegal outside guest.
func (c *CPU) Hvcl(code uint64) error {
	if c.LVZ.Mode() != vmstate.Guest {
		c.Ctx.RaiseException(csr.ExcINE)
		return fmt.Errorf("vcpu: hvcl outside guest mode: %w", errIllegalGuestOnly)
	}

	exit := c.exit.Exit(c.exitBanks(), vmexit.ReasonHYPERCALL, 0, 0, 0, c.PC)
	exit.Aux = code
	c.ExitCtx = exit

	return nil
}

// Cpucfg implements cpucfg(rj) with guest-side masking: under guest,
// rj > 15 or a gated field triggers VM-exit CPUCFG.
func (c *CPU) Cpucfg(rj uint64, gatedField func(uint64) bool) (uint64, bool) {
	if c.LVZ.Mode() == vmstate.Guest {
		if rj > 15 || (gatedField != nil && gatedField(rj)) {
			exit := c.exit.Exit(c.exitBanks(), vmexit.ReasonCPUCFG, 0, 0, 0, c.PC)
			exit.Aux = rj
			c.ExitCtx = exit

			return 0, true
		}
	}

	return 0, false
}

// Rdtime implements rdtime: in guest, if the guest-timer access bit
// gates the current privilege, triggers VM-exit TIMER.
func (c *CPU) Rdtime() (uint64, bool) {
	if c.LVZ.Mode() == vmstate.Guest && !csr.GCFGTITP(c.LVZ.GCFG) {
		exit := c.exit.Exit(c.exitBanks(), vmexit.ReasonTIMER, 0, 0, 0, c.PC)
		c.ExitCtx = exit

		return 0, true
	}

	return c.Host.TVAL, false
}

// Idle implements idle: in guest, triggers VM-exit CPUCFG if the
// guest-idle gate is set.
func (c *CPU) Idle(guestIdleGated bool) bool {
	if c.LVZ.Mode() == vmstate.Guest && guestIdleGated {
		exit := c.exit.Exit(c.exitBanks(), vmexit.ReasonCPUCFG, 0, 0, 0, c.PC)
		c.ExitCtx = exit

		return true
	}

	return false
}

// GetPhysicalAddress is the translation entry point used by the
// address-space fabric (spec.md §6).
func (c *CPU) GetPhysicalAddress(va uint64, at translate.AccessType, plv translate.PrivLevel) translate.Result {
	view := c.csrView()
	key := translate.Key{GID: c.currentGID(), IncludeGlobal: true}

	res := translate.Translate(view, &c.TLB, va, at, plv, key)

	if !res.Ok() {
		if res.Fault == translate.NoMatch {
			// NOMATCH additionally drives the TLB-refill path
			// (spec.md §7): mark TLBRERA.ISTLBR, stash the faulting
			// address, and prime TLBREHI.VPPN for the refill handler.
			ec := c.effectiveCSR()
			csr.SetTLBEHIVPPN(ec.TLBREHI, va>>13)
			*ec.TLBRBADV = va
			*ec.TLBRERA = 1
		}

		return res
	}

	if c.LVZ.ReachableGuest(c.CPUCfg2LVZ) && c.LVZ.VM() {
		stlbps := c.effectiveCSR().STLBPS
		hpa, fault, mmio := translate.SecondLevel(&c.TLB, res.PA, stlbps, c.Ctx)

		if fault != translate.NoFault {
			reason := vmexit.ReasonTLB
			if mmio {
				reason = vmexit.ReasonMMIO
			}

			exit := c.exit.Exit(c.exitBanks(), reason, va, res.PA, uint32(at), c.PC)
			c.ExitCtx = exit

			return translate.Result{Fault: translate.SecondLevelFault}
		}

		res.PA = hpa
	}

	return res
}

func (c *CPU) csrView() translate.CSRView {
	if c.effectiveBank() == csrmed.GuestBank {
		return translate.CSRView{CRMD: c.Guest.CRMD, DMW: c.Guest.DMW, STLBPS: c.Guest.STLBPS, ASID: c.Guest.ASID}
	}

	return translate.CSRView{CRMD: c.Host.CRMD, DMW: c.Host.DMW, STLBPS: c.Host.STLBPS, ASID: c.Host.ASID}
}

// Snapshot produces the migratable image of this vCPU (spec.md §4.5).
func (c *CPU) Snapshot() serialize.Snapshot {
	guest := serialize.GuestCSRSnapshot{Present: c.CPUCfg2LVZ}
	if c.CPUCfg2LVZ {
		guest.Bank = c.Guest
	}

	return serialize.Snapshot{
		MajorVersion: serialize.MajorVersion,
		Host:         serialize.HostCSRSnapshot{Bank: c.Host},
		Guest:        guest,
		TLB:          serialize.SnapshotTLB(&c.TLB),
		LVZ: serialize.LVZSnapshot{
			Version:     serialize.LVZSubsectionVersion,
			GSTAT:       c.LVZ.GSTAT,
			GCFG:        c.LVZ.GCFG,
			GINTC:       c.LVZ.GINTC,
			GCNTC:       c.LVZ.GCNTC,
			GTLBC:       c.LVZ.GTLBC,
			TRGP:        c.LVZ.TRGP,
			Enabled:     c.LVZ.Enabled,
			ExitContext: c.ExitCtx,
		},
	}
}

// Restore loads a previously captured snapshot into c (spec.md R1:
// "serialize-then-deserialize ... reproduces every field and every
// TLB entry exactly").
func (c *CPU) Restore(snap serialize.Snapshot) error {
	c.Host = snap.Host.Bank
	c.Guest = snap.Guest.Bank
	c.CPUCfg2LVZ = snap.Guest.Present
	c.LVZ.GSTAT = snap.LVZ.GSTAT
	c.LVZ.GCFG = snap.LVZ.GCFG
	c.LVZ.GINTC = snap.LVZ.GINTC
	c.LVZ.GCNTC = snap.LVZ.GCNTC
	c.LVZ.GTLBC = snap.LVZ.GTLBC
	c.LVZ.TRGP = snap.LVZ.TRGP
	c.LVZ.Enabled = snap.LVZ.Enabled
	c.ExitCtx = snap.LVZ.ExitContext

	return snap.TLB.RestoreTLB(&c.TLB)
}
