// Package vmexit implements the VM-entry/exit state machine of
// spec.md §4.4: the synchronous control transfer from guest to
// hypervisor on a trap, and the reverse transfer on vm_enter/ertn.
package vmexit

import (
	"github.com/loongvirt/lvzcore/csr"
	"github.com/loongvirt/lvzcore/vmstate"
)

// Reason is the VM-exit reason enum from spec.md §4.4, kept as a
// plain integer for wire/migration compatibility (spec.md DESIGN
// NOTES: "keep the wire/migration encoding as the integer").
type Reason uint32

const (
	ReasonMMIO       Reason = 1
	ReasonINT        Reason = 2
	ReasonTIMER      Reason = 3
	ReasonIOCSR      Reason = 4
	ReasonCSRR       Reason = 5
	ReasonCSRW       Reason = 6
	ReasonCSRX       Reason = 7
	ReasonHYPERCALL  Reason = 8
	ReasonCPUCFG     Reason = 9
	ReasonTLB        Reason = 10
	ReasonCACHE      Reason = 11
)

func (r Reason) String() string {
	switch r {
	case ReasonMMIO:
		return "MMIO"
	case ReasonINT:
		return "INT"
	case ReasonTIMER:
		return "TIMER"
	case ReasonIOCSR:
		return "IOCSR"
	case ReasonCSRR:
		return "CSRR"
	case ReasonCSRW:
		return "CSRW"
	case ReasonCSRX:
		return "CSRX"
	case ReasonHYPERCALL:
		return "HYPERCALL"
	case ReasonCPUCFG:
		return "CPUCFG"
	case ReasonTLB:
		return "TLB"
	case ReasonCACHE:
		return "CACHE"
	default:
		return "UNKNOWN"
	}
}

// Context is vm_exit_ctx from spec.md §3: the fault context captured
// on every exit, readable by the hypervisor through normal CSR reads
// of TRGP/GSTAT/guest shadow registers.
type Context struct {
	FaultGPA    uint64
	FaultGVA    uint64
	GID         uint8
	Reason      Reason
	AccessType  uint32
	Aux         uint64 // CSR index for CSRR/CSRW/CSRX, hvcl code for HYPERCALL.
	IsTLBRefill bool
}

// Banks is the minimal register surface Exit/Enter/Ertn mutate,
// supplied by the caller already resolved to host/guest CSR.Bank
// values — vmexit never chooses which bank is "the" host or guest
// bank, it only writes the fields spec.md §4.4 names.
type Banks struct {
	HostCRMD *uint64

	GuestPRMD  *uint64
	GuestERA   *uint64
	GuestESTAT *uint64
	GuestBADV  *uint64

	HostBADV *uint64
	HostTRGP *uint64
}

// Controller drives HOST⇄GUEST transitions over an LVZControl block
// and the register banks it is pointed at.
type Controller struct {
	LVZ *vmstate.LVZControl
}

// Enter implements vm_enter (spec.md §4.4 "Transition HOST→GUEST"):
// precondition current state HOST, sets GSTAT.VM=1. The caller is
// responsible for having already prepared the guest ERA the vCPU
// resumes from; this step only flips the mode bit.
func (c Controller) Enter() {
	c.LVZ.SetVM(true)
}

// Exit implements vm_exit(reason, gva, gpa, access_type) (spec.md
// §4.4 "Transition GUEST→HOST"), given pc as the faulting
// instruction's own PC (never PC+4, per the non-retiring-instruction
// rule in spec.md §4.4 "Failure semantics").
func (c Controller) Exit(b Banks, reason Reason, gva, gpa uint64, accessType uint32, pc uint64) Context {
	preVM := c.LVZ.VM()
	c.LVZ.SetPVM(preVM)
	c.LVZ.SetVM(false)

	if b.GuestPRMD != nil {
		plv := csr.CRMDPLV(*b.HostCRMD)
		ie := csr.CRMDIE(*b.HostCRMD)
		csr.SetPRMDPPLV(b.GuestPRMD, plv)
		csr.SetPRMDPIE(b.GuestPRMD, ie)
	}

	if b.GuestERA != nil {
		*b.GuestERA = pc
	}

	if b.GuestESTAT != nil {
		csr.SetESTATECode(b.GuestESTAT, uint16(csr.ExcHVC))
	}

	if b.HostCRMD != nil {
		csr.SetCRMDPLV(b.HostCRMD, 0)
		csr.SetCRMDIE(b.HostCRMD, false)
	}

	ctx := Context{
		FaultGPA:    gpa,
		FaultGVA:    gva,
		GID:         c.LVZ.GID(),
		Reason:      reason,
		AccessType:  accessType,
		IsTLBRefill: reason == ReasonTLB,
	}

	// Faults with a GPA component also store into TRGP and mirror gva
	// into both CSR_BADV and GCSR_BADV (spec.md §4.4 step 7).
	if reason == ReasonMMIO || reason == ReasonTLB {
		if b.HostTRGP != nil {
			*b.HostTRGP = gpa
		}

		if b.HostBADV != nil {
			*b.HostBADV = gva
		}

		if b.GuestBADV != nil {
			*b.GuestBADV = gva
		}

		c.LVZ.TRGP = gpa
	}

	return ctx
}

// ErtnBanks is the register surface Ertn restores from.
type ErtnBanks struct {
	EffectivePRMD uint64 // PRMD of the bank that was executing (guest or host).
	CRMD          *uint64
	WasGuest      bool
}

// Ertn implements "Transition via ertn" (spec.md §4.4): restores PLV
// and IE from the appropriate PRMD, and — if the previous mode was
// guest — restores GSTAT.VM from PVM.
func (c Controller) Ertn(b ErtnBanks) {
	csr.SetCRMDPLV(b.CRMD, csr.PRMDPPLV(b.EffectivePRMD))
	csr.SetCRMDIE(b.CRMD, csr.PRMDPIE(b.EffectivePRMD))

	if b.WasGuest {
		c.LVZ.SetVM(c.LVZ.PVM())
	}
}
