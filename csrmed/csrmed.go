// Package csrmed implements the CSR Mediator of spec.md §4.2: every
// read/write/exchange of a control-and-status register is evaluated
// against the current privilege mode and GCFG's trap bits before it
// is allowed to touch a register bank directly.
package csrmed

import (
	"github.com/loongvirt/lvzcore/csr"
	"github.com/loongvirt/lvzcore/vmexit"
	"github.com/loongvirt/lvzcore/vmstate"
)

// Policy is the per-CSR-group guest access policy from spec.md §4.2's
// table.
type Policy struct {
	ReadTrap  bool
	WriteTrap bool
	// ReadGate/WriteGate name a GCFG bit that must be set for the
	// access to be allowed; nil means "always allow" (no gate).
	ReadGate, WriteGate func(gcfg uint64) bool
}

var alwaysAllow = Policy{}

var trapBoth = Policy{ReadTrap: true, WriteTrap: true}

// readOnlyTrapWrite covers CPUID/PRCFG*: reads always allowed,
// writes always trap.
var readOnlyTrapWrite = Policy{WriteTrap: true}

func gateSITP(gcfg uint64) bool { return csr.GCFGSITP(gcfg) }
func gateSITO(gcfg uint64) bool { return csr.GCFGSITO(gcfg) }
func gateTITP(gcfg uint64) bool { return csr.GCFGTITP(gcfg) }
func gateTITO(gcfg uint64) bool { return csr.GCFGTITO(gcfg) }

var estatPolicy = Policy{ReadGate: gateSITP, WriteGate: gateSITO}
var timerPolicy = Policy{ReadGate: gateTITP, WriteGate: gateTITO}

// policyFor returns the guest-mode access policy for a CSR index,
// per the table in spec.md §4.2.
func policyFor(c uint32) Policy {
	switch {
	case c == csr.ESTAT:
		return estatPolicy
	case c == csr.TID || c == csr.TCFG || c == csr.TVAL || c == csr.CNTC:
		return timerPolicy
	case c == csr.TICLR:
		return trapBoth
	case c == csr.CPUIDCSR || c == csr.PRCFG1 || c == csr.PRCFG2 || c == csr.PRCFG3:
		return readOnlyTrapWrite
	case isTLBRefillOrMachineErrorOrDebug(c):
		return trapBoth
	default:
		// CRMD/PRMD/EUEN/MISC/ECFG/ERA/BADV/BADI/EENTRY, TLB window &
		// page-walk group, SAVE/LLBCTL/DMW: allow unconditionally.
		return alwaysAllow
	}
}

func isTLBRefillOrMachineErrorOrDebug(c uint32) bool {
	switch {
	case c >= csr.TLBRENTRY && c <= csr.TLBRPRMD:
		return true
	case c >= csr.MERRCTL && c <= csr.CTAG:
		return true
	case c == csr.IMPCTL1 || c == csr.IMPCTL2:
		return true
	case c >= csr.DBG && c <= csr.DSAVE:
		return true
	default:
		return false
	}
}

// Banks is the pair of register banks the mediator dispatches
// between, plus the computed-value hooks for PGD/TVAL/CPUID (spec.md
// §4.2: "the engine computes a value ... rather than reading a
// literal field").
type Banks struct {
	Read  func(bank EffectiveBank, c uint32) uint64
	Write func(bank EffectiveBank, c uint32, v uint64)
}

// EffectiveBank names which physical bank a mediated access lands on.
type EffectiveBank int

const (
	HostBank EffectiveBank = iota
	GuestBank
)

// ASIDFlusher is invoked when a CSR_ASID write changes the ASID field,
// per spec.md §4.2's "CSR_ASID write side effect".
type ASIDFlusher interface {
	FlushTranslationCache(mmuIdxMask uint32)
	FlushGuestASID(gid uint8, oldASID uint16)
}

// Mediator evaluates CSR accesses against the current mode and GCFG,
// performing the access locally or raising a VM-exit.
type Mediator struct {
	LVZ      *vmstate.LVZControl
	Exit     vmexit.Controller
	ExitBanks func() vmexit.Banks
	Flusher  ASIDFlusher
	GID      uint8
}

// Read implements csrrd per spec.md §4.2's contract.
func (m *Mediator) Read(banks Banks, c uint32, pc uint64) (val uint64, trapped bool, exit vmexit.Context) {
	if m.LVZ.Mode() == vmstate.Host {
		return banks.Read(HostBank, c), false, vmexit.Context{}
	}

	pol := policyFor(c)
	allowed := !pol.ReadTrap && (pol.ReadGate == nil || pol.ReadGate(m.LVZ.GCFG))

	if !allowed {
		exit = m.Exit.Exit(m.ExitBanks(), vmexit.ReasonCSRR, 0, 0, 0, pc)
		exit.Aux = uint64(c)

		return 0, true, exit
	}

	return banks.Read(GuestBank, c), false, vmexit.Context{}
}

// Write implements csrwr per spec.md §4.2's contract, returning the
// pre-write value as csrwr's architectural "old" result.
func (m *Mediator) Write(banks Banks, c uint32, val uint64, pc uint64) (old uint64, trapped bool, exit vmexit.Context) {
	bank := HostBank
	if m.LVZ.Mode() == vmstate.Guest {
		pol := policyFor(c)
		allowed := !pol.WriteTrap && (pol.WriteGate == nil || pol.WriteGate(m.LVZ.GCFG))

		if !allowed {
			exit = m.Exit.Exit(m.ExitBanks(), vmexit.ReasonCSRW, 0, 0, 0, pc)
			exit.Aux = uint64(c)

			return 0, true, exit
		}

		bank = GuestBank
	}

	old = banks.Read(bank, c)

	if c == csr.ASID && m.Flusher != nil && csr.ASIDValue(old) != csr.ASIDValue(val) {
		if bank == HostBank {
			m.Flusher.FlushTranslationCache(0)
		} else {
			m.Flusher.FlushGuestASID(m.GID, csr.ASIDValue(old))
		}
	}

	banks.Write(bank, c, val)

	return old, false, vmexit.Context{}
}

// Exchange implements csrxchg: new = (old & ~mask) | (rj & mask).
func (m *Mediator) Exchange(banks Banks, c uint32, rj, mask uint64, pc uint64) (old uint64, trapped bool, exit vmexit.Context) {
	bank := HostBank
	if m.LVZ.Mode() == vmstate.Guest {
		pol := policyFor(c)
		allowed := !pol.WriteTrap && (pol.WriteGate == nil || pol.WriteGate(m.LVZ.GCFG))

		if !allowed {
			exit = m.Exit.Exit(m.ExitBanks(), vmexit.ReasonCSRX, 0, 0, 0, pc)
			exit.Aux = uint64(c)

			return 0, true, exit
		}

		bank = GuestBank
	}

	old = banks.Read(bank, c)
	newVal := (old &^ mask) | (rj & mask)

	return m.Write(banks, c, newVal, pc)
}
