package vmexit_test

import (
	"testing"

	"github.com/loongvirt/lvzcore/csr"
	"github.com/loongvirt/lvzcore/vmexit"
	"github.com/loongvirt/lvzcore/vmstate"
)

func newBanks() (vmexit.Banks, *csr.HostBank, *csr.GuestBank) {
	h := &csr.HostBank{}
	g := &csr.GuestBank{}

	return vmexit.Banks{
		HostCRMD:   &h.CRMD,
		GuestPRMD:  &g.PRMD,
		GuestERA:   &g.ERA,
		GuestESTAT: &g.ESTAT,
		GuestBADV:  &g.BADV,
		HostBADV:   &h.BADV,
		HostTRGP:   &h.TRGP,
	}, h, g
}

func TestExitLowersHostCRMDAndSavesGuestPRMD(t *testing.T) {
	t.Parallel()

	lvz := &vmstate.LVZControl{}
	lvz.SetVM(true)

	b, h, g := newBanks()
	csr.SetCRMDPLV(&h.CRMD, 3)
	csr.SetCRMDIE(&h.CRMD, true)

	c := vmexit.Controller{LVZ: lvz}
	ctx := c.Exit(b, vmexit.ReasonHYPERCALL, 0, 0, 0, 0x1000)

	if csr.CRMDPLV(h.CRMD) != 0 || csr.CRMDIE(h.CRMD) {
		t.Fatalf("host CRMD not lowered: plv=%d ie=%v", csr.CRMDPLV(h.CRMD), csr.CRMDIE(h.CRMD))
	}

	if csr.PRMDPPLV(g.PRMD) != 3 || !csr.PRMDPIE(g.PRMD) {
		t.Fatalf("guest PRMD did not capture pre-exit CRMD: pplv=%d pie=%v", csr.PRMDPPLV(g.PRMD), csr.PRMDPIE(g.PRMD))
	}

	if g.ERA != 0x1000 {
		t.Fatalf("guest ERA = %#x, want the faulting PC 0x1000", g.ERA)
	}

	if lvz.VM() {
		t.Fatal("GSTAT.VM should be cleared by Exit")
	}

	if !lvz.PVM() {
		t.Fatal("GSTAT.PVM should record the pre-exit mode")
	}

	if ctx.Reason != vmexit.ReasonHYPERCALL {
		t.Fatalf("ctx.Reason = %s, want HYPERCALL", ctx.Reason)
	}
}

func TestExitMMIOPopulatesTRGPAndBADV(t *testing.T) {
	t.Parallel()

	lvz := &vmstate.LVZControl{}
	lvz.SetVM(true)

	b, h, g := newBanks()
	c := vmexit.Controller{LVZ: lvz}

	ctx := c.Exit(b, vmexit.ReasonMMIO, 0xcafe, 0xbeef, 1, 0x2000)

	if h.TRGP != 0xbeef || lvz.TRGP != 0xbeef {
		t.Fatalf("TRGP = %#x / %#x, want 0xbeef", h.TRGP, lvz.TRGP)
	}

	if h.BADV != 0xcafe || g.BADV != 0xcafe {
		t.Fatalf("BADV = %#x / %#x, want 0xcafe", h.BADV, g.BADV)
	}

	if ctx.IsTLBRefill {
		t.Fatal("an MMIO exit is not a TLB refill")
	}
}

func TestExitNonFaultReasonLeavesTRGPAlone(t *testing.T) {
	t.Parallel()

	lvz := &vmstate.LVZControl{}
	lvz.SetVM(true)
	lvz.TRGP = 0x42

	b, h, _ := newBanks()
	c := vmexit.Controller{LVZ: lvz}

	c.Exit(b, vmexit.ReasonCPUCFG, 0, 0, 0, 0)

	if h.TRGP != 0 || lvz.TRGP != 0x42 {
		t.Fatalf("CPUCFG exit must not touch TRGP: host=%#x lvz=%#x", h.TRGP, lvz.TRGP)
	}
}

func TestErtnRestoresPLVAndVM(t *testing.T) {
	t.Parallel()

	lvz := &vmstate.LVZControl{}
	lvz.SetPVM(true)

	var crmd uint64

	var prmd uint64
	csr.SetPRMDPPLV(&prmd, 2)
	csr.SetPRMDPIE(&prmd, true)

	c := vmexit.Controller{LVZ: lvz}
	c.Ertn(vmexit.ErtnBanks{EffectivePRMD: prmd, CRMD: &crmd, WasGuest: true})

	if csr.CRMDPLV(crmd) != 2 || !csr.CRMDIE(crmd) {
		t.Fatalf("CRMD not restored from PRMD: plv=%d ie=%v", csr.CRMDPLV(crmd), csr.CRMDIE(crmd))
	}

	if !lvz.VM() {
		t.Fatal("ertn from a guest trap should restore GSTAT.VM from PVM")
	}
}

func TestErtnFromHostDoesNotTouchVM(t *testing.T) {
	t.Parallel()

	lvz := &vmstate.LVZControl{}
	lvz.SetPVM(true)

	var crmd uint64

	c := vmexit.Controller{LVZ: lvz}
	c.Ertn(vmexit.ErtnBanks{EffectivePRMD: 0, CRMD: &crmd, WasGuest: false})

	if lvz.VM() {
		t.Fatal("ertn from a host-mode trap must not set GSTAT.VM")
	}
}
