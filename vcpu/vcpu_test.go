package vcpu_test

import (
	"testing"

	"github.com/loongvirt/lvzcore/csr"
	"github.com/loongvirt/lvzcore/guestlog"
	"github.com/loongvirt/lvzcore/hostio"
	"github.com/loongvirt/lvzcore/tlb"
	"github.com/loongvirt/lvzcore/translate"
	"github.com/loongvirt/lvzcore/vcpu"
	"github.com/loongvirt/lvzcore/vmexit"
	"github.com/loongvirt/lvzcore/vmstate"
)

func newCPU() *vcpu.CPU {
	return vcpu.New(hostio.NewRecorder(1), guestlog.Default(), 3)
}

func TestCsrrdHostModeReadsHostBankDirectly(t *testing.T) {
	t.Parallel()

	c := newCPU()
	c.Host.BADI = 0x77

	if got := c.Csrrd(csr.BADI); got != 0x77 {
		t.Fatalf("Csrrd(BADI) = %#x, want 0x77", got)
	}
}

func TestCsrrdGuestModeTrapsOnGatedESTAT(t *testing.T) {
	t.Parallel()

	c := newCPU()
	c.LVZ.Enabled = true
	c.CPUCfg2LVZ = true
	c.LVZ.SetVM(true)

	c.Csrrd(csr.ESTAT)

	if c.ExitCtx.Reason != vmexit.ReasonCSRR {
		t.Fatalf("expected a CSRR vm-exit, got reason %s", c.ExitCtx.Reason)
	}
}

func TestCsrrdGuestModeReadsGuestBankWhenAllowed(t *testing.T) {
	t.Parallel()

	c := newCPU()
	c.LVZ.Enabled = true
	c.CPUCfg2LVZ = true
	c.LVZ.SetVM(true)
	c.Guest.BADI = 0x55

	if got := c.Csrrd(csr.BADI); got != 0x55 {
		t.Fatalf("Csrrd(BADI) in guest mode = %#x, want 0x55 (guest bank)", got)
	}
}

func TestCsrrdCPUIDReadsComputedVCPUIndex(t *testing.T) {
	t.Parallel()

	c := newCPU()
	c.LVZ.Enabled = true
	c.CPUCfg2LVZ = true
	c.LVZ.SetVM(true)

	if got := c.Csrrd(csr.CPUIDCSR); got != 3 {
		t.Fatalf("Csrrd(CPUID) = %d, want the vCPU index 3", got)
	}
}

func TestGcsrrdIllegalOutsideGuest(t *testing.T) {
	t.Parallel()

	c := newCPU()

	if _, err := c.Gcsrrd(csr.CRMD); err == nil {
		t.Fatal("Gcsrrd should be illegal outside guest mode")
	}

	code, ok := c.Ctx.(*hostio.Recorder).LastException()
	if !ok || code != csr.ExcIPE {
		t.Fatalf("expected an IPE exception, got (%d, %v)", code, ok)
	}
}

func TestGcsrrdReadsGuestBankInGuestMode(t *testing.T) {
	t.Parallel()

	c := newCPU()
	c.LVZ.SetVM(true)
	c.Guest.CRMD = 0x9

	v, err := c.Gcsrrd(csr.CRMD)
	if err != nil || v != 0x9 {
		t.Fatalf("Gcsrrd(CRMD) = (%#x, %v), want (0x9, nil)", v, err)
	}
}

func TestHvclIllegalOutsideGuest(t *testing.T) {
	t.Parallel()

	c := newCPU()

	if err := c.Hvcl(0x1); err == nil {
		t.Fatal("Hvcl should be illegal outside guest mode")
	}
}

func TestHvclExitsWithHypercallReasonAndCode(t *testing.T) {
	t.Parallel()

	c := newCPU()
	c.LVZ.Enabled = true
	c.CPUCfg2LVZ = true
	c.LVZ.SetVM(true)
	c.PC = 0x8000

	if err := c.Hvcl(0x42); err != nil {
		t.Fatalf("Hvcl: %v", err)
	}

	if c.ExitCtx.Reason != vmexit.ReasonHYPERCALL || c.ExitCtx.Aux != 0x42 {
		t.Fatalf("ExitCtx = %+v, want reason HYPERCALL aux 0x42", c.ExitCtx)
	}

	if c.LVZ.VM() {
		t.Fatal("Hvcl should have dropped GSTAT.VM back to host")
	}
}

func TestCsrwrESTATOnlyTouchesSoftwareWritableBits(t *testing.T) {
	t.Parallel()

	c := newCPU()
	csr.SetESTATECode(&c.Host.ESTAT, 22)

	c.Csrwr(csr.ESTAT, 0x1fff)

	if got := csr.ESTATECode(c.Host.ESTAT); got != 22 {
		t.Fatalf("ECode clobbered by csrwr: got %d, want 22", got)
	}

	if got := csr.ESTATIS(c.Host.ESTAT); got != 0x3 {
		t.Fatalf("IS = %#x, want 0x3 (only IS[1:0] are software-writable)", got)
	}
}

func TestCsrwrTICLRClearsTimerIRQWithoutStoringIntoTICLR(t *testing.T) {
	t.Parallel()

	c := newCPU()
	c.Host.ESTAT = 1 << 11 // timer IRQ pending.

	c.Csrwr(csr.TICLR, 0x1)

	if c.Host.ESTAT&(1<<11) != 0 {
		t.Fatal("csrwr(TICLR, 1) should have cleared the timer IRQ pending bit")
	}

	if c.Host.TICLR != 0 {
		t.Fatalf("TICLR = %#x, want 0 (csrwr never stores into TICLR itself)", c.Host.TICLR)
	}
}

func TestGetPhysicalAddressDAModeBypassesTLB(t *testing.T) {
	t.Parallel()

	c := newCPU()
	c.Host.CRMD = 1 << 3 // DA=1.

	res := c.GetPhysicalAddress(0x1000, translate.Load, translate.Kernel)
	if !res.Ok() || res.PA != 0x1000 {
		t.Fatalf("GetPhysicalAddress in DA mode = %+v, want identity", res)
	}
}

func TestGetPhysicalAddressMissPrimesTLBRefillState(t *testing.T) {
	t.Parallel()

	c := newCPU()
	c.Host.CRMD = 1 << 4 // PG=1.

	va := uint64(0x9000)
	res := c.GetPhysicalAddress(va, translate.Load, translate.Kernel)

	if res.Fault != translate.NoMatch {
		t.Fatalf("Fault = %s, want NoMatch", res.Fault)
	}

	if c.Host.TLBRBADV != va {
		t.Fatalf("TLBRBADV = %#x, want %#x", c.Host.TLBRBADV, va)
	}

	if csr.TLBRERAISTLBR(c.Host.TLBRERA) == false {
		t.Fatal("TLBRERA.ISTLBR should be set on a TLB-refill-triggering miss")
	}

	if got := csr.TLBEHIVPPN(c.Host.TLBREHI); got != va>>13 {
		t.Fatalf("TLBREHI.VPPN = %#x, want %#x", got, va>>13)
	}
}

func TestGetPhysicalAddressSecondLevelMissExitsWithTLBOrMMIO(t *testing.T) {
	t.Parallel()

	c := newCPU()
	c.LVZ.Enabled = true
	c.CPUCfg2LVZ = true
	c.LVZ.SetVM(true)
	c.Guest.CRMD = 1 << 4 // guest-mode first-level translation reads the guest bank.
	c.Guest.STLBPS = 12

	va := uint64(0xa000)
	var e tlb.Entry
	e.SetValid(true)
	e.SetPS(12)
	e.SetVPPN(csr.TLBEHIVPPN(va))
	e.SetV(tlb.Even, true)
	e.SetD(tlb.Even, true)
	e.Entry0 |= 0x5 << 12

	vppn := csr.TLBEHIVPPN(va)
	c.TLB.STLB[vppn&(tlb.STLBSets-1)][0] = e

	res := c.GetPhysicalAddress(va, translate.Load, translate.Kernel)
	if res.Fault != translate.SecondLevelFault {
		t.Fatalf("Fault = %s, want SecondLevelFault (no second-stage entry installed)", res.Fault)
	}

	if c.ExitCtx.Reason != vmexit.ReasonTLB && c.ExitCtx.Reason != vmexit.ReasonMMIO {
		t.Fatalf("ExitCtx.Reason = %s, want TLB or MMIO", c.ExitCtx.Reason)
	}
}

func TestSnapshotRestoreRoundTripsEverything(t *testing.T) {
	t.Parallel()

	c := newCPU()
	c.Host.CRMD = 0x42
	c.CPUCfg2LVZ = true
	c.Guest.CRMD = 0x24
	c.LVZ.GSTAT = 0x9
	c.TLB.MTLB[1].SetValid(true)
	c.TLB.MTLB[1].SetASID(0x11)

	snap := c.Snapshot()

	restored := newCPU()
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if restored.Host.CRMD != 0x42 || restored.Guest.CRMD != 0x24 || restored.LVZ.GSTAT != 0x9 {
		t.Fatalf("CSR/LVZ state did not round trip: %+v / %+v / %#x", restored.Host, restored.Guest, restored.LVZ.GSTAT)
	}

	if restored.TLB != c.TLB {
		t.Fatal("TLB array did not round trip exactly")
	}
}

func TestModeInvariantTracksGSTATVM(t *testing.T) {
	t.Parallel()

	c := newCPU()
	if c.LVZ.Mode() != vmstate.Host {
		t.Fatal("a fresh vCPU should start in host mode")
	}

	c.LVZ.SetVM(true)
	if c.LVZ.Mode() != vmstate.Guest {
		t.Fatal("setting GSTAT.VM should flip the vCPU into guest mode")
	}
}
