package translate_test

import (
	"testing"

	"github.com/loongvirt/lvzcore/csr"
	"github.com/loongvirt/lvzcore/hostio"
	"github.com/loongvirt/lvzcore/tlb"
	"github.com/loongvirt/lvzcore/translate"
)

func TestTranslateDAModeBypassesTLB(t *testing.T) {
	t.Parallel()

	view := translate.CSRView{CRMD: 1 << 3} // DA=1, PG=0.
	var arr tlb.Array

	res := translate.Translate(view, &arr, 0xdeadbeef, translate.Load, translate.Kernel, translate.Key{})
	if !res.Ok() || res.PA != 0xdeadbeef {
		t.Fatalf("DA-mode translation should be identity: got %+v", res)
	}
}

func TestTranslateDMWWindowMatch(t *testing.T) {
	t.Parallel()

	var dmw uint64
	dmw |= 0xf            // PLV0-3 all allowed.
	dmw |= uint64(0x2) << 25 // PSEG = 2.
	dmw |= uint64(0x4) << 61 // VSEG = 4.

	view := translate.CSRView{CRMD: 1 << 4} // PG=1, DA=0.
	view.DMW[0] = dmw

	va := uint64(0x4) << 61 // matches VSEG, offset zero.

	var arr tlb.Array

	res := translate.Translate(view, &arr, va, translate.Load, translate.Kernel, translate.Key{})
	if !res.Ok() {
		t.Fatalf("expected DMW hit, got fault %s", res.Fault)
	}

	want := (uint64(0x2) << 61) | (va & (1<<61 - 1))
	if res.PA != want {
		t.Fatalf("PA = %#x, want %#x", res.PA, want)
	}
}

func TestTranslateBadAddrOnNonCanonicalVA(t *testing.T) {
	t.Parallel()

	view := translate.CSRView{CRMD: 1 << 4} // PG=1.
	var arr tlb.Array

	// Bit 47 set but the high bits above it not sign-extended: not canonical.
	va := uint64(1)<<47 | uint64(1)<<50

	res := translate.Translate(view, &arr, va, translate.Load, translate.Kernel, translate.Key{})
	if res.Fault != translate.BadAddr {
		t.Fatalf("Fault = %s, want BadAddr", res.Fault)
	}
}

func TestTranslateTLBHitComposesPAFrom4KGranule(t *testing.T) {
	t.Parallel()

	view := translate.CSRView{CRMD: 1 << 4, STLBPS: 21} // PG=1, 2M pages.
	var arr tlb.Array

	va := uint64(0x10) << 21 // page-aligned for a 2M page.

	var e tlb.Entry
	e.SetValid(true)
	e.SetPS(21)
	e.SetVPPN(csr.TLBEHIVPPN(va))
	e.SetV(tlb.Even, true)
	e.SetD(tlb.Even, true)
	e.Entry0 |= 0x77 << 21 // PPN already page-aligned to the 2M page; low bits masked by PPN().

	vppn := csr.TLBEHIVPPN(va)
	arr.STLB[vppn&(tlb.STLBSets-1)][0] = e

	res := translate.Translate(view, &arr, va, translate.Load, translate.Kernel, translate.Key{})
	if !res.Ok() {
		t.Fatalf("expected TLB hit, got fault %s", res.Fault)
	}

	want := uint64(0x77) << 21
	if res.PA != want {
		t.Fatalf("PA = %#x, want %#x", res.PA, want)
	}
}

func TestTranslateMissIsNoMatch(t *testing.T) {
	t.Parallel()

	view := translate.CSRView{CRMD: 1 << 4, STLBPS: 12}
	var arr tlb.Array

	res := translate.Translate(view, &arr, 0x1000, translate.Load, translate.Kernel, translate.Key{})
	if res.Fault != translate.NoMatch {
		t.Fatalf("Fault = %s, want NoMatch", res.Fault)
	}
}

func TestTranslateStoreWithoutDirtyFaults(t *testing.T) {
	t.Parallel()

	view := translate.CSRView{CRMD: 1 << 4, STLBPS: 12}
	var arr tlb.Array

	va := uint64(0x2000) // bit 12 clear: the even half.
	var e tlb.Entry
	e.SetValid(true)
	e.SetPS(12)
	e.SetVPPN(csr.TLBEHIVPPN(va))
	e.SetV(tlb.Even, true)
	// D left clear.

	vppn := csr.TLBEHIVPPN(va)
	arr.STLB[vppn&(tlb.STLBSets-1)][0] = e

	res := translate.Translate(view, &arr, va, translate.Store, translate.Kernel, translate.Key{})
	if res.Fault != translate.Dirty {
		t.Fatalf("Fault = %s, want Dirty", res.Fault)
	}
}

func TestTranslatePrivilegeCheckNonRPLV(t *testing.T) {
	t.Parallel()

	view := translate.CSRView{CRMD: 1 << 4, STLBPS: 12}
	var arr tlb.Array

	va := uint64(0x4000)
	var e tlb.Entry
	e.SetValid(true)
	e.SetPS(12)
	e.SetVPPN(csr.TLBEHIVPPN(va))
	e.SetV(tlb.Even, true)
	e.SetD(tlb.Even, true)
	e.Entry0 &^= uint64(0x3) << 2 // PLV = 0 (kernel-only).

	vppn := csr.TLBEHIVPPN(va)
	arr.STLB[vppn&(tlb.STLBSets-1)][0] = e

	res := translate.Translate(view, &arr, va, translate.Load, translate.User, translate.Key{})
	if res.Fault != translate.Privilege {
		t.Fatalf("Fault = %s, want Privilege (user access to PLV0 entry)", res.Fault)
	}
}

func TestSecondLevelMissNeverIdentityMaps(t *testing.T) {
	t.Parallel()

	var arr tlb.Array
	rec := hostio.NewRecorder(1)

	hpa, fault, mmio := translate.SecondLevel(&arr, 0x9000, 12, rec)
	if fault != translate.SecondLevelFault {
		t.Fatalf("Fault = %s, want SecondLevelFault", fault)
	}

	if hpa != 0 {
		t.Fatalf("a miss must never return a usable HPA, got %#x", hpa)
	}

	if mmio {
		t.Fatal("no MMIO range registered, classifier should report false")
	}
}

func TestSecondLevelMissClassifiesMMIO(t *testing.T) {
	t.Parallel()

	var arr tlb.Array
	rec := hostio.NewRecorder(1)
	rec.AddMMIORange(0x8000, 0xa000)

	_, fault, mmio := translate.SecondLevel(&arr, 0x9000, 12, rec)
	if fault != translate.SecondLevelFault {
		t.Fatalf("Fault = %s, want SecondLevelFault", fault)
	}

	if !mmio {
		t.Fatal("gpa falls inside a registered MMIO range, mmio should be true")
	}
}

func TestSecondLevelHitComposesHPAFrom4KGranule(t *testing.T) {
	t.Parallel()

	var arr tlb.Array

	gpa := uint64(0x54) << 12 // bit 12 clear: the even half.
	var e tlb.Entry
	e.SetValid(true)
	e.SetPS(12)
	e.SetVPPN(csr.TLBEHIVPPN(gpa))
	e.SetV(tlb.Even, true)
	e.SetD(tlb.Even, true)
	e.Entry0 |= 0x9 << 12

	vppn := csr.TLBEHIVPPN(gpa)
	arr.STLB[vppn&(tlb.STLBSets-1)][0] = e

	hpa, fault, _ := translate.SecondLevel(&arr, gpa, 12, nil)
	if fault != translate.NoFault {
		t.Fatalf("Fault = %s, want NoFault", fault)
	}

	if want := uint64(0x9) << 12; hpa != want {
		t.Fatalf("HPA = %#x, want %#x", hpa, want)
	}
}
