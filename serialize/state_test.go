package serialize_test

import (
	"testing"

	"github.com/loongvirt/lvzcore/csr"
	"github.com/loongvirt/lvzcore/serialize"
	"github.com/loongvirt/lvzcore/tlb"
)

func TestSnapshotTLBRestoreTLBRoundTrips(t *testing.T) {
	t.Parallel()

	var arr tlb.Array
	arr.STLB[1][2].SetValid(true)
	arr.STLB[1][2].SetVPPN(0x1234)
	arr.MTLB[3].SetValid(true)
	arr.MTLB[3].SetASID(0x77)

	snap := serialize.SnapshotTLB(&arr)

	var restored tlb.Array
	if err := snap.RestoreTLB(&restored); err != nil {
		t.Fatalf("RestoreTLB: %v", err)
	}

	if restored != arr {
		t.Fatal("restored TLB array does not match the original byte for byte")
	}
}

func TestRestoreTLBRejectsWrongEntryCount(t *testing.T) {
	t.Parallel()

	snap := serialize.TLBSnapshot{Entries: []serialize.TLBEntrySnapshot{{}}}

	var arr tlb.Array
	if err := snap.RestoreTLB(&arr); err == nil {
		t.Fatal("expected an error for a mismatched entry count")
	}
}

func TestRestoreTLBRejectsFutureVersion(t *testing.T) {
	t.Parallel()

	snap := serialize.TLBSnapshot{Version: serialize.TLBSubsectionVersion + 1}

	var arr tlb.Array
	if err := snap.RestoreTLB(&arr); err == nil {
		t.Fatal("expected an error for a TLB subsection version this core does not understand")
	}
}

func TestGuestCSRSnapshotOmittedWhenNotPresent(t *testing.T) {
	t.Parallel()

	snap := serialize.Snapshot{
		MajorVersion: serialize.MajorVersion,
		Guest:        serialize.GuestCSRSnapshot{Present: false},
	}

	if snap.Guest.Present {
		t.Fatal("Present should reflect cpucfg2.LVZ, not default to true")
	}

	if snap.Guest.Bank != (csr.GuestBank{}) {
		t.Fatal("an absent guest subsection should carry a zero-value bank")
	}
}
