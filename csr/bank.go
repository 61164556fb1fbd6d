package csr

// HostBank is the host-privilege CSR file (spec.md §3, "Host CSR
// Bank"). Field groups follow the teacher's plain-struct-of-registers
// style (kvm.Sregs in the reference pack) rather than a map, so field
// access is a compile-time-checked struct selector everywhere except
// the mediator's CSR-number-indexed dispatch.
type HostBank struct {
	CRMD, PRMD, EUEN, MISC, ECFG uint64
	ESTAT, ERA, BADV, BADI       uint64
	EENTRY                       uint64

	TLBIDX, TLBEHI, TLBELO0, TLBELO1 uint64
	ASID                             uint64
	STLBPS                           uint64
	RVACFG                           uint64

	PGDL, PGDH, PWCL, PWCH uint64

	CPUID          uint64
	PRCFG1, PRCFG2, PRCFG3 uint64

	SAVE [SAVESlots]uint64

	TID, TCFG, TVAL, CNTC, TICLR uint64

	LLBCTL uint64

	DMW [DMWSlots]uint64

	TLBRENTRY, TLBRBADV, TLBRERA, TLBRSAVE uint64
	TLBRELO0, TLBRELO1, TLBREHI, TLBRPRMD uint64

	MERRCTL, MERRINFO1, MERRINFO2 uint64
	MERRENTRY, MERRERA, MERRSAVE  uint64
	CTAG                          uint64

	IMPCTL1, IMPCTL2 uint64

	DBG, DERA, DSAVE uint64

	// LVZ control registers live on the host bank only; the guest
	// bank has no shadow of them (spec.md §3).
	GSTAT, GCFG, GINTC, GCNTC uint64
	GTLBC, TRGP               uint64
}

// GuestBank is the guest-shadow CSR file, GCSR_* in spec.md §3: the
// identically-shaped twin of HostBank that guest-mode accesses route
// to instead, minus the LVZ control registers (those are host-only).
type GuestBank struct {
	CRMD, PRMD, EUEN, MISC, ECFG uint64
	ESTAT, ERA, BADV, BADI       uint64
	EENTRY                       uint64

	TLBIDX, TLBEHI, TLBELO0, TLBELO1 uint64
	ASID                             uint64
	STLBPS                           uint64
	RVACFG                           uint64

	PGDL, PGDH, PWCL, PWCH uint64

	CPUID          uint64
	PRCFG1, PRCFG2, PRCFG3 uint64

	SAVE [SAVESlots]uint64

	TID, TCFG, TVAL, CNTC, TICLR uint64

	LLBCTL uint64

	DMW [DMWSlots]uint64

	TLBRENTRY, TLBRBADV, TLBRERA, TLBRSAVE uint64
	TLBRELO0, TLBRELO1, TLBREHI, TLBRPRMD uint64

	MERRCTL, MERRINFO1, MERRINFO2 uint64
	MERRENTRY, MERRERA, MERRSAVE  uint64
	CTAG                          uint64

	IMPCTL1, IMPCTL2 uint64

	DBG, DERA, DSAVE uint64
}

// ResetHost returns a HostBank with architecture-default reset values
// (spec.md §3 lifecycle: "all CSRs reset per architecture defaults").
// CRMD resets with DA=1 (direct-address mode) and PLV=0 per the
// LoongArch boot convention, STLBPS resets to 14 (16 KiB pages), and
// everything else resets to zero.
func ResetHost() HostBank {
	var b HostBank
	b.CRMD = crmdDA
	b.STLBPS = defaultStlbPS

	return b
}

// ResetGuest returns a GuestBank with the same reset convention as
// ResetHost, applied when a guest is first created under LVZ.
func ResetGuest() GuestBank {
	var b GuestBank
	b.CRMD = crmdDA
	b.STLBPS = defaultStlbPS

	return b
}

const (
	crmdDA        = 1 << 3 // CRMD.DA
	defaultStlbPS = 14     // 16 KiB STLB page size, log2.
)
