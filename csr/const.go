// Package csr implements the dual host/guest control-and-status
// register banks described in spec.md §3 and §4.2: two flat register
// files of identical shape, one architecturally visible to host
// (hypervisor) code and one shadow bank visible to guest code.
package csr

// Register indices, matching the LoongArch CSR encoding used by
// csrrd/csrwr/csrxchg. Names follow
// original_source/target/loongarch/cpu.h's LOONGARCH_CSR_* constants;
// the numeric encoding itself is an internal choice of this core since
// cpu-csr.h (which fixes the real hardware values) is not part of the
// retrieved reference material.
const (
	CRMD   uint32 = 0x00
	PRMD   uint32 = 0x01
	EUEN   uint32 = 0x02
	MISC   uint32 = 0x03
	ECFG   uint32 = 0x04
	ESTAT  uint32 = 0x05
	ERA    uint32 = 0x06
	BADV   uint32 = 0x07
	BADI   uint32 = 0x08
	EENTRY uint32 = 0x0c

	TLBIDX  uint32 = 0x10
	TLBEHI  uint32 = 0x11
	TLBELO0 uint32 = 0x12
	TLBELO1 uint32 = 0x13
	GTLBC   uint32 = 0x15
	TRGP    uint32 = 0x16
	ASID    uint32 = 0x18
	PGDL    uint32 = 0x19
	PGDH    uint32 = 0x1a
	PGD     uint32 = 0x1b
	PWCL    uint32 = 0x1c
	PWCH    uint32 = 0x1d
	STLBPS  uint32 = 0x1e
	RVACFG  uint32 = 0x1f

	CPUIDCSR uint32 = 0x20
	PRCFG1   uint32 = 0x21
	PRCFG2   uint32 = 0x22
	PRCFG3   uint32 = 0x23

	// Guest/LVZ control registers.
	GSTAT uint32 = 0x28
	GCFG  uint32 = 0x29
	GINTC uint32 = 0x2a
	GCNTC uint32 = 0x2b

	SAVE0 uint32 = 0x30 // SAVE[0..15] occupy SAVE0..SAVE0+15.

	TID   uint32 = 0x40
	TCFG  uint32 = 0x41
	TVAL  uint32 = 0x42
	CNTC  uint32 = 0x43
	TICLR uint32 = 0x44

	LLBCTL uint32 = 0x60

	IMPCTL1 uint32 = 0x80
	IMPCTL2 uint32 = 0x81

	TLBRENTRY uint32 = 0x88
	TLBRBADV  uint32 = 0x89
	TLBRERA   uint32 = 0x8a
	TLBRSAVE  uint32 = 0x8b
	TLBRELO0  uint32 = 0x8c
	TLBRELO1  uint32 = 0x8d
	TLBREHI   uint32 = 0x8e
	TLBRPRMD  uint32 = 0x8f

	MERRCTL   uint32 = 0x90
	MERRINFO1 uint32 = 0x91
	MERRINFO2 uint32 = 0x92
	MERRENTRY uint32 = 0x93
	MERRERA   uint32 = 0x94
	MERRSAVE  uint32 = 0x95
	CTAG      uint32 = 0x98

	DMW0 uint32 = 0x180 // DMW[0..3] occupy DMW0..DMW0+3.

	DBG   uint32 = 0x500
	DERA  uint32 = 0x501
	DSAVE uint32 = 0x502
)

// SAVESlots is the count of scratch SAVE[] registers.
const SAVESlots = 16

// DMWSlots is the count of direct-mapped windows.
const DMWSlots = 4

// Exception codes, from original_source cpu.h's EXCCODE_* macros
// (EXCODE(code, subcode) = subcode<<6 | code). Only the codes this
// core itself raises are listed; the rest belong to the instruction
// decoder this core does not implement.
const (
	ExcPIL  uint32 = 1  // page invalid, load
	ExcPIS  uint32 = 2  // page invalid, store
	ExcPIF  uint32 = 3  // page invalid, fetch
	ExcPME  uint32 = 4  // page modified (dirty)
	ExcPNR  uint32 = 5  // page not readable
	ExcPNX  uint32 = 6  // page not executable
	ExcPPI  uint32 = 7  // page privilege illegal
	ExcADEF uint32 = 8  // address error, fetch
	ExcADEM uint32 = 8 | 1<<6
	ExcINE  uint32 = 13 // illegal instruction
	ExcIPE  uint32 = 14 // privilege error (guest-only instruction in host mode)
	ExcHVC  uint32 = 22 // hypervisor call — the exception that re-enters the host
)
