package csr

// Field accessors below follow the original's FIELD_EX64/FIELD_DP64
// shift-and-mask idiom (original_source/target/loongarch/cpu.h), ported
// to the teacher's own bit-decode style (kvm.RunData.IO() in the
// reference pack shifts/masks a packed register the same way). They
// are free functions over a raw uint64 rather than methods on HostBank
// or GuestBank so the same logic serves both identically-shaped banks
// without duplication — the two banks never share a common interface
// type because Go structs can't embed a shared field set and still be
// migrated as fixed-layout value types (spec.md §4.5).

// CRMD fields.
func CRMDPLV(v uint64) uint8    { return uint8(v & 0x3) }
func CRMDIE(v uint64) bool      { return v&(1<<2) != 0 }
func CRMDDA(v uint64) bool      { return v&(1<<3) != 0 }
func CRMDPG(v uint64) bool      { return v&(1<<4) != 0 }

func SetCRMDPLV(v *uint64, plv uint8) { *v = (*v &^ 0x3) | uint64(plv&0x3) }
func SetCRMDIE(v *uint64, ie bool)    { setBit(v, 2, ie) }

// PRMD fields.
func PRMDPPLV(v uint64) uint8 { return uint8(v & 0x3) }
func PRMDPIE(v uint64) bool   { return v&(1<<2) != 0 }

func SetPRMDPPLV(v *uint64, plv uint8) { *v = (*v &^ 0x3) | uint64(plv&0x3) }
func SetPRMDPIE(v *uint64, ie bool)    { setBit(v, 2, ie) }

// ESTAT fields. Only ECODE/ESUBCODE are set by the exception pipeline;
// of the low interrupt-pending bits (IS), only IS[1:0] are
// software-writable by a csrwr — the rest are hardware-latched
// (original_source helper_csrwr_estat: deposit64(..., 0, 2, val)).
const estatISWriteMask = 0x3
const estatISMask = 0x1fff

func ESTATECode(v uint64) uint16 { return uint16((v >> 16) & 0x3f) }

func SetESTATECode(v *uint64, code uint16) {
	*v = (*v &^ (0x3f << 16)) | (uint64(code&0x3f) << 16)
}

func ESTATIS(v uint64) uint64 { return v & estatISMask }

// WriteESTATMasked applies a csrwr to ESTAT, touching only the two
// software-writable IS bits and leaving ECODE/ESUBCODE and the
// remaining hardware-latched IS bits untouched.
func WriteESTATMasked(v *uint64, newVal uint64) {
	*v = (*v &^ estatISWriteMask) | (newVal & estatISWriteMask)
}

// TICLR fields. A csrwr never stores into TICLR itself; writing
// CLR=1 only clears the timer interrupt pending bit in ESTAT
// (original_source helper_csrwr_ticlr, csr_helper.c).
const ticlrClearBit = 1 << 0
const estatTimerISBit = 1 << 11

func TICLRClear(v uint64) bool { return v&ticlrClearBit != 0 }

// ClearESTATTimerIRQ clears ESTAT.IS[11], the timer interrupt pending
// bit, the side effect of writing TICLR.CLR=1.
func ClearESTATTimerIRQ(v *uint64) {
	*v &^= estatTimerISBit
}

// TLBIDX fields.
func TLBIDXIndex(v uint64) uint32 { return uint32(v & 0xfff) }
func TLBIDXPS(v uint64) uint8     { return uint8((v >> 24) & 0x3f) }
func TLBIDXNE(v uint64) bool      { return v&(1<<31) != 0 }

func SetTLBIDXIndex(v *uint64, idx uint32) { *v = (*v &^ 0xfff) | uint64(idx&0xfff) }
func SetTLBIDXPS(v *uint64, ps uint8)      { *v = (*v &^ (0x3f << 24)) | (uint64(ps&0x3f) << 24) }
func SetTLBIDXNE(v *uint64, ne bool)       { setBit(v, 31, ne) }

// TLBEHI fields: VPPN occupies bits [63:13].
func TLBEHIVPPN(v uint64) uint64 { return v >> 13 }

func SetTLBEHIVPPN(v *uint64, vppn uint64) { *v = vppn << 13 }

// ASID fields: the architectural ASID is 10 bits.
const asidMask = 0x3ff

func ASIDValue(v uint64) uint16 { return uint16(v & asidMask) }

func SetASIDValue(v *uint64, asid uint16) { *v = (*v &^ asidMask) | uint64(asid&asidMask) }

// STLBPS fields.
func STLBPSValue(v uint64) uint8 { return uint8(v & 0x3f) }

// DMW fields: PLV0..PLV3 occupy bits [3:0] as a privilege-level mask,
// VSEG the virtual segment tag in the top 3 bits, PSEG the physical
// segment substituted in on a match.
func DMWPLVMask(v uint64) uint8 { return uint8(v & 0xf) }
func DMWVSeg(v uint64) uint64   { return v >> 61 }
func DMWPSeg(v uint64) uint64   { return (v >> 25) & 0x7 }

// GSTAT fields (host bank only).
func GSTATVM(v uint64) bool   { return v&(1<<0) != 0 }
func GSTATPVM(v uint64) bool  { return v&(1<<1) != 0 }
func GSTATGID(v uint64) uint8 { return uint8((v >> 16) & 0xff) }

func SetGSTATVM(v *uint64, vm bool)     { setBit(v, 0, vm) }
func SetGSTATPVM(v *uint64, pvm bool)   { setBit(v, 1, pvm) }
func SetGSTATGID(v *uint64, gid uint8)  { *v = (*v &^ (0xff << 16)) | (uint64(gid) << 16) }

// GCFG trap-gate fields.
func GCFGTOEP(v uint64) bool { return v&(1<<0) != 0 }
func GCFGTOE(v uint64) bool  { return v&(1<<1) != 0 }
func GCFGTIT(v uint64) bool  { return v&(1<<2) != 0 }
func GCFGTITP(v uint64) bool { return v&(1<<3) != 0 }
func GCFGTITO(v uint64) bool { return v&(1<<4) != 0 }
func GCFGSITP(v uint64) bool { return v&(1<<5) != 0 }
func GCFGSITO(v uint64) bool { return v&(1<<6) != 0 }

func SetGCFGTITP(v *uint64, b bool) { setBit(v, 3, b) }
func SetGCFGTITO(v *uint64, b bool) { setBit(v, 4, b) }
func SetGCFGSITP(v *uint64, b bool) { setBit(v, 5, b) }
func SetGCFGSITO(v *uint64, b bool) { setBit(v, 6, b) }

// GTLBC fields.
func GTLBCTOTI(v uint64) bool     { return v&(1<<0) != 0 }
func GTLBCUseTGID(v uint64) bool  { return v&(1<<1) != 0 }
func GTLBCTGID(v uint64) uint8    { return uint8((v >> 16) & 0xff) }

func SetGTLBCTOTI(v *uint64, b bool)    { setBit(v, 0, b) }
func SetGTLBCUseTGID(v *uint64, b bool) { setBit(v, 1, b) }
func SetGTLBCTGID(v *uint64, gid uint8) { *v = (*v &^ (0xff << 16)) | (uint64(gid) << 16) }

// TLBRERA fields: ISTLBR marks a TLB-refill re-entry.
func TLBRERAISTLBR(v uint64) bool { return v&1 != 0 }

func setBit(v *uint64, bit uint, on bool) {
	if on {
		*v |= 1 << bit
	} else {
		*v &^= 1 << bit
	}
}
