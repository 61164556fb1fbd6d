package vcpu

import "github.com/loongvirt/lvzcore/csr"

// hostField returns a pointer to the HostBank field backing CSR index
// c, or false if c has no direct backing field on the host bank (this
// core implements no such CSR — the mediator traps unknown indices
// upstream of this lookup in practice, but callers should still check
// ok).
func hostField(b *csr.HostBank, c uint32) (*uint64, bool) {
	switch {
	case c >= csr.SAVE0 && c < csr.SAVE0+csr.SAVESlots:
		return &b.SAVE[c-csr.SAVE0], true
	case c >= csr.DMW0 && c < csr.DMW0+csr.DMWSlots:
		return &b.DMW[c-csr.DMW0], true
	}

	switch c {
	case csr.CRMD:
		return &b.CRMD, true
	case csr.PRMD:
		return &b.PRMD, true
	case csr.EUEN:
		return &b.EUEN, true
	case csr.MISC:
		return &b.MISC, true
	case csr.ECFG:
		return &b.ECFG, true
	case csr.ESTAT:
		return &b.ESTAT, true
	case csr.ERA:
		return &b.ERA, true
	case csr.BADV:
		return &b.BADV, true
	case csr.BADI:
		return &b.BADI, true
	case csr.EENTRY:
		return &b.EENTRY, true
	case csr.TLBIDX:
		return &b.TLBIDX, true
	case csr.TLBEHI:
		return &b.TLBEHI, true
	case csr.TLBELO0:
		return &b.TLBELO0, true
	case csr.TLBELO1:
		return &b.TLBELO1, true
	case csr.ASID:
		return &b.ASID, true
	case csr.STLBPS:
		return &b.STLBPS, true
	case csr.RVACFG:
		return &b.RVACFG, true
	case csr.PGDL:
		return &b.PGDL, true
	case csr.PGDH:
		return &b.PGDH, true
	case csr.PWCL:
		return &b.PWCL, true
	case csr.PWCH:
		return &b.PWCH, true
	case csr.CPUIDCSR:
		return &b.CPUID, true
	case csr.PRCFG1:
		return &b.PRCFG1, true
	case csr.PRCFG2:
		return &b.PRCFG2, true
	case csr.PRCFG3:
		return &b.PRCFG3, true
	case csr.TID:
		return &b.TID, true
	case csr.TCFG:
		return &b.TCFG, true
	case csr.TVAL:
		return &b.TVAL, true
	case csr.CNTC:
		return &b.CNTC, true
	case csr.TICLR:
		return &b.TICLR, true
	case csr.LLBCTL:
		return &b.LLBCTL, true
	case csr.IMPCTL1:
		return &b.IMPCTL1, true
	case csr.IMPCTL2:
		return &b.IMPCTL2, true
	case csr.TLBRENTRY:
		return &b.TLBRENTRY, true
	case csr.TLBRBADV:
		return &b.TLBRBADV, true
	case csr.TLBRERA:
		return &b.TLBRERA, true
	case csr.TLBRSAVE:
		return &b.TLBRSAVE, true
	case csr.TLBRELO0:
		return &b.TLBRELO0, true
	case csr.TLBRELO1:
		return &b.TLBRELO1, true
	case csr.TLBREHI:
		return &b.TLBREHI, true
	case csr.TLBRPRMD:
		return &b.TLBRPRMD, true
	case csr.MERRCTL:
		return &b.MERRCTL, true
	case csr.MERRINFO1:
		return &b.MERRINFO1, true
	case csr.MERRINFO2:
		return &b.MERRINFO2, true
	case csr.MERRENTRY:
		return &b.MERRENTRY, true
	case csr.MERRERA:
		return &b.MERRERA, true
	case csr.MERRSAVE:
		return &b.MERRSAVE, true
	case csr.CTAG:
		return &b.CTAG, true
	case csr.DBG:
		return &b.DBG, true
	case csr.DERA:
		return &b.DERA, true
	case csr.DSAVE:
		return &b.DSAVE, true
	case csr.GSTAT:
		return &b.GSTAT, true
	case csr.GCFG:
		return &b.GCFG, true
	case csr.GINTC:
		return &b.GINTC, true
	case csr.GCNTC:
		return &b.GCNTC, true
	case csr.GTLBC:
		return &b.GTLBC, true
	case csr.TRGP:
		return &b.TRGP, true
	default:
		return nil, false
	}
}

// guestField is hostField's twin over GuestBank, which carries the
// same register set minus the LVZ control registers (spec.md §3).
func guestField(b *csr.GuestBank, c uint32) (*uint64, bool) {
	switch {
	case c >= csr.SAVE0 && c < csr.SAVE0+csr.SAVESlots:
		return &b.SAVE[c-csr.SAVE0], true
	case c >= csr.DMW0 && c < csr.DMW0+csr.DMWSlots:
		return &b.DMW[c-csr.DMW0], true
	}

	switch c {
	case csr.CRMD:
		return &b.CRMD, true
	case csr.PRMD:
		return &b.PRMD, true
	case csr.EUEN:
		return &b.EUEN, true
	case csr.MISC:
		return &b.MISC, true
	case csr.ECFG:
		return &b.ECFG, true
	case csr.ESTAT:
		return &b.ESTAT, true
	case csr.ERA:
		return &b.ERA, true
	case csr.BADV:
		return &b.BADV, true
	case csr.BADI:
		return &b.BADI, true
	case csr.EENTRY:
		return &b.EENTRY, true
	case csr.TLBIDX:
		return &b.TLBIDX, true
	case csr.TLBEHI:
		return &b.TLBEHI, true
	case csr.TLBELO0:
		return &b.TLBELO0, true
	case csr.TLBELO1:
		return &b.TLBELO1, true
	case csr.ASID:
		return &b.ASID, true
	case csr.STLBPS:
		return &b.STLBPS, true
	case csr.RVACFG:
		return &b.RVACFG, true
	case csr.PGDL:
		return &b.PGDL, true
	case csr.PGDH:
		return &b.PGDH, true
	case csr.PWCL:
		return &b.PWCL, true
	case csr.PWCH:
		return &b.PWCH, true
	case csr.CPUIDCSR:
		return &b.CPUID, true
	case csr.PRCFG1:
		return &b.PRCFG1, true
	case csr.PRCFG2:
		return &b.PRCFG2, true
	case csr.PRCFG3:
		return &b.PRCFG3, true
	case csr.TID:
		return &b.TID, true
	case csr.TCFG:
		return &b.TCFG, true
	case csr.TVAL:
		return &b.TVAL, true
	case csr.CNTC:
		return &b.CNTC, true
	case csr.TICLR:
		return &b.TICLR, true
	case csr.LLBCTL:
		return &b.LLBCTL, true
	case csr.IMPCTL1:
		return &b.IMPCTL1, true
	case csr.IMPCTL2:
		return &b.IMPCTL2, true
	case csr.TLBRENTRY:
		return &b.TLBRENTRY, true
	case csr.TLBRBADV:
		return &b.TLBRBADV, true
	case csr.TLBRERA:
		return &b.TLBRERA, true
	case csr.TLBRSAVE:
		return &b.TLBRSAVE, true
	case csr.TLBRELO0:
		return &b.TLBRELO0, true
	case csr.TLBRELO1:
		return &b.TLBRELO1, true
	case csr.TLBREHI:
		return &b.TLBREHI, true
	case csr.TLBRPRMD:
		return &b.TLBRPRMD, true
	case csr.MERRCTL:
		return &b.MERRCTL, true
	case csr.MERRINFO1:
		return &b.MERRINFO1, true
	case csr.MERRINFO2:
		return &b.MERRINFO2, true
	case csr.MERRENTRY:
		return &b.MERRENTRY, true
	case csr.MERRERA:
		return &b.MERRERA, true
	case csr.MERRSAVE:
		return &b.MERRSAVE, true
	case csr.CTAG:
		return &b.CTAG, true
	case csr.DBG:
		return &b.DBG, true
	case csr.DERA:
		return &b.DERA, true
	case csr.DSAVE:
		return &b.DSAVE, true
	default:
		return nil, false
	}
}
