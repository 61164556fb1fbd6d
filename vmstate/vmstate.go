// Package vmstate tracks which privilege context — host/hypervisor or
// guest — currently owns the vCPU, and the LVZ control registers that
// gate virtualization behavior (spec.md §3 "LVZ Control", §4.4
// "Privilege & VM-Mode State Machine").
package vmstate

// Mode is the current privilege context of the vCPU.
type Mode uint8

const (
	Host Mode = iota
	Guest
)

func (m Mode) String() string {
	if m == Guest {
		return "guest"
	}

	return "host"
}

// LVZControl groups the registers spec.md §3 calls "LVZ Control":
// GSTAT, GCFG, GINTC, GCNTC, GTLBC, TRGP, plus the lvz_enabled flag
// that is not itself a CSR.
type LVZControl struct {
	GSTAT, GCFG, GINTC, GCNTC uint64
	GTLBC, TRGP               uint64
	Enabled                   bool
}

// Mode derives the current privilege context from GSTAT.VM
// (invariant P1 in spec.md §8: "GSTAT.VM == 1 ⇔ the vCPU is executing
// guest instructions").
func (c *LVZControl) Mode() Mode {
	if c.GSTAT&1 != 0 { // GSTAT.VM
		return Guest
	}

	return Host
}

func (c *LVZControl) VM() bool  { return c.GSTAT&(1<<0) != 0 }
func (c *LVZControl) PVM() bool { return c.GSTAT&(1<<1) != 0 }
func (c *LVZControl) GID() uint8 {
	return uint8((c.GSTAT >> 16) & 0xff)
}

func (c *LVZControl) SetVM(vm bool) {
	if vm {
		c.GSTAT |= 1 << 0
	} else {
		c.GSTAT &^= 1 << 0
	}
}

func (c *LVZControl) SetPVM(pvm bool) {
	if pvm {
		c.GSTAT |= 1 << 1
	} else {
		c.GSTAT &^= 1 << 1
	}
}

func (c *LVZControl) SetGID(gid uint8) {
	c.GSTAT = (c.GSTAT &^ (0xff << 16)) | (uint64(gid) << 16)
}

// EffectiveGID implements the GTLBC.USETGID override from spec.md
// §3/§4.3: TLB helpers normally key off GSTAT.GID, but when
// GTLBC.USETGID is set they key off GTLBC.TGID instead, letting the
// hypervisor operate on a guest's TLB entries without switching into
// that guest.
func (c *LVZControl) EffectiveGID() uint8 {
	if c.GTLBC&(1<<1) != 0 { // GTLBC.USETGID
		return uint8((c.GTLBC >> 16) & 0xff)
	}

	return c.GID()
}

// EffectiveMode reports whether the current effective context (after
// the USETGID override) should be treated as a guest context for
// GID-filtering purposes: Guest whenever GTLBC.USETGID is set, even
// from host mode, and Mode() otherwise. The vcpu TLB helpers select
// their CSR bank with Mode() and their GID with EffectiveGID(); they
// do not call EffectiveMode.
func (c *LVZControl) EffectiveMode() Mode {
	if c.GTLBC&(1<<1) != 0 {
		return Guest
	}

	return c.Mode()
}

// ReachableGuest reports whether GUEST is a reachable state: LVZ must
// be enabled per spec.md §4.4 ("LVZ must be enabled (lvz_enabled &&
// cpucfg2.LVZ) for GUEST to be reachable"). cpucfg2LVZ is threaded in
// by the caller since CPUCFG leaves live outside this package.
func (c *LVZControl) ReachableGuest(cpucfg2LVZ bool) bool {
	return c.Enabled && cpucfg2LVZ
}
