// Command lvzdemo exercises the LVZ core end to end outside of any
// instruction decoder: it builds a vCPU, installs a TLB entry by hand,
// and drives a translation or a hypercall through it.
// There is no CLI surface inside the core itself (spec.md §6); this is
// purely a demonstration harness, styled after the teacher's own
// kong.Parse + Run() command pattern.
package main

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/alecthomas/kong"

	"github.com/loongvirt/lvzcore/guestlog"
	"github.com/loongvirt/lvzcore/hostio"
	"github.com/loongvirt/lvzcore/tlb"
	"github.com/loongvirt/lvzcore/translate"
	"github.com/loongvirt/lvzcore/vcpu"
)

// CLI is the top-level command set.
type CLI struct {
	Translate TranslateCMD `cmd:"" help:"Translate a virtual address through a freshly built vCPU."`
	Hypercall HypercallCMD `cmd:"" help:"Enter guest mode and issue a hvcl, printing the resulting VM-exit."`
	Smp       SmpCMD       `cmd:"" help:"Run a hvcl scenario across several vCPUs concurrently."`
}

// TranslateCMD installs one STLB entry covering VA and translates it.
type TranslateCMD struct {
	VA    uint64 `arg:"" help:"Virtual address to translate."`
	PA    uint64 `help:"Physical page base the entry maps VA's page to." default:"0x1000000"`
	PS    uint8  `help:"Page size, log2 (e.g. 12 for 4K)." default:"12"`
	Store bool   `help:"Translate as a STORE rather than a LOAD."`
}

func (t *TranslateCMD) Run() error {
	ctx := hostio.NewRecorder(1)
	cpu := vcpu.New(ctx, guestlog.Default(), 0)
	cpu.Host.CRMD = 1 << 4 // PG=1, leave DA=0 so the TLB path is exercised.
	cpu.Host.STLBPS = uint64(t.PS)

	half := tlb.Even
	if t.VA&(1<<t.PS) != 0 {
		half = tlb.Odd
	}

	var e tlb.Entry
	e.SetValid(true)
	e.SetPS(t.PS)
	e.SetVPPN(t.VA >> 13)

	if half == tlb.Odd {
		e.Entry1 = (t.PA >> 12) << 12
	} else {
		e.Entry0 = (t.PA >> 12) << 12
	}

	e.SetV(half, true)
	e.SetD(half, true)

	cpu.TLB.STLB[(t.VA>>13)&(tlb.STLBSets-1)][0] = e

	at := translate.Load
	if t.Store {
		at = translate.Store
	}

	res := cpu.GetPhysicalAddress(t.VA, at, translate.Kernel)
	if !res.Ok() {
		fmt.Printf("fault: %s\n", res.Fault)
		return nil
	}

	fmt.Printf("pa=%#x prot=%d\n", res.PA, res.Prot)

	return nil
}

// HypercallCMD drives a guest-mode hvcl and prints the captured exit context.
type HypercallCMD struct {
	Code uint64 `arg:"" help:"Hypercall code." default:"0x42"`
}

func (h *HypercallCMD) Run() error {
	ctx := hostio.NewRecorder(1)
	cpu := vcpu.New(ctx, guestlog.Default(), 0)
	cpu.LVZ.Enabled = true
	cpu.CPUCfg2LVZ = true
	cpu.LVZ.SetVM(true)
	cpu.PC = 0xffff800000100000

	if err := cpu.Hvcl(h.Code); err != nil {
		return err
	}

	fmt.Printf("exit reason=%s code=%#x gstat.vm=%v\n", cpu.ExitCtx.Reason, cpu.ExitCtx.Aux, cpu.LVZ.VM())

	return nil
}

// SmpCMD boots N simulated vCPUs and runs each through the same
// guest-mode hvcl scenario on its own goroutine, one per vCPU, joined
// with a WaitGroup the way the teacher joins its real vCPU threads.
type SmpCMD struct {
	NumCPU uint64 `help:"Number of simulated vCPUs." default:"4"`
	Code   uint64 `arg:"" help:"Hypercall code." default:"0x42"`
}

func (s *SmpCMD) Run() error {
	var (
		wg      sync.WaitGroup
		results = make([]string, s.NumCPU)
	)

	for i := uint64(0); i < s.NumCPU; i++ {
		wg.Add(1)

		go func(idx uint64) {
			defer wg.Done()

			ctx := hostio.NewRecorder(idx + 1)
			cpu := vcpu.New(ctx, guestlog.Default(), idx)
			cpu.LVZ.Enabled = true
			cpu.CPUCfg2LVZ = true
			cpu.LVZ.SetVM(true)
			cpu.PC = 0xffff800000100000

			if err := cpu.Hvcl(s.Code); err != nil {
				results[idx] = fmt.Sprintf("vcpu %d: error: %v", idx, err)
				return
			}

			results[idx] = fmt.Sprintf("vcpu %d: exit reason=%s code=%#x", idx, cpu.ExitCtx.Reason, cpu.ExitCtx.Aux)
		}(i)
	}

	wg.Wait()

	for _, r := range results {
		fmt.Println(r)
	}

	return nil
}

func main() {
	c := CLI{}

	ctx := kong.Parse(&c,
		kong.Name("lvzdemo"),
		kong.Description("exercises the LoongArch LVZ core in isolation"),
		kong.UsageOnError())

	if err := ctx.Run(); err != nil {
		log.Fatal(err)
	}

	os.Exit(0)
}
