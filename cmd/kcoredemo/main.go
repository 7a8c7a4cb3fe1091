// Command kcoredemo wires the kernel core together end to end: a
// producer/consumer pair handing integers through a Mutex-protected
// queue and a CondVar, followed by a short walk through the virtual
// memory manager (map a user range, validate it, free it). It is the
// thin kernel_main-style entry point; all the actual machinery lives in
// the library packages.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"kcore/isync"
	"kcore/vm"
)

const (
	machineMemory = 4 << 20    // 4 MiB of direct-mapped "physical" memory
	userMemStart  = 1 << 20    // kernel-global mappings below this
	frameRegion   = vm.PhysicalAddress(0x200000)
	frameCount    = 16
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).With().Timestamp().Logger()

	// Producer/consumer over the kernel mutex + condvar.
	mu := isync.NewMutex([]int{})
	cv := isync.NewCondVar()
	const items = 10

	var g errgroup.Group
	g.Go(func() error {
		for expect := 1; expect <= items; expect++ {
			guard := mu.Lock(2)
			for len(*guard.Value()) == 0 {
				guard = isync.Wait(cv, 2, guard)
			}
			got := (*guard.Value())[0]
			*guard.Value() = (*guard.Value())[1:]
			guard.Unlock()
			log.Info().Int("item", got).Msg("consumed")
		}
		return nil
	})
	g.Go(func() error {
		for i := 1; i <= items; i++ {
			guard := mu.Lock(1)
			*guard.Value() = append(*guard.Value(), i)
			guard.Unlock()
			cv.Signal(1)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("producer/consumer failed")
	}

	// Bring up the address space and map a user-visible range.
	fa := vm.NewFrameAllocator(frameRegion, frameRegion+frameCount*vm.PageSize)
	v := vm.InitVirtualMemory(1, machineMemory, userMemStart, fa)
	log.Info().Int64("bytes_free", fa.BytesFree()).Msg("virtual memory initialized")

	m := vm.NewAllocMapping(fa, 1)
	start, end := vm.LogicalAddress(0x10000000), vm.LogicalAddress(0x10002000)
	if _, err := v.Kernel().MapMemoryRange(m, start, end, vm.FlagWritable|vm.FlagUser); err != nil {
		log.Fatal().Err(err).Msg("map_memory_range failed")
	}
	log.Info().
		Bool("user_writable", vm.IsUserWritable(start, uint32(end-start))).
		Int64("bytes_free", fa.BytesFree()).
		Msg("user range mapped")

	v.Kernel().FreeMemoryRange(m, start, end)
	log.Info().Int64("bytes_free", fa.BytesFree()).Msg("user range freed")
}
