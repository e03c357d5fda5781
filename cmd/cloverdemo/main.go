package main

import (
	"flag"
	"fmt"
	"os"
	"unsafe"

	clover "github.com/cloverproject/clovercore"
	"github.com/cloverproject/clovercore/internal/logging"
)

func main() {
	var (
		workers  = flag.Int("workers", 0, "Number of device workers (0 = one per CPU)")
		global   = flag.Int64("global", 64, "Global size per axis for the demo kernel")
		local    = flag.Int64("local", 0, "Local size per axis (0 = let the engine choose)")
		logLevel = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logConfig := logging.DefaultConfig()
	logConfig.Level = level
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	params := clover.DefaultParams()
	params.Workers = *workers

	ctx, err := clover.NewContext(params, &clover.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to create context", "error", err)
		os.Exit(1)
	}
	defer ctx.Close()

	logger.Info("context ready", "compute_units", ctx.Device().Info().ComputeUnits)

	if err := run(ctx, logger, *global, *local); err != nil {
		logger.Error("demo failed", "error", err)
		os.Exit(1)
	}

	snap := ctx.Metrics().Snapshot()
	fmt.Printf("events completed:    %d\n", snap.EventsCompleted)
	fmt.Printf("kernel launches:     %d\n", snap.KernelLaunches)
	fmt.Printf("work-groups done:    %d\n", snap.WorkGroupsDone)
	fmt.Printf("avg event duration:  %dns\n", snap.AvgDurationNs)
	fmt.Printf("live objects:        %d\n", snap.LiveObjects)
}

func run(ctx *clover.Context, logger *logging.Logger, globalSize, localSize int64) error {
	q, err := ctx.CreateQueue(clover.Properties{Profiling: true})
	if err != nil {
		return err
	}
	defer q.Release()

	// Stage 1: a plain transfer round trip.
	buf, err := ctx.CreateBuffer(32, clover.Flags{ReadWrite: true})
	if err != nil {
		return err
	}
	defer clover.ReleaseMemObject(buf)

	w, err := q.EnqueueWriteBuffer(buf, 0, []byte("the quick brown fox jumps over.."), nil)
	if err != nil {
		return err
	}
	readBack := make([]byte, 32)
	r, err := q.EnqueueReadBuffer(buf, 0, readBack, []*clover.Event{w})
	if err != nil {
		return err
	}
	if err := clover.WaitForEvents(r); err != nil {
		return err
	}
	logger.Info("transfer round trip complete", "bytes", len(readBack))

	p := clover.EventProfiling(w)
	logger.Info("write event timing",
		"submit_latency_ns", p.Submitted.Sub(p.Queued).Nanoseconds(),
		"exec_ns", p.Ended.Sub(p.Started).Nanoseconds())

	// Stage 2: an ND-range kernel with an in-group barrier. Each
	// work-item doubles its cell, barriers, then adds its left
	// neighbor's doubled value (within the work-group).
	n := globalSize
	data, err := ctx.CreateBuffer(n*8, clover.Flags{ReadWrite: true})
	if err != nil {
		return err
	}
	defer clover.ReleaseMemObject(data)

	init := make([]byte, n*8)
	cells := unsafe.Slice((*int64)(unsafe.Pointer(&init[0])), n)
	for i := range cells {
		cells[i] = int64(i)
	}
	iw, err := q.EnqueueWriteBuffer(data, 0, init, nil)
	if err != nil {
		return err
	}

	prog := ctx.NewNativeProgram(map[string]clover.KernelFunc{
		"double_and_mix": func(item *clover.WorkItem, args []any) {
			slots := unsafe.Slice((*int64)(args[0].(unsafe.Pointer)), n)
			gid := item.GlobalID(0)
			slots[gid] *= 2
			item.Barrier()
			var left int64
			if item.LocalID(0) > 0 {
				left = slots[gid-1]
			}
			item.Barrier()
			slots[gid] += left
		},
	})
	defer clover.ReleaseProgram(prog)

	k, err := prog.CreateKernel("double_and_mix", 1)
	if err != nil {
		return err
	}
	defer clover.ReleaseKernel(k)
	if err := k.SetArg(0, clover.Arg{Kind: clover.ArgBuffer, Buffer: data}); err != nil {
		return err
	}

	ke, err := q.EnqueueNDRangeKernel(k, 1,
		[3]int64{}, [3]int64{n, 0, 0}, [3]int64{localSize, 0, 0},
		[]*clover.Event{iw})
	if err != nil {
		return err
	}
	if err := clover.WaitForEvents(ke); err != nil {
		return err
	}
	q.Finish()
	logger.Info("kernel complete", "global", n)
	return nil
}
