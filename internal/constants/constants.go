// Package constants centralizes the runtime's default configuration
// values so the root parameter structs, the device capability table,
// and the staging pool all agree on one set of numbers.
package constants

// Device capability defaults reported by the CPU device-info table.
const (
	// MaxWorkGroupSize is the total work-group size (work-items per
	// group) the device-info table reports. Kernel launch setup does not
	// check local sizes against it. Each work-item past the first that
	// hits a barrier costs a parked goroutine.
	MaxWorkGroupSize = 1024

	// MaxWorkItemDimensions is the highest work_dim a kernel launch may
	// request.
	MaxWorkItemDimensions = 3

	// MaxWorkItemSize0/1/2 are the per-axis local-size limits the table
	// reports; launch setup does not check against them either. Axis 2 is
	// kept small so MaxWorkGroupSize stays reachable on the first two.
	MaxWorkItemSize0 = 1024
	MaxWorkItemSize1 = 1024
	MaxWorkItemSize2 = 64

	// BaseAddressAlignBytes is the alignment a sub-buffer's offset must
	// satisfy when bound to a kernel argument or a transfer. 16 matches
	// the widest vector element this runtime's argument model carries.
	BaseAddressAlignBytes = 16

	// Image dimension limits checked at bind time.
	MaxImageWidth2D  = 16384
	MaxImageHeight2D = 16384
	MaxImageWidth3D  = 2048
	MaxImageHeight3D = 2048
	MaxImageDepth3D  = 2048

	// ProfilingTimerResolutionNs is the resolution the profiling-info
	// query reports. Timestamps come from the monotonic clock, which
	// resolves to single nanoseconds on every supported platform.
	ProfilingTimerResolutionNs = 1
)

// Staging pool size buckets for the copy-host-pointer path. Power-of-2
// buckets from 64KB up; anything larger is allocated directly and
// never pooled.
const (
	StagingBucket64K  = 64 * 1024
	StagingBucket256K = 256 * 1024
	StagingBucket1M   = 1024 * 1024
	StagingBucket4M   = 4 * 1024 * 1024
)

// Worker pool defaults.
const (
	// AutoWorkers selects one worker per logical CPU.
	AutoWorkers = 0

	// LocalSizeOversubscribeFactor bounds how far the work-group size
	// heuristic may oversubscribe the device's compute-unit count when
	// the caller leaves local_size unspecified. A CPU core profitably
	// runs a handful of cooperative work-items per group before
	// context-switch overhead dominates.
	LocalSizeOversubscribeFactor = 4
)
