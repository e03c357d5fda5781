// Package devinfo defines the device-capability table consumed by the
// scheduling core. The core only ever queries it, never computes its
// values from first principles. CPU provides the single concrete implementation this
// runtime ships with.
package devinfo

import (
	"runtime"

	"github.com/cloverproject/clovercore/internal/constants"
)

// Info reports the capability attributes the core queries when binding
// a SubBuffer, sizing a work-group, or checking an image against
// device limits.
type Info struct {
	MaxWorkGroupSize      int
	MaxWorkItemDimensions int
	MaxWorkItemSizes      [3]int
	BaseAddressAlignBytes int
	MaxImageWidth2D       int
	MaxImageHeight2D      int
	MaxImageWidth3D       int
	MaxImageHeight3D      int
	MaxImageDepth3D       int
	ComputeUnits          int
	ProfilingTimerResNs   int64
	QueuePropertyMask     uint32
}

// Queue property bits, mirrored from the host-API surface (§6) that the
// core's CommandQueue constructor consumes.
const (
	QueuePropertyOutOfOrder uint32 = 1 << 0
	QueuePropertyProfiling  uint32 = 1 << 1
)

// CPU returns the capability table for the in-process CPU device. The
// values are conservative stand-ins for what a real device's info
// table would report.
func CPU() Info {
	cus := runtime.NumCPU()
	if cus < 1 {
		cus = 1
	}
	return Info{
		MaxWorkGroupSize:      constants.MaxWorkGroupSize,
		MaxWorkItemDimensions: constants.MaxWorkItemDimensions,
		MaxWorkItemSizes:      [3]int{constants.MaxWorkItemSize0, constants.MaxWorkItemSize1, constants.MaxWorkItemSize2},
		BaseAddressAlignBytes: constants.BaseAddressAlignBytes,
		MaxImageWidth2D:       constants.MaxImageWidth2D,
		MaxImageHeight2D:      constants.MaxImageHeight2D,
		MaxImageWidth3D:       constants.MaxImageWidth3D,
		MaxImageHeight3D:      constants.MaxImageHeight3D,
		MaxImageDepth3D:       constants.MaxImageDepth3D,
		ComputeUnits:          cus,
		ProfilingTimerResNs:   constants.ProfilingTimerResolutionNs,
		QueuePropertyMask:     QueuePropertyOutOfOrder | QueuePropertyProfiling,
	}
}
