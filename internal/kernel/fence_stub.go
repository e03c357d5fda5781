//go:build !(linux && cgo)

package kernel

// Sfence is a portable no-op fallback. The cooperative barrier's
// resume order already establishes the only ordering this runtime can
// guarantee off Linux/cgo: work-items in one group run in turn, never
// concurrently.
func Sfence() {}

// Mfence is a portable no-op fallback; see Sfence.
func Mfence() {}
