package kernel

// IncrementVector advances vec by one position in row-major order: the
// lowest axis is incremented first and carries into higher axes when it
// reaches max on that axis. It reports whether the whole vector
// overflowed (every axis carried back to zero), which is how a caller
// knows the iteration is done.
//
// The same primitive drives both the work-group cursor (walking group
// indices) and the per-work-group driver (walking local work-item
// ids).
func IncrementVector(vec *[3]int64, max [3]int64) (overflowed bool) {
	for d := 0; d < 3; d++ {
		vec[d]++
		if vec[d] < max[d] {
			return false
		}
		vec[d] = 0
	}
	return true
}
