//go:build !linux

package cpudevice

import "github.com/cloverproject/clovercore/internal/logging"

// setAffinity is a portable no-op off Linux; see affinity.go.
func setAffinity(_ []int, _ int, _ *logging.Logger) {}
