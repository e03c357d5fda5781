//go:build linux && cgo

package kernel

/*
#include <stdint.h>

// x86-64 store fence: ensures all prior stores are globally visible
// before any subsequent store.
static inline void sfence_impl(void) {
    __asm__ __volatile__("sfence" ::: "memory");
}

// x86-64 full memory fence: ensures all prior memory operations
// complete before any subsequent one.
static inline void mfence_impl(void) {
    __asm__ __volatile__("mfence" ::: "memory");
}
*/
import "C"

// Sfence issues a store fence. A kernel barrier with fence flags that
// do not include FenceGlobal calls this before yielding, so prior
// stores are visible to the next resumed work-item.
func Sfence() {
	C.sfence_impl()
}

// Mfence issues a full memory fence, for a barrier carrying the
// FenceGlobal flag.
func Mfence() {
	C.mfence_impl()
}
