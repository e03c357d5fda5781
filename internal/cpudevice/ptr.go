package cpudevice

import "unsafe"

// ptrSize is the machine word width used to encode a relocated pointer
// inside a native kernel's flat argument buffer.
const ptrSize = unsafe.Sizeof(uintptr(0))

// putPointer writes ptr as a native-width, native-endian machine word
// into buf, which must have at least ptrSize bytes available. The
// relocated value is a real pointer into this process's address space,
// not a portable wire encoding, so native byte order is the correct
// choice here.
func putPointer(buf []byte, ptr unsafe.Pointer) {
	*(*uintptr)(unsafe.Pointer(&buf[0])) = uintptr(ptr)
}
