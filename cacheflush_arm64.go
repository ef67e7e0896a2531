//go:build arm64 && cgo

package detour

/*
static void cacheflush(char *start, char *end) {
	__builtin___clear_cache(start, end);
}
*/
import "C"

import "unsafe"

func cacheflush(addr uintptr, size int) {
	start := unsafe.Pointer(addr)
	end := unsafe.Pointer(addr + uintptr(size))
	C.cacheflush((*C.char)(start), (*C.char)(end))
}
