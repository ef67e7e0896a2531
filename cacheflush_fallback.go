//go:build !arm64

package detour

// x86 keeps the instruction cache coherent with stores.
func cacheflush(addr uintptr, size int) {}
