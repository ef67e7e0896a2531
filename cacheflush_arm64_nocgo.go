//go:build arm64 && !cgo

package detour

// arm64 requires a C compiler to flush the instruction cache.
// Install a C compiler and build with CGO_ENABLED=1.
func cacheflush(addr uintptr, size int) {
	arm64_detour_requires_cgo_for_instruction_cache_flushing()
}
