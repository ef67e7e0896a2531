//go:build !(linux && amd64)

package detour

// Only Linux on amd64 has MAP_32BIT. Elsewhere relay stubs go wherever the OS
// puts them and Relay reports ErrOutOfRange if that is too far from the
// source.
const map_32bit = 0
