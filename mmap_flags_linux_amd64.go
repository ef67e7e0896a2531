package detour

import "golang.org/x/sys/unix"

// MAP_32BIT keeps relay stubs in the low 2GiB, within rel32 reach of a
// non-PIE Go binary's text.
const map_32bit = unix.MAP_32BIT
