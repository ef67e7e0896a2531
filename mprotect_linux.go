package detour

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Query reads the protection of addr's mapping from /proc/self/maps.
func (processMemory) Query(addr uintptr) (Protection, error) {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return ProtNone, errors.WithStack(err)
	}
	defer f.Close()

	return findMapping(f, addr)
}

// findMapping scans lines in the /proc/<pid>/maps format:
//
//	559576822000-559576827000 r-xp 00002000 00:1a 4586   /usr/bin/cat
func findMapping(r io.Reader, addr uintptr) (Protection, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		lo, hi, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		start, err := strconv.ParseUint(lo, 16, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(hi, 16, 64)
		if err != nil {
			continue
		}
		if uint64(addr) < start || uint64(addr) >= end {
			continue
		}

		var prot Protection
		perms := fields[1]
		if len(perms) >= 3 {
			if perms[0] == 'r' {
				prot |= ProtRead
			}
			if perms[1] == 'w' {
				prot |= ProtWrite
			}
			if perms[2] == 'x' {
				prot |= ProtExec
			}
		}
		return prot, nil
	}
	if err := scanner.Err(); err != nil {
		return ProtNone, errors.WithStack(err)
	}

	return ProtNone, errors.Wrapf(ErrInvalidAddress, "%#x is not mapped", addr)
}
