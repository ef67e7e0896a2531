package detour

import (
	"os"
	"sync/atomic"
	"unsafe"
)

// ProcessMemory returns the Memory of the running process.
func ProcessMemory() Memory {
	return processMemory{}
}

type processMemory struct{}

func (processMemory) PageSize() int {
	return os.Getpagesize()
}

func (processMemory) Read(addr uintptr, buf []byte) error {
	copy(buf, unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(buf)))
	return nil
}

// Write copies data to addr. When the range falls inside one aligned 8-byte
// word the whole word is replaced with a single atomic store, so no thread
// can fetch a mix of old and new bytes.
func (processMemory) Write(addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	wordStart := addr &^ 7
	if wordStart == (addr+uintptr(len(data))-1)&^7 {
		word := (*uint64)(unsafe.Pointer(wordStart))
		current := atomic.LoadUint64(word)
		buf := *(*[8]byte)(unsafe.Pointer(&current))
		copy(buf[addr-wordStart:], data)
		atomic.StoreUint64(word, *(*uint64)(unsafe.Pointer(&buf)))
	} else {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(data)), data)
	}

	cacheflush(addr, len(data))
	return nil
}
