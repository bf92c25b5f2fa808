package channel

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// allocAligned returns an n-byte buffer whose first byte sits on a page
// boundary. The backing array over-allocates one page and the buffer is
// sliced at the first boundary inside it, so the allocation stays owned by
// the garbage collector and lives exactly as long as regions referencing it.
func allocAligned(n int) []byte {
	page := unix.Getpagesize()
	raw := make([]byte, n+page)
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	pad := (page - int(addr)%page) % page
	return raw[pad : pad+n : pad+n]
}
