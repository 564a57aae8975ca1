// Package medium implements the 24-bit big-endian unsigned integer
// encoding used by store files for sizes and block pointers.
package medium

const (
	// Len is the encoded length in bytes
	Len = 3
	// Max is the largest value representable in 24 bits
	Max = 1<<24 - 1
)

// Uint24 decodes a big-endian 24-bit unsigned integer from the first
// three bytes of b.
func Uint24(b []byte) uint32 {
	_ = b[2] // bounds check hint to compiler
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// PutUint24 encodes v into the first three bytes of b. Values above Max
// are truncated to their low 24 bits.
func PutUint24(b []byte, v uint32) {
	_ = b[2] // bounds check hint to compiler
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// AppendUint24 appends the three-byte encoding of v to b and returns the
// extended slice.
func AppendUint24(b []byte, v uint32) []byte {
	return append(b, byte(v>>16), byte(v>>8), byte(v))
}
