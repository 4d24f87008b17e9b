package pef

const (
	hashLengthShift = 16
	hashValueMask   = 0xffff

	// MaxHashTablePower bounds export_hash_table_power.
	MaxHashTablePower = 30
)

// HashWord computes the export key of a symbol name: the name length in the
// high 16 bits and a folded hash in the low 16 bits. Hashing stops at a NUL.
// The arithmetic is signed 32-bit, as produced by the PEF toolchain.
func HashWord(name []byte) uint32 {
	var h int32
	var n uint32
	for _, c := range name {
		if c == 0 {
			break
		}
		n++
		h = (h<<1 - h>>16) ^ int32(c)
	}
	return n<<hashLengthShift | uint32(h^h>>16)&hashValueMask
}

// HashSlot maps an export key to its slot in a table of 2^power slots.
func HashSlot(word, power uint32) uint32 {
	return (word ^ word>>power) & (1<<power - 1)
}
