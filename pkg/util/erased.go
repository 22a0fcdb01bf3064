package util

import ( //Dark magic to make simple things fast...
	"unsafe"
)

//ErasedByte is the value of every byte of freshly erased NOR flash (all bits set)
const ErasedByte byte = 0xFF

//IsErased confirms the provided byte slice contains only erased (0xFF) bytes
func IsErased(block []byte) bool {
	const erasedLong = ^uint64(0)

	alignedCount := len(block) / 8
	var remainingStart int

	if alignedCount > 0 {
		longs := unsafe.Slice((*uint64)(unsafe.Pointer(&block[0])), alignedCount)
		for _, long := range longs {
			if long != erasedLong {
				return false
			}
		}
		remainingStart = alignedCount * 8
	}

	for _, char := range block[remainingStart:] {
		if char != ErasedByte {
			return false
		}
	}

	return true
}

//FirstNonErased returns the index of the first byte that is not erased or -1
// if the whole block is erased
func FirstNonErased(block []byte) int {
	if IsErased(block) {
		return -1
	}
	for i, char := range block {
		if char != ErasedByte {
			return i
		}
	}
	return -1
}

//Fill sets every byte of the provided slice to val
func Fill(block []byte, val byte) {
	if len(block) < 1 {
		return
	}

	block[0] = val
	for i := 1; i < len(block); i <<= 1 {
		copy(block[i:], block[:i])
	}
}

//EraseFill ensures the provided byte slice contains only erased bytes
func EraseFill(block []byte) {
	Fill(block, ErasedByte)
}
