package util

import (
	"fmt"
	"testing"
)

func TestIsErased(t *testing.T) {
	cases := []struct {
		desc     string
		data     []byte
		isErased bool
	}{
		{
			desc:     "nil",
			data:     nil,
			isErased: true,
		},
		{
			desc:     "empty",
			data:     []byte{},
			isErased: true,
		},
		{
			desc:     "single-erased",
			data:     []byte{0xFF},
			isErased: true,
		},
		{
			desc:     "seven-erased",
			data:     erasedBlock(7),
			isErased: true,
		},
		{
			desc:     "eight-erased",
			data:     erasedBlock(8),
			isErased: true,
		},
		{
			desc:     "nine-erased",
			data:     erasedBlock(9),
			isErased: true,
		},
		{
			desc:     "huge-erased-unaligned",
			data:     erasedBlock(257),
			isErased: true,
		},
		{
			desc:     "zeros",
			data:     make([]byte, 16),
			isErased: false,
		},
		{
			desc:     "single-bit-cleared-first-long",
			data:     []byte{0xFF, 0xFF, 0xFF, 0x7F, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
			isErased: false,
		},
		{
			desc:     "single-bit-cleared-tail",
			data:     []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFE},
			isErased: false,
		},
	}

	for _, tcase := range cases {
		t.Run(tcase.desc, func(t *testing.T) {
			if actual := IsErased(tcase.data); actual != tcase.isErased {
				t.Fatalf("IsErased(%v) returned %t rather than %t", tcase.data, actual, tcase.isErased)
			}
		})
	}
}

func TestFirstNonErased(t *testing.T) {
	block := erasedBlock(300)
	if idx := FirstNonErased(block); idx != -1 {
		t.Fatalf("Erased block reported non-erased byte at %d", idx)
	}
	block[211] = 0xAB
	if idx := FirstNonErased(block); idx != 211 {
		t.Fatalf("Expected first non-erased byte at 211 but found %d", idx)
	}
}

func TestFill(t *testing.T) {
	t.Run("count-nil", func(t *testing.T) {
		if EraseFill(nil); !IsErased(nil) {
			t.Fatal("Empty block was not correctly erase-filled")
		}
	})

	for count := 1; count <= 8192*4; count <<= 1 {
		t.Run(fmt.Sprintf("count-%d", count+1), func(t *testing.T) {
			block := make([]byte, count+1)
			if EraseFill(block); !IsErased(block) {
				t.Fatalf("Block of %d zeros was not correctly erase-filled", count+1)
			}
			Fill(block, 0x5A)
			for i, val := range block {
				if val != 0x5A {
					t.Fatalf("Fill left value %#x at index %d", val, i)
				}
			}
		})
	}
}

func erasedBlock(count int) []byte {
	block := make([]byte, count)
	for i := range block {
		block[i] = ErasedByte
	}
	return block
}

func BenchmarkIsErased(b *testing.B) {
	block := erasedBlock(b.N)
	b.ReportAllocs()
	b.ResetTimer()

	IsErased(block)
}
