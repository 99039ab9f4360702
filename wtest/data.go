package wtest

import (
	"io"
	"math/rand"
	"testing"

	"github.com/itchio/randsource"
)

// RandBytes returns size bytes of deterministic noise for the given seed.
func RandBytes(t testing.TB, seed int64, size int) []byte {
	t.Helper()
	prng := randsource.Reader{
		Source: rand.New(rand.NewSource(seed)),
	}

	data := make([]byte, size)
	_, err := io.ReadFull(prng, data)
	Must(t, err)
	return data
}

// A Bsmod alters one byte every Interval bytes by adding Delta to it.
type Bsmod struct {
	Interval int
	Delta    byte
}

// Mutate returns a copy of data with every bsmod applied.
func Mutate(data []byte, bsmods ...Bsmod) []byte {
	res := append([]byte(nil), data...)
	for _, bsmod := range bsmods {
		if bsmod.Interval <= 0 {
			continue
		}
		for i := bsmod.Interval - 1; i < len(res); i += bsmod.Interval {
			res[i] += bsmod.Delta
		}
	}
	return res
}

// Insert returns a copy of data with extra spliced in at offset.
func Insert(data []byte, offset int, extra []byte) []byte {
	res := make([]byte, 0, len(data)+len(extra))
	res = append(res, data[:offset]...)
	res = append(res, extra...)
	res = append(res, data[offset:]...)
	return res
}

// Remove returns a copy of data with length bytes cut at offset.
func Remove(data []byte, offset int, length int) []byte {
	res := make([]byte, 0, len(data)-length)
	res = append(res, data[:offset]...)
	res = append(res, data[offset+length:]...)
	return res
}
