// Package rollsum implements the rolling weak checksum used to find
// candidate block matches in a stream. It is byte-compatible with
// librsync's rollsum: two 16-bit running sums over the window, each
// byte biased by CharOffset.
package rollsum

// CharOffset is added to every byte before it is summed, so that runs
// of zero bytes still move the checksum.
const CharOffset = 31

// Rollsum is a weak checksum over a sliding window.
// The zero value is an empty window.
type Rollsum struct {
	count  uint64
	s1, s2 uint16
}

// WeakSum returns the digest of a window holding exactly p.
func WeakSum(p []byte) uint32 {
	var r Rollsum
	r.Update(p)
	return r.Digest()
}

// Update appends p to the window.
func (r *Rollsum) Update(p []byte) {
	l := len(p)

	n := 0
	for ; n+16 <= l; n += 16 {
		for _, b := range p[n : n+16] {
			r.s1 += uint16(b)
			r.s2 += r.s1
		}
	}
	for ; n < l; n++ {
		r.s1 += uint16(p[n])
		r.s2 += r.s1
	}

	r.s1 += uint16(l * CharOffset)
	r.s2 += uint16(((l * (l + 1)) / 2) * CharOffset)
	r.count += uint64(l)
}

// Rotate slides a full window by one byte: out leaves, in enters.
func (r *Rollsum) Rotate(out, in byte) {
	r.s1 += uint16(in) - uint16(out)
	r.s2 += r.s1 - uint16(r.count)*(uint16(out)+CharOffset)
}

// Rollin grows the window by one byte at the end.
func (r *Rollsum) Rollin(in byte) {
	r.s1 += uint16(in) + CharOffset
	r.s2 += r.s1
	r.count++
}

// Rollout shrinks the window by one byte at the start.
func (r *Rollsum) Rollout(out byte) {
	r.s1 -= uint16(out) + CharOffset
	r.s2 -= uint16(r.count) * (uint16(out) + CharOffset)
	r.count--
}

// Digest returns s2 in the high half and s1 in the low half.
func (r *Rollsum) Digest() uint32 {
	return uint32(r.s2)<<16 | uint32(r.s1)
}

// Count returns the number of bytes in the window.
func (r *Rollsum) Count() int {
	return int(r.count)
}

func (r *Rollsum) Reset() {
	*r = Rollsum{}
}
