// Package signature holds the block checksums of a base file: a weak
// rolling sum and a truncated strong hash per block. A signature is
// filled block by block (by a generate or load job), then indexed by
// weak sum so a delta job can look blocks up.
package signature

import (
	"bytes"
	"fmt"
	"hash"
	"math"

	"github.com/itchio/rstream/wire"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/md4"
)

const (
	// MD4Length is the full size of an MD4 strong sum
	MD4Length = md4.Size
	// Blake2Length is the full size of a BLAKE2b-256 strong sum
	Blake2Length = blake2b.Size256

	// DefaultBlockLen is used when the base size is unknown
	DefaultBlockLen = 2048
	// MinBlockLen is what OptimalBlockLen picks for small bases
	MinBlockLen = 256
	// MaxBlockLen bounds the memory a delta job reserves for its window
	MaxBlockLen = 1 << 26

	// HeaderSize is magic, block length and strong length, 4 bytes each
	HeaderSize = 12
	// WeakSize is the on-wire size of a weak sum
	WeakSize = 4
)

var (
	ErrNotIndexed     = errors.New("signature is not indexed")
	ErrAlreadyIndexed = errors.New("signature is already indexed")
	ErrReleased       = errors.New("signature was released")
	ErrInvalidParams  = errors.New("invalid signature parameters")
)

// BlockHash is the checksum pair of one base block.
type BlockHash struct {
	Weak   uint32
	Strong []byte
}

type Signature struct {
	Magic     wire.Magic
	BlockLen  int
	StrongLen int

	blocks  []BlockHash
	strongs []byte

	index    map[uint32][]int
	released bool

	// length of the last block when known to be short, 0 otherwise
	tailLen int

	md4     hash.Hash
	scratch []byte
}

// MaxStrongLen returns the full strong sum size for a signature magic,
// or 0 if the magic is not a signature magic.
func MaxStrongLen(magic wire.Magic) int {
	switch magic {
	case wire.MD4SigMagic:
		return MD4Length
	case wire.Blake2SigMagic:
		return Blake2Length
	}
	return 0
}

// CheckParams returns an error wrapping ErrInvalidParams when the
// triple cannot describe a signature.
func CheckParams(magic wire.Magic, blockLen int, strongLen int) error {
	maxStrongLen := MaxStrongLen(magic)
	if maxStrongLen == 0 {
		return errors.Wrapf(ErrInvalidParams, "%s is not a signature magic", magic)
	}
	if blockLen <= 0 || blockLen > MaxBlockLen {
		return errors.Wrapf(ErrInvalidParams, "block length %d out of range (1..%d)", blockLen, MaxBlockLen)
	}
	if strongLen <= 0 || strongLen > maxStrongLen {
		return errors.Wrapf(ErrInvalidParams, "strong length %d out of range for %s (1..%d)", strongLen, magic, maxStrongLen)
	}
	return nil
}

// New returns an empty signature. A strongLen of 0 picks the full
// strong sum size for magic.
func New(magic wire.Magic, blockLen int, strongLen int) (*Signature, error) {
	if strongLen == 0 {
		strongLen = MaxStrongLen(magic)
	}

	err := CheckParams(magic, blockLen, strongLen)
	if err != nil {
		return nil, err
	}

	return &Signature{
		Magic:     magic,
		BlockLen:  blockLen,
		StrongLen: strongLen,
	}, nil
}

// OptimalBlockLen picks a block length for a base of the given size,
// following librsync: MinBlockLen for small files, otherwise the
// square root of the size rounded down to a multiple of 128.
// A negative size means unknown.
func OptimalBlockLen(baseLen int64) int {
	if baseLen < 0 {
		return DefaultBlockLen
	}
	if baseLen <= MinBlockLen*MinBlockLen {
		return MinBlockLen
	}

	blockLen := int64(math.Sqrt(float64(baseLen))) &^ 127
	if blockLen > MaxBlockLen {
		blockLen = MaxBlockLen
	}
	return int(blockLen)
}

// RecordSize is the on-wire size of one block record.
func (s *Signature) RecordSize() int {
	return WeakSize + s.StrongLen
}

// PutHeader writes the HeaderSize-byte signature header into buf.
func (s *Signature) PutHeader(buf []byte) {
	wire.PutMagic(buf, s.Magic)
	wire.PutInt(buf[4:], 4, int64(s.BlockLen))
	wire.PutInt(buf[8:], 4, int64(s.StrongLen))
}

// ReadHeader parses a signature header into s, which must still be
// empty. A wrong magic wraps wire.ErrInvalidMagic, wrong lengths wrap
// ErrInvalidParams.
func (s *Signature) ReadHeader(buf []byte) error {
	if s.released {
		return ErrReleased
	}
	if s.Magic != 0 || len(s.blocks) > 0 {
		return errors.New("signature header already read")
	}

	magic := wire.ReadMagic(buf)
	if !magic.IsSignature() {
		return errors.Wrapf(wire.ErrInvalidMagic, "%s is not a signature magic", magic)
	}

	blockLen := wire.ReadInt(buf[4:], 4)
	strongLen := wire.ReadInt(buf[8:], 4)
	if blockLen > MaxBlockLen || strongLen > Blake2Length {
		return errors.Wrapf(ErrInvalidParams, "block length %d, strong length %d", blockLen, strongLen)
	}

	err := CheckParams(magic, int(blockLen), int(strongLen))
	if err != nil {
		return err
	}

	s.Magic = magic
	s.BlockLen = int(blockLen)
	s.StrongLen = int(strongLen)
	return nil
}

// StrongSum computes the strong sum of data, truncated to StrongLen.
// The returned slice is only valid until the next call.
func (s *Signature) StrongSum(data []byte) []byte {
	if s.scratch == nil {
		s.scratch = make([]byte, 0, Blake2Length)
	}

	switch s.Magic {
	case wire.MD4SigMagic:
		if s.md4 == nil {
			s.md4 = md4.New()
		}
		s.md4.Reset()
		s.md4.Write(data)
		s.scratch = s.md4.Sum(s.scratch[:0])
	default:
		sum := blake2b.Sum256(data)
		s.scratch = append(s.scratch[:0], sum[:]...)
	}
	return s.scratch[:s.StrongLen]
}

// Add appends the checksums of the next block. strong is copied.
func (s *Signature) Add(weak uint32, strong []byte) error {
	if s.released {
		return ErrReleased
	}
	if s.index != nil {
		return ErrAlreadyIndexed
	}
	if s.StrongLen == 0 {
		return errors.New("signature header was never read")
	}
	if len(strong) != s.StrongLen {
		return errors.Errorf("strong sum is %d bytes, expected %d", len(strong), s.StrongLen)
	}

	// strong sums share one backing array, blocks point into it
	// once indexing freezes it.
	s.strongs = append(s.strongs, strong...)
	s.blocks = append(s.blocks, BlockHash{Weak: weak})
	return nil
}

// SetTail marks the last block as covering only length bytes. Loaded
// signatures don't know their tail, all their blocks are full-length.
func (s *Signature) SetTail(length int) error {
	if s.released {
		return ErrReleased
	}
	if s.index != nil {
		return ErrAlreadyIndexed
	}
	if len(s.blocks) == 0 {
		return errors.New("no block to mark as tail")
	}
	if length <= 0 || length > s.BlockLen {
		return errors.Wrapf(ErrInvalidParams, "tail length %d out of range (1..%d)", length, s.BlockLen)
	}
	if length == s.BlockLen {
		length = 0
	}
	s.tailLen = length
	return nil
}

// BlockSize returns how many base bytes block i covers.
func (s *Signature) BlockSize(i int) int {
	if i == len(s.blocks)-1 && s.tailLen > 0 {
		return s.tailLen
	}
	return s.BlockLen
}

// Len returns the number of blocks.
func (s *Signature) Len() int {
	return len(s.blocks)
}

// Block returns the checksums of block i.
func (s *Signature) Block(i int) BlockHash {
	b := s.blocks[i]
	b.Strong = s.strongs[i*s.StrongLen : (i+1)*s.StrongLen]
	return b
}

// Indexed returns true once BuildIndex succeeded.
func (s *Signature) Indexed() bool {
	return s.index != nil
}

// BuildIndex builds the weak sum lookup table. It can only be done
// once, and no blocks can be added afterwards.
func (s *Signature) BuildIndex() error {
	if s.released {
		return ErrReleased
	}
	if s.index != nil {
		return ErrAlreadyIndexed
	}
	err := CheckParams(s.Magic, s.BlockLen, s.StrongLen)
	if err != nil {
		return errors.Wrap(err, "signature header was never read")
	}

	// A single weak sum may correlate with many blocks.
	index := make(map[uint32][]int, len(s.blocks))
	for i := range s.blocks {
		s.blocks[i].Strong = s.strongs[i*s.StrongLen : (i+1)*s.StrongLen]
		weak := s.blocks[i].Weak
		index[weak] = append(index[weak], i)
	}
	s.index = index
	return nil
}

// Find looks for a block whose checksums match data, weak being the
// rolling sum of data. It returns the block number or -1, and whether
// any block had the same weak sum (a miss with weakHit is a false match).
func (s *Signature) Find(weak uint32, data []byte) (block int, weakHit bool, err error) {
	if s.released {
		return -1, false, ErrReleased
	}
	if s.index == nil {
		return -1, false, ErrNotIndexed
	}

	candidates := s.index[weak]
	if len(candidates) == 0 {
		return -1, false, nil
	}

	strong := s.StrongSum(data)
	for _, i := range candidates {
		if s.tailLen > 0 && len(data) != s.BlockSize(i) {
			continue
		}
		if bytes.Equal(s.blocks[i].Strong, strong) {
			return i, true, nil
		}
	}
	return -1, true, nil
}

// EnsureValid verifies that signature invariants are respected.
func (s *Signature) EnsureValid() error {
	if s == nil {
		return errors.New("nil signature")
	}
	if s.released {
		return ErrReleased
	}

	err := CheckParams(s.Magic, s.BlockLen, s.StrongLen)
	if err != nil {
		return err
	}

	if len(s.strongs) != len(s.blocks)*s.StrongLen {
		return errors.Errorf("%d bytes of strong sums for %d blocks", len(s.strongs), len(s.blocks))
	}

	if s.tailLen < 0 || s.tailLen >= s.BlockLen || (s.tailLen > 0 && len(s.blocks) == 0) {
		return errors.Errorf("invalid tail length %d", s.tailLen)
	}

	if s.index != nil {
		indexed := 0
		for _, blocks := range s.index {
			indexed += len(blocks)
		}
		if indexed != len(s.blocks) {
			return errors.Errorf("index covers %d blocks out of %d", indexed, len(s.blocks))
		}
	}
	return nil
}

// Release drops the tables. A released signature can't be used again.
func (s *Signature) Release() error {
	if s.released {
		return ErrReleased
	}
	s.released = true
	s.blocks = nil
	s.strongs = nil
	s.index = nil
	return nil
}

func (s *Signature) String() string {
	return fmt.Sprintf("%s, %d blocks of %d bytes, %d-byte strong sums", s.Magic, len(s.blocks), s.BlockLen, s.StrongLen)
}
