package sigs

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"github.com/jlumpe/gambit/internal/kmer"
)

// Signature (.gs) file layout, all integers little-endian:
//
//	magic "GAMBITSG"
//	u32 format version (currently 1)
//	u32 flags
//	u64 xxh3 digest of the raw values bytes
//	u8 prefix length, prefix bytes, u8 k
//	u64 N
//	(N+1) x u64 bounds (element offsets into values)
//	block index (compressed files only):
//	    u32 block count, u64 raw bytes per block, count x u64 compressed sizes
//	values: raw little-endian indices, or consecutive zstd blocks
//	ids (optional): N x (u32 length + UTF-8 bytes)
//	metadata (optional): u32 length + UTF-8 JSON
//
// The block index keeps logical byte ranges independent of the codec,
// so new codecs can be added behind a flag bit without a version bump.
const (
	fileMagic   = "GAMBITSG"
	fileVersion = 1

	flagHasIDs      = 1 << 0
	flagHasMetadata = 1 << 1
	flagCompressed  = 1 << 2
	flagsKnown      = flagHasIDs | flagHasMetadata | flagCompressed

	defaultBlockSize = 1 << 16
)

// CorruptFileError reports a signature file that failed structural
// validation.
type CorruptFileError struct {
	Path   string
	Reason string
}

func (e *CorruptFileError) Error() string {
	return fmt.Sprintf("corrupt signature file %s: %s", e.Path, e.Reason)
}

// Reader provides random and streaming access to a signature file.
// Open reads the header, bounds, block index and trailing sections;
// values are fetched on demand so opening is cheap regardless of file
// size.
type Reader struct {
	f    *os.File
	path string

	spec     *kmer.Spec
	n        int
	esz      int // bytes per stored index
	bounds   []uint64
	ids      []string
	metadata json.RawMessage
	digest   uint64

	compressed bool
	blockRaw   uint64   // uncompressed bytes per block
	blockOffs  []uint64 // compressed byte offset of each block within the values section, plus total
	valuesOff  int64
	valuesLen  int64 // byte length of the values section as stored

	dec *zstd.Decoder
}

// Open reads a signature file's header and index sections and returns
// a Reader positioned for random access.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open signature file: %w", err)
	}

	r, err := readHeader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func corrupt(path, format string, args ...interface{}) error {
	return &CorruptFileError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

func readHeader(f *os.File, path string) (*Reader, error) {
	br := bufio.NewReader(f)
	var off int64

	readN := func(n int) ([]byte, error) {
		buf := make([]byte, n)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, corrupt(path, "truncated header")
		}
		off += int64(n)
		return buf, nil
	}

	magic, err := readN(8)
	if err != nil {
		return nil, err
	}
	if string(magic) != fileMagic {
		return nil, corrupt(path, "bad magic %q", magic)
	}

	head, err := readN(4 + 4 + 8)
	if err != nil {
		return nil, err
	}
	version := binary.LittleEndian.Uint32(head[0:])
	flags := binary.LittleEndian.Uint32(head[4:])
	digest := binary.LittleEndian.Uint64(head[8:])

	if version != fileVersion {
		return nil, corrupt(path, "unknown format version %d", version)
	}
	if flags&^uint32(flagsKnown) != 0 {
		return nil, corrupt(path, "unknown flag bits %#x", flags&^uint32(flagsKnown))
	}

	plenBuf, err := readN(1)
	if err != nil {
		return nil, err
	}
	plen := int(plenBuf[0])
	if plen == 0 {
		return nil, corrupt(path, "empty k-mer prefix")
	}
	prefix, err := readN(plen)
	if err != nil {
		return nil, err
	}
	kBuf, err := readN(1)
	if err != nil {
		return nil, err
	}

	spec, err := kmer.NewSpec(prefix, int(kBuf[0]))
	if err != nil {
		return nil, corrupt(path, "invalid k-mer spec: %v", err)
	}

	nBuf, err := readN(8)
	if err != nil {
		return nil, err
	}
	n64 := binary.LittleEndian.Uint64(nBuf)
	if n64 > 1<<32 {
		return nil, corrupt(path, "implausible signature count %d", n64)
	}
	n := int(n64)

	boundsBuf, err := readN((n + 1) * 8)
	if err != nil {
		return nil, err
	}
	bounds := make([]uint64, n+1)
	for i := range bounds {
		bounds[i] = binary.LittleEndian.Uint64(boundsBuf[i*8:])
	}
	if bounds[0] != 0 {
		return nil, corrupt(path, "bounds must start at 0, got %d", bounds[0])
	}
	for i := 1; i < len(bounds); i++ {
		if bounds[i] < bounds[i-1] {
			return nil, corrupt(path, "bounds not monotone at index %d", i)
		}
	}

	r := &Reader{
		f:      f,
		path:   path,
		spec:   spec,
		n:      n,
		esz:    spec.Width() / 8,
		bounds: bounds,
		digest: digest,
	}
	rawLen := int64(bounds[n]) * int64(r.esz)

	if flags&flagCompressed != 0 {
		idxHead, err := readN(4 + 8)
		if err != nil {
			return nil, err
		}
		nblocks := int(binary.LittleEndian.Uint32(idxHead[0:]))
		blockRaw := binary.LittleEndian.Uint64(idxHead[4:])
		if blockRaw == 0 {
			return nil, corrupt(path, "zero block size")
		}
		want := int((uint64(rawLen) + blockRaw - 1) / blockRaw)
		if nblocks != want {
			return nil, corrupt(path, "block count %d does not cover %d value bytes", nblocks, rawLen)
		}

		sizesBuf, err := readN(nblocks * 8)
		if err != nil {
			return nil, err
		}
		offs := make([]uint64, nblocks+1)
		for i := 0; i < nblocks; i++ {
			offs[i+1] = offs[i] + binary.LittleEndian.Uint64(sizesBuf[i*8:])
		}

		r.compressed = true
		r.blockRaw = blockRaw
		r.blockOffs = offs
		r.valuesLen = int64(offs[nblocks])

		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create decompressor: %w", err)
		}
		r.dec = dec
	} else {
		r.valuesLen = rawLen
	}

	r.valuesOff = off

	// Skip the values section and read the trailing ids/metadata.
	if _, err := f.Seek(off+r.valuesLen, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek past values: %w", err)
	}
	tail := bufio.NewReader(f)

	if flags&flagHasIDs != 0 {
		ids := make([]string, n)
		for i := range ids {
			s, err := readLenPrefixed(tail)
			if err != nil {
				return nil, corrupt(path, "truncated id section: %v", err)
			}
			ids[i] = string(s)
		}
		r.ids = ids
	}
	if flags&flagHasMetadata != 0 {
		meta, err := readLenPrefixed(tail)
		if err != nil {
			return nil, corrupt(path, "truncated metadata section: %v", err)
		}
		if !json.Valid(meta) {
			return nil, corrupt(path, "metadata is not valid JSON")
		}
		r.metadata = json.RawMessage(meta)
	}

	return r, nil
}

func readLenPrefixed(br *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close releases the file handle and decompressor.
func (r *Reader) Close() error {
	if r.dec != nil {
		r.dec.Close()
	}
	return r.f.Close()
}

// Len returns the number of signatures in the file.
func (r *Reader) Len() int { return r.n }

// Spec returns the k-mer spec the signatures were built under.
func (r *Reader) Spec() *kmer.Spec { return r.spec }

// Width returns the stored index width in bits.
func (r *Reader) Width() int { return r.esz * 8 }

// IDs returns the per-signature string IDs, or nil if the file has
// none.
func (r *Reader) IDs() []string { return r.ids }

// Metadata returns the file's free-form JSON metadata, or nil.
func (r *Reader) Metadata() json.RawMessage { return r.metadata }

// SizeOf returns the length of the ith signature without reading it.
func (r *Reader) SizeOf(i int) int {
	return int(r.bounds[i+1] - r.bounds[i])
}

// valueBytes reads the raw bytes for value elements [start, end),
// transparently decompressing blocks.
func (r *Reader) valueBytes(start, end uint64) ([]byte, error) {
	byteStart := int64(start) * int64(r.esz)
	byteEnd := int64(end) * int64(r.esz)
	if byteStart == byteEnd {
		return nil, nil
	}

	if !r.compressed {
		buf := make([]byte, byteEnd-byteStart)
		if _, err := r.f.ReadAt(buf, r.valuesOff+byteStart); err != nil {
			return nil, corrupt(r.path, "failed to read values: %v", err)
		}
		return buf, nil
	}

	b0 := uint64(byteStart) / r.blockRaw
	b1 := (uint64(byteEnd) - 1) / r.blockRaw

	out := make([]byte, 0, byteEnd-byteStart)
	for b := b0; b <= b1; b++ {
		comp := make([]byte, r.blockOffs[b+1]-r.blockOffs[b])
		if _, err := r.f.ReadAt(comp, r.valuesOff+int64(r.blockOffs[b])); err != nil {
			return nil, corrupt(r.path, "failed to read block %d: %v", b, err)
		}
		raw, err := r.dec.DecodeAll(comp, nil)
		if err != nil {
			return nil, corrupt(r.path, "failed to decompress block %d: %v", b, err)
		}

		lo := int64(0)
		if b == b0 {
			lo = byteStart - int64(b*r.blockRaw)
		}
		hi := int64(len(raw))
		if b == b1 {
			hi = byteEnd - int64(b*r.blockRaw)
		}
		if hi > int64(len(raw)) {
			return nil, corrupt(r.path, "block %d shorter than indexed", b)
		}
		out = append(out, raw[lo:hi]...)
	}
	return out, nil
}

// SignatureAt reads and validates the ith signature, widened to
// uint64 indices.
func (r *Reader) SignatureAt(i int) ([]uint64, error) {
	buf, err := r.valueBytes(r.bounds[i], r.bounds[i+1])
	if err != nil {
		return nil, err
	}

	out := make([]uint64, len(buf)/r.esz)
	for j := range out {
		switch r.esz {
		case 2:
			out[j] = uint64(binary.LittleEndian.Uint16(buf[j*2:]))
		case 4:
			out[j] = uint64(binary.LittleEndian.Uint32(buf[j*4:]))
		case 8:
			out[j] = binary.LittleEndian.Uint64(buf[j*8:])
		}
	}

	max := r.spec.MaxIndex()
	for j, v := range out {
		if v > max {
			return nil, corrupt(r.path, "signature %d: index out of range", i)
		}
		if j > 0 && v <= out[j-1] {
			return nil, corrupt(r.path, "signature %d not strictly sorted", i)
		}
	}
	return out, nil
}

// widthOf returns the bit width of the storage type T.
func widthOf[T Unsigned]() int {
	switch any(T(0)).(type) {
	case uint16:
		return 16
	case uint32:
		return 32
	default:
		return 64
	}
}

func decodeValues[T Unsigned](buf []byte, esz int) []T {
	out := make([]T, len(buf)/esz)
	switch esz {
	case 2:
		for i := range out {
			out[i] = T(binary.LittleEndian.Uint16(buf[i*2:]))
		}
	case 4:
		for i := range out {
			out[i] = T(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	case 8:
		for i := range out {
			out[i] = T(binary.LittleEndian.Uint64(buf[i*8:]))
		}
	}
	return out
}

// LoadChunk reads signatures [start, start+n) into a typed Array and
// validates them. T must match the file's stored width.
func LoadChunk[T Unsigned](r *Reader, start, n int) (*Array[T], error) {
	if widthOf[T]() != r.Width() {
		return nil, fmt.Errorf("width mismatch: file stores %d-bit indices", r.Width())
	}

	buf, err := r.valueBytes(r.bounds[start], r.bounds[start+n])
	if err != nil {
		return nil, err
	}

	bounds := make([]int64, n+1)
	base := r.bounds[start]
	for i := 0; i <= n; i++ {
		bounds[i] = int64(r.bounds[start+i] - base)
	}

	arr := &Array[T]{Values: decodeValues[T](buf, r.esz), Bounds: bounds}
	if err := arr.Validate(r.spec); err != nil {
		return nil, corrupt(r.path, "%v", err)
	}
	return arr, nil
}

// LoadArray reads the whole file into memory, verifying the values
// digest and every structural invariant.
func LoadArray[T Unsigned](r *Reader) (*Array[T], error) {
	if widthOf[T]() != r.Width() {
		return nil, fmt.Errorf("width mismatch: file stores %d-bit indices", r.Width())
	}

	buf, err := r.valueBytes(0, r.bounds[r.n])
	if err != nil {
		return nil, err
	}
	if got := xxh3.Hash(buf); got != r.digest {
		return nil, corrupt(r.path, "values digest mismatch: %016x != %016x", got, r.digest)
	}

	bounds := make([]int64, r.n+1)
	for i := range bounds {
		bounds[i] = int64(r.bounds[i])
	}

	arr := &Array[T]{Values: decodeValues[T](buf, r.esz), Bounds: bounds}
	if err := arr.Validate(r.spec); err != nil {
		return nil, corrupt(r.path, "%v", err)
	}
	return arr, nil
}
