package sigs

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"github.com/jlumpe/gambit/internal/kmer"
)

// WriteOptions control signature file creation.
type WriteOptions struct {
	// IDs assigns one unique string ID per signature. Length must match
	// the number of signatures written.
	IDs []string

	// Metadata is a free-form JSON blob stored verbatim.
	Metadata json.RawMessage

	// Compress stores the values section as zstd blocks.
	Compress bool

	// BlockSize is the uncompressed byte size of each compressed block.
	// Zero selects the default (64 KiB).
	BlockSize int
}

// Writer builds a signature file incrementally. Signatures stream to a
// spool file while bounds accumulate in memory; Close assembles the
// final file next to the target path and renames it into place, so a
// crash never leaves a partially written file at the published path.
type Writer struct {
	path  string
	spec  *kmer.Spec
	opts  WriteOptions
	esz   int
	n     int
	total uint64

	bounds []uint64
	hash   *xxh3.Hasher

	spool     *os.File
	spoolPath string
	spoolBuf  *bufio.Writer

	enc        *zstd.Encoder
	pending    bytes.Buffer // raw bytes not yet forming a full block
	blockSizes []uint64

	done bool
}

// NewWriter starts writing a signature file for the given spec.
func NewWriter(path string, spec *kmer.Spec, opts WriteOptions) (*Writer, error) {
	if opts.BlockSize <= 0 {
		opts.BlockSize = defaultBlockSize
	}
	if opts.Metadata != nil && !json.Valid(opts.Metadata) {
		return nil, fmt.Errorf("metadata is not valid JSON")
	}

	spoolPath := path + ".values.tmp"
	spool, err := os.Create(spoolPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}

	w := &Writer{
		path:      path,
		spec:      spec,
		opts:      opts,
		esz:       spec.Width() / 8,
		bounds:    []uint64{0},
		hash:      xxh3.New(),
		spool:     spool,
		spoolPath: spoolPath,
		spoolBuf:  bufio.NewWriter(spool),
	}

	if opts.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			w.Abort()
			return nil, fmt.Errorf("failed to create compressor: %w", err)
		}
		w.enc = enc
	}
	return w, nil
}

// Write appends one signature. It must be strictly sorted with all
// indices valid for the writer's spec.
func (w *Writer) Write(sig []uint64) error {
	max := w.spec.MaxIndex()
	for i, v := range sig {
		if v > max {
			return fmt.Errorf("signature %d: index %d out of range for k=%d", w.n, v, w.spec.K())
		}
		if i > 0 && v <= sig[i-1] {
			return fmt.Errorf("signature %d is not strictly sorted", w.n)
		}
	}

	buf := make([]byte, len(sig)*w.esz)
	for i, v := range sig {
		switch w.esz {
		case 2:
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
		case 4:
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
		case 8:
			binary.LittleEndian.PutUint64(buf[i*8:], v)
		}
	}

	w.hash.Write(buf)
	w.total += uint64(len(sig))
	w.bounds = append(w.bounds, w.total)
	w.n++

	if w.enc == nil {
		_, err := w.spoolBuf.Write(buf)
		return err
	}

	w.pending.Write(buf)
	for w.pending.Len() >= w.opts.BlockSize {
		if err := w.flushBlock(w.opts.BlockSize); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) flushBlock(n int) error {
	block := w.enc.EncodeAll(w.pending.Next(n), nil)
	w.blockSizes = append(w.blockSizes, uint64(len(block)))
	_, err := w.spoolBuf.Write(block)
	return err
}

// Abort discards all written data and removes temporary files.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	if w.enc != nil {
		w.enc.Close()
	}
	w.spool.Close()
	os.Remove(w.spoolPath)
}

// Close finalizes the file: the header, bounds, block index, spooled
// values and trailing sections are assembled at a temporary path,
// fsynced and renamed over the target.
func (w *Writer) Close() error {
	if w.done {
		return fmt.Errorf("writer already closed")
	}

	if w.opts.IDs != nil && len(w.opts.IDs) != w.n {
		w.Abort()
		return fmt.Errorf("got %d ids for %d signatures", len(w.opts.IDs), w.n)
	}

	if w.enc != nil && w.pending.Len() > 0 {
		if err := w.flushBlock(w.pending.Len()); err != nil {
			w.Abort()
			return err
		}
	}
	if err := w.spoolBuf.Flush(); err != nil {
		w.Abort()
		return fmt.Errorf("failed to flush spool: %w", err)
	}

	err := w.assemble()
	w.Abort() // releases spool either way
	return err
}

func (w *Writer) assemble() error {
	tmpPath := w.path + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if out != nil {
			out.Close()
			os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriter(out)

	var flags uint32
	if w.opts.IDs != nil {
		flags |= flagHasIDs
	}
	if w.opts.Metadata != nil {
		flags |= flagHasMetadata
	}
	if w.enc != nil {
		flags |= flagCompressed
	}

	bw.WriteString(fileMagic)
	writeU32(bw, fileVersion)
	writeU32(bw, flags)
	writeU64(bw, w.hash.Sum64())

	bw.WriteByte(byte(w.spec.PrefixLen()))
	bw.Write(w.spec.Prefix())
	bw.WriteByte(byte(w.spec.K()))

	writeU64(bw, uint64(w.n))
	for _, b := range w.bounds {
		writeU64(bw, b)
	}

	if w.enc != nil {
		writeU32(bw, uint32(len(w.blockSizes)))
		writeU64(bw, uint64(w.opts.BlockSize))
		for _, s := range w.blockSizes {
			writeU64(bw, s)
		}
	}

	if _, err := w.spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind spool: %w", err)
	}
	if _, err := io.Copy(bw, w.spool); err != nil {
		return fmt.Errorf("failed to copy values: %w", err)
	}

	if w.opts.IDs != nil {
		for _, id := range w.opts.IDs {
			writeU32(bw, uint32(len(id)))
			bw.WriteString(id)
		}
	}
	if w.opts.Metadata != nil {
		writeU32(bw, uint32(len(w.opts.Metadata)))
		bw.Write(w.opts.Metadata)
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("failed to sync output: %w", err)
	}
	if err := out.Close(); err != nil {
		out = nil
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close output: %w", err)
	}
	out = nil

	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to publish output: %w", err)
	}
	return nil
}

func writeU32(w *bufio.Writer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.Write(buf[:])
}

func writeU64(w *bufio.Writer, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.Write(buf[:])
}

// Create writes a complete signature file from in-memory signatures.
func Create(path string, spec *kmer.Spec, signatures [][]uint64, opts WriteOptions) error {
	w, err := NewWriter(path, spec, opts)
	if err != nil {
		return err
	}
	for _, sig := range signatures {
		if err := w.Write(sig); err != nil {
			w.Abort()
			return err
		}
	}
	return w.Close()
}
