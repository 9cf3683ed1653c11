package sigs

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jlumpe/gambit/internal/kmer"
)

var storeSigs = [][]uint64{
	{0, 3, 17, 40},
	{},
	{1, 2, 3},
	{0},
	{5, 60, 63},
}

func createTestFile(t *testing.T, spec *kmer.Spec, signatures [][]uint64, opts WriteOptions) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.gs")
	if err := Create(path, spec, signatures, opts); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFile_roundTrip(t *testing.T) {
	tests := []struct {
		name string
		opts WriteOptions
	}{
		{"plain", WriteOptions{}},
		{"with ids", WriteOptions{IDs: []string{"g1", "g2", "g3", "g4", "g5"}}},
		{"with metadata", WriteOptions{Metadata: json.RawMessage(`{"name":"test set"}`)}},
		{"compressed", WriteOptions{Compress: true}},
		{"compressed small blocks", WriteOptions{Compress: true, BlockSize: 8}},
		{"everything", WriteOptions{
			IDs:      []string{"g1", "g2", "g3", "g4", "g5"},
			Metadata: json.RawMessage(`{"name":"test set"}`),
			Compress: true,
			BlockSize: 16,
		}},
	}

	spec := testSpec(t, "ATGAC", 3)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createTestFile(t, spec, storeSigs, tt.opts)

			r, err := Open(path)
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()

			if r.Len() != len(storeSigs) {
				t.Fatalf("Len() = %d, want %d", r.Len(), len(storeSigs))
			}
			if !r.Spec().Equal(spec) {
				t.Errorf("Spec() = %v, want %v", r.Spec(), spec)
			}
			if r.Width() != 16 {
				t.Errorf("Width() = %d, want 16 for k=3", r.Width())
			}
			if !reflect.DeepEqual(r.IDs(), tt.opts.IDs) {
				t.Errorf("IDs() = %v, want %v", r.IDs(), tt.opts.IDs)
			}
			if string(r.Metadata()) != string(tt.opts.Metadata) {
				t.Errorf("Metadata() = %s, want %s", r.Metadata(), tt.opts.Metadata)
			}

			for i, want := range storeSigs {
				got, err := r.SignatureAt(i)
				if err != nil {
					t.Fatalf("SignatureAt(%d): %v", i, err)
				}
				if len(got) == 0 && len(want) == 0 {
					continue
				}
				if !reflect.DeepEqual(got, want) {
					t.Errorf("SignatureAt(%d) = %v, want %v", i, got, want)
				}
			}
		})
	}
}

func TestFile_loadArray(t *testing.T) {
	spec := testSpec(t, "ATGAC", 3)

	for _, compress := range []bool{false, true} {
		path := createTestFile(t, spec, storeSigs, WriteOptions{Compress: compress, BlockSize: 8})

		r, err := Open(path)
		if err != nil {
			t.Fatal(err)
		}

		arr, err := LoadArray[uint16](r)
		if err != nil {
			t.Fatalf("LoadArray (compress=%v): %v", compress, err)
		}
		if arr.Len() != len(storeSigs) {
			t.Fatalf("array Len() = %d", arr.Len())
		}
		for i, want := range storeSigs {
			got := arr.Widen(i)
			if len(got) == 0 && len(want) == 0 {
				continue
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("signature %d = %v, want %v", i, got, want)
			}
		}

		// Width mismatch is rejected before any read.
		if _, err := LoadArray[uint32](r); err == nil {
			t.Error("LoadArray[uint32] on 16-bit file should fail")
		}

		r.Close()
	}
}

func TestFile_loadChunk(t *testing.T) {
	spec := testSpec(t, "ATGAC", 3)
	path := createTestFile(t, spec, storeSigs, WriteOptions{Compress: true, BlockSize: 8})

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for start := 0; start < len(storeSigs); start++ {
		for n := 1; start+n <= len(storeSigs); n++ {
			arr, err := LoadChunk[uint16](r, start, n)
			if err != nil {
				t.Fatalf("LoadChunk(%d, %d): %v", start, n, err)
			}
			for i := 0; i < n; i++ {
				got := arr.Widen(i)
				want := storeSigs[start+i]
				if len(got) == 0 && len(want) == 0 {
					continue
				}
				if !reflect.DeepEqual(got, want) {
					t.Errorf("chunk (%d,%d) signature %d = %v, want %v", start, n, i, got, want)
				}
			}
		}
	}
}

func TestFile_width64(t *testing.T) {
	spec := testSpec(t, "A", 20) // 4^20 needs 64-bit indices
	big := [][]uint64{{0, 1 << 30, 1 << 39}}
	path := createTestFile(t, spec, big, WriteOptions{})

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.Width() != 64 {
		t.Fatalf("Width() = %d, want 64", r.Width())
	}
	got, err := r.SignatureAt(0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, big[0]) {
		t.Errorf("SignatureAt(0) = %v, want %v", got, big[0])
	}
}

func TestFile_emptyFile(t *testing.T) {
	spec := testSpec(t, "ATGAC", 3)
	path := createTestFile(t, spec, nil, WriteOptions{})

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestWriter_rejectsBadSignatures(t *testing.T) {
	spec := testSpec(t, "ATGAC", 3)
	path := filepath.Join(t.TempDir(), "bad.gs")

	w, err := NewWriter(path, spec, WriteOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Abort()

	if err := w.Write([]uint64{3, 1}); err == nil {
		t.Error("unsorted signature should be rejected")
	}
	if err := w.Write([]uint64{0, 64}); err == nil {
		t.Error("out-of-range index should be rejected")
	}
}

func TestWriter_idCountMismatch(t *testing.T) {
	spec := testSpec(t, "ATGAC", 3)
	path := filepath.Join(t.TempDir(), "ids.gs")

	err := Create(path, spec, storeSigs, WriteOptions{IDs: []string{"only-one"}})
	if err == nil {
		t.Fatal("id count mismatch should be rejected")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("failed create should not leave a file at the target path")
	}
}

func TestOpen_corruptFiles(t *testing.T) {
	spec := testSpec(t, "ATGAC", 3)
	good, err := os.ReadFile(createTestFile(t, spec, storeSigs, WriteOptions{}))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{
			"bad magic",
			func(b []byte) []byte { b[0] = 'X'; return b },
		},
		{
			"unknown version",
			func(b []byte) []byte { b[8] = 99; return b },
		},
		{
			"unknown flags",
			func(b []byte) []byte { b[12] = 0x80; return b },
		},
		{
			"truncated",
			func(b []byte) []byte { return b[:20] },
		},
		{
			"non-monotone bounds",
			func(b []byte) []byte {
				// bounds start after magic(8)+ver(4)+flags(4)+digest(8)+
				// prefixlen(1)+prefix(5)+k(1)+n(8) = 39; corrupt bounds[1].
				b[39+8] = 0xff
				return b
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "corrupt.gs")
			data := tt.mutate(append([]byte{}, good...))
			if err := os.WriteFile(path, data, 0644); err != nil {
				t.Fatal(err)
			}

			r, err := Open(path)
			if err == nil {
				r.Close()
				t.Fatal("expected error opening corrupt file")
			}
			var cfe *CorruptFileError
			if !errors.As(err, &cfe) {
				t.Errorf("expected CorruptFileError, got %T: %v", err, err)
			}
		})
	}
}

func TestOpen_corruptValuesDigest(t *testing.T) {
	spec := testSpec(t, "ATGAC", 3)
	path := createTestFile(t, spec, storeSigs, WriteOptions{})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a byte in the values section (last 2 bytes of the file are
	// part of values since there are no ids or metadata).
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err) // open succeeds; digest checked on full load
	}
	defer r.Close()

	if _, err := LoadArray[uint16](r); err == nil {
		t.Error("LoadArray should detect values corruption")
	}
}
