package refdb

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jlumpe/gambit/internal/sigs"
)

// LocateFiles finds the metadata store (.gdb) and signature file (.gs)
// inside a database directory. Exactly one of each must be present.
func LocateFiles(dir string) (gdb string, gs string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", "", fmt.Errorf("failed to read database directory: %w", err)
	}

	var gdbs, gss []string
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".gdb":
			gdbs = append(gdbs, filepath.Join(dir, e.Name()))
		case ".gs":
			gss = append(gss, filepath.Join(dir, e.Name()))
		}
	}

	if len(gdbs) != 1 {
		return "", "", fmt.Errorf("expected one .gdb entry in %s, found %d", dir, len(gdbs))
	}
	if len(gss) != 1 {
		return "", "", fmt.Errorf("expected one .gs file in %s, found %d", dir, len(gss))
	}
	return gdbs[0], gss[0], nil
}

// OpenDir loads a complete reference database from a directory
// containing a .gdb metadata store and a .gs signature file. The
// caller owns the returned DB and must Close it.
func OpenDir(dir string) (*DB, error) {
	gdbPath, gsPath, err := LocateFiles(dir)
	if err != nil {
		return nil, err
	}

	r, err := sigs.Open(gsPath)
	if err != nil {
		return nil, err
	}

	db, err := Load(gdbPath, r)
	if err != nil {
		r.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying signature file.
func (db *DB) Close() error {
	return db.Sigs.Close()
}
