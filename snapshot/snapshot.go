// Package snapshot exports and restores offline copies of a database file
// and its budget-book sidecar as a single zstd-compressed artifact.
//
// Snapshots are taken from paths, not open databases: close the database
// (or otherwise quiesce writers) before exporting, so the copied bytes are
// a consistent image.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Magic identifies a snapshot artifact.
var Magic = [8]byte{'F', 'L', 'T', 'S', 'N', 'A', 'P', '1'}

const formatVersion = 1

// ErrBadSnapshot is returned when a snapshot's framing does not parse.
var ErrBadSnapshot = errors.New("snapshot: bad magic or framing")

type options struct {
	level int // zstd level 1..22
}

// Option configures snapshot encoding.
type Option func(*options)

// WithCompressionLevel sets the zstd compression level (1 fastest, 22
// smallest). The default is 3.
func WithCompressionLevel(level int) Option {
	return func(o *options) {
		if level > 0 {
			o.level = level
		}
	}
}

// frame is the uncompressed prefix: magic, version, then the uncompressed
// lengths of the database image and the sidecar. The payload that follows
// is one zstd stream of database bytes immediately followed by sidecar
// bytes.
type frame struct {
	Magic      [8]byte
	Version    uint32
	DBSize     uint64
	BudgetSize uint64
}

// Write streams a snapshot of dbPath (and budgetPath, if it exists) to w.
func Write(w io.Writer, dbPath, budgetPath string, opts ...Option) error {
	o := options{level: 3}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := os.Open(dbPath)
	if err != nil {
		return fmt.Errorf("snapshot: open database: %w", err)
	}
	defer db.Close()

	dbInfo, err := db.Stat()
	if err != nil {
		return fmt.Errorf("snapshot: stat database: %w", err)
	}

	var budget []byte
	if budgetPath != "" {
		budget, err = os.ReadFile(budgetPath)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("snapshot: read budget book: %w", err)
		}
	}

	hdr := frame{
		Magic:      Magic,
		Version:    formatVersion,
		DBSize:     uint64(dbInfo.Size()),
		BudgetSize: uint64(len(budget)),
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("snapshot: write frame: %w", err)
	}

	level := zstd.EncoderLevelFromZstd(o.level)
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level))
	if err != nil {
		return fmt.Errorf("snapshot: init encoder: %w", err)
	}

	if _, err := io.Copy(enc, db); err != nil {
		enc.Close()
		return fmt.Errorf("snapshot: copy database: %w", err)
	}
	if len(budget) > 0 {
		if _, err := enc.Write(budget); err != nil {
			enc.Close()
			return fmt.Errorf("snapshot: copy budget book: %w", err)
		}
	}
	return enc.Close()
}

// Export writes a snapshot artifact to snapPath via a temp file and rename.
func Export(snapPath, dbPath, budgetPath string, opts ...Option) error {
	return writeFileAtomic(snapPath, func(w io.Writer) error {
		return Write(w, dbPath, budgetPath, opts...)
	})
}

// Read decodes a snapshot from r, returning the database image and the
// budget-book sidecar (nil when the snapshot carries none).
func Read(r io.Reader) (db []byte, budget []byte, err error) {
	var hdr frame
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, nil, ErrBadSnapshot
	}
	if hdr.Magic != Magic || hdr.Version != formatVersion {
		return nil, nil, ErrBadSnapshot
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: init decoder: %w", err)
	}
	defer dec.Close()

	db = make([]byte, hdr.DBSize)
	if _, err := io.ReadFull(dec, db); err != nil {
		return nil, nil, fmt.Errorf("snapshot: short database image: %w", err)
	}
	if hdr.BudgetSize > 0 {
		budget = make([]byte, hdr.BudgetSize)
		if _, err := io.ReadFull(dec, budget); err != nil {
			return nil, nil, fmt.Errorf("snapshot: short budget book: %w", err)
		}
	}
	return db, budget, nil
}

// Restore rebuilds dbPath (and budgetPath, when the snapshot carries a
// budget book) from the artifact at snapPath. Both files are replaced
// atomically; a failed restore leaves the originals untouched.
func Restore(snapPath, dbPath, budgetPath string) error {
	f, err := os.Open(snapPath)
	if err != nil {
		return fmt.Errorf("snapshot: open artifact: %w", err)
	}
	defer f.Close()

	db, budget, err := Read(bufio.NewReaderSize(f, 256*1024))
	if err != nil {
		return err
	}

	if err := writeFileAtomic(dbPath, func(w io.Writer) error {
		_, err := w.Write(db)
		return err
	}); err != nil {
		return fmt.Errorf("snapshot: restore database: %w", err)
	}

	if len(budget) > 0 && budgetPath != "" {
		if err := writeFileAtomic(budgetPath, func(w io.Writer) error {
			_, err := io.Copy(w, bytes.NewReader(budget))
			return err
		}); err != nil {
			return fmt.Errorf("snapshot: restore budget book: %w", err)
		}
	}
	return nil
}

// writeFileAtomic writes through a temp file in the target directory and
// renames it over the destination, so readers never observe a partial file.
func writeFileAtomic(filename string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	_ = tmp.Chmod(0o644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	tmpName = ""
	return nil
}
