// Package archive implements the versioned binary persistence format
// used by pkg/makefile and the three metadata caches: a leading format
// version, then a fixed field order with interned string tables for
// path data, written with encoding/gob as the byte codec underneath an
// explicit version gate and tag structure that this package owns
// directly rather than deriving from Go's reflection-based struct
// encoding (every on-disk type hand-writes its own WriteTo/ReadFrom).
package archive

import (
	"encoding/gob"
	"io"

	"github.com/forgebuild/forge/pkg/builderr"
)

// Writer emits fields in a caller-chosen fixed order behind a leading
// version marker.
type Writer struct {
	enc *gob.Encoder
}

// NewWriter writes version as the first value on w and returns a
// Writer for the remaining fields.
func NewWriter(w io.Writer, version int32) (*Writer, error) {
	aw := &Writer{enc: gob.NewEncoder(w)}
	if err := aw.enc.Encode(version); err != nil {
		return nil, builderr.Wrap(err, "", "failed to write archive version")
	}
	return aw, nil
}

func (w *Writer) Int32(v int32) error   { return w.enc.Encode(v) }
func (w *Writer) Int64(v int64) error   { return w.enc.Encode(v) }
func (w *Writer) Bool(v bool) error     { return w.enc.Encode(v) }
func (w *Writer) String(v string) error { return w.enc.Encode(v) }

// StringTable writes a length-prefixed interning table; callers elsewhere
// in the archive reference entries by their int32 index into table.
func (w *Writer) StringTable(table []string) error {
	if err := w.Int32(int32(len(table))); err != nil {
		return err
	}
	for _, s := range table {
		if err := w.String(s); err != nil {
			return err
		}
	}
	return nil
}

// Int32Slice writes a length-prefixed slice of interned indexes.
func (w *Writer) Int32Slice(v []int32) error {
	if err := w.Int32(int32(len(v))); err != nil {
		return err
	}
	for _, x := range v {
		if err := w.Int32(x); err != nil {
			return err
		}
	}
	return nil
}

// StringSlice writes a length-prefixed slice of raw strings (used for
// data that isn't worth interning, e.g. group names).
func (w *Writer) StringSlice(v []string) error {
	if err := w.Int32(int32(len(v))); err != nil {
		return err
	}
	for _, s := range v {
		if err := w.String(s); err != nil {
			return err
		}
	}
	return nil
}

// Map writes a length prefix followed by n calls to writeEntry, in
// caller-controlled (key, value) order.
func (w *Writer) Map(n int, writeEntry func(i int) error) error {
	if err := w.Int32(int32(n)); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := writeEntry(i); err != nil {
			return err
		}
	}
	return nil
}

// Reader reads back fields written by a Writer, in the same order.
type Reader struct {
	dec     *gob.Decoder
	Version int32
}

// NewReader reads the leading version marker and returns a Reader.
func NewReader(r io.Reader) (*Reader, error) {
	ar := &Reader{dec: gob.NewDecoder(r)}
	if err := ar.dec.Decode(&ar.Version); err != nil {
		return nil, builderr.Wrap(err, "", "failed to read archive version")
	}
	return ar, nil
}

func (r *Reader) Int32() (int32, error) {
	var v int32
	if err := r.dec.Decode(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (r *Reader) Int64() (int64, error) {
	var v int64
	if err := r.dec.Decode(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (r *Reader) Bool() (bool, error) {
	var v bool
	if err := r.dec.Decode(&v); err != nil {
		return false, err
	}
	return v, nil
}

func (r *Reader) String() (string, error) {
	var v string
	if err := r.dec.Decode(&v); err != nil {
		return "", err
	}
	return v, nil
}

func (r *Reader) StringTable() ([]string, error) {
	n, err := r.Int32()
	if err != nil {
		return nil, err
	}
	table := make([]string, n)
	for i := range table {
		s, err := r.String()
		if err != nil {
			return nil, err
		}
		table[i] = s
	}
	return table, nil
}

func (r *Reader) Int32Slice() ([]int32, error) {
	n, err := r.Int32()
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		v, err := r.Int32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *Reader) StringSlice() ([]string, error) {
	n, err := r.Int32()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		s, err := r.String()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (r *Reader) Map(readEntry func(i int) error) (int, error) {
	n, err := r.Int32()
	if err != nil {
		return 0, err
	}
	for i := 0; i < int(n); i++ {
		if err := readEntry(i); err != nil {
			return 0, err
		}
	}
	return int(n), nil
}

// CheckVersion returns a MakefileCorrupt error if r.Version != want.
func (r *Reader) CheckVersion(want int32) error {
	if r.Version != want {
		return builderr.Newf(builderr.MakefileCorrupt,
			"archive format version %d does not match expected %d", r.Version, want)
	}
	return nil
}
