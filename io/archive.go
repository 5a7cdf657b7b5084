package io

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/phil-mansfield/xpdc/compress"
)

/*
The binary format used for timestep archives is as follows:
    |-- 1 --||-- 2 --||-- ... 3 ... --|

    1 - (archiveHeader) Little endian, never compressed. Contains the magic
        bytes, a flag indicating the endianness of the payload (0 for big
        endian, -1 for little endian), the format version, the payload codec
        and the number of entries.
    2 - Payload, encoded with the codec named in the header. For each entry,
        sorted by name:
        (entryHeader) name length, kind (0 scalar, 1 array), value count.
        ([]byte) the name.
        ([]float64) the values.
    3 - Nothing. The archive ends with the last entry.
*/

const (
	// ArchiveSuffix is the file extension used for timestep archives.
	ArchiveSuffix = ".xpz"

	archiveVersion = 1
	maxNameLen     = 1 << 12

	// Number of values decoded per read.
	readChunk = 1 << 16
)

var (
	archiveMagic = [4]byte{'X', 'P', 'D', 'A'}
	end          = binary.LittleEndian

	// ErrNotArchive is returned when a file does not start with the archive
	// magic bytes.
	ErrNotArchive = errors.New("not an xpdc archive")
)

type archiveHeader struct {
	Magic      [4]byte
	Endianness int32
	Version    int32
	Codec      int32
	Entries    int32
}

type entryKind int32

const (
	scalarEntry entryKind = iota
	arrayEntry
)

type entryHeader struct {
	NameLen int32
	Kind    int32
	Len     int64
}

// Archive is a set of named scalars and named arrays. A name refers to at
// most one of the two.
type Archive struct {
	scalars map[string]float64
	arrays  map[string][]float64
}

func NewArchive() *Archive {
	return &Archive{
		scalars: map[string]float64{},
		arrays:  map[string][]float64{},
	}
}

// SetScalar stores x under name, replacing anything previously stored there.
func (arc *Archive) SetScalar(name string, x float64) {
	delete(arc.arrays, name)
	arc.scalars[name] = x
}

// SetArray stores xs under name, replacing anything previously stored there.
// xs is not copied.
func (arc *Archive) SetArray(name string, xs []float64) {
	delete(arc.scalars, name)
	arc.arrays[name] = xs
}

func (arc *Archive) Scalar(name string) (float64, bool) {
	x, ok := arc.scalars[name]
	return x, ok
}

func (arc *Archive) Array(name string) ([]float64, bool) {
	xs, ok := arc.arrays[name]
	return xs, ok
}

// Names returns the names of every entry in lexical order.
func (arc *Archive) Names() []string {
	names := make([]string, 0, arc.Len())
	for name := range arc.scalars {
		names = append(names, name)
	}
	for name := range arc.arrays {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of entries.
func (arc *Archive) Len() int { return len(arc.scalars) + len(arc.arrays) }

func endiannessFlag(order binary.ByteOrder) int32 {
	if order == binary.LittleEndian {
		return -1
	}
	return 0
}

// WriteArchive writes arc to wr, encoding the payload with codec.
func WriteArchive(wr io.Writer, arc *Archive, codec compress.Codec) error {
	if !codec.Valid() {
		return fmt.Errorf("cannot write archive with unknown %s", codec)
	}

	hd := archiveHeader{
		Magic:      archiveMagic,
		Endianness: endiannessFlag(end),
		Version:    archiveVersion,
		Codec:      int32(codec),
		Entries:    int32(arc.Len()),
	}
	if err := binary.Write(wr, binary.LittleEndian, &hd); err != nil {
		return err
	}

	cw, err := compress.NewWriter(wr, codec)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(cw)

	for _, name := range arc.Names() {
		ehd := entryHeader{NameLen: int32(len(name))}
		var vals []float64
		if x, ok := arc.scalars[name]; ok {
			ehd.Kind, ehd.Len = int32(scalarEntry), 1
			vals = []float64{x}
		} else {
			vals = arc.arrays[name]
			ehd.Kind, ehd.Len = int32(arrayEntry), int64(len(vals))
		}

		if err := binary.Write(bw, end, &ehd); err != nil {
			return err
		}
		if _, err := bw.WriteString(name); err != nil {
			return err
		}
		if err := binary.Write(bw, end, vals); err != nil {
			return err
		}
	}

	if err := bw.Flush(); err != nil {
		return err
	}
	return cw.Close()
}

// ReadArchive reads an archive written by WriteArchive.
func ReadArchive(rd io.Reader) (*Archive, error) {
	hd := archiveHeader{}
	if err := binary.Read(rd, binary.LittleEndian, &hd); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrNotArchive
		}
		return nil, err
	}
	if hd.Magic != archiveMagic {
		return nil, ErrNotArchive
	}
	if hd.Version != archiveVersion {
		return nil, fmt.Errorf("unsupported archive version %d", hd.Version)
	}

	var order binary.ByteOrder = binary.BigEndian
	if hd.Endianness == -1 {
		order = binary.LittleEndian
	}

	cr, err := compress.NewReader(rd, compress.Codec(hd.Codec))
	if err != nil {
		return nil, err
	}
	defer cr.Close()
	br := bufio.NewReader(cr)

	arc := NewArchive()
	for i := int32(0); i < hd.Entries; i++ {
		ehd := entryHeader{}
		if err := binary.Read(br, order, &ehd); err != nil {
			return nil, fmt.Errorf("reading entry %d: %w", i, err)
		}
		if ehd.NameLen <= 0 || ehd.NameLen > maxNameLen || ehd.Len < 0 {
			return nil, fmt.Errorf("entry %d has a corrupt header", i)
		}

		name := make([]byte, ehd.NameLen)
		if _, err := io.ReadFull(br, name); err != nil {
			return nil, fmt.Errorf("reading entry %d: %w", i, err)
		}
		vals, err := readValues(br, order, ehd.Len)
		if err != nil {
			return nil, fmt.Errorf("reading entry '%s': %w", name, err)
		}

		switch entryKind(ehd.Kind) {
		case scalarEntry:
			if len(vals) != 1 {
				return nil, fmt.Errorf(
					"scalar entry '%s' has %d values", name, len(vals),
				)
			}
			arc.SetScalar(string(name), vals[0])
		case arrayEntry:
			arc.SetArray(string(name), vals)
		default:
			return nil, fmt.Errorf(
				"entry '%s' has unknown kind %d", name, ehd.Kind,
			)
		}
	}

	return arc, nil
}

// readValues reads n float64s from rd. Memory grows with the values actually
// present, not with n.
func readValues(
	rd io.Reader, order binary.ByteOrder, n int64,
) ([]float64, error) {
	vals := make([]float64, 0, minInt64(n, readChunk))
	buf := make([]float64, minInt64(n, readChunk))
	for remaining := n; remaining > 0; {
		chunk := buf[:minInt64(remaining, readChunk)]
		if err := binary.Read(rd, order, chunk); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		vals = append(vals, chunk...)
		remaining -= int64(len(chunk))
	}
	return vals, nil
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// WriteArchiveFile writes arc to fname. The archive is written to a temporary
// file in the same directory and renamed into place, so fname is either the
// old file or the complete new one.
func WriteArchiveFile(fname string, arc *Archive, codec compress.Codec) error {
	dir, base := filepath.Split(fname)
	if dir == "" {
		dir = "."
	}

	f, err := os.CreateTemp(dir, "."+base+".tmp*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err = f.Chmod(0644); err == nil {
		err = WriteArchive(f, arc, codec)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("writing '%s': %w", fname, err)
	}

	return os.Rename(tmp, fname)
}

// ReadArchiveFile reads the archive stored in fname.
func ReadArchiveFile(fname string) (*Archive, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	arc, err := ReadArchive(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("reading '%s': %w", fname, err)
	}
	return arc, nil
}
