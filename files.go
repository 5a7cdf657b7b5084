package xpdc

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/phil-mansfield/xpdc/io"
)

const (
	// SingleFileWidth is the pad width used when a single file is converted.
	SingleFileWidth = 4
)

var (
	// Entries starting with one of these are never properties or inputs.
	// The default output directory starts with '_'.
	excludedPrefixes = []string{".", "_"}

	digits = regexp.MustCompile(`[0-9]+`)
)

func excluded(name string) bool {
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Properties returns the names of the property directories in dir in lexical
// order.
func Properties(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	props := []string{}
	for _, e := range entries {
		if excluded(e.Name()) {
			continue
		}
		if isDir(dir, e) {
			props = append(props, e.Name())
		}
	}

	if len(props) == 0 {
		return nil, fmt.Errorf("%w in '%s'", ErrNoProperties, dir)
	}
	return props, nil
}

// isDir follows symlinks, unlike e.IsDir.
func isDir(dir string, e os.DirEntry) bool {
	if e.Type()&os.ModeSymlink == 0 {
		return e.IsDir()
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && info.IsDir()
}

// InputFiles returns the names of the timestep files in a property
// directory, sorted by iteration number.
func InputFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := []string{}
	for _, e := range entries {
		if excluded(e.Name()) || isDir(dir, e) {
			continue
		}
		names = append(names, e.Name())
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("%w in '%s'", ErrNoFiles, dir)
	}
	if err := SortByIndex(names); err != nil {
		return nil, err
	}
	return names, nil
}

// SortByIndex sorts names by their iteration numbers, breaking ties
// lexically.
func SortByIndex(names []string) error {
	idxs := make(map[string]int, len(names))
	for _, name := range names {
		i, err := IterationIndex(name)
		if err != nil {
			return err
		}
		idxs[name] = i
	}

	sort.Slice(names, func(i, j int) bool {
		ii, ij := idxs[names[i]], idxs[names[j]]
		if ii != ij {
			return ii < ij
		}
		return names[i] < names[j]
	})
	return nil
}

// IterationIndex returns the first integer in name.
func IterationIndex(name string) (int, error) {
	s := digits.FindString(name)
	if s == "" {
		return 0, fmt.Errorf("%w: '%s'", ErrNoIndex, name)
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("iteration number of '%s': %w", name, err)
	}
	return i, nil
}

// PadWidth returns the number of decimal digits in n.
func PadWidth(n int) int {
	if n < 1 {
		return 1
	}
	return len(strconv.Itoa(n))
}

// OutputName returns the archive name for the text file name: the extension
// is replaced with io.ArchiveSuffix and the iteration number is zero-padded
// to width digits.
func OutputName(name string, width int) (string, error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	loc := digits.FindStringIndex(stem)
	if loc == nil {
		return "", fmt.Errorf("%w: '%s'", ErrNoIndex, name)
	}
	i, err := strconv.Atoi(stem[loc[0]:loc[1]])
	if err != nil {
		return "", fmt.Errorf("iteration number of '%s': %w", name, err)
	}

	return fmt.Sprintf("%s%0*d%s%s",
		stem[:loc[0]], width, i, stem[loc[1]:], io.ArchiveSuffix,
	), nil
}

// SelectRange returns the files at the 1-based, inclusive positions in r.
// The zero Range selects every file.
func SelectRange(files []string, r io.Range) ([]string, error) {
	if r.IsZero() {
		return files, nil
	}
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrBadRange, r)
	}
	if r.End > len(files) {
		return nil, fmt.Errorf(
			"%w: %s extends past the last of %d files",
			ErrBadRange, r, len(files),
		)
	}
	return files[r.Start-1 : r.End], nil
}
