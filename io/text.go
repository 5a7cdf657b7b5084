package io

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

/*
XPDC writes one text file per property per timestep:

    line 0    - ignored (column names).
    line 1    - the third token is the time, followed by one unit character,
                e.g. "ZONE T= 1.2500e-09s". The unit may be any UTF-8 rune.
    line 2... - three columns: radius, angle (radians), value.
*/

// HeaderError is returned when the time-bearing line of a property file
// cannot be read.
type HeaderError struct {
	File string
	Line string
	Err  error
}

func (e *HeaderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"could not read time from header of '%s' (line %q): %s",
			e.File, e.Line, e.Err.Error(),
		)
	}
	return fmt.Sprintf(
		"could not read time from header of '%s' (line %q)", e.File, e.Line,
	)
}

func (e *HeaderError) Unwrap() error { return e.Err }

// RowError is returned when a data row of a property file is malformed.
// Line is 1-based.
type RowError struct {
	File string
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("malformed row on line %d of '%s': %s",
		e.Line, e.File, e.Err.Error())
}

func (e *RowError) Unwrap() error { return e.Err }

// PropertyFile is the content of a single property file.
type PropertyFile struct {
	Time       float64
	Rs, Thetas []float64
	Vals       []float64
}

// Len returns the number of grid points in the file.
func (pf *PropertyFile) Len() int { return len(pf.Vals) }

// ReadPropertyFile parses the property file fname.
func ReadPropertyFile(fname string) (*PropertyFile, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pf := &PropertyFile{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<16), 1<<20)

	line := 0
	for sc.Scan() {
		text := sc.Text()
		line++

		switch line {
		case 1:
			continue
		case 2:
			pf.Time, err = parseTime(fname, text)
			if err != nil {
				return nil, err
			}
			continue
		}

		tok := strings.Fields(text)
		if len(tok) == 0 {
			continue
		}
		if len(tok) != 3 {
			return nil, &RowError{fname, line, fmt.Errorf(
				"expected 3 columns, found %d", len(tok),
			)}
		}

		var row [3]float64
		for i := range row {
			row[i], err = strconv.ParseFloat(tok[i], 64)
			if err != nil {
				return nil, &RowError{fname, line, err}
			}
		}
		pf.Rs = append(pf.Rs, row[0])
		pf.Thetas = append(pf.Thetas, row[1])
		pf.Vals = append(pf.Vals, row[2])
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if line < 2 {
		return nil, &HeaderError{File: fname, Err: fmt.Errorf(
			"file has %d lines, but at least 2 are required", line,
		)}
	}

	return pf, nil
}

// parseTime reads the time from the second line of a property file.
func parseTime(fname, text string) (float64, error) {
	tok := strings.Fields(text)
	if len(tok) < 3 {
		return 0, &HeaderError{fname, text, fmt.Errorf(
			"expected at least 3 tokens, found %d", len(tok),
		)}
	}

	s := tok[2]
	unit, n := utf8.DecodeLastRuneInString(s)
	if unit == utf8.RuneError {
		return 0, &HeaderError{fname, text, fmt.Errorf(
			"time token %q does not end in a valid unit character", s,
		)}
	} else if len(s) == n {
		return 0, &HeaderError{fname, text, fmt.Errorf(
			"time token %q is too short", s,
		)}
	}

	t, err := strconv.ParseFloat(s[:len(s)-n], 64)
	if err != nil {
		return 0, &HeaderError{fname, text, err}
	}
	return t, nil
}
