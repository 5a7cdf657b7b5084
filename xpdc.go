/*
Package xpdc converts the per-property text output of the XPDC plasma code
into one binary archive per timestep.

XPDC writes a directory per physical property, each containing one file per
timestep:

    data/
        den1/rth_Benchmark_1.txt, rth_Benchmark_2.txt, ...
        den2/rth_Benchmark_1.txt, rth_Benchmark_2.txt, ...
        phi/rth_Benchmark_1.txt, rth_Benchmark_2.txt, ...

A Converter reads every property file of a timestep, checks that they share
the same grid, derives Cartesian coordinates and writes the result to
data/_processed_data/rth_Benchmark_0001.xpz. A Batch splits the timesteps
into disjoint ranges and runs one conversion per range.
*/
package xpdc

import (
	"errors"
)

var (
	ErrNoInput      = errors.New("no input directory given")
	ErrNoProperties = errors.New("no property directories found")
	ErrNoFiles      = errors.New("no input files found")
	ErrNoIndex      = errors.New("file name contains no iteration number")
	ErrBadRange     = errors.New("invalid file range")
	ErrReservedName = errors.New("property name is reserved")
	ErrBadCodec     = errors.New("invalid codec")
	ErrNoBatchSize  = errors.New("parallel batches require a positive batch size")
	ErrGridMismatch = errors.New("property grids do not match")
)

// Names of the archive entries which are not properties.
const (
	TimeName  = "t"
	RName     = "r"
	ThetaName = "theta"
	XName     = "x"
	YName     = "y"
)

// ReservedNames cannot be used as property names.
var ReservedNames = []string{TimeName, RName, ThetaName, XName, YName}

func isReserved(name string) bool {
	for _, r := range ReservedNames {
		if r == name {
			return true
		}
	}
	return false
}
