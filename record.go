package xpdc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/xpdc/io"
)

// Record contains everything known about a single timestep. It only lives
// long enough to be written.
type Record struct {
	Time       float64
	R, Theta   []float64
	X, Y       []float64
	Properties []string
	Values     map[string][]float64

	set bool
}

func NewRecord() *Record {
	return &Record{Values: map[string][]float64{}}
}

// Len returns the number of grid points.
func (rec *Record) Len() int { return len(rec.R) }

// Add stores the values of one property file. The first file added sets the
// time and the grid. Later files must match its row count and, unless
// trustGrid is set, its time and grid exactly.
func (rec *Record) Add(
	name string, pf *io.PropertyFile, trustGrid bool,
) error {
	if isReserved(name) {
		return fmt.Errorf("%w: '%s'", ErrReservedName, name)
	} else if _, ok := rec.Values[name]; ok {
		return fmt.Errorf("property '%s' added twice", name)
	}

	if !rec.set {
		rec.Time, rec.R, rec.Theta = pf.Time, pf.Rs, pf.Thetas
		rec.set = true
	} else if pf.Len() != rec.Len() {
		return fmt.Errorf(
			"%w: '%s' has %d rows, but '%s' has %d",
			ErrGridMismatch, name, pf.Len(), rec.Properties[0], rec.Len(),
		)
	} else if !trustGrid {
		switch {
		case pf.Time != rec.Time:
			return fmt.Errorf("%w: '%s' has time %g, but '%s' has %g",
				ErrGridMismatch, name, pf.Time, rec.Properties[0], rec.Time)
		case !floats.Equal(pf.Rs, rec.R):
			return fmt.Errorf("%w: r column of '%s' differs from '%s'",
				ErrGridMismatch, name, rec.Properties[0])
		case !floats.Equal(pf.Thetas, rec.Theta):
			return fmt.Errorf("%w: theta column of '%s' differs from '%s'",
				ErrGridMismatch, name, rec.Properties[0])
		}
	}

	rec.Properties = append(rec.Properties, name)
	rec.Values[name] = pf.Vals
	return nil
}

// DeriveCartesian sets X and Y from R and Theta.
func (rec *Record) DeriveCartesian() {
	rec.X, rec.Y = Cartesian(rec.R, rec.Theta)
}

// Cartesian converts polar coordinates to Cartesian coordinates.
func Cartesian(r, theta []float64) (x, y []float64) {
	if len(r) != len(theta) {
		panic(fmt.Sprintf(
			"len(r) = %d, but len(theta) = %d", len(r), len(theta),
		))
	}

	x, y = make([]float64, len(r)), make([]float64, len(r))
	for i := range r {
		sin, cos := math.Sincos(theta[i])
		x[i], y[i] = r[i]*cos, r[i]*sin
	}
	return x, y
}

// Archive returns the archive representation of rec. DeriveCartesian must
// have been called.
func (rec *Record) Archive() *io.Archive {
	arc := io.NewArchive()
	arc.SetScalar(TimeName, rec.Time)
	arc.SetArray(RName, nonNil(rec.R))
	arc.SetArray(ThetaName, nonNil(rec.Theta))
	arc.SetArray(XName, nonNil(rec.X))
	arc.SetArray(YName, nonNil(rec.Y))
	for _, name := range rec.Properties {
		arc.SetArray(name, nonNil(rec.Values[name]))
	}
	return arc
}

func nonNil(xs []float64) []float64 {
	if xs == nil {
		return []float64{}
	}
	return xs
}
