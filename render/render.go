/*
Package render draws a single property of a converted timestep as a colored
scatter plot.

Points are placed either at their Cartesian positions (x, y) or on the
computational grid (r, theta) and colored with a smooth blue-red map spanning
the property's range.
*/
package render

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/phil-mansfield/xpdc"
	"github.com/phil-mansfield/xpdc/catalog"
	"github.com/phil-mansfield/xpdc/io"
)

var (
	ErrNoProperty = errors.New("property not in archive")
	ErrNoPoints   = errors.New("archive contains no grid points")
)

type Projection int

const (
	PolarXY Projection = iota
	CartesianRTheta
)

var projectionNames = []string{"Polar x-y", "Cartesian r-theta"}

func (p Projection) String() string {
	if p < 0 || int(p) >= len(projectionNames) {
		return fmt.Sprintf("Projection(%d)", int(p))
	}
	return projectionNames[p]
}

// ParseProjection reads the names printed by Projection.String, ignoring
// case. "polar" and "cartesian" are also accepted.
func ParseProjection(s string) (Projection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "polar x-y", "polar":
		return PolarXY, nil
	case "cartesian r-theta", "cartesian":
		return CartesianRTheta, nil
	}
	return 0, fmt.Errorf(
		"unrecognized projection '%s'. Accepted values are '%s'", s,
		strings.Join(projectionNames, "', '"),
	)
}

// axes returns the archive entries used as the x and y coordinates.
func (p Projection) axes() (x, y string) {
	if p == CartesianRTheta {
		return xpdc.RName, xpdc.ThetaName
	}
	return xpdc.XName, xpdc.YName
}

func (p Projection) labels() (x, y string) {
	if p == CartesianRTheta {
		return "r [m]", "theta [rad]"
	}
	return "x [m]", "y [m]"
}

type Options struct {
	Property   string
	Projection Projection
	// Values are divided by Scale before they are colored.
	Scale   float64
	Title   bool
	Details bool
	// Image size in centimeters.
	Width, Height float64
}

// DefaultOptions returns the options used when only a property is known.
func DefaultOptions(property string) *Options {
	return &Options{
		Property: property, Projection: PolarXY, Scale: 1,
		Title: true, Details: true, Width: 15, Height: 15,
	}
}

// ConfigOptions converts a [Render] config into Options.
func ConfigOptions(con *io.RenderConfig) (*Options, error) {
	proj, err := ParseProjection(con.Projection)
	if err != nil {
		return nil, err
	}
	return &Options{
		Property:   con.Property,
		Projection: proj,
		Scale:      con.Scale,
		Title:      con.Title,
		Details:    con.Details,
		Width:      con.Width,
		Height:     con.Height,
	}, nil
}

// Load reads the archive for con.Iteration. The archive is looked up in the
// catalog of con.Input. Without a catalog, con.Input is searched for an
// archive whose iteration number matches. Load never creates a catalog.
func Load(con *io.RenderConfig) (*io.Archive, error) {
	fname, err := ArchiveFile(con)
	if err != nil {
		return nil, err
	}
	return io.ReadArchiveFile(fname)
}

// ArchiveFile returns the path of the archive that Load reads.
func ArchiveFile(con *io.RenderConfig) (string, error) {
	catFile := con.CatalogFile()
	if catFile == "" {
		return findArchive(con.Input, con.Iteration)
	}

	cat, err := catalog.OpenReadOnly(catFile)
	if errors.Is(err, os.ErrNotExist) && con.Catalog == "" {
		return findArchive(con.Input, con.Iteration)
	} else if err != nil {
		return "", err
	}
	defer cat.Close()

	e, err := cat.Lookup(con.Iteration)
	if err != nil {
		return "", err
	}
	return filepath.Join(con.Input, e.Archive), nil
}

// findArchive lists dir for the archive of the given iteration.
func findArchive(dir string, iteration int) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	matches := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") ||
			filepath.Ext(name) != io.ArchiveSuffix {
			continue
		}
		i, err := xpdc.IterationIndex(name)
		if err == nil && i == iteration {
			matches = append(matches, name)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: iteration %d in '%s'",
			catalog.ErrNotFound, iteration, dir)
	case 1:
		return filepath.Join(dir, matches[0]), nil
	}
	return "", fmt.Errorf("iteration %d matches several archives in '%s': %s",
		iteration, dir, strings.Join(matches, ", "))
}

// Render plots arc and saves the image to fname. The image format is taken
// from fname's extension.
func Render(arc *io.Archive, opts *Options, fname string) error {
	p, err := Plot(arc, opts)
	if err != nil {
		return err
	}
	return p.Save(
		vg.Length(opts.Width)*vg.Centimeter,
		vg.Length(opts.Height)*vg.Centimeter,
		fname,
	)
}

// Plot builds the plot that Render saves.
func Plot(arc *io.Archive, opts *Options) (*plot.Plot, error) {
	vals, ok := arc.Array(opts.Property)
	if !ok || isCoordinate(opts.Property) {
		return nil, fmt.Errorf("%w: '%s'", ErrNoProperty, opts.Property)
	}
	xName, yName := opts.Projection.axes()
	xs, okX := arc.Array(xName)
	ys, okY := arc.Array(yName)
	if !okX || !okY {
		return nil, fmt.Errorf("%w: '%s'", ErrNoProperty, xName)
	} else if len(xs) != len(vals) || len(ys) != len(vals) {
		return nil, fmt.Errorf(
			"'%s' has %d points, but the grid has %d",
			opts.Property, len(vals), len(xs),
		)
	} else if len(vals) == 0 {
		return nil, ErrNoPoints
	}

	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}
	scaled := make([]float64, len(vals))
	floats.ScaleTo(scaled, 1/scale, vals)

	colors, err := pointColors(scaled)
	if err != nil {
		return nil, err
	}

	pts := make(plotter.XYs, len(vals))
	for i := range pts {
		pts[i].X, pts[i].Y = xs[i], ys[i]
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		return draw.GlyphStyle{
			Color: colors[i], Radius: vg.Points(1.5), Shape: draw.CircleGlyph{},
		}
	}

	p := plot.New()
	p.X.Label.Text, p.Y.Label.Text = opts.Projection.labels()
	if opts.Title {
		p.Title.Text = Title(arc, opts)
		p.Title.Padding = 3 * vg.Millimeter
	}
	p.Add(s)
	return p, nil
}

// Title returns the plot title: the property name, followed by the time,
// projection, and scale if opts.Details is set.
func Title(arc *io.Archive, opts *Options) string {
	if !opts.Details {
		return opts.Property
	}

	parts := []string{opts.Property}
	if t, ok := arc.Scalar(xpdc.TimeName); ok {
		parts = append(parts, fmt.Sprintf("t = %.2e s", t))
	}
	parts = append(parts, opts.Projection.String())
	if opts.Scale != 0 && opts.Scale != 1 {
		parts = append(parts, fmt.Sprintf("[/%g]", opts.Scale))
	}
	return strings.Join(parts, ", ")
}

// pointColors maps vals onto a blue-red color map spanning their range. A
// constant field is drawn in the map's central color.
func pointColors(vals []float64) ([]color.Color, error) {
	if floats.HasNaN(vals) {
		return nil, fmt.Errorf("values contain NaN")
	}
	lo, hi := floats.Min(vals), floats.Max(vals)
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return nil, fmt.Errorf("values span an infinite range [%g, %g]", lo, hi)
	}
	if lo == hi {
		delta := math.Max(1, math.Abs(lo))
		lo, hi = lo-delta, hi+delta
	}

	var cm palette.ColorMap = moreland.SmoothBlueRed()
	cm.SetMin(lo)
	cm.SetMax(hi)

	colors := make([]color.Color, len(vals))
	for i, v := range vals {
		c, err := cm.At(v)
		if err != nil {
			return nil, err
		}
		colors[i] = c
	}
	return colors, nil
}

func isCoordinate(name string) bool {
	for _, r := range xpdc.ReservedNames {
		if r == name {
			return true
		}
	}
	return false
}
