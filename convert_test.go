package xpdc

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/xpdc/catalog"
	"github.com/phil-mansfield/xpdc/io"
)

func convertConfig(input string) *io.ConvertConfig {
	con := &io.DefaultConvertWrapper().Convert
	con.Input = input
	con.Quiet = true
	return con
}

func convertAll(t *testing.T, con *io.ConvertConfig) *Converter {
	c, err := NewConverter(con)
	require.NoError(t, err)
	require.NoError(t, c.Convert())
	require.NoError(t, c.Close())
	return c
}

func archiveNames(t *testing.T, dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+io.ArchiveSuffix))
	require.NoError(t, err)
	for i := range matches {
		matches[i] = filepath.Base(matches[i])
	}
	return matches
}

func TestConvert(t *testing.T) {
	ds := smallDataset(4)
	dir := ds.write(t)
	c := convertAll(t, convertConfig(dir))

	out := filepath.Join(dir, io.DefaultOutputDir)
	assert.Equal(t, out, c.OutputDir())
	assert.Equal(t, ds.props, c.Properties())
	assert.Equal(t, 1, c.Width())
	assert.Equal(t, []string{
		"rth_Benchmark_1.xpz", "rth_Benchmark_2.xpz",
		"rth_Benchmark_3.xpz", "rth_Benchmark_4.xpz",
	}, archiveNames(t, out))

	arc, err := io.ReadArchiveFile(filepath.Join(out, "rth_Benchmark_3.xpz"))
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"den1", "den2", "phi", "r", "t", "theta", "x", "y"},
		arc.Names(),
	)

	tm, ok := arc.Scalar(TimeName)
	require.True(t, ok)
	assert.InDelta(t, ds.time(3), tm, 1e-20)

	r, _ := arc.Array(RName)
	theta, _ := arc.Array(ThetaName)
	x, _ := arc.Array(XName)
	y, _ := arc.Array(YName)
	require.Len(t, r, ds.nr*ds.nth)
	for i := range r {
		assert.InDelta(t, r[i], math.Hypot(x[i], y[i]), 1e-12)
		assert.InDelta(t, math.Cos(theta[i]), x[i]/r[i], 1e-12)
	}

	for _, prop := range ds.props {
		vals, ok := arc.Array(prop)
		require.True(t, ok, prop)
		for i := range vals {
			assert.InDelta(t, ds.value(prop, 3, i), vals[i], 1e-6, prop)
		}
	}
}

func TestConvertCatalog(t *testing.T) {
	ds := smallDataset(3)
	dir := ds.write(t)
	c := convertAll(t, convertConfig(dir))

	cat, err := catalog.Open(filepath.Join(c.OutputDir(), io.DefaultCatalogName))
	require.NoError(t, err)
	defer cat.Close()

	entries, err := cat.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Iteration)
		assert.Equal(t, ds.fileName(i+1), e.Source)
		assert.Equal(t, ds.nr*ds.nth, e.Points)
		assert.Equal(t, c.RunID(), e.Run)
		assert.Equal(t, ds.props, e.Properties)
		assert.FileExists(t, filepath.Join(c.OutputDir(), e.Archive))
	}
}

func TestConvertNoCatalog(t *testing.T) {
	dir := smallDataset(2).write(t)
	con := convertConfig(dir)
	con.Catalog = io.NoCatalog
	c := convertAll(t, con)

	assert.NoFileExists(t, filepath.Join(c.OutputDir(), io.DefaultCatalogName))
	assert.Len(t, archiveNames(t, c.OutputDir()), 2)
}

func TestConvertPadding(t *testing.T) {
	ds := smallDataset(0)
	ds.props = []string{"phi"}
	ds.nr, ds.nth = 1, 2
	ds.steps = steps(1000)
	dir := ds.write(t)

	con := convertConfig(dir)
	con.Range = "7-7"
	c := convertAll(t, con)
	assert.Equal(t, 4, c.Width())
	assert.Equal(t, []string{"rth_Benchmark_0007.xpz"}, archiveNames(t, c.OutputDir()))
}

func TestConvertSingleFile(t *testing.T) {
	dir := smallDataset(12).write(t)
	con := convertConfig(dir)
	con.File = "rth_Benchmark_7.txt"
	con.Range = "not a range"
	c := convertAll(t, con)

	assert.Equal(t, SingleFileWidth, c.Width())
	assert.Equal(t, []string{"rth_Benchmark_7.txt"}, c.Files())
	assert.Equal(t, []string{"rth_Benchmark_0007.xpz"}, archiveNames(t, c.OutputDir()))
}

func TestConvertRange(t *testing.T) {
	dir := smallDataset(10).write(t)
	con := convertConfig(dir)
	con.Range = "3-5"
	c := convertAll(t, con)

	assert.Equal(t, 2, c.Width())
	assert.Equal(t, []string{
		"rth_Benchmark_03.xpz", "rth_Benchmark_04.xpz", "rth_Benchmark_05.xpz",
	}, archiveNames(t, c.OutputDir()))
}

func TestConvertDeterministic(t *testing.T) {
	dir := smallDataset(2).write(t)

	con := convertConfig(dir)
	con.Output = filepath.Join(t.TempDir(), "a")
	convertAll(t, con)
	a, err := os.ReadFile(filepath.Join(con.Output, "rth_Benchmark_2.xpz"))
	require.NoError(t, err)

	con.Output = filepath.Join(t.TempDir(), "b")
	convertAll(t, con)
	b, err := os.ReadFile(filepath.Join(con.Output, "rth_Benchmark_2.xpz"))
	require.NoError(t, err)

	assert.True(t, bytes.Equal(a, b))

	// Rerunning into the same directory overwrites in place.
	convertAll(t, con)
	c, err := os.ReadFile(filepath.Join(con.Output, "rth_Benchmark_2.xpz"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, c))
}

func TestConvertRawCodec(t *testing.T) {
	dir := smallDataset(1).write(t)
	con := convertConfig(dir)
	con.Codec = "raw"
	c := convertAll(t, con)

	arc, err := io.ReadArchiveFile(filepath.Join(c.OutputDir(), "rth_Benchmark_1.xpz"))
	require.NoError(t, err)
	phi, ok := arc.Array("phi")
	require.True(t, ok)
	assert.Len(t, phi, 12)
}

func TestConvertBadHeader(t *testing.T) {
	dir := smallDataset(2).write(t)
	fname := filepath.Join(dir, "den2", "rth_Benchmark_1.txt")
	require.NoError(t, os.WriteFile(fname, []byte(
		"VARIABLES = \"r\" \"theta\" \"den2\"\nZONE\n1 2 3\n",
	), 0644))

	c, err := NewConverter(convertConfig(dir))
	require.NoError(t, err)
	err = c.Convert()
	require.NoError(t, c.Close())

	var herr *io.HeaderError
	assert.True(t, errors.As(err, &herr))
	assert.NoDirExists(t, filepath.Join(dir, io.DefaultOutputDir))
}

func TestConvertBadRow(t *testing.T) {
	dir := smallDataset(1).write(t)
	fname := filepath.Join(dir, "phi", "rth_Benchmark_1.txt")
	require.NoError(t, os.WriteFile(fname, []byte(
		"VARIABLES\nZONE T= 1e-9s\n1 2 3\n1 2\n",
	), 0644))

	c, err := NewConverter(convertConfig(dir))
	require.NoError(t, err)
	err = c.Convert()

	var rerr *io.RowError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, 4, rerr.Line)
	assert.NoDirExists(t, filepath.Join(dir, io.DefaultOutputDir))
}

func TestConvertGridMismatch(t *testing.T) {
	ds := smallDataset(1)
	dir := ds.write(t)

	other := ds
	other.nr = ds.nr + 1
	fname := filepath.Join(dir, "phi", ds.fileName(1))
	require.NoError(t, os.WriteFile(fname, []byte(other.text("phi", 1)), 0644))

	c, err := NewConverter(convertConfig(dir))
	require.NoError(t, err)
	assert.True(t, errors.Is(c.Convert(), ErrGridMismatch))
}

func TestNewConverterErrors(t *testing.T) {
	_, err := NewConverter(convertConfig(""))
	assert.True(t, errors.Is(err, ErrNoInput))

	empty := t.TempDir()
	_, err = NewConverter(convertConfig(empty))
	assert.True(t, errors.Is(err, ErrNoProperties))
	assert.NoDirExists(t, filepath.Join(empty, io.DefaultOutputDir))

	dir := smallDataset(3).write(t)

	con := convertConfig(dir)
	con.Codec = "gzip"
	_, err = NewConverter(con)
	assert.True(t, errors.Is(err, ErrBadCodec))

	con = convertConfig(dir)
	con.Range = "2-9"
	_, err = NewConverter(con)
	assert.True(t, errors.Is(err, ErrBadRange))

	con = convertConfig(dir)
	con.Range = "0-2"
	_, err = NewConverter(con)
	assert.True(t, errors.Is(err, ErrBadRange))

	require.NoError(t, os.Mkdir(filepath.Join(dir, "theta"), 0777))
	_, err = NewConverter(convertConfig(dir))
	assert.True(t, errors.Is(err, ErrReservedName))
}
