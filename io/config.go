package io

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/gcfg.v1"

	"github.com/phil-mansfield/xpdc/compress"
)

const (
	// DefaultOutputDir is the directory created under Input when no Output
	// is given.
	DefaultOutputDir = "_processed_data"
	// DefaultCatalogName is the catalog file created inside the output
	// directory when no Catalog is given.
	DefaultCatalogName = "catalog.db"
	// NoCatalog disables the catalog when given as the Catalog value.
	NoCatalog = "none"

	DefaultBatchSize = 300
)

const (
	ExampleConvertFile = `[Convert]

#######################
# Required Parameters #
#######################

# Directory containing one sub-directory per property, e.g. data/den1,
# data/phi. Sub-directories starting with '.' or '_' are skipped.
Input = path/to/input/dir

#######################
# Optional Parameters #
#######################

# Directory the .xpz archives are written to. Defaults to a directory named
# _processed_data inside Input.
# Output = path/to/output/dir

# Convert a single file instead of every file in the property directories.
# File = rth_Benchmark_7.txt

# Inclusive, 1-based range over the files, sorted by iteration number.
# Ignored if File is set.
# Range = 1-300

# Suppresses the line printed for every archive written.
# Quiet = true

# Payload compression. One of [ zstd | raw ].
# Codec = zstd

# Catalog of written archives. Defaults to catalog.db inside Output. Set to
# none to skip the catalog.
# Catalog = path/to/catalog.db

# By default every property file of a timestep must have the same r and theta
# columns as the first one. Setting this only checks row counts.
# TrustGrid = true

# LogFile = log.out`

	ExampleBatchFile = `[Batch]

#######################
# Required Parameters #
#######################

Input = path/to/input/dir

#######################
# Optional Parameters #
#######################

# Output = path/to/output/dir
# Quiet = true

# Split the files into batches of BatchSize files and convert them
# concurrently. At most Jobs batches run at once; Jobs defaults to the number
# of logical cores.
# Parallel = true
# BatchSize = 300
# Jobs = 4

# How batches are run. 'process' starts one child process per batch, 'inline'
# converts every batch inside this process.
# Launcher = process

# Binary used by the 'process' launcher. Defaults to the running binary.
# Executable = path/to/xpdc

# Codec = zstd
# Catalog = path/to/catalog.db
# LogFile = log.out`

	ExampleRenderFile = `[Render]

#######################
# Required Parameters #
#######################

# Directory containing the .xpz archives and their catalog.
Input = path/to/processed/dir
# Image that will be written.
Output = path/to/image.png

# Iteration number, as it appears in the archive's file name.
Iteration = 7
Property = den1

#######################
# Optional Parameters #
#######################

# One of [ Polar x-y | Cartesian r-theta ].
# Projection = Polar x-y

# Values are divided by Scale before colors are assigned.
# Scale = 1e16

# Title = true
# Details = true

# Catalog used to find the archive. Defaults to catalog.db inside Input. If
# that file doesn't exist, or Catalog is none, Input is searched for an
# archive whose name contains Iteration.
# Catalog = path/to/catalog.db

# Image size in centimeters.
# Width = 15
# Height = 15`
)

type SharedConfig struct {
	// Required
	Input string
	// Optional
	Output, LogFile string
}

func (con *SharedConfig) ValidInput() bool {
	return con.Input != ""
}
func (con *SharedConfig) ValidLogFile() bool {
	return con.LogFile != ""
}

// Range is an inclusive, 1-based range of indices. The zero value means
// "everything".
type Range struct {
	Start, End int
}

func (r Range) IsZero() bool { return r.Start == 0 && r.End == 0 }

// Len returns the number of indices in r.
func (r Range) Len() int {
	if r.IsZero() {
		return 0
	}
	return r.End - r.Start + 1
}

// String formats r the way ParseRange reads it.
func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// ParseRange reads a range of the form "start-end". The empty string is the
// zero Range.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, nil
	}

	tok := strings.Split(s, "-")
	if len(tok) != 2 {
		return Range{}, fmt.Errorf(
			"range '%s' must have the form start-end", s,
		)
	}

	start, err := strconv.Atoi(strings.TrimSpace(tok[0]))
	if err != nil {
		return Range{}, fmt.Errorf("range '%s' has invalid start", s)
	}
	end, err := strconv.Atoi(strings.TrimSpace(tok[1]))
	if err != nil {
		return Range{}, fmt.Errorf("range '%s' has invalid end", s)
	}

	r := Range{start, end}
	if !r.Valid() {
		return Range{}, fmt.Errorf(
			"range '%s' must satisfy 1 <= start <= end", s,
		)
	}
	return r, nil
}

// Valid returns true if r is a non-empty range of positive indices.
func (r Range) Valid() bool {
	return r.Start >= 1 && r.Start <= r.End
}

type ConvertConfig struct {
	SharedConfig

	// Optional
	File      string
	Range     string
	Quiet     bool
	Codec     string
	Catalog   string
	TrustGrid bool
	Run       string
}

type ConvertWrapper struct {
	Convert ConvertConfig
}

func DefaultConvertWrapper() *ConvertWrapper {
	return &ConvertWrapper{ConvertConfig{Codec: "zstd"}}
}

// ReadConvertConfig reads a [Convert] config file.
func ReadConvertConfig(fname string) (*ConvertConfig, error) {
	wrap := DefaultConvertWrapper()
	if err := gcfg.ReadFileInto(wrap, fname); err != nil {
		return nil, err
	}
	return &wrap.Convert, nil
}

func (con *ConvertConfig) ValidFile() bool {
	return con.File != ""
}
func (con *ConvertConfig) ValidRange() bool {
	_, err := ParseRange(con.Range)
	return err == nil
}
func (con *ConvertConfig) ValidCodec() bool {
	_, err := compress.ParseCodec(con.Codec)
	return err == nil
}

// OutputDir returns Output, or the default directory inside Input.
func (con *ConvertConfig) OutputDir() string {
	return outputDir(&con.SharedConfig)
}

// CatalogFile returns the catalog location, or "" if the catalog is
// disabled.
func (con *ConvertConfig) CatalogFile() string {
	return catalogFile(con.Catalog, con.OutputDir())
}

func outputDir(con *SharedConfig) string {
	if con.Output != "" {
		return con.Output
	}
	return filepath.Join(con.Input, DefaultOutputDir)
}

func catalogFile(catalog, output string) string {
	switch {
	case strings.ToLower(catalog) == NoCatalog:
		return ""
	case catalog != "":
		return catalog
	}
	return filepath.Join(output, DefaultCatalogName)
}

type BatchConfig struct {
	SharedConfig

	// Optional
	Quiet      bool
	Parallel   bool
	BatchSize  int
	Jobs       int
	Launcher   string
	Executable string
	Codec      string
	Catalog    string
}

type BatchWrapper struct {
	Batch BatchConfig
}

func DefaultBatchWrapper() *BatchWrapper {
	return &BatchWrapper{BatchConfig{
		BatchSize: DefaultBatchSize,
		Jobs:      runtime.NumCPU(),
		Launcher:  "process",
		Codec:     "zstd",
	}}
}

// ReadBatchConfig reads a [Batch] config file.
func ReadBatchConfig(fname string) (*BatchConfig, error) {
	wrap := DefaultBatchWrapper()
	if err := gcfg.ReadFileInto(wrap, fname); err != nil {
		return nil, err
	}
	return &wrap.Batch, nil
}

func (con *BatchConfig) ValidBatchSize() bool {
	return con.BatchSize > 0
}
func (con *BatchConfig) ValidJobs() bool {
	return con.Jobs > 0
}
func (con *BatchConfig) ValidLauncher() bool {
	switch strings.ToLower(con.Launcher) {
	case "process", "inline":
		return true
	}
	return false
}
func (con *BatchConfig) ValidCodec() bool {
	_, err := compress.ParseCodec(con.Codec)
	return err == nil
}

func (con *BatchConfig) OutputDir() string {
	return outputDir(&con.SharedConfig)
}

func (con *BatchConfig) CatalogFile() string {
	return catalogFile(con.Catalog, con.OutputDir())
}

// ConvertConfig returns the configuration of a single batch job covering r.
func (con *BatchConfig) ConvertConfig(r Range, run string) *ConvertConfig {
	cc := &ConvertConfig{
		SharedConfig: SharedConfig{
			Input:   con.Input,
			Output:  con.OutputDir(),
			LogFile: con.LogFile,
		},
		Quiet: con.Quiet,
		Codec: con.Codec,
		Run:   run,
	}
	if !r.IsZero() {
		cc.Range = r.String()
	}
	if cat := con.CatalogFile(); cat == "" {
		cc.Catalog = NoCatalog
	} else {
		cc.Catalog = cat
	}
	return cc
}

type RenderConfig struct {
	SharedConfig

	// Required
	Iteration int
	Property  string

	// Optional
	Projection    string
	Scale         float64
	Title         bool
	Details       bool
	Catalog       string
	Width, Height float64
}

type RenderWrapper struct {
	Render RenderConfig
}

func DefaultRenderWrapper() *RenderWrapper {
	return &RenderWrapper{RenderConfig{
		Iteration:  -1,
		Projection: "Polar x-y",
		Scale:      1,
		Title:      true,
		Details:    true,
		Width:      15,
		Height:     15,
	}}
}

// ReadRenderConfig reads a [Render] config file.
func ReadRenderConfig(fname string) (*RenderConfig, error) {
	wrap := DefaultRenderWrapper()
	if err := gcfg.ReadFileInto(wrap, fname); err != nil {
		return nil, err
	}
	return &wrap.Render, nil
}

func (con *RenderConfig) ValidOutput() bool {
	return con.Output != ""
}
func (con *RenderConfig) ValidIteration() bool {
	return con.Iteration >= 0
}
func (con *RenderConfig) ValidProperty() bool {
	return con.Property != ""
}
func (con *RenderConfig) ValidScale() bool {
	return con.Scale != 0
}
func (con *RenderConfig) ValidSize() bool {
	return con.Width > 0 && con.Height > 0
}

// CatalogFile returns the catalog that indexes Input, or "" if archives
// should be found by listing Input.
func (con *RenderConfig) CatalogFile() string {
	switch {
	case strings.ToLower(con.Catalog) == NoCatalog:
		return ""
	case con.Catalog != "":
		return con.Catalog
	}
	return filepath.Join(con.Input, DefaultCatalogName)
}
