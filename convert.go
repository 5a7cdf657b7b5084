package xpdc

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/phil-mansfield/xpdc/catalog"
	"github.com/phil-mansfield/xpdc/compress"
	"github.com/phil-mansfield/xpdc/io"
)

// Converter turns the property files of a set of timesteps into archives.
// Timesteps are converted one at a time, in iteration order.
type Converter struct {
	con   io.ConvertConfig
	codec compress.Codec
	run   string

	props  []string
	files  []string
	width  int
	output string

	catFile string
	cat     *catalog.Catalog
}

// NewConverter validates con and finds the files that will be converted.
// Nothing is written until Convert or ConvertFile is called.
func NewConverter(con *io.ConvertConfig) (*Converter, error) {
	c := &Converter{con: *con}

	if !con.ValidInput() {
		return nil, ErrNoInput
	}
	if info, err := os.Stat(con.Input); err != nil {
		return nil, err
	} else if !info.IsDir() {
		return nil, fmt.Errorf("input '%s' is not a directory", con.Input)
	}

	codec, err := compress.ParseCodec(con.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadCodec, err.Error())
	}
	c.codec = codec

	c.props, err = Properties(con.Input)
	if err != nil {
		return nil, err
	}
	for _, prop := range c.props {
		if isReserved(prop) {
			return nil, fmt.Errorf(
				"%w: directory '%s' in '%s'", ErrReservedName, prop, con.Input,
			)
		}
	}

	if con.ValidFile() {
		c.files = []string{filepath.Base(con.File)}
		c.width = SingleFileWidth
	} else {
		r, err := io.ParseRange(con.Range)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadRange, err.Error())
		}
		all, err := InputFiles(filepath.Join(con.Input, c.props[0]))
		if err != nil {
			return nil, err
		}
		c.width = PadWidth(len(all))
		if c.files, err = SelectRange(all, r); err != nil {
			return nil, err
		}
	}

	c.output = con.OutputDir()
	c.catFile = con.CatalogFile()
	c.run = con.Run
	if c.run == "" {
		c.run = uuid.NewString()
	}

	return c, nil
}

// Properties returns the names of the properties being converted.
func (c *Converter) Properties() []string { return c.props }

// Files returns the names of the files that Convert will convert, in order.
func (c *Converter) Files() []string { return c.files }

// Width returns the number of digits output iteration numbers are padded to.
func (c *Converter) Width() int { return c.width }

// OutputDir returns the directory archives are written to.
func (c *Converter) OutputDir() string { return c.output }

// RunID returns the identifier recorded in the catalog for this conversion.
func (c *Converter) RunID() string { return c.run }

// Convert converts every selected file, stopping at the first error.
func (c *Converter) Convert() error {
	return c.ConvertContext(context.Background())
}

// ConvertContext is Convert, but stops before the next file once ctx is
// done. Archives that were already written are kept.
func (c *Converter) ConvertContext(ctx context.Context) error {
	for _, name := range c.files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.ConvertFile(name); err != nil {
			return fmt.Errorf("converting '%s': %w", name, err)
		}
	}
	return nil
}

// ConvertFile reads the file called name from every property directory and
// writes the combined archive. It returns the archive's path.
func (c *Converter) ConvertFile(name string) (string, error) {
	rec, err := c.read(name)
	if err != nil {
		return "", err
	}
	rec.DeriveCartesian()

	outName, err := OutputName(name, c.width)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.output, 0777); err != nil {
		return "", err
	}
	out := filepath.Join(c.output, outName)
	if err := io.WriteArchiveFile(out, rec.Archive(), c.codec); err != nil {
		return "", err
	}

	if err := c.register(name, out, rec); err != nil {
		return "", err
	}

	if !c.con.Quiet {
		log.Printf("Wrote %s", out)
	}
	return out, nil
}

func (c *Converter) read(name string) (*Record, error) {
	rec := NewRecord()
	for _, prop := range c.props {
		fname := filepath.Join(c.con.Input, prop, name)
		pf, err := io.ReadPropertyFile(fname)
		if err != nil {
			return nil, err
		}
		if err := rec.Add(prop, pf, c.con.TrustGrid); err != nil {
			return nil, fmt.Errorf("%s: %w", fname, err)
		}
	}
	return rec, nil
}

// register adds the archive to the catalog, opening it on first use.
func (c *Converter) register(name, out string, rec *Record) error {
	if c.catFile == "" {
		return nil
	}

	if c.cat == nil {
		cat, err := catalog.Open(c.catFile)
		if err != nil {
			return err
		}
		c.cat = cat
	}

	base := filepath.Base(out)
	i, err := IterationIndex(base)
	if err != nil {
		return err
	}
	return c.cat.Add(catalog.Entry{
		Iteration:  i,
		Time:       rec.Time,
		Archive:    base,
		Source:     name,
		Points:     rec.Len(),
		Run:        c.run,
		Properties: append([]string{}, rec.Properties...),
	})
}

// Close releases the catalog, if one was opened.
func (c *Converter) Close() error {
	if c.cat == nil {
		return nil
	}
	err := c.cat.Close()
	c.cat = nil
	return err
}
