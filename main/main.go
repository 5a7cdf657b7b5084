package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/phil-mansfield/xpdc"
	"github.com/phil-mansfield/xpdc/catalog"
	"github.com/phil-mansfield/xpdc/io"
	"github.com/phil-mansfield/xpdc/render"
)

// FileGroup contains utility files for logging.
type FileGroup struct {
	log *os.File
}

// Close closes the files inside FileGroup.
func (fg *FileGroup) Close() {
	if fg.log != nil {
		err := fg.log.Close()
		if err != nil { log.Fatal(err.Error()) }
	}
}

// setupLog redirects the global logger to fname, if it is non-empty.
func setupLog(fname string) *FileGroup {
	fg := &FileGroup{}
	if fname == "" { return fg }

	f, err := os.OpenFile(fname, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil { log.Fatal(err.Error()) }
	log.SetOutput(f)
	fg.log = f
	return fg
}

func main() {
	var (
		convert, convertConfig, batch, renderStr string
		listCatalog, exampleConfig string
	)
	vars := map[string]*string{
		"Convert":       &convert,
		"ConvertConfig": &convertConfig,
		"Batch":         &batch,
		"Render":        &renderStr,
		"ListCatalog":   &listCatalog,
		"ExampleConfig": &exampleConfig,
	}

	flag.StringVar(
		&convert, "Convert", "",
		"Input directory for [Convert] mode. The remaining [Convert] "+
			"parameters are given by the flags below.",
	)
	flag.StringVar(
		&convertConfig, "ConvertConfig", "",
		"Configuration file for [Convert] mode.",
	)
	flag.StringVar(
		&batch, "Batch", "", "Configuration file for [Batch] mode.",
	)
	flag.StringVar(
		&renderStr, "Render", "", "Configuration file for [Render] mode.",
	)
	flag.StringVar(
		&listCatalog, "ListCatalog", "",
		"Prints the contents of the given catalog file to stdout.",
	)
	flag.StringVar(
		&exampleConfig,
		"ExampleConfig", "", "Prints an example configuration file of the "+
			"specified type to stdout. Accepted arguments are 'Convert', "+
			"'Batch', and 'Render'.",
	)

	// Options for -Convert mode. These mirror the [Convert] config file.
	cc := &io.DefaultConvertWrapper().Convert
	flag.StringVar(&cc.File, "File", "", "Convert only this file.")
	flag.StringVar(
		&cc.Range, "Range", "",
		"Inclusive, 1-based range of files to convert, e.g. 1-300.",
	)
	flag.StringVar(&cc.Output, "Output", "", "Output directory.")
	flag.BoolVar(&cc.Quiet, "Quiet", false, "Don't log every archive.")
	flag.StringVar(&cc.Catalog, "Catalog", "",
		"Catalog file, or 'none'. Defaults to catalog.db in the output "+
			"directory.")
	flag.StringVar(&cc.Codec, "Codec", cc.Codec, "One of 'zstd' or 'raw'.")
	flag.BoolVar(&cc.TrustGrid, "TrustGrid", false,
		"Only check row counts across the property files of a timestep.")
	flag.StringVar(&cc.Run, "Run", "", "Run identifier for the catalog.")
	flag.StringVar(&cc.LogFile, "Log", "", "Appends log output to this file.")

	flag.Parse()

	modeName, err := getModeName(vars)
	if err != nil { log.Fatal(err.Error()) }

	switch modeName {
	case "Convert":
		cc.Input = convert
		convertMain(cc)

	case "ConvertConfig":
		con, err := io.ReadConvertConfig(convertConfig)
		if err != nil { log.Fatal(err.Error()) }
		convertMain(con)

	case "Batch":
		con, err := io.ReadBatchConfig(batch)
		if err != nil { log.Fatal(err.Error()) }

		if !con.ValidInput() {
			log.Fatal("Invalid/non-existent 'Input' value.")
		} else if con.Parallel && !con.ValidBatchSize() {
			log.Fatal("Invalid 'BatchSize' value.")
		} else if con.Parallel && !con.ValidJobs() {
			log.Fatal("Invalid 'Jobs' value.")
		} else if !con.ValidLauncher() {
			log.Fatal("Invalid 'Launcher' value. Accepted values are " +
				"'process' and 'inline'.")
		} else if !con.ValidCodec() {
			log.Fatal("Invalid 'Codec' value.")
		}
		batchMain(con)

	case "Render":
		con, err := io.ReadRenderConfig(renderStr)
		if err != nil { log.Fatal(err.Error()) }

		if !con.ValidInput() {
			log.Fatal("Invalid/non-existent 'Input' value.")
		} else if !con.ValidOutput() {
			log.Fatal("Invalid/non-existent 'Output' value.")
		} else if !con.ValidIteration() {
			log.Fatal("Invalid/non-existent 'Iteration' value.")
		} else if !con.ValidProperty() {
			log.Fatal("Invalid/non-existent 'Property' value.")
		} else if !con.ValidScale() {
			log.Fatal("'Scale' cannot be zero.")
		} else if !con.ValidSize() {
			log.Fatal("'Width' and 'Height' must be positive.")
		}
		renderMain(con)

	case "ListCatalog":
		listCatalogMain(listCatalog)

	case "ExampleConfig":
		switch exampleConfig {
		case "Convert":
			fmt.Println(io.ExampleConvertFile)
		case "Batch":
			fmt.Println(io.ExampleBatchFile)
		case "Render":
			fmt.Println(io.ExampleRenderFile)
		default:
			log.Fatal(
				"Unrecognized 'ExampleConfig' argument. Only recognized " +
					"arguments are 'Convert', 'Batch', and 'Render'.",
			)
		}
	default:
		panic("Impossible")
	}
}

// getModeName returns the name of the mode and fails with a descriptive error
// if the user provided less or more than one mode flag.
func getModeName(vars map[string]*string) (string, error) {
	setNames := []string{}

	for name, varPtr := range vars {
		if *varPtr != "" { setNames = append(setNames, name) }
	}

	if len(setNames) == 0 {
		return "", fmt.Errorf("No mode flags have been set.")
	}

	if len(setNames) > 1 {
		return "", fmt.Errorf(
			"The following flags were set: %s, but xpdc only accepts "+
				"one mode flag at a time.",
			strings.Join(setNames, ", "),
		)
	}

	return setNames[0], nil
}

func convertMain(con *io.ConvertConfig) {
	fg := setupLog(con.LogFile)
	defer fg.Close()

	if err := checkConvertConfig(con); err != nil { log.Fatal(err.Error()) }

	c, err := xpdc.NewConverter(con)
	if err != nil { log.Fatal(err.Error()) }

	err = c.Convert()
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	if err != nil { log.Fatal(err.Error()) }
}

// checkConvertConfig rejects configs that can't be converted. Range is
// ignored when File is set.
func checkConvertConfig(con *io.ConvertConfig) error {
	if !con.ValidInput() {
		return fmt.Errorf("Invalid/non-existent 'Input' value.")
	} else if !con.ValidFile() && !con.ValidRange() {
		return fmt.Errorf("Invalid 'Range' value '%s'. Ranges have the "+
			"form start-end with 1 <= start <= end.", con.Range)
	} else if !con.ValidCodec() {
		return fmt.Errorf("Invalid 'Codec' value '%s'.", con.Codec)
	}
	return nil
}

func batchMain(con *io.BatchConfig) {
	fg := setupLog(con.LogFile)
	defer fg.Close()

	var launcher xpdc.Launcher
	switch strings.ToLower(con.Launcher) {
	case "inline":
		launcher = xpdc.InlineLauncher{}
	default:
		pl, err := xpdc.NewProcessLauncher(con.Executable)
		if err != nil { log.Fatal(err.Error()) }
		launcher = pl
	}

	b, err := xpdc.NewBatch(con, launcher)
	if err != nil { log.Fatal(err.Error()) }

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := b.Run(ctx); err != nil { log.Fatal(err.Error()) }
	if !con.Quiet {
		log.Printf("Finished %d job(s). Run %s.", len(b.Jobs()), b.RunID())
	}
}

func renderMain(con *io.RenderConfig) {
	fg := setupLog(con.LogFile)
	defer fg.Close()

	opts, err := render.ConfigOptions(con)
	if err != nil { log.Fatal(err.Error()) }

	arc, err := render.Load(con)
	if err != nil { log.Fatal(err.Error()) }

	err = render.Render(arc, opts, con.Output)
	if err != nil { log.Fatal(err.Error()) }
	log.Printf("Wrote %s", con.Output)
}

func listCatalogMain(fname string) {
	cat, err := catalog.OpenReadOnly(fname)
	if err != nil { log.Fatal(err.Error()) }
	defer cat.Close()

	entries, err := cat.Entries()
	if err != nil { log.Fatal(err.Error()) }

	fmt.Printf("# %9s %12s %8s %-36s %-28s %s\n",
		"Iteration", "Time", "Points", "Run", "Archive", "Properties")
	for _, e := range entries {
		fmt.Printf("  %9d %12.4e %8d %-36s %-28s %s\n",
			e.Iteration, e.Time, e.Points, e.Run, e.Archive,
			strings.Join(e.Properties, ","))
	}
}
