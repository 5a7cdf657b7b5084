package xpdc

import (
	"context"
	"fmt"
	stdio "io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/phil-mansfield/xpdc/io"
)

// BatchLimits splits the 1-based indices [1, length] into consecutive
// ranges of at most size indices. The ranges never overlap and together cover
// every index.
func BatchLimits(length, size int) ([]io.Range, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNoBatchSize, size)
	}

	limits := []io.Range{}
	for start := 1; start <= length; start += size {
		end := start + size - 1
		if end > length {
			end = length
		}
		limits = append(limits, io.Range{Start: start, End: end})
	}
	return limits, nil
}

// Job is a single conversion within a Batch.
type Job struct {
	ID     string
	Index  int // 1-based position within the batch.
	Range  io.Range
	Config *io.ConvertConfig
}

// Launcher runs a Job to completion.
type Launcher interface {
	Launch(ctx context.Context, job *Job) error
}

// InlineLauncher runs jobs inside the current process. Every job gets its
// own Converter.
type InlineLauncher struct{}

func (InlineLauncher) Launch(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c, err := NewConverter(job.Config)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.ConvertContext(ctx)
}

// ProcessLauncher runs every job as a child process of Executable in
// -Convert mode.
type ProcessLauncher struct {
	Executable     string
	Stdout, Stderr stdio.Writer
}

// NewProcessLauncher returns a launcher for exe. If exe is empty, the running
// binary is used.
func NewProcessLauncher(exe string) (*ProcessLauncher, error) {
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return nil, err
		}
	}
	return &ProcessLauncher{exe, os.Stdout, os.Stderr}, nil
}

func (pl *ProcessLauncher) Launch(ctx context.Context, job *Job) error {
	cmd := exec.CommandContext(ctx, pl.Executable, ConvertArgs(job.Config)...)
	cmd.Stdout, cmd.Stderr = pl.Stdout, pl.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", filepath.Base(pl.Executable),
			strings.Join(cmd.Args[1:], " "), err)
	}
	return nil
}

// ConvertArgs returns the command line flags which run con in -Convert mode.
func ConvertArgs(con *io.ConvertConfig) []string {
	args := []string{"-Convert", con.Input}
	add := func(flag, val string) {
		if val != "" {
			args = append(args, flag, val)
		}
	}

	add("-Output", con.Output)
	add("-File", con.File)
	add("-Range", con.Range)
	add("-Codec", con.Codec)
	add("-Catalog", con.Catalog)
	add("-Run", con.Run)
	add("-Log", con.LogFile)
	if con.Quiet {
		args = append(args, "-Quiet")
	}
	if con.TrustGrid {
		args = append(args, "-TrustGrid")
	}
	return args
}

// Batch is a set of conversions over disjoint ranges of one input
// directory.
type Batch struct {
	con      io.BatchConfig
	launcher Launcher
	run      string
	files    int
	jobs     []*Job
}

// NewBatch validates con and splits the input files into jobs. The split is
// computed once, here, so no two jobs can share a file.
func NewBatch(con *io.BatchConfig, launcher Launcher) (*Batch, error) {
	b := &Batch{con: *con, launcher: launcher, run: uuid.NewString()}

	switch {
	case !con.ValidInput():
		return nil, ErrNoInput
	case con.Parallel && !con.ValidBatchSize():
		return nil, fmt.Errorf("%w: got %d", ErrNoBatchSize, con.BatchSize)
	case con.Parallel && !con.ValidJobs():
		return nil, fmt.Errorf("Jobs must be positive, got %d", con.Jobs)
	case !con.ValidCodec():
		return nil, fmt.Errorf("%w: '%s'", ErrBadCodec, con.Codec)
	}

	props, err := Properties(con.Input)
	if err != nil {
		return nil, err
	}
	files, err := InputFiles(filepath.Join(con.Input, props[0]))
	if err != nil {
		return nil, err
	}
	b.files = len(files)

	limits := []io.Range{{Start: 1, End: len(files)}}
	if con.Parallel {
		if limits, err = BatchLimits(len(files), con.BatchSize); err != nil {
			return nil, err
		}
	}

	for i, r := range limits {
		b.jobs = append(b.jobs, &Job{
			ID:     uuid.NewString(),
			Index:  i + 1,
			Range:  r,
			Config: con.ConvertConfig(r, b.run),
		})
	}

	return b, nil
}

// Jobs returns the jobs in range order.
func (b *Batch) Jobs() []*Job { return b.jobs }

// RunID returns the identifier shared by every job in the batch.
func (b *Batch) RunID() string { return b.run }

// Workers returns the number of jobs which run at once.
func (b *Batch) Workers() int {
	if !b.con.Parallel {
		return 1
	}
	if b.con.Jobs < len(b.jobs) {
		return b.con.Jobs
	}
	return len(b.jobs)
}

type jobResult struct {
	job *Job
	err error
}

// Run runs every job and waits for them to finish. The first failure
// cancels the jobs which haven't finished and is returned.
func (b *Batch) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := b.Workers()
	if !b.con.Quiet {
		log.Printf(
			"Converting %d files in %d job(s) with %d worker(s). Run %s.",
			b.files, len(b.jobs), workers, b.run,
		)
	}

	in := make(chan *Job, len(b.jobs))
	for _, job := range b.jobs {
		in <- job
	}
	close(in)

	out := make(chan jobResult, len(b.jobs))
	for w := 0; w < workers; w++ {
		go func() {
			for job := range in {
				if err := ctx.Err(); err != nil {
					out <- jobResult{job, err}
					continue
				}
				if !b.con.Quiet {
					log.Printf("Starting job %d/%d (files %s, id %s).",
						job.Index, len(b.jobs), job.Range, job.ID)
				}
				out <- jobResult{job, b.launcher.Launch(ctx, job)}
			}
		}()
	}

	var first error
	for range b.jobs {
		res := <-out
		if res.err != nil && first == nil {
			first = fmt.Errorf("job %d (files %s): %w",
				res.job.Index, res.job.Range, res.err)
			cancel()
		}
	}
	return first
}
