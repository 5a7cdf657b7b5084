package xpdc

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/xpdc/catalog"
	"github.com/phil-mansfield/xpdc/io"
)

func TestBatchLimits(t *testing.T) {
	table := []struct {
		length, size int
		limits       []io.Range
	}{
		{0, 3, []io.Range{}},
		{1, 3, []io.Range{{Start: 1, End: 1}}},
		{3, 3, []io.Range{{Start: 1, End: 3}}},
		{7, 3, []io.Range{{Start: 1, End: 3}, {Start: 4, End: 6}, {Start: 7, End: 7}}},
		{9, 3, []io.Range{{Start: 1, End: 3}, {Start: 4, End: 6}, {Start: 7, End: 9}}},
		{4, 1, []io.Range{{Start: 1, End: 1}, {Start: 2, End: 2}, {Start: 3, End: 3}, {Start: 4, End: 4}}},
	}

	for _, test := range table {
		limits, err := BatchLimits(test.length, test.size)
		require.NoError(t, err)
		assert.Equal(t, test.limits, limits,
			"length = %d, size = %d", test.length, test.size)
	}

	_, err := BatchLimits(10, 0)
	assert.True(t, errors.Is(err, ErrNoBatchSize))
}

func TestBatchLimitsCover(t *testing.T) {
	for length := 0; length < 50; length++ {
		for size := 1; size < 12; size++ {
			limits, err := BatchLimits(length, size)
			require.NoError(t, err)

			next := 1
			for _, r := range limits {
				assert.Equal(t, next, r.Start)
				assert.True(t, r.Len() >= 1 && r.Len() <= size)
				next = r.End + 1
			}
			assert.Equal(t, length+1, next)
		}
	}
}

func batchConfig(input string) *io.BatchConfig {
	con := &io.DefaultBatchWrapper().Batch
	con.Input = input
	con.Quiet = true
	return con
}

// recordingLauncher remembers the jobs it was given and fails the ones
// listed in fail.
type recordingLauncher struct {
	mu   sync.Mutex
	jobs []*Job
	fail map[int]error
}

func (rl *recordingLauncher) Launch(ctx context.Context, job *Job) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.jobs = append(rl.jobs, job)
	return rl.fail[job.Index]
}

func TestNewBatch(t *testing.T) {
	dir := smallDataset(7).write(t)
	con := batchConfig(dir)
	con.Parallel = true
	con.BatchSize = 3
	con.Jobs = 2

	b, err := NewBatch(con, &recordingLauncher{})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Workers())

	jobs := b.Jobs()
	require.Len(t, jobs, 3)
	ids := map[string]bool{}
	for i, job := range jobs {
		assert.Equal(t, i+1, job.Index)
		assert.Equal(t, b.RunID(), job.Config.Run)
		assert.Equal(t, dir, job.Config.Input)
		assert.Equal(t, filepath.Join(dir, io.DefaultOutputDir), job.Config.Output)
		assert.Equal(t, job.Range.String(), job.Config.Range)
		ids[job.ID] = true
	}
	assert.Len(t, ids, 3)
	assert.Equal(t, io.Range{Start: 7, End: 7}, jobs[2].Range)
}

func TestNewBatchSerial(t *testing.T) {
	dir := smallDataset(5).write(t)
	b, err := NewBatch(batchConfig(dir), &recordingLauncher{})
	require.NoError(t, err)

	require.Len(t, b.Jobs(), 1)
	assert.Equal(t, io.Range{Start: 1, End: 5}, b.Jobs()[0].Range)
	assert.Equal(t, 1, b.Workers())
}

func TestNewBatchErrors(t *testing.T) {
	_, err := NewBatch(batchConfig(""), InlineLauncher{})
	assert.True(t, errors.Is(err, ErrNoInput))

	dir := smallDataset(2).write(t)
	con := batchConfig(dir)
	con.Parallel = true
	con.BatchSize = 0
	_, err = NewBatch(con, InlineLauncher{})
	assert.True(t, errors.Is(err, ErrNoBatchSize))

	con = batchConfig(dir)
	con.Codec = "lz4"
	_, err = NewBatch(con, InlineLauncher{})
	assert.True(t, errors.Is(err, ErrBadCodec))

	_, err = NewBatch(batchConfig(t.TempDir()), InlineLauncher{})
	assert.True(t, errors.Is(err, ErrNoProperties))
}

func TestBatchRunInline(t *testing.T) {
	ds := smallDataset(10)
	dir := ds.write(t)
	con := batchConfig(dir)
	con.Parallel = true
	con.BatchSize = 3
	con.Jobs = 3

	b, err := NewBatch(con, InlineLauncher{})
	require.NoError(t, err)
	require.NoError(t, b.Run(context.Background()))

	out := filepath.Join(dir, io.DefaultOutputDir)
	names := archiveNames(t, out)
	require.Len(t, names, 10)
	assert.Equal(t, "rth_Benchmark_01.xpz", names[0])
	assert.Equal(t, "rth_Benchmark_10.xpz", names[9])

	cat, err := catalog.Open(filepath.Join(out, io.DefaultCatalogName))
	require.NoError(t, err)
	defer cat.Close()
	entries, err := cat.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 10)
	for _, e := range entries {
		assert.Equal(t, b.RunID(), e.Run)
	}
}

func TestBatchRunError(t *testing.T) {
	dir := smallDataset(6).write(t)
	con := batchConfig(dir)
	con.Parallel = true
	con.BatchSize = 2
	con.Jobs = 1

	boom := errors.New("boom")
	rl := &recordingLauncher{fail: map[int]error{2: boom}}
	b, err := NewBatch(con, rl)
	require.NoError(t, err)

	err = b.Run(context.Background())
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "job 2")
}

func TestBatchRunCanceled(t *testing.T) {
	dir := smallDataset(4).write(t)
	con := batchConfig(dir)
	con.Parallel = true
	con.BatchSize = 1

	rl := &recordingLauncher{}
	b, err := NewBatch(con, rl)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(b.Run(ctx), context.Canceled))
	assert.Len(t, rl.jobs, 0)
}

func TestInlineLauncherCanceled(t *testing.T) {
	dir := smallDataset(3).write(t)
	b, err := NewBatch(batchConfig(dir), InlineLauncher{})
	require.NoError(t, err)
	job := b.Jobs()[0]

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = InlineLauncher{}.Launch(ctx, job)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NoDirExists(t, job.Config.OutputDir())
}

func TestConvertArgs(t *testing.T) {
	con := &io.ConvertConfig{
		SharedConfig: io.SharedConfig{
			Input: "data", Output: "data/_processed_data", LogFile: "log.out",
		},
		Range:     "4-6",
		Quiet:     true,
		Codec:     "zstd",
		Catalog:   io.NoCatalog,
		TrustGrid: true,
		Run:       "abc",
	}

	assert.Equal(t, []string{
		"-Convert", "data",
		"-Output", "data/_processed_data",
		"-Range", "4-6",
		"-Codec", "zstd",
		"-Catalog", "none",
		"-Run", "abc",
		"-Log", "log.out",
		"-Quiet", "-TrustGrid",
	}, ConvertArgs(con))

	assert.Equal(t, []string{"-Convert", "in"}, ConvertArgs(
		&io.ConvertConfig{SharedConfig: io.SharedConfig{Input: "in"}},
	))
}
