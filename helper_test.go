package xpdc

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// dataset describes a synthetic XPDC output directory.
type dataset struct {
	props []string
	steps []int // Iteration numbers.
	nr    int   // Radial grid points.
	nth   int   // Angular grid points.
}

func (ds dataset) time(step int) float64 { return float64(step) * 2.5e-10 }

func (ds dataset) value(prop string, step, i int) float64 {
	return float64(len(prop)*1000+step) + float64(i)/8
}

func (ds dataset) fileName(step int) string {
	return fmt.Sprintf("rth_Benchmark_%d.txt", step)
}

func (ds dataset) text(prop string, step int) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "VARIABLES = \"r\" \"theta\" \"%s\"\n", prop)
	fmt.Fprintf(sb, "ZONE T= %.6es\n", ds.time(step))
	i := 0
	for ir := 0; ir < ds.nr; ir++ {
		for ith := 0; ith < ds.nth; ith++ {
			r := 0.1 + 0.05*float64(ir)
			th := 2 * math.Pi * float64(ith) / float64(ds.nth)
			fmt.Fprintf(sb, "%.8e %.8e %.8e\n", r, th, ds.value(prop, step, i))
			i++
		}
	}
	return sb.String()
}

// write creates the dataset inside a new temporary directory and returns the
// directory.
func (ds dataset) write(t *testing.T) string {
	dir := t.TempDir()
	for _, prop := range ds.props {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, prop), 0777))
		for _, step := range ds.steps {
			fname := filepath.Join(dir, prop, ds.fileName(step))
			require.NoError(t, os.WriteFile(
				fname, []byte(ds.text(prop, step)), 0644,
			))
		}
	}
	return dir
}

func steps(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func smallDataset(n int) dataset {
	return dataset{
		props: []string{"den1", "den2", "phi"},
		steps: steps(n),
		nr:    3,
		nth:   4,
	}
}
