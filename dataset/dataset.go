// Package dataset loads labeled example vectors from CSV for the pn trainer.
// The expected shape is one example per row: an integer label in the first
// column, the vector components in the rest.
package dataset

import (
	"io"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Dataset is a fully loaded training set, flattened for buffer upload.
type Dataset struct {
	// Examples holds ExamplesCount*VectorLength floats, row-major.
	Examples []float32
	// Labels holds one integer class per example.
	Labels []uint32
	// ExamplesCount is the number of rows loaded.
	ExamplesCount int
	// VectorLength is the component count per example, including the static
	// component when one is configured.
	VectorLength int
	// OutputsCount is the number of label classes, max label + 1: labels
	// index tally rows directly, so gaps in the label range still count.
	OutputsCount int
}

// Options configure CSV loading.
type Options struct {
	// Delimiter between columns; ',' when zero.
	Delimiter rune
	// Static, when set, appends a constant component to every example
	// vector. A large constant acts as the bias term of the dot products.
	Static *float32
}

// ReadCSV loads a dataset. Rows whose first column is not a non-negative
// integer are skipped, which tolerates a title row; a non-numeric value in
// any other column of a kept row is an error, as are ragged rows.
func ReadCSV(r io.Reader, opts Options) (*Dataset, error) {
	delimiter := opts.Delimiter
	if delimiter == 0 {
		delimiter = ','
	}

	df := dataframe.ReadCSV(r, dataframe.WithDelimiter(delimiter), dataframe.HasHeader(false))
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "dataset: read csv")
	}
	if df.Ncol() < 2 {
		return nil, errors.Errorf("dataset: %d columns, need a label and at least one component", df.Ncol())
	}

	vectorLength := df.Ncol() - 1
	if opts.Static != nil {
		vectorLength++
	}

	d := &Dataset{VectorLength: vectorLength}
	maxLabel := -1
	for row := 0; row < df.Nrow(); row++ {
		label := df.Elem(row, 0).Float()
		if math.IsNaN(label) || label < 0 || label != math.Trunc(label) {
			klog.V(2).Infof("dataset: skipping row %d, label %q is not an integer", row, df.Elem(row, 0).String())
			continue
		}

		for col := 1; col < df.Ncol(); col++ {
			v := df.Elem(row, col).Float()
			if math.IsNaN(v) {
				return nil, errors.Errorf("dataset: row %d column %d: %q is not a number", row, col, df.Elem(row, col).String())
			}
			d.Examples = append(d.Examples, float32(v))
		}
		if opts.Static != nil {
			d.Examples = append(d.Examples, *opts.Static)
		}

		d.Labels = append(d.Labels, uint32(label))
		maxLabel = max(maxLabel, int(label))
		d.ExamplesCount++
	}
	if d.ExamplesCount == 0 {
		return nil, errors.New("dataset: no examples")
	}
	d.OutputsCount = maxLabel + 1

	klog.V(1).Infof("dataset: %d examples of %d components, %d classes", d.ExamplesCount, d.VectorLength, d.OutputsCount)
	return d, nil
}
