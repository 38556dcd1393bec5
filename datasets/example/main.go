package main

// Example command that loads a metadata table and a panel, builds the
// flattened training table for one evaluation date and converts a small
// batch into gomlx tensors using the helpers provided in the package.
//
// Usage:
//   go run ./datasets/example -assets data/input
//
// The assets directory must contain raw/meta_data.csv and a cleaned/ folder
// with the panel CSV.

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/Noofbiz/nowcast/datasets"
	"github.com/Noofbiz/nowcast/features"
)

func main() {
	assets := flag.String("assets", "data/input", "directory holding raw/ and cleaned/")
	target := flag.String("target", "gdpc1", "target column")
	asOf := flag.String("as-of", "2005-03-01", "evaluation date")
	flag.Parse()

	meta, err := datasets.LoadMetadata(filepath.Join(*assets, "raw", "meta_data.csv"))
	if err != nil {
		log.Fatalf("failed to load metadata: %v", err)
	}
	panelPath, err := datasets.FindCSVInAssets(filepath.Join(*assets, "cleaned"), "")
	if err != nil {
		log.Fatalf("failed to find panel: %v", err)
	}
	panel, err := datasets.LoadPanel(panelPath)
	if err != nil {
		log.Fatalf("failed to load panel: %v", err)
	}
	if panel, err = panel.AsMonthly(); err != nil {
		log.Fatalf("failed to reindex panel: %v", err)
	}
	fmt.Printf("Loaded %d series of metadata and a %dx%d panel from %s\n", meta.Len(), panel.Len(), panel.Width(), panelPath)

	d, err := datasets.ParseDate(*asOf)
	if err != nil {
		log.Fatalf("bad -as-of: %v", err)
	}
	train := panel.Until(datasets.AddMonths(d, -3))
	filled, err := features.MeanFill(train, train)
	if err != nil {
		log.Fatalf("failed to fill: %v", err)
	}
	flat, err := features.Flatten(filled, *target, 4)
	if err != nil {
		log.Fatalf("failed to flatten: %v", err)
	}
	flat = flat.FilterRows(func(_ int, t time.Time) bool { return datasets.IsQuarterEnd(t) }).DropIncomplete()

	ds, err := datasets.NewTrainingSet(flat, *target)
	if err != nil {
		log.Fatalf("failed to build training set: %v", err)
	}
	fmt.Printf("Training set for %s: %d rows x %d features\n", d.Format(datasets.DateLayout), ds.Len(), ds.Dim())

	// Prepare a small batch (first N examples)
	n := min(8, ds.Len())
	indices := make([]int, n)
	for i := range n {
		indices[i] = i
	}
	inputs, labels, err := ds.Batch(indices)
	if err != nil {
		log.Fatalf("failed to build batch: %v", err)
	}

	// Convert to flat contiguous buffers and then to gomlx tensors
	b, err := datasets.MakeBatchFlat(inputs, labels)
	if err != nil {
		log.Fatalf("failed to make batch flat: %v", err)
	}
	inT, laT, err := b.ToGomlxTensors()
	if err != nil {
		log.Fatalf("failed to convert batch to gomlx tensors: %v", err)
	}
	fmt.Printf("Created tensors: input=%s label=%s\n", inT.Shape(), laT.Shape())
	if len(inputs) > 0 {
		fmt.Printf("  First example label: %v\n", labels[0])
	}

	// Stream the whole set through the Dataset interface, 8 rows at a time.
	ds.BatchSize = 8
	var src datasets.Dataset = ds
	src.Shuffle(1)
	batches := 0
	for {
		_, in, _, err := src.Yield()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("failed to yield batch: %v", err)
		}
		batches++
		fmt.Printf("  batch %d: %s\n", batches, in[0].Shape())
	}
}
