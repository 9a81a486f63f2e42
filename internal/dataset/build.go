package dataset

import (
	"fmt"
	"sync"
)

// ErrorPolicy controls how Build reacts to bad records.
type ErrorPolicy int

const (
	// Strict aborts on the first bad record.
	Strict ErrorPolicy = iota
	// Lenient skips bad records and collects their errors.
	Lenient
)

// BuildOptions configures batch triplet construction.
type BuildOptions struct {
	DefaultSystem string
	Policy        ErrorPolicy

	// Workers bounds parallelism. Zero or one means sequential. Records
	// are independent, so output order is preserved regardless.
	Workers int
}

// BuildResult carries the triplets plus per-record errors seen under the
// Lenient policy.
type BuildResult struct {
	Triplets []Triplet
	Skipped  []error
}

// Build maps BuildTriplet over examples. Under Strict the first failure
// is returned with its record index; under Lenient failing records are
// dropped and reported in Skipped.
func Build(examples []Example, opts BuildOptions) (*BuildResult, error) {
	if opts.Workers > 1 {
		return buildParallel(examples, opts)
	}

	res := &BuildResult{}
	for i, ex := range examples {
		t, err := BuildTriplet(ex, opts.DefaultSystem)
		if err != nil {
			err = fmt.Errorf("record %d: %w", i, err)
			if opts.Policy == Strict {
				return nil, err
			}
			res.Skipped = append(res.Skipped, err)
			continue
		}
		res.Triplets = append(res.Triplets, t)
	}
	return res, nil
}

func buildParallel(examples []Example, opts BuildOptions) (*BuildResult, error) {
	type slot struct {
		t   Triplet
		err error
	}
	slots := make([]slot, len(examples))

	var wg sync.WaitGroup
	sem := make(chan struct{}, opts.Workers)
	for i := range examples {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			t, err := BuildTriplet(examples[i], opts.DefaultSystem)
			slots[i] = slot{t: t, err: err}
		}(i)
	}
	wg.Wait()

	res := &BuildResult{}
	for i, s := range slots {
		if s.err != nil {
			err := fmt.Errorf("record %d: %w", i, s.err)
			if opts.Policy == Strict {
				return nil, err
			}
			res.Skipped = append(res.Skipped, err)
			continue
		}
		res.Triplets = append(res.Triplets, s.t)
	}
	return res, nil
}
