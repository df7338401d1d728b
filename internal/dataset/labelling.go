package dataset

import "fmt"

// Batch is a group of records handed to the caller for labelling.
type Batch []map[string]any

// Computation is a resumable unit of work over the records of a labelling
// session. Advance yields the next batch to label, or reports exhaustion;
// Resume delivers the labels for the batch yielded by the previous Advance.
// A computation is suspended after yielding a batch and stays suspended until
// a submission is absorbed.
//
// Implementations are not safe for concurrent use; callers serialize access
// per session.
type Computation interface {
	// Advance returns (batch, true, nil) when a batch is available and
	// (nil, false, nil) once the underlying data is exhausted. Calling
	// Advance while a submission is outstanding is an error.
	Advance() (Batch, bool, error)

	// Resume delivers the submission for the most recently yielded batch.
	Resume(submission []map[string]any) error
}

// batchComputation walks a fixed record slice in fixed-size batches,
// accumulating submitted labels as it goes.
type batchComputation struct {
	records   []map[string]any
	batchSize int
	cursor    int

	pending   bool
	exhausted bool
	labelled  []map[string]any
}

func newBatchComputation(records []map[string]any, batchSize int) *batchComputation {
	return &batchComputation{records: records, batchSize: batchSize}
}

func (c *batchComputation) Advance() (Batch, bool, error) {
	if c.pending {
		return nil, false, fmt.Errorf("cannot advance: submission outstanding for previous batch")
	}
	if c.exhausted || c.cursor >= len(c.records) {
		c.exhausted = true
		return nil, false, nil
	}

	end := c.cursor + c.batchSize
	if end > len(c.records) {
		end = len(c.records)
	}

	batch := Batch(c.records[c.cursor:end])
	c.cursor = end
	c.pending = true

	return batch, true, nil
}

func (c *batchComputation) Resume(submission []map[string]any) error {
	if !c.pending {
		return fmt.Errorf("cannot resume: no batch outstanding")
	}

	c.labelled = append(c.labelled, submission...)
	c.pending = false

	return nil
}

// Labelled returns the labels accumulated so far.
func (c *batchComputation) Labelled() []map[string]any {
	return c.labelled
}
