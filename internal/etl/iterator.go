package etl

import "context"

// ── Iterator ───────────────────────────────────────────────
// Record sequences are lazy, single-pass and forward-only. Once Next returns
// false the sequence is exhausted; Err reports why it stopped.
//
//	for it.Next(ctx) {
//		rec := it.Record()
//	}
//	if err := it.Err(); err != nil { ... }

// Iterator is a pull-based record sequence.
type Iterator interface {
	// Next advances to the next record. It returns false at the end of the
	// sequence, on error, or when ctx is done.
	Next(ctx context.Context) bool
	// Record returns the current record. Valid only after Next returned true.
	Record() *Record
	// Err returns the error that stopped iteration, if any.
	Err() error
	// Close releases resources held by the sequence. Safe to call twice.
	Close() error
}

// ── Slice iterator ─────────────────────────────────────────

type sliceIterator struct {
	records []*Record
	pos     int
	cur     *Record
	err     error
}

// SliceIterator returns a fresh sequence over records.
func SliceIterator(records []*Record) Iterator {
	return &sliceIterator{records: records}
}

// EmptyIterator returns an exhausted sequence.
func EmptyIterator() Iterator {
	return &sliceIterator{}
}

func (s *sliceIterator) Next(ctx context.Context) bool {
	if s.err != nil || s.pos >= len(s.records) {
		return false
	}
	if err := ctx.Err(); err != nil {
		s.err = err
		return false
	}
	s.cur = s.records[s.pos]
	s.pos++
	return true
}

func (s *sliceIterator) Record() *Record { return s.cur }
func (s *sliceIterator) Err() error      { return s.err }
func (s *sliceIterator) Close() error    { return nil }

// ── Func iterator ──────────────────────────────────────────

type funcIterator struct {
	next   func(ctx context.Context) (*Record, bool, error)
	close  func() error
	cur    *Record
	err    error
	done   bool
	closed bool
}

// FuncIterator adapts a pull function. next returns (record, true, nil) for
// each record and (nil, false, err) at the end; closeFn may be nil.
func FuncIterator(next func(ctx context.Context) (*Record, bool, error), closeFn func() error) Iterator {
	return &funcIterator{next: next, close: closeFn}
}

func (f *funcIterator) Next(ctx context.Context) bool {
	if f.done {
		return false
	}
	if err := ctx.Err(); err != nil {
		f.err = err
		f.done = true
		return false
	}
	rec, ok, err := f.next(ctx)
	if !ok || err != nil {
		f.err = err
		f.done = true
		f.cur = nil
		return false
	}
	f.cur = rec
	return true
}

func (f *funcIterator) Record() *Record { return f.cur }
func (f *funcIterator) Err() error      { return f.err }

func (f *funcIterator) Close() error {
	if f.closed || f.close == nil {
		return nil
	}
	f.closed = true
	return f.close()
}

// ── Combinators ────────────────────────────────────────────

// FilterIterator yields the records of in for which keep returns true.
func FilterIterator(in Iterator, keep func(*Record) bool) Iterator {
	return FuncIterator(func(ctx context.Context) (*Record, bool, error) {
		for in.Next(ctx) {
			if rec := in.Record(); keep(rec) {
				return rec, true, nil
			}
		}
		return nil, false, in.Err()
	}, in.Close)
}

// MapIterator yields fn applied to every record of in. An error from fn
// stops the sequence.
func MapIterator(in Iterator, fn func(*Record) (*Record, error)) Iterator {
	return FuncIterator(func(ctx context.Context) (*Record, bool, error) {
		if !in.Next(ctx) {
			return nil, false, in.Err()
		}
		out, err := fn(in.Record())
		if err != nil {
			return nil, false, err
		}
		return out, true, nil
	}, in.Close)
}

// Drain consumes it fully and closes it.
func Drain(ctx context.Context, it Iterator) ([]*Record, error) {
	defer it.Close()
	var out []*Record
	for it.Next(ctx) {
		out = append(out, it.Record())
	}
	return out, it.Err()
}
