package parallel

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one mapped element.
type Result[D any] struct {
	Value D
	Err   error
}

// Map calls mapFunc for every element of in, running at most limit calls at
// once (limit <= 0 means no limit), and waits for all of them. The results
// keep the order of in. Elements not started before ctx is done get
// ctx.Err() as their error.
//
//	for i, r := range parallel.Map(ctx, 4, paths, check) {}
func Map[E, D any](ctx context.Context, limit int, in []E, mapFunc func(context.Context, E) (D, error)) []Result[D] {
	out := make([]Result[D], len(in))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, e := range in {
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			out[i].Value, out[i].Err = mapFunc(ctx, e)
			return nil
		})
	}
	_ = g.Wait() // mapFunc errors are kept per element
	return out
}

// Values returns the values of rs and all their errors joined.
func Values[D any](rs []Result[D]) ([]D, error) {
	values := make([]D, 0, len(rs))
	var errs []error
	for _, r := range rs {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		values = append(values, r.Value)
	}
	return values, errors.Join(errs...)
}
