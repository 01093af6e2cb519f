// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited wraps a Store and throttles the bytes moved by Get and Put.
type Limited struct {
	inner   Store
	limiter *rate.Limiter
	burst   int
}

// NewLimited returns a store that moves at most bytesPerSecond through
// inner, with bursts of up to one second's worth.
func NewLimited(inner Store, bytesPerSecond int) *Limited {
	bytesPerSecond = max(bytesPerSecond, 1)
	return &Limited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond),
		burst:   bytesPerSecond,
	}
}

// wait reserves n bytes of throughput. The limiter refuses single
// requests above its burst, so large objects are admitted in
// burst-sized steps.
func (l *Limited) wait(ctx context.Context, n int) error {
	for n > 0 {
		step := min(n, l.burst)
		if err := l.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// Get implements Store. The wait is charged after the read, once the
// object's size is known.
func (l *Limited) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := l.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := l.wait(ctx, len(data)); err != nil {
		return nil, err
	}
	return data, nil
}

// Put implements Store.
func (l *Limited) Put(ctx context.Context, name string, data []byte) error {
	if err := l.wait(ctx, len(data)); err != nil {
		return err
	}
	return l.inner.Put(ctx, name, data)
}

// Delete implements Store.
func (l *Limited) Delete(ctx context.Context, name string) error {
	return l.inner.Delete(ctx, name)
}

// List implements Store.
func (l *Limited) List(ctx context.Context, prefix string) ([]string, error) {
	return l.inner.List(ctx, prefix)
}
