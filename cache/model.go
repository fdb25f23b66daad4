/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package cache

import (
	"context"
	"time"

	libatm "github.com/jaustindavid/backupnet/atomic"
	cchitm "github.com/jaustindavid/backupnet/cache/item"
)

// cc is the Cache implementation: a typed atomic map of expiring items bound
// to a cancellable context.
type cc[K comparable, V any] struct {
	context.Context

	n context.CancelFunc
	v libatm.MapTyped[K, cchitm.CacheItem[V]]
	e time.Duration
}

func (o *cc[K, V]) Clone(ctx context.Context) (Cache[K, V], error) {
	if ctx == nil {
		ctx = o.Context
	}

	n := New[K, V](ctx, o.e)
	o.Walk(func(key K, val V, _ time.Duration) bool {
		n.Store(key, val)
		return true
	})

	return n, nil
}

func (o *cc[K, V]) Merge(c Cache[K, V]) {
	if c == nil {
		return
	}

	c.Walk(func(key K, val V, _ time.Duration) bool {
		o.Store(key, val)
		return true
	})
}

func (o *cc[K, V]) Walk(fct func(K, V, time.Duration) bool) {
	o.v.Range(func(key K, itm cchitm.CacheItem[V]) bool {
		if val, rem, ok := itm.LoadRemain(); ok {
			return fct(key, val, rem)
		}
		return true
	})
}

func (o *cc[K, V]) Load(key K) (V, time.Duration, bool) {
	if itm, ok := o.v.Load(key); ok {
		if val, rem, k := itm.LoadRemain(); k {
			return val, rem, true
		}
		o.v.Delete(key)
	}

	var zero V
	return zero, 0, false
}

func (o *cc[K, V]) Store(key K, val V) {
	o.v.Store(key, cchitm.New(o.e, val))
}

func (o *cc[K, V]) Delete(key K) {
	if itm, ok := o.v.LoadAndDelete(key); ok {
		itm.Clean()
	}
}

func (o *cc[K, V]) LoadOrStore(key K, val V) (V, time.Duration, bool) {
	if v, rem, ok := o.Load(key); ok {
		return v, rem, true
	}

	o.Store(key, val)
	return val, o.e, false
}

func (o *cc[K, V]) LoadAndDelete(key K) (V, bool) {
	if itm, ok := o.v.LoadAndDelete(key); ok {
		if val, k := itm.Load(); k {
			itm.Clean()
			return val, true
		}
	}

	var zero V
	return zero, false
}

func (o *cc[K, V]) Swap(key K, val V) (V, time.Duration, bool) {
	old, rem, ok := o.Load(key)
	o.Store(key, val)
	return old, rem, ok
}
