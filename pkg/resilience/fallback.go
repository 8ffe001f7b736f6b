/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/patrickmn/go-cache"

	"github.com/stellarops/stellarops/pkg/errors"
	"github.com/stellarops/stellarops/pkg/logging"
)

const (
	fallbackCacheTTL      = 15 * time.Minute
	fallbackCacheInterval = 5 * time.Minute
)

// FallbackCache holds last-known-good results for reads that can be served
// stale while a downstream is unavailable.
type FallbackCache struct {
	cache *cache.Cache
}

func NewFallbackCache() *FallbackCache {
	return &FallbackCache{cache: cache.New(fallbackCacheTTL, fallbackCacheInterval)}
}

// CacheKey builds a stable key for a structured request.
func CacheKey(op string, request any) string {
	hv, _ := hashstructure.Hash(request, hashstructure.FormatV2, nil)
	return fmt.Sprintf("%s/%d", op, hv)
}

// FallbackOptions configure WithFallback. A zero CacheKey disables caching.
type FallbackOptions[T any] struct {
	Fallback func(ctx context.Context) (T, error)
	CacheKey string
}

// WithFallback runs primary and, when it fails with CircuitOpen or Timeout,
// serves the cached result if present and otherwise the fallback. Successful
// results refresh the cache. Other errors pass through untouched.
func WithFallback[T any](ctx context.Context, fc *FallbackCache, op string, primary func(ctx context.Context) (T, error), opts FallbackOptions[T]) (T, error) {
	out, err := primary(ctx)
	if err == nil {
		if opts.CacheKey != "" {
			fc.cache.SetDefault(opts.CacheKey, out)
		}
		return out, nil
	}
	if !errors.IsCircuitOpen(err) && !errors.IsTimeout(err) {
		return out, err
	}
	if opts.CacheKey != "" {
		if cached, ok := fc.cache.Get(opts.CacheKey); ok {
			logging.FromContext(ctx).With("operation", op).Debugf("serving cached result, %v", err)
			fallbackTotal.WithLabelValues(op, fallbackSourceCache).Inc()
			return cached.(T), nil
		}
	}
	if opts.Fallback != nil {
		fallbackTotal.WithLabelValues(op, fallbackSourceFunc).Inc()
		return opts.Fallback(ctx)
	}
	return out, err
}
