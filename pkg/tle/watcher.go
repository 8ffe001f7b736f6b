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

// Package tle watches element-set freshness across the fleet and the
// tracked-object catalog. Element sets older than a day degrade every
// propagation downstream, so staleness is alarmed early.
package tle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/stellarops/stellarops/pkg/alarms"
	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/fleet"
	"github.com/stellarops/stellarops/pkg/logging"
	"github.com/stellarops/stellarops/pkg/ssa/conjunction"
	"github.com/stellarops/stellarops/pkg/utils/pretty"
)

const (
	DefaultFreshnessWindow = 24 * time.Hour
	criticalStaleFraction  = 0.5
	watcherSource          = "system:tle_watcher"
)

// Stats is one freshness sweep over every tracked element set.
type Stats struct {
	Total        int `json:"total"`
	WithTLE      int `json:"with_tle"`
	Fresh        int `json:"fresh"`
	Stale        int `json:"stale"`
	NeverUpdated int `json:"never_updated"`
}

// StaleFraction is the stale share of element sets that have one.
func (s Stats) StaleFraction() float64 {
	if s.WithTLE == 0 {
		return 0
	}
	return float64(s.Stale) / float64(s.WithTLE)
}

type Watcher struct {
	clk     clock.WithTicker
	fleet   *fleet.Fleet
	catalog *conjunction.Catalog
	alarms  *alarms.Bus
	cm      *pretty.ChangeMonitor
	window  time.Duration

	mu   sync.RWMutex
	last Stats
}

type Option func(*Watcher)

// WithFreshnessWindow overrides the element set age beyond which it counts as
// stale.
func WithFreshnessWindow(d time.Duration) Option {
	return func(w *Watcher) { w.window = d }
}

func NewWatcher(clk clock.WithTicker, flt *fleet.Fleet, catalog *conjunction.Catalog, alarmBus *alarms.Bus, opts ...Option) *Watcher {
	w := &Watcher{
		clk:     clk,
		fleet:   flt,
		catalog: catalog,
		alarms:  alarmBus,
		cm:      pretty.NewChangeMonitor(),
		window:  DefaultFreshnessWindow,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Sweep recomputes freshness stats and raises graduated staleness alarms.
func (w *Watcher) Sweep(ctx context.Context) Stats {
	now := w.clk.Now().UTC()
	cutoff := now.Add(-w.window)
	var stats Stats
	var staleIDs []string
	for _, sat := range w.fleet.ListStates() {
		stats.Total++
		if !sat.TLE.Valid() {
			continue
		}
		stats.WithTLE++
		switch {
		case sat.TLEUpdatedAt == nil:
			stats.NeverUpdated++
			stats.Stale++
			staleIDs = append(staleIDs, sat.ID)
		case sat.TLEUpdatedAt.Before(cutoff):
			stats.Stale++
			staleIDs = append(staleIDs, sat.ID)
		default:
			stats.Fresh++
		}
	}
	for _, obj := range w.catalog.List() {
		stats.Total++
		if !obj.TLE.Valid() {
			continue
		}
		stats.WithTLE++
		switch {
		case obj.UpdatedAt == nil:
			stats.NeverUpdated++
			stats.Stale++
			staleIDs = append(staleIDs, obj.ID)
		case obj.UpdatedAt.Before(cutoff):
			stats.Stale++
			staleIDs = append(staleIDs, obj.ID)
		default:
			stats.Fresh++
		}
	}

	w.mu.Lock()
	w.last = stats
	w.mu.Unlock()
	staleGauge.Set(float64(stats.Stale))

	if w.cm.HasChanged("tle-stats", stats) {
		logging.FromContext(ctx).With(
			"total", stats.Total,
			"with-tle", stats.WithTLE,
			"fresh", stats.Fresh,
			"stale", stats.Stale,
			"never-updated", stats.NeverUpdated,
		).Infof("element set freshness")
	}
	w.alarm(ctx, stats, staleIDs)
	return stats
}

func (w *Watcher) alarm(ctx context.Context, stats Stats, staleIDs []string) {
	if stats.Stale == 0 {
		return
	}
	w.alarms.Raise(ctx, alarms.Spec{
		Type:     "stale_tle_data",
		Severity: v1.SeverityWarning,
		Message:  fmt.Sprintf("%d of %d element sets are older than %s (%s)", stats.Stale, stats.WithTLE, w.window, pretty.Slice(staleIDs, 5)),
		Source:   watcherSource,
		Details:  map[string]any{"stale": stats.Stale, "with_tle": stats.WithTLE},
	})
	if stats.StaleFraction() > criticalStaleFraction {
		w.alarms.Raise(ctx, alarms.Spec{
			Type:     "critical_tle_staleness",
			Severity: v1.SeverityMajor,
			Message:  fmt.Sprintf("%.0f%% of element sets are stale, propagation accuracy is degraded", stats.StaleFraction()*100),
			Source:   watcherSource,
			Details:  map[string]any{"stale_fraction": stats.StaleFraction()},
		})
	}
}

// Stats returns the result of the most recent sweep.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}

// Run sweeps on the given interval until the context is done.
func (w *Watcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := w.clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			w.Sweep(ctx)
		}
	}
}
