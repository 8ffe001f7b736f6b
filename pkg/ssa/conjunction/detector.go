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

// Package conjunction screens protected assets against the tracked-object
// catalog and records predicted close approaches.
package conjunction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/stellarops/stellarops/pkg/alarms"
	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/errors"
	"github.com/stellarops/stellarops/pkg/events"
	"github.com/stellarops/stellarops/pkg/fleet"
	"github.com/stellarops/stellarops/pkg/logging"
	"github.com/stellarops/stellarops/pkg/orbital"
	"github.com/stellarops/stellarops/pkg/storage"
	"github.com/stellarops/stellarops/pkg/utils/ids"
)

// Config tunes the detection cycle.
type Config struct {
	Interval                time.Duration
	Horizon                 time.Duration
	StepSeconds             int64
	MissDistanceThresholdKM float64
	// PropagationConcurrency bounds the catalog propagation fan-out.
	PropagationConcurrency int
}

func DefaultConfig() Config {
	return Config{
		Interval:                time.Minute,
		Horizon:                 24 * time.Hour,
		StepSeconds:             60,
		MissDistanceThresholdKM: 10,
		PropagationConcurrency:  10,
	}
}

type Detector struct {
	cfg     Config
	clk     clock.WithTicker
	minter  ids.Minter
	orbital orbital.Client
	fleet   *fleet.Fleet
	catalog *Catalog
	store   storage.ConjunctionStore
	alarms  *alarms.Bus
	events  *events.Bus

	running atomic.Bool
}

func NewDetector(cfg Config, clk clock.WithTicker, minter ids.Minter, orbitalClient orbital.Client, flt *fleet.Fleet, catalog *Catalog, store storage.ConjunctionStore, alarmBus *alarms.Bus, eventBus *events.Bus) *Detector {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultConfig().Horizon
	}
	if cfg.StepSeconds <= 0 {
		cfg.StepSeconds = DefaultConfig().StepSeconds
	}
	if cfg.MissDistanceThresholdKM <= 0 {
		cfg.MissDistanceThresholdKM = DefaultConfig().MissDistanceThresholdKM
	}
	if cfg.PropagationConcurrency <= 0 {
		cfg.PropagationConcurrency = DefaultConfig().PropagationConcurrency
	}
	return &Detector{
		cfg:     cfg,
		clk:     clk,
		minter:  minter,
		orbital: orbitalClient,
		fleet:   flt,
		catalog: catalog,
		store:   store,
		alarms:  alarmBus,
		events:  eventBus,
	}
}

// Run ticks the detection cycle. Cycles never overlap: a tick arriving while
// the previous cycle still runs is skipped and counted.
func (d *Detector) Run(ctx context.Context) {
	ticker := d.clk.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if !d.running.CompareAndSwap(false, true) {
				skippedCycles.Inc()
				logging.FromContext(ctx).Warnf("skipping detection cycle, previous cycle still running")
				continue
			}
			go func() {
				defer d.running.Store(false)
				if err := d.RunCycle(ctx); err != nil {
					logging.FromContext(ctx).Errorf("detection cycle, %v", err)
				}
			}()
		}
	}
}

// RunCycle performs one full screening pass.
func (d *Detector) RunCycle(ctx context.Context) error {
	start := d.clk.Now().UTC()
	defer func() {
		cycleDuration.Observe(d.clk.Since(start).Seconds())
	}()

	windowStart := start
	windowEnd := start.Add(d.cfg.Horizon)
	assets := d.assetsWithTLE()
	objects := d.catalog.List()
	if len(assets) == 0 || len(objects) == 0 {
		return d.expire(ctx, start)
	}

	objectTrajectories := d.propagateObjects(ctx, objects, windowStart, windowEnd)
	for _, asset := range assets {
		assetTraj, err := d.orbital.PropagateTrajectory(ctx, asset.ID, *asset.TLE, windowStart, windowEnd, d.cfg.StepSeconds)
		if err != nil {
			logging.FromContext(ctx).With("satellite", asset.ID).Warnf("propagating asset trajectory, %v", err)
			continue
		}
		assetByTS := indexByTimestamp(assetTraj)
		for _, obj := range objects {
			objTraj, ok := objectTrajectories[obj.ID]
			if !ok {
				continue
			}
			approach, found := closestApproach(assetByTS, objTraj)
			if !found || approach.distanceKM >= d.cfg.MissDistanceThresholdKM {
				continue
			}
			d.record(ctx, asset, obj, approach)
		}
	}
	return d.expire(ctx, start)
}

func (d *Detector) assetsWithTLE() []v1.Satellite {
	var out []v1.Satellite
	for _, sat := range d.fleet.ListStates() {
		if sat.TLE.Valid() {
			out = append(out, sat)
		}
	}
	return out
}

// propagateObjects fans catalog propagation out with bounded concurrency.
// Individual failures drop the object from this cycle only.
func (d *Detector) propagateObjects(ctx context.Context, objects []Object, start, end time.Time) map[string][]v1.TrajectoryPoint {
	var mu sync.Mutex
	out := map[string][]v1.TrajectoryPoint{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.PropagationConcurrency)
	for _, obj := range objects {
		obj := obj
		if !obj.TLE.Valid() {
			continue
		}
		g.Go(func() error {
			traj, err := d.orbital.PropagateTrajectory(gctx, obj.ID, obj.TLE, start, end, d.cfg.StepSeconds)
			if err != nil {
				logging.FromContext(gctx).With("object", obj.ID).Debugf("propagating catalog object, %v", err)
				return nil
			}
			mu.Lock()
			out[obj.ID] = traj
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

type approach struct {
	timestamp     int64
	distanceKM    float64
	relVelKMS     float64
	assetPosition v1.Vector3
	objPosition   v1.Vector3
}

// closestApproach aligns two trajectories by timestamp and returns the
// minimum-distance point. Ties break to the earliest timestamp.
func closestApproach(assetByTS map[int64]v1.Vector3, objTraj []v1.TrajectoryPoint) (approach, bool) {
	type aligned struct {
		ts       int64
		assetPos v1.Vector3
		objPos   v1.Vector3
	}
	var points []aligned
	for _, p := range objTraj {
		if assetPos, ok := assetByTS[p.Timestamp]; ok {
			points = append(points, aligned{ts: p.Timestamp, assetPos: assetPos, objPos: p.Position})
		}
	}
	if len(points) == 0 {
		return approach{}, false
	}
	sort.Slice(points, func(i, j int) bool { return points[i].ts < points[j].ts })

	best := -1
	bestDist := 0.0
	for i, p := range points {
		dist := p.assetPos.Distance(p.objPos)
		if best == -1 || dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	out := approach{
		timestamp:     points[best].ts,
		distanceKM:    bestDist,
		assetPosition: points[best].assetPos,
		objPosition:   points[best].objPos,
	}
	// Relative velocity by finite difference against the neighboring point.
	if neighbor := best + 1; neighbor < len(points) {
		out.relVelKMS = relativeSpeed(points[best].assetPos, points[best].objPos, points[neighbor].assetPos, points[neighbor].objPos, points[neighbor].ts-points[best].ts)
	} else if best > 0 {
		out.relVelKMS = relativeSpeed(points[best-1].assetPos, points[best-1].objPos, points[best].assetPos, points[best].objPos, points[best].ts-points[best-1].ts)
	}
	return out, true
}

func relativeSpeed(assetA, objA, assetB, objB v1.Vector3, dtSeconds int64) float64 {
	if dtSeconds <= 0 {
		return 0
	}
	relA := objA.Sub(assetA)
	relB := objB.Sub(assetB)
	return relB.Sub(relA).Norm() / float64(dtSeconds)
}

// record upserts a conjunction for the asset/object pair. A fresh insert
// raises an alarm; refreshing a live record only updates it.
func (d *Detector) record(ctx context.Context, asset v1.Satellite, obj Object, ap approach) {
	log := logging.FromContext(ctx).With("satellite", asset.ID, "object", obj.ID)
	now := d.clk.Now().UTC()
	tca := time.Unix(ap.timestamp, 0).UTC()
	severity := v1.SeverityForMissDistance(ap.distanceKM)

	existing, err := d.store.GetLiveByPair(ctx, asset.ID, obj.ID)
	if err != nil && !errors.IsNotFound(err) {
		log.Warnf("looking up live conjunction, %v", err)
		return
	}
	if existing != nil {
		existing.TCA = tca
		existing.MissDistanceKM = ap.distanceKM
		existing.RelativeVelocityKMS = ap.relVelKMS
		existing.Severity = severity
		existing.AssetPositionAtTCA = ap.assetPosition
		existing.ObjectPositionAtTCA = ap.objPosition
		existing.UpdatedAt = now
		if err := d.store.Update(ctx, existing); err != nil {
			log.Warnf("updating conjunction, %v", err)
			return
		}
		d.publish(events.KindConjunctionDetected, existing)
		return
	}

	cj := &v1.Conjunction{
		ID:                  d.minter.New(ids.ConjunctionPrefix),
		AssetID:             asset.ID,
		SecondaryObjectID:   obj.ID,
		TCA:                 tca,
		MissDistanceKM:      ap.distanceKM,
		RelativeVelocityKMS: ap.relVelKMS,
		Severity:            severity,
		Status:              v1.ConjunctionPredicted,
		AssetPositionAtTCA:  ap.assetPosition,
		ObjectPositionAtTCA: ap.objPosition,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := d.store.Insert(ctx, cj); err != nil {
		log.Warnf("inserting conjunction, %v", err)
		return
	}
	detectedTotal.WithLabelValues(string(severity)).Inc()
	log.With("conjunction-id", cj.ID, "miss-km", fmt.Sprintf("%.3f", ap.distanceKM), "severity", string(severity)).
		Infof("conjunction detected")
	d.publish(events.KindConjunctionDetected, cj)
	d.alarm(ctx, cj)
}

func (d *Detector) alarm(ctx context.Context, cj *v1.Conjunction) {
	severity := v1.SeverityMinor
	switch cj.Severity {
	case v1.ConjunctionCritical:
		severity = v1.SeverityCritical
	case v1.ConjunctionHigh:
		severity = v1.SeverityMajor
	}
	d.alarms.Raise(ctx, alarms.Spec{
		Type:     "conjunction_detected",
		Severity: severity,
		Message:  fmt.Sprintf("conjunction %s: %s within %.3f km of %s at %s", cj.ID, cj.SecondaryObjectID, cj.MissDistanceKM, cj.AssetID, cj.TCA.Format(time.RFC3339)),
		Source:   v1.SatelliteSource(cj.AssetID),
		Details:  map[string]any{"conjunction_id": cj.ID, "miss_distance_km": cj.MissDistanceKM},
	})
}

// expire marks live conjunctions whose TCA has passed. Expiry raises no
// alarm.
func (d *Detector) expire(ctx context.Context, now time.Time) error {
	expirable, err := d.store.ListExpirable(ctx, now)
	if err != nil {
		return fmt.Errorf("listing expirable conjunctions, %w", err)
	}
	for _, cj := range expirable {
		cj.Status = v1.ConjunctionExpired
		cj.UpdatedAt = now
		if err := d.store.Update(ctx, cj); err != nil {
			logging.FromContext(ctx).With("conjunction-id", cj.ID).Warnf("expiring conjunction, %v", err)
			continue
		}
		expiredTotal.Inc()
		d.publish(events.KindConjunctionExpired, cj)
	}
	return nil
}

func (d *Detector) publish(kind string, cj *v1.Conjunction) {
	cp := *cj
	d.events.Publish(events.TopicConjunctions, events.Event{Kind: kind, Payload: &cp, Timestamp: d.clk.Now().UTC()})
}

func indexByTimestamp(points []v1.TrajectoryPoint) map[int64]v1.Vector3 {
	out := make(map[int64]v1.Vector3, len(points))
	for _, p := range points {
		out[p.Timestamp] = p.Position
	}
	return out
}
