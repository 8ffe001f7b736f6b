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

// Package operator assembles the control plane and runs it. Components start
// in dependency order and each logs readiness; run loops live in one errgroup
// so a stuck component takes the process down visibly instead of silently.
package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/stellarops/stellarops/pkg/alarms"
	"github.com/stellarops/stellarops/pkg/events"
	"github.com/stellarops/stellarops/pkg/fleet"
	"github.com/stellarops/stellarops/pkg/logging"
	"github.com/stellarops/stellarops/pkg/metrics"
	"github.com/stellarops/stellarops/pkg/missions"
	"github.com/stellarops/stellarops/pkg/operator/options"
	"github.com/stellarops/stellarops/pkg/orbital"
	"github.com/stellarops/stellarops/pkg/resilience"
	"github.com/stellarops/stellarops/pkg/ssa/coa"
	"github.com/stellarops/stellarops/pkg/ssa/conjunction"
	"github.com/stellarops/stellarops/pkg/storage"
	"github.com/stellarops/stellarops/pkg/storage/inmemory"
	"github.com/stellarops/stellarops/pkg/tle"
	"github.com/stellarops/stellarops/pkg/utils/ids"
	"github.com/stellarops/stellarops/pkg/utils/pretty"
)

// Operator holds every started component. Fields are exported so tests and
// surfaces can reach the component APIs directly.
type Operator struct {
	Options *options.Options
	Clock   clock.WithTicker
	Store   storage.Store

	EventBus        *events.Bus
	AlarmBus        *alarms.Bus
	Fleet           *fleet.Fleet
	Breakers        *resilience.Registry
	OrbitalClient   orbital.Client
	Validator       *missions.Validator
	Scheduler       *missions.Scheduler
	MissionExecutor *missions.Executor
	Detector        *conjunction.Detector
	Catalog         *conjunction.Catalog
	Planner         *coa.Planner
	COAExecutor     *coa.Executor
	TLEWatcher      *tle.Watcher
}

// NewOperator constructs the control plane in dependency order: clock, event
// bus, alarm bus, fleet, breakers, orbital client, scheduler, executor,
// detector, planner, course-of-action executor, element-set watcher.
func NewOperator(ctx context.Context, opts *options.Options) *Operator {
	log := logging.FromContext(ctx)
	log.With("options", pretty.Concise(opts)).Debugf("resolved options")
	clk := clock.RealClock{}
	minter := ids.NewMinter()
	store := inmemory.NewStore()

	eventBus := events.NewBus()
	log.Infof("event bus ready")

	alarmBus := alarms.NewBus(ctx, clk, minter, store.Alarms(), eventBus, alarms.WithRetention(opts.AlarmRetention()))
	log.Infof("alarm bus ready")

	flt := fleet.New(clk, fleet.NewLocalRegistry(), store.Satellites())
	if err := flt.Rehydrate(ctx); err != nil {
		log.Warnf("rehydrating fleet, starting empty, %v", err)
	}
	log.Infof("satellite fleet ready")

	breakers := resilience.NewRegistry(clk, opts.BreakerOverrides())
	log.Infof("circuit breakers ready")

	var orbitalClient orbital.Client
	if opts.UseFakeOrbital {
		orbitalClient = orbital.NewFake().WithBreaker(breakers.Breaker(resilience.BreakerOrbital))
		log.Infof("orbital client ready (deterministic in-process service)")
	} else {
		orbitalClient = orbital.NewHTTPClient(opts.OrbitalServiceURL, breakers.Breaker(resilience.BreakerOrbital), orbital.WithTimeout(opts.OrbitalTimeout()))
		log.With("url", opts.OrbitalServiceURL).Infof("orbital client ready")
	}

	validator := missions.NewValidator(clk, flt, missions.StaticStations(opts.Stations()), orbitalClient)
	executor := missions.NewExecutor(clk, store.Missions(), flt, alarmBus, eventBus)
	scheduler := missions.NewScheduler(clk, minter, store.Missions(), validator, executor, eventBus)
	executor.BindRequeuer(scheduler)
	if err := scheduler.Rehydrate(ctx); err != nil {
		log.Warnf("rehydrating missions, starting empty, %v", err)
	}
	log.Infof("mission scheduler and executor ready")

	catalog := conjunction.NewCatalog()
	detector := conjunction.NewDetector(conjunction.Config{
		Interval:                opts.DetectorInterval(),
		Horizon:                 opts.DetectorHorizon(),
		StepSeconds:             opts.DetectorStepSeconds,
		MissDistanceThresholdKM: opts.DetectorMissThresholdKM,
	}, clk, minter, orbitalClient, flt, catalog, store.Conjunctions(), alarmBus, eventBus)
	log.Infof("conjunction detector ready")

	planner := coa.NewPlanner(clk, minter, flt, store.Conjunctions(), store.COAs(), eventBus,
		coa.WithLeadTime(opts.PlannerLeadTime()), coa.WithMaxDeltaV(opts.PlannerMaxDeltaVMS))
	coaExecutor := coa.NewExecutor(clk, store.COAs(), store.Missions(), scheduler, flt, alarmBus, eventBus)
	executor.RegisterHandler(coaExecutor)
	log.Infof("course of action planner and executor ready")

	watcher := tle.NewWatcher(clk, flt, catalog, alarmBus, tle.WithFreshnessWindow(opts.TLEStaleThreshold()))
	log.Infof("element set watcher ready")

	return &Operator{
		Options:         opts,
		Clock:           clk,
		Store:           store,
		EventBus:        eventBus,
		AlarmBus:        alarmBus,
		Fleet:           flt,
		Breakers:        breakers,
		OrbitalClient:   orbitalClient,
		Validator:       validator,
		Scheduler:       scheduler,
		MissionExecutor: executor,
		Detector:        detector,
		Catalog:         catalog,
		Planner:         planner,
		COAExecutor:     coaExecutor,
		TLEWatcher:      watcher,
	}
}

// Start runs every component loop until the context is canceled.
func (o *Operator) Start(ctx context.Context) error {
	log := logging.FromContext(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o.Scheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		o.Detector.Run(gctx)
		return nil
	})
	g.Go(func() error {
		o.Planner.Run(gctx)
		return nil
	})
	g.Go(func() error {
		o.TLEWatcher.Run(gctx, o.Options.TLESweepInterval())
		return nil
	})
	g.Go(func() error {
		o.Fleet.RunCheckpoints(gctx, o.Options.CheckpointInterval())
		return nil
	})
	g.Go(func() error {
		o.runAlarmJanitor(gctx)
		return nil
	})
	g.Go(func() error {
		return o.serveMetrics(gctx)
	})
	g.Go(func() error {
		return o.serveHealth(gctx)
	})
	log.Infof("all components started")

	err := g.Wait()
	o.MissionExecutor.Wait()
	return err
}

// runAlarmJanitor purges resolved alarms past their retention.
func (o *Operator) runAlarmJanitor(ctx context.Context) {
	ticker := o.Clock.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if purged := o.AlarmBus.PurgeResolved(ctx, o.AlarmBus.Retention()); purged > 0 {
				logging.FromContext(ctx).With("count", purged).Infof("purged resolved alarms")
			}
		}
	}
}

func (o *Operator) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return o.serve(ctx, fmt.Sprintf(":%d", o.Options.MetricsPort), mux)
}

// healthResponse is the /healthz body. Emergency mode reads as unhealthy so
// orchestration restarts the process when every downstream is gone.
type healthResponse struct {
	Status          string                      `json:"status"`
	OperationalMode resilience.OperationalMode  `json:"operational_mode"`
	Breakers        map[string]resilience.State `json:"breakers"`
	Satellites      int                         `json:"satellites"`
}

func (o *Operator) serveHealth(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		mode := o.Breakers.OperationalMode()
		resp := healthResponse{
			Status:          "ok",
			OperationalMode: mode,
			Breakers:        o.Breakers.States(),
			Satellites:      o.Fleet.Count(),
		}
		code := http.StatusOK
		if mode == resilience.ModeEmergency {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})
	return o.serve(ctx, fmt.Sprintf(":%d", o.Options.HealthProbePort), mux)
}

func (o *Operator) serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
