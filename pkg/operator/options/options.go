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

// Package options holds the process configuration: flags with environment
// defaults, optionally layered under a TOML config file for the structured
// pieces (ground stations, breaker overrides).
package options

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"

	v1 "github.com/stellarops/stellarops/pkg/apis/v1"
	"github.com/stellarops/stellarops/pkg/resilience"
	"github.com/stellarops/stellarops/pkg/utils/env"
)

// Options for running this binary.
type Options struct {
	*flag.FlagSet

	ConfigFile      string
	LogLevel        string
	MetricsPort     int
	HealthProbePort int

	OrbitalServiceURL     string
	OrbitalTimeoutSeconds int
	UseFakeOrbital        bool

	DetectorIntervalMS      int
	DetectorHorizonHours    int
	DetectorStepSeconds     int64
	DetectorMissThresholdKM float64

	PlannerMaxDeltaVMS      float64
	PlannerLeadTimeHours    int
	TLEStaleThresholdHours  int
	TLESweepIntervalMinutes int

	AlarmRetentionSeconds     int
	CheckpointIntervalSeconds int

	stations         []v1.GroundStation
	breakerOverrides map[string]resilience.Settings
}

// New creates an Options struct and registers CLI flags and environment variables to fill-in the Options struct fields
func New() *Options {
	opts := &Options{}
	f := flag.NewFlagSet("stellarops", flag.ContinueOnError)
	opts.FlagSet = f

	f.StringVar(&opts.ConfigFile, "config-file", env.WithDefaultString("CONFIG_FILE", ""), "Path to a TOML config file carrying ground stations and breaker overrides")
	f.StringVar(&opts.LogLevel, "log-level", env.WithDefaultString("LOG_LEVEL", "info"), "Log level: debug, info, warn, or error")
	f.IntVar(&opts.MetricsPort, "metrics-port", env.WithDefaultInt("METRICS_PORT", 8080), "The port the metric endpoint binds to for operating metrics about the controller itself")
	f.IntVar(&opts.HealthProbePort, "health-probe-port", env.WithDefaultInt("HEALTH_PROBE_PORT", 8081), "The port the health probe endpoint binds to for reporting controller health")

	f.StringVar(&opts.OrbitalServiceURL, "orbital-service-url", env.WithDefaultString("ORBITAL_SERVICE_URL", "http://localhost:9051"), "Base URL of the orbital propagation service")
	f.IntVar(&opts.OrbitalTimeoutSeconds, "orbital-timeout-seconds", env.WithDefaultInt("ORBITAL_TIMEOUT_SECONDS", 10), "Per-call timeout for orbital service requests")
	f.BoolVar(&opts.UseFakeOrbital, "use-fake-orbital", env.WithDefaultBool("USE_FAKE_ORBITAL", false), "Use the deterministic in-process orbital service instead of the HTTP service")

	f.IntVar(&opts.DetectorIntervalMS, "detector-interval-ms", env.WithDefaultInt("DETECTOR_INTERVAL_MS", 60000), "Milliseconds between conjunction detection cycles")
	f.IntVar(&opts.DetectorHorizonHours, "detector-horizon-hours", env.WithDefaultInt("DETECTOR_HORIZON_HOURS", 24), "Screening horizon in hours")
	f.Int64Var(&opts.DetectorStepSeconds, "detector-step-seconds", env.WithDefaultInt64("DETECTOR_STEP_SECONDS", 60), "Trajectory sampling step in seconds")
	f.Float64Var(&opts.DetectorMissThresholdKM, "detector-miss-threshold-km", env.WithDefaultFloat64("DETECTOR_MISS_THRESHOLD_KM", 10), "Miss distance below which a close approach becomes a conjunction")

	f.Float64Var(&opts.PlannerMaxDeltaVMS, "planner-max-delta-v-ms", env.WithDefaultFloat64("PLANNER_MAX_DELTA_V_MS", 10), "Delta-v budget per maneuver in m/s; proposals above it are flagged")
	f.IntVar(&opts.PlannerLeadTimeHours, "planner-lead-time-hours", env.WithDefaultInt("PLANNER_LEAD_TIME_HOURS", 12), "How long before closest approach a burn is scheduled")
	f.IntVar(&opts.TLEStaleThresholdHours, "tle-stale-threshold-hours", env.WithDefaultInt("TLE_STALE_THRESHOLD_HOURS", 24), "Element set age beyond which it counts as stale")
	f.IntVar(&opts.TLESweepIntervalMinutes, "tle-sweep-interval-minutes", env.WithDefaultInt("TLE_SWEEP_INTERVAL_MINUTES", 60), "Minutes between element set freshness sweeps")

	f.IntVar(&opts.AlarmRetentionSeconds, "alarm-retention-seconds", env.WithDefaultInt("ALARM_RETENTION_SECONDS", 86400), "How long resolved alarms stay queryable before the janitor purges them")
	f.IntVar(&opts.CheckpointIntervalSeconds, "checkpoint-interval-seconds", env.WithDefaultInt("CHECKPOINT_INTERVAL_SECONDS", 30), "Seconds between satellite state checkpoints")
	return opts
}

// MustParse reads the user passed flags, environment variables, config file,
// and default values. Options are validated and panics if an error is returned.
func (o *Options) MustParse() *Options {
	err := o.Parse(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		panic(err)
	}
	if o.ConfigFile != "" {
		if err := o.loadFile(o.ConfigFile); err != nil {
			panic(err)
		}
	}
	if err := o.Validate(); err != nil {
		panic(err)
	}
	return o
}

func (o Options) Validate() (err error) {
	if o.MetricsPort == o.HealthProbePort {
		err = multierr.Append(err, fmt.Errorf("metrics-port and health-probe-port must differ"))
	}
	if !o.UseFakeOrbital {
		err = multierr.Append(err, o.validateOrbitalURL())
	}
	if o.DetectorIntervalMS <= 0 || o.DetectorHorizonHours <= 0 || o.DetectorStepSeconds <= 0 || o.DetectorMissThresholdKM <= 0 {
		err = multierr.Append(err, fmt.Errorf("detector settings must all be positive"))
	}
	if o.PlannerLeadTimeHours <= 0 {
		err = multierr.Append(err, fmt.Errorf("planner-lead-time-hours must be positive"))
	}
	if o.TLEStaleThresholdHours <= 0 {
		err = multierr.Append(err, fmt.Errorf("tle-stale-threshold-hours must be positive"))
	}
	if o.AlarmRetentionSeconds <= 0 {
		err = multierr.Append(err, fmt.Errorf("alarm-retention-seconds must be positive"))
	}
	return err
}

func (o Options) validateOrbitalURL() error {
	endpoint, err := url.Parse(o.OrbitalServiceURL)
	// url.Parse() will accept a lot of input without error; make
	// sure it's a real URL
	if err != nil || !endpoint.IsAbs() || endpoint.Hostname() == "" {
		return fmt.Errorf("%q not a valid ORBITAL_SERVICE_URL", o.OrbitalServiceURL)
	}
	return nil
}

// Stations returns the ground stations configured in the config file.
func (o *Options) Stations() []v1.GroundStation {
	return o.stations
}

// BreakerOverrides returns per-breaker setting overrides from the config file.
func (o *Options) BreakerOverrides() map[string]resilience.Settings {
	return o.breakerOverrides
}

func (o *Options) DetectorInterval() time.Duration {
	return time.Duration(o.DetectorIntervalMS) * time.Millisecond
}

func (o *Options) DetectorHorizon() time.Duration {
	return time.Duration(o.DetectorHorizonHours) * time.Hour
}

func (o *Options) OrbitalTimeout() time.Duration {
	return time.Duration(o.OrbitalTimeoutSeconds) * time.Second
}

func (o *Options) PlannerLeadTime() time.Duration {
	return time.Duration(o.PlannerLeadTimeHours) * time.Hour
}

func (o *Options) TLEStaleThreshold() time.Duration {
	return time.Duration(o.TLEStaleThresholdHours) * time.Hour
}

func (o *Options) TLESweepInterval() time.Duration {
	return time.Duration(o.TLESweepIntervalMinutes) * time.Minute
}

func (o *Options) AlarmRetention() time.Duration {
	return time.Duration(o.AlarmRetentionSeconds) * time.Second
}

func (o *Options) CheckpointInterval() time.Duration {
	return time.Duration(o.CheckpointIntervalSeconds) * time.Second
}

type fileConfig struct {
	Stations []stationConfig          `toml:"stations"`
	Breakers map[string]breakerConfig `toml:"breakers"`
}

type stationConfig struct {
	ID              string  `toml:"id"`
	Name            string  `toml:"name"`
	LatitudeDeg     float64 `toml:"latitude_deg"`
	LongitudeDeg    float64 `toml:"longitude_deg"`
	AltitudeM       float64 `toml:"altitude_m"`
	MinElevationDeg float64 `toml:"min_elevation_deg"`
	Online          bool    `toml:"online"`
}

type breakerConfig struct {
	FailureThreshold    int `toml:"failure_threshold"`
	FailureWindowSecs   int `toml:"failure_window_seconds"`
	ResetTimeoutSeconds int `toml:"reset_timeout_seconds"`
}

func (o *Options) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file, %w", err)
	}
	var cfg fileConfig
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parsing config file, %w", err)
	}
	for _, st := range cfg.Stations {
		o.stations = append(o.stations, v1.GroundStation{
			ID:              st.ID,
			Name:            st.Name,
			LatitudeDeg:     st.LatitudeDeg,
			LongitudeDeg:    st.LongitudeDeg,
			AltitudeM:       st.AltitudeM,
			MinElevationDeg: st.MinElevationDeg,
			Online:          st.Online,
		})
	}
	if len(cfg.Breakers) > 0 {
		o.breakerOverrides = map[string]resilience.Settings{}
		for name, b := range cfg.Breakers {
			o.breakerOverrides[name] = resilience.Settings{
				FailureThreshold: b.FailureThreshold,
				FailureWindow:    time.Duration(b.FailureWindowSecs) * time.Second,
				ResetTimeout:     time.Duration(b.ResetTimeoutSeconds) * time.Second,
			}
		}
	}
	return nil
}
