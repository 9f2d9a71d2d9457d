package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	jobsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobsh",
		Name:      "jobs_started_total",
		Help:      "Total number of jobs launched, by foreground or background mode.",
	}, []string{"mode"})

	jobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobsh",
		Name:      "jobs_finished_total",
		Help:      "Total number of jobs that finished, by outcome of the last stage.",
	}, []string{"outcome"})

	jobsStopped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobsh",
		Name:      "jobs_stopped_total",
		Help:      "Total number of times a foreground job was stopped and moved to the background.",
	})

	processesSpawned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "jobsh",
		Name:      "processes_spawned_total",
		Help:      "Total number of child processes started.",
	})

	jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jobsh",
		Name:      "job_duration_seconds",
		Help:      "Wall-clock time from job creation until it was observed finished.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "jobsh",
		Name:      "build_info",
		Help:      "Build metadata for the running jobsh binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

// Outcome labels for JobFinished.
const (
	OutcomeExited = "exited"
	OutcomeKilled = "killed"
)

func init() {
	registry.MustRegister(jobsStarted, jobsFinished, jobsStopped, processesSpawned, jobDuration, buildInfo)
}

// Registry returns the Prometheus registry containing all jobsh metrics.
func Registry() *prometheus.Registry {
	return registry
}

// JobStarted counts a newly created job.
func JobStarted(background bool) {
	mode := "foreground"
	if background {
		mode = "background"
	}
	jobsStarted.WithLabelValues(mode).Inc()
}

// ProcessSpawned counts one started child.
func ProcessSpawned() {
	processesSpawned.Inc()
}

// JobStopped counts a foreground job moved to the background by a stop.
func JobStopped() {
	jobsStopped.Inc()
}

// JobFinished records the outcome and lifetime of a reaped job.
func JobFinished(outcome string, lifetime time.Duration) {
	if outcome == "" {
		outcome = OutcomeExited
	}
	jobsFinished.WithLabelValues(outcome).Inc()
	if lifetime > 0 {
		jobDuration.Observe(lifetime.Seconds())
	}
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
