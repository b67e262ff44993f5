package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the lesson playback collectors. Each instance owns its
// registry so tests and multiple servers never collide.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted    prometheus.Counter
	SegmentRequests    *prometheus.CounterVec
	BreakpointsReached prometheus.Counter
	Answers            *prometheus.CounterVec
	Completions        prometheus.Counter
	Resets             prometheus.Counter
	MapBuilds          prometheus.Counter
	MapBuildSeconds    prometheus.Histogram
	RenderJobs         *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "lessons_sessions_started_total",
			Help: "Playback sessions started.",
		}),
		SegmentRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lessons_segment_requests_total",
			Help: "Segments requested from the player, by line (main or branch).",
		}, []string{"line"}),
		BreakpointsReached: f.NewCounter(prometheus.CounterOpts{
			Name: "lessons_breakpoints_reached_total",
			Help: "Times playback paused on a question.",
		}),
		Answers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lessons_breakpoint_answers_total",
			Help: "Breakpoint answers, by correctness and whether they entered a branch.",
		}, []string{"correct", "branched"}),
		Completions: f.NewCounter(prometheus.CounterOpts{
			Name: "lessons_completed_total",
			Help: "Sessions that reached the end of a lesson.",
		}),
		Resets: f.NewCounter(prometheus.CounterOpts{
			Name: "lessons_session_resets_total",
			Help: "Explicit restarts.",
		}),
		MapBuilds: f.NewCounter(prometheus.CounterOpts{
			Name: "lessons_segment_map_builds_total",
			Help: "Segment maps built (cache misses).",
		}),
		MapBuildSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lessons_segment_map_build_seconds",
			Help:    "Time to build a segment map.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
		RenderJobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lessons_render_jobs_total",
			Help: "Render jobs handed to the media service, by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Line labels main vs branch without exploding cardinality on branch names.
func Line(listKey string) string {
	if listKey == "main" {
		return "main"
	}
	return "branch"
}

func Bool(b bool) string { return strconv.FormatBool(b) }
