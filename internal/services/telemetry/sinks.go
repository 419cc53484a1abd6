package telemetry

import (
	"context"
	"fmt"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const metricsNamespace = "adaptive_tiers"

// PrometheusSink exports invocation counters and latency.
type PrometheusSink struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	tokens      *prometheus.CounterVec
}

// NewPrometheusSink registers the invocation collectors on reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "invocations_total",
				Help:      "Provider invocations by model and outcome.",
			},
			[]string{"model", "kind"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "invocation_duration_seconds",
				Help:      "Provider invocation latency.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"model"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tokens_total",
				Help:      "Provider-reported tokens consumed.",
			},
			[]string{"model"},
		),
	}

	for _, collector := range []prometheus.Collector{s.invocations, s.duration, s.tokens} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register telemetry metrics: %w", err)
		}
	}
	return s, nil
}

func (s *PrometheusSink) Name() string { return "prometheus" }

func (s *PrometheusSink) Write(_ context.Context, event models.InvocationEvent) error {
	kind := "success"
	if !event.Success {
		kind = string(event.Kind)
	}
	s.invocations.WithLabelValues(event.Model, kind).Inc()
	s.duration.WithLabelValues(event.Model).Observe(event.Latency.Seconds())
	if event.TotalTokens > 0 {
		s.tokens.WithLabelValues(event.Model).Add(float64(event.TotalTokens))
	}
	return nil
}

// LogSink writes one log line per event.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Write(_ context.Context, event models.InvocationEvent) error {
	switch {
	case event.Success:
		fiberlog.Debugf("[%s] invocation model=%s tokens=%d latency=%v",
			event.RequestID, event.Model, event.TotalTokens, event.Latency)
	case event.Kind == models.KindUnknown:
		fiberlog.Errorf("[%s] invocation model=%s kind=%s latency=%v: %s",
			event.RequestID, event.Model, event.Kind, event.Latency, event.Message)
	default:
		fiberlog.Infof("[%s] invocation model=%s kind=%s latency=%v: %s",
			event.RequestID, event.Model, event.Kind, event.Latency, event.Message)
	}
	return nil
}

// DatabaseSink persists events for analytics.
type DatabaseSink struct {
	db *gorm.DB
}

func NewDatabaseSink(db *gorm.DB) *DatabaseSink {
	return &DatabaseSink{db: db}
}

func (s *DatabaseSink) AutoMigrate() error {
	return s.db.AutoMigrate(&models.InvocationEvent{})
}

func (s *DatabaseSink) Name() string { return "database" }

func (s *DatabaseSink) Write(ctx context.Context, event models.InvocationEvent) error {
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return fmt.Errorf("failed to store invocation event: %w", err)
	}
	return nil
}
