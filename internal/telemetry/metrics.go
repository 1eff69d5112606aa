package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/KaramelBytes/churnflow-cli/internal/utils"
)

// Metrics owns a meter provider exported through a private Prometheus
// registry, so a batch run can leave a node_exporter textfile behind.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider
	prev     metric.MeterProvider
}

// SetupMetrics installs a global meter provider backed by a fresh registry.
func SetupMetrics(runID string) (*Metrics, error) {
	reg := prometheus.NewRegistry()
	exp, err := otelprom.New(
		otelprom.WithRegisterer(reg),
		otelprom.WithoutScopeInfo(),
		otelprom.WithoutTargetInfo(),
	)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exp),
		sdkmetric.WithResource(newResource(runID)),
	)
	m := &Metrics{registry: reg, provider: mp, prev: otel.GetMeterProvider()}
	otel.SetMeterProvider(mp)
	return m, nil
}

// Registry exposes the Prometheus registry the exporter writes to.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes the current metric values in the text exposition
// format, replacing path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := utils.EnsureParentDir(path); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Shutdown flushes the provider and restores the previous global one.
func (m *Metrics) Shutdown(ctx context.Context) error {
	otel.SetMeterProvider(m.prev)
	return m.provider.Shutdown(ctx)
}

// Stage instruments one pipeline stage: a root span, counters, and a
// duration histogram. The zero value is not usable; call StartStage.
type Stage struct {
	name  string
	meter metric.Meter
	span  trace.Span
	start time.Time
	attrs metric.MeasurementOption
}

// StartStage opens the root span of a stage.
func StartStage(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Stage) {
	ctx, span := Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Stage{
		name:  name,
		meter: otel.Meter(InstrumentationName),
		span:  span,
		start: time.Now(),
		attrs: metric.WithAttributes(attribute.String("stage", name)),
	}
}

// Count adds n to the counter churnflow_<what> labelled with the stage.
func (s *Stage) Count(ctx context.Context, what string, n int) {
	s.span.SetAttributes(attribute.Int(s.name+"."+what, n))
	c, err := s.meter.Int64Counter("churnflow_" + what)
	if err != nil {
		otel.Handle(err)
		return
	}
	c.Add(ctx, int64(n), s.attrs)
}

// End records the stage duration and outcome and closes the span. It
// returns err so callers can write `return st.End(ctx, err)`.
func (s *Stage) End(ctx context.Context, err error) error {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		Fail(s.span, err)
	}
	h, herr := s.meter.Float64Histogram("churnflow_stage_duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall time of a pipeline stage."),
	)
	if herr == nil {
		h.Record(ctx, time.Since(s.start).Seconds(), metric.WithAttributes(
			attribute.String("stage", s.name),
			attribute.String("outcome", outcome),
		))
	} else {
		otel.Handle(herr)
	}
	s.span.End()
	return err
}
