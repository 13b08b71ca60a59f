package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/codeface/bugcrawl/internal/storage"
	"github.com/codeface/bugcrawl/internal/types"
)

const storageScopeName = "github.com/codeface/bugcrawl/storage"

// InstrumentedSink wraps storage.Sink with OTel tracing and metrics.
// Every method gets a span and is counted in bugcrawl.sink.* metrics.
// Use WrapSink to create one; it returns the original sink unchanged when
// telemetry is disabled.
type InstrumentedSink struct {
	inner  storage.Sink
	tracer trace.Tracer
	ops    metric.Int64Counter
	rows   metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapSink returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapSink(s storage.Sink) storage.Sink {
	if !Enabled() {
		return s
	}
	return newInstrumentedSink(s, Meter(storageScopeName), Tracer(storageScopeName))
}

func newInstrumentedSink(s storage.Sink, m metric.Meter, tracer trace.Tracer) *InstrumentedSink {
	ops, _ := m.Int64Counter("bugcrawl.sink.operations",
		metric.WithDescription("Total sink operations executed"),
	)
	rows, _ := m.Int64Counter("bugcrawl.sink.rows",
		metric.WithDescription("Rows handed to the sink, by table"),
	)
	dur, _ := m.Float64Histogram("bugcrawl.sink.operation.duration",
		metric.WithDescription("Sink operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("bugcrawl.sink.errors",
		metric.WithDescription("Total sink operation errors"),
	)
	return &InstrumentedSink{inner: s, tracer: tracer, ops: ops, rows: rows, dur: dur, errs: errs}
}

// op starts a span and records a metric for the named sink operation.
func (s *InstrumentedSink) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "sink."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedSink) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// batch wraps a multi-row insert into table.
func (s *InstrumentedSink) batch(ctx context.Context, name, table string, n int, fn func(context.Context) error) error {
	attrs := []attribute.KeyValue{attribute.String("db.sql.table", table)}
	ctx, span, t := s.op(ctx, name, append(attrs, attribute.Int("bugcrawl.rows", n))...)
	err := fn(ctx)
	if err == nil {
		s.rows.Add(ctx, int64(n), metric.WithAttributes(attrs...))
	}
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedSink) GetOrCreateProjectID(ctx context.Context, name, analysisMethod string) (int64, error) {
	attrs := []attribute.KeyValue{attribute.String("bugcrawl.project", name)}
	ctx, span, t := s.op(ctx, "GetOrCreateProjectID", attrs...)
	id, err := s.inner.GetOrCreateProjectID(ctx, name, analysisMethod)
	s.done(ctx, span, t, err, attrs...)
	return id, err
}

func (s *InstrumentedSink) GetOrCreatePerson(ctx context.Context, projectID int64, name, email string) (types.PersonID, error) {
	ctx, span, t := s.op(ctx, "GetOrCreatePerson")
	id, err := s.inner.GetOrCreatePerson(ctx, projectID, name, email)
	s.done(ctx, span, t, err)
	return id, err
}

func (s *InstrumentedSink) InsertIssue(ctx context.Context, row types.IssueRow) (types.InternalID, error) {
	attrs := []attribute.KeyValue{attribute.String("bugcrawl.issue.id", row.BugID.String())}
	ctx, span, t := s.op(ctx, "InsertIssue", attrs...)
	id, err := s.inner.InsertIssue(ctx, row)
	if err == nil {
		s.rows.Add(ctx, 1, metric.WithAttributes(attribute.String("db.sql.table", "issue")))
	}
	s.done(ctx, span, t, err)
	return id, err
}

func (s *InstrumentedSink) InsertHistoryEvents(ctx context.Context, rows []types.HistoryRow) error {
	return s.batch(ctx, "InsertHistoryEvents", "issue_history", len(rows), func(ctx context.Context) error {
		return s.inner.InsertHistoryEvents(ctx, rows)
	})
}

func (s *InstrumentedSink) InsertComments(ctx context.Context, rows []types.CommentRow) error {
	return s.batch(ctx, "InsertComments", "issue_comment", len(rows), func(ctx context.Context) error {
		return s.inner.InsertComments(ctx, rows)
	})
}

func (s *InstrumentedSink) InsertCCList(ctx context.Context, rows []types.CCRow) error {
	return s.batch(ctx, "InsertCCList", "cc_list", len(rows), func(ctx context.Context) error {
		return s.inner.InsertCCList(ctx, rows)
	})
}

func (s *InstrumentedSink) InsertEdges(ctx context.Context, kind types.EdgeKind, edges []types.Edge) error {
	return s.batch(ctx, "InsertEdges", string(kind), len(edges), func(ctx context.Context) error {
		return s.inner.InsertEdges(ctx, kind, edges)
	})
}

func (s *InstrumentedSink) ResetTrackerData(ctx context.Context, projectID int64) error {
	attrs := []attribute.KeyValue{attribute.Int64("bugcrawl.project.id", projectID)}
	ctx, span, t := s.op(ctx, "ResetTrackerData", attrs...)
	err := s.inner.ResetTrackerData(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}
