package obs

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementLen = 300

type pgxQueryKey struct{}

type pgxQuery struct {
	span      trace.Span
	operation string
	started   time.Time
}

// PGXTracer traces sale journal queries and records their latency.
type PGXTracer struct {
	// Database is reported as db.name; it defaults to "pos_journal".
	Database string
}

// TraceQueryStart opens a client span named after the SQL verb.
func (t PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := sqlOperation(data.SQL)
	db := t.Database
	if db == "" {
		db = "pos_journal"
	}
	ctx, span := otel.Tracer("pos-gateway/journal").Start(ctx, "journal."+strings.ToLower(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemPostgreSQL,
			attribute.String("db.namespace", db),
			attribute.String("db.operation.name", op),
			attribute.String("db.query.text", truncateSQL(data.SQL)),
		),
	)
	return context.WithValue(ctx, pgxQueryKey{}, pgxQuery{span: span, operation: op, started: time.Now()})
}

// TraceQueryEnd closes the span and observes the query latency.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	q, ok := ctx.Value(pgxQueryKey{}).(pgxQuery)
	if !ok {
		return
	}
	result := "ok"
	if data.Err != nil {
		result = "error"
		q.span.RecordError(data.Err)
		q.span.SetStatus(codes.Error, "journal query failed")
	} else {
		q.span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	}
	q.span.End()
	ObserveJournalQuery(q.operation, result, DurationMillis(time.Since(q.started)))
}

func sqlOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}

func truncateSQL(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if len(trimmed) > maxStatementLen {
		return trimmed[:maxStatementLen] + "..."
	}
	return trimmed
}
