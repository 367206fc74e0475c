// Package repository stores entities in a relational table per kind.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/model"
	"github.com/YaganovValera/market-stream/common/telemetry"
	"github.com/YaganovValera/market-stream/services/persister/internal/metrics"
)

var tracer = telemetry.Tracer("persister/repository")

// ErrNoModelFields: after remapping the entity carries none of its
// kind's model fields.
var ErrNoModelFields = errors.New("repository: entity has no model fields")

// RepositoryError wraps every failure of Add with the entity kind.
type RepositoryError struct {
	Kind model.Kind
	Err  error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository: add %s: %v", e.Kind, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// Repository persists entities.
type Repository interface {
	Add(ctx context.Context, e *model.Entity) error
	Ping(ctx context.Context) error
	Close() error
}

// placeholder renders the n-th (1-based) bind parameter.
type placeholder func(n int) string

func dollar(n int) string { return "$" + strconv.Itoa(n) }

func question(int) string { return "?" }

type execFunc func(ctx context.Context, query string, args ...any) error

// writer holds the driver independent part of Add.
type writer struct {
	exec     execFunc
	ph       placeholder
	mappings model.MappingTable
	log      *logger.Logger
}

func (w *writer) add(ctx context.Context, e *model.Entity) error {
	table := e.Kind().Table()
	ctx, span := tracer.Start(ctx, "Add", trace.WithAttributes(attribute.String("table", table)))
	defer span.End()

	query, args, err := buildInsert(e.Kind(), e.FilterModelFields(w.mappings.For(e.Kind())), w.ph)
	if err != nil {
		metrics.InsertErrors.WithLabelValues(table).Inc()
		return &RepositoryError{Kind: e.Kind(), Err: err}
	}

	start := time.Now()
	err = w.exec(ctx, query, args...)
	metrics.InsertLatency.WithLabelValues(table).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.Fail(span, err)
		metrics.InsertErrors.WithLabelValues(table).Inc()
		return &RepositoryError{Kind: e.Kind(), Err: err}
	}
	metrics.InsertsTotal.WithLabelValues(table).Inc()
	return nil
}

// buildInsert renders
//
//	INSERT INTO <table> (<cols>,created_on) VALUES (<params>,CURRENT_TIMESTAMP)
//
// Column names come from the kind's model field registry only.
func buildInsert(kind model.Kind, fields model.Fields, ph placeholder) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, ErrNoModelFields
	}
	cols := make([]string, 0, len(fields)+1)
	params := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields))
	for i, f := range fields {
		cols = append(cols, f.Name)
		params = append(params, ph(i+1))
		args = append(args, f.Value)
	}
	cols = append(cols, "created_on")
	params = append(params, "CURRENT_TIMESTAMP")

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(kind.Table())
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ","))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(params, ","))
	b.WriteString(")")
	return b.String(), args, nil
}
