package generator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rhuss/homebrain/pkg/observability"
)

// Instrument wraps g so that every call records
// homebrain_generator_requests_total, homebrain_generator_latency_seconds
// and an OpenTelemetry span.
func Instrument(g Generator) Generator {
	if _, ok := g.(*instrumented); ok {
		return g
	}
	return &instrumented{next: g}
}

type instrumented struct {
	next Generator
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Generate(ctx context.Context, req *Request) (*Reply, error) {
	ctx, done := i.begin(ctx, "generate", len(req.Tools))
	reply, err := i.next.Generate(ctx, req)
	done(err)
	return reply, err
}

func (i *instrumented) GenerateStructured(ctx context.Context, prompt string, schema Schema, out any) error {
	ctx, done := i.begin(ctx, "structured", 0)
	err := i.next.GenerateStructured(ctx, prompt, schema, out)
	done(err)
	return err
}

func (i *instrumented) Stream(ctx context.Context, req *Request) (<-chan Delta, error) {
	ctx, done := i.begin(ctx, "stream", len(req.Tools))
	in, err := i.next.Stream(ctx, req)
	if err != nil {
		done(err)
		return nil, err
	}

	out := make(chan Delta)
	go func() {
		defer close(out)
		var final error
		for d := range in {
			if d.Err != nil {
				final = d.Err
			}
			if !Send(ctx, out, d) {
				final = ctx.Err()
				// Drain so the adapter goroutine can exit.
				for range in {
				}
				break
			}
		}
		done(final)
	}()
	return out, nil
}

func (i *instrumented) begin(ctx context.Context, call string, tools int) (context.Context, func(error)) {
	name := i.next.Name()
	ctx, span := observability.Tracer().Start(ctx, "generator."+call,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("generator.name", name),
			attribute.Int("generator.tools", tools),
		),
	)
	start := time.Now()
	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.GeneratorRequestsTotal.WithLabelValues(name, call, status).Inc()
		observability.GeneratorLatency.WithLabelValues(name, call).Observe(time.Since(start).Seconds())
		span.End()
	}
}
