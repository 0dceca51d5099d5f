package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/cschleiden/go-dispatch/activities"
	"github.com/cschleiden/go-dispatch/activity"
	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/backend/monoprocess"
	"github.com/cschleiden/go-dispatch/backend/sqlite"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/definition"
	"github.com/cschleiden/go-dispatch/dispatcher"
	"github.com/cschleiden/go-dispatch/payload"
	"github.com/cschleiden/go-dispatch/registry"
	"github.com/cschleiden/go-dispatch/scheduler"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"
)

// This sample starts an order workflow from an OrderApproved event, charges the customer through
// a registered service, waits for a delay fired by the in-process scheduler and completes when the
// OrderShipped event arrives.

type payments struct{}

func (payments) Charge(ctx context.Context, orderID string, amount float64) (string, error) {
	return fmt.Sprintf("ch_%s_%d", orderID, int(amount*100)), nil
}

func chargeCard() activity.Descriptor {
	return activity.Descriptor{
		TypeName: "ChargeCard",
		Services: []string{"payments"},
		Execute: func(ctx context.Context, ac *activity.Context) (activity.Outcome, error) {
			p, err := activity.GetService[payments](ac, "payments")
			if err != nil {
				return activity.Outcome{}, err
			}

			var amount float64
			if _, err := ac.Variables.Get("amount", &amount); err != nil {
				return activity.Outcome{}, err
			}

			id, err := p.Charge(ctx, ac.CorrelationID, amount)
			if err != nil {
				return activity.Outcome{}, err
			}

			ac.Logger.InfoContext(ctx, "charged card", "charge", id)

			return activity.Done(), ac.Variables.Set("charge", id)
		},
	}
}

func orderDefinition() *definition.WorkflowDefinition {
	return &definition.WorkflowDefinition{
		ID: "orders",
		Graph: definition.NewGraph("approved").
			AddNode("approved", activities.EventType, map[string]any{"event": "OrderApproved"}).
			AddNode("charge", "ChargeCard", nil).
			AddNode("pack", activities.DelayType, map[string]any{"duration": "2s"}).
			AddNode("shipped", activities.EventType, map[string]any{"event": "OrderShipped"}).
			AddNode("done", activities.LogType, map[string]any{"message": "order complete"}).
			Connect("approved", "charge").
			Connect("charge", "pack").
			Connect("pack", "shipped").
			Connect("shipped", "done"),
	}
}

func main() {
	otlpEndpoint := flag.String("otlp", "", "otlp/http endpoint, e.g. localhost:4318. Spans are printed to stdout otherwise")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp := setupTracing(ctx, *otlpEndpoint)
	defer tp.Shutdown(context.Background())

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	b := monoprocess.NewMonoprocessBackend(
		sqlite.NewInMemoryBackend(sqlite.WithBackendOptions(
			backend.WithLogger(logger),
			backend.WithTracerProvider(tp),
		)),
		16,
		100*time.Millisecond,
	)
	defer b.Close()

	r := registry.New()
	if err := activities.Register(r); err != nil {
		panic(err)
	}

	if err := r.RegisterActivity(chargeCard()); err != nil {
		panic(err)
	}

	if err := r.RegisterService("payments", payments{}); err != nil {
		panic(err)
	}

	d := dispatcher.New(b, r)

	if _, err := d.Publish(ctx, orderDefinition()); err != nil {
		panic(err)
	}

	s := scheduler.New(b, d, scheduler.WithPollingInterval(time.Second))
	if err := s.Start(ctx); err != nil {
		panic("could not start scheduler: " + err.Error())
	}

	runOrder(ctx, b, d, "42")

	cancel()

	if err := s.WaitForCompletion(); err != nil {
		panic("could not stop scheduler: " + err.Error())
	}
}

func runOrder(ctx context.Context, b backend.Backend, d *dispatcher.Dispatcher, orderID string) {
	tr, err := d.TriggerWorkflows(ctx, &core.TriggerWorkflowsRequest{
		ActivityTypeName: activities.EventType,
		Payload:          payload.Payload{"event": "OrderApproved"},
		CorrelationID:    orderID,
		Input:            payload.Payload{"amount": 99.5},
		IdempotencyKey:   "order-" + orderID,
	})
	if err != nil {
		log.Fatal(err)
	}

	if len(tr.StartedInstanceIDs) != 1 {
		log.Fatalf("expected one started instance, got %v", tr.Items)
	}

	instanceID := tr.StartedInstanceIDs[0]
	log.Println("Started instance", instanceID)

	// The scheduler fires the delay, after which the instance waits for the shipment
	waitFor(ctx, b, instanceID, func(i *core.WorkflowInstance) bool {
		p, err := core.DecodePosition(i.Position)
		return err == nil && p != nil && p.IsWaiting("shipped")
	})

	rr, err := d.ResumeBookmarks(ctx, &core.ResumeBookmarksRequest{
		ActivityTypeName: activities.EventType,
		Payload:          payload.Payload{"event": "OrderShipped"},
		CorrelationID:    orderID,
	})
	if err != nil {
		log.Fatal(err)
	}

	log.Println("Resumed", rr.ResumedInstanceIDs, "outcome", rr.Outcome)

	instance, err := b.Instances().Load(ctx, instanceID)
	if err != nil {
		log.Fatal(err)
	}

	var charge string
	_, _ = instance.Variables.Get("charge", &charge)

	log.Println("Instance finished. Status:", instance.Status, "charge:", charge)
}

func waitFor(ctx context.Context, b backend.Backend, instanceID string, cond func(*core.WorkflowInstance) bool) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.After(30 * time.Second)

	for {
		instance, err := b.Instances().Load(ctx, instanceID)
		if err != nil {
			log.Fatal(err)
		}

		if cond(instance) {
			return
		}

		select {
		case <-ticker.C:
		case <-timeout:
			log.Fatalf("instance %s did not reach the expected state", instanceID)
		}
	}
}

func setupTracing(ctx context.Context, endpoint string) *sdktrace.TracerProvider {
	r := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("go-dispatch sample"),
		semconv.ServiceVersion("v0.1.0"),
		attribute.String("environment", "sample"),
	)

	var exp sdktrace.SpanExporter
	if endpoint != "" {
		e, err := otlptrace.New(ctx, otlptracehttp.NewClient(otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure()))
		if err != nil {
			panic(err)
		}

		exp = e
	} else {
		e, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			panic(err)
		}

		exp = e
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(r),
	)

	otel.SetTracerProvider(tp)

	return tp
}
