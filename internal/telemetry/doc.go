// Package telemetry provides OpenTelemetry instrumentation for the pipeline
// orchestrator.
//
// # Overview
//
// This package implements distributed tracing and metrics collection using
// the OpenTelemetry Go SDK, exported over OTLP to a collector. It sets up
// the providers only: pipelinectl creates and shuts down an instance, but
// the orchestrator and phase runner open no spans and record no counters
// through it.
//
// # Usage
//
// Create telemetry instance:
//
//	cfg := telemetry.NewDefaultConfig()
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(ctx)
//
// Use tracer and meter:
//
//	tracer := tel.Tracer("pipeline.orchestrator")
//	ctx, span := tracer.Start(ctx, "phase4.synthesis")
//	defer span.End()
//
//	meter := tel.Meter("pipeline.orchestrator")
//	counter, _ := meter.Int64Counter("pipeline.chunk.outcomes")
//	counter.Add(ctx, 1)
//
// # Configuration
//
// pipelinectl starts from NewDefaultConfig and copies in the observability
// section of the pipeline config:
//
//	observability:
//	  enable_telemetry: true
//	  service_name: "pipeline"
//	  otlp_endpoint: "localhost:4317"
//	  otlp_protocol: "grpc"
//	  otlp_insecure: true
//
// Sampling, metrics and shutdown settings keep their NewDefaultConfig
// values.
//
// # Error Handling
//
// Telemetry failures do not crash a run. If creating a resource or an
// exporter fails, New marks the instance degraded and leaves that provider
// unset, so Tracer and Meter fall back to the global providers. An
// unreachable collector does not fail New: exports run in the background
// and their errors do not reach the orchestrator.
//
// # Testing
//
// Use TestTelemetry for tests:
//
//	tt := telemetry.NewTestTelemetry()
//	tracer := tt.Tracer("test")
//	_, span := tracer.Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
