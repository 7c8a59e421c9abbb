//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

// Package telemetry provides the tracer used around model requests and
// member delegations.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ensemble-ai/ensemble"

// Tracer is the tracer used throughout ensemble. It resolves against the
// global otel provider, so installing an SDK provider at startup is enough
// to export spans.
var Tracer = otel.Tracer(instrumentationName)

// StartModelSpan starts a span for one model request.
func StartModelSpan(ctx context.Context, modelID, provider string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "model.request",
		trace.WithAttributes(
			attribute.String("model.id", modelID),
			attribute.String("model.provider", provider),
		),
	)
}

// StartDelegationSpan starts a span for one member delegation.
func StartDelegationSpan(ctx context.Context, teamName, memberName string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "team.delegate",
		trace.WithAttributes(
			attribute.String("team.name", teamName),
			attribute.String("team.member", memberName),
		),
	)
}

// StartRunSpan starts a span for one agent or team run.
func StartRunSpan(ctx context.Context, agentName, runID string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "agent.run",
		trace.WithAttributes(
			attribute.String("agent.name", agentName),
			attribute.String("run.id", runID),
		),
	)
}
