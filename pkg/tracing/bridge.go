package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// The active span in a context does not always survive the trip into a tool
// handler: a scheduler that starts its own span from a different provider
// replaces it, and a no-op provider swaps in a non-recording stand-in. Context
// values do survive, so the root span is also kept under a private key and
// reinstated right before a tool runs.

type rootKey struct{}

type rootEntry struct {
	span trace.Span
}

// StoreAndRun runs body with span recorded as the root for everything
// underneath it. Nested calls shadow the outer root for their own body only.
func StoreAndRun[T any](ctx context.Context, span trace.Span, body func(context.Context) (T, error)) (T, error) {
	ctx = context.WithValue(ctx, rootKey{}, &rootEntry{span: span})
	return body(trace.ContextWithSpan(ctx, span))
}

func storedEntry(ctx context.Context) *rootEntry {
	if ctx == nil {
		return nil
	}
	entry, _ := ctx.Value(rootKey{}).(*rootEntry)
	return entry
}

// GetStored returns ctx with the stored root as its active span. Without a
// stored root ctx is returned as it is.
func GetStored(ctx context.Context) context.Context {
	entry := storedEntry(ctx)
	if entry == nil {
		return ctx
	}
	return trace.ContextWithSpan(ctx, entry.span)
}

// RunWithStored runs body under the stored root, or under ctx as given when
// there is none
func RunWithStored[T any](ctx context.Context, body func(context.Context) (T, error)) (T, error) {
	return body(GetStored(ctx))
}

// GetRootSpan returns the stored root, or a non-recording span when there
// is none
func GetRootSpan(ctx context.Context) trace.Span {
	if entry := storedEntry(ctx); entry != nil {
		return entry.span
	}
	return trace.SpanFromContext(context.Background())
}

// SetRootOutput records the final answer on the stored root. Nothing is
// written unless content capture is on.
func SetRootOutput(ctx context.Context, output string) {
	if !CaptureContent() {
		return
	}
	entry := storedEntry(ctx)
	if entry == nil {
		return
	}
	entry.span.SetAttributes(attribute.String(AttrOutput, output))
}
