//
// Copyright (C) 2026 The ensemble authors. All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//

package tool

import "context"

type callIDKey struct{}

// ContextWithCallID attaches the tool call ID to the context before a tool
// is invoked. Tools that spawn nested runs use it to link the child run back
// to their own execution record.
func ContextWithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey{}, id)
}

// CallIDFromContext returns the tool call ID of the running tool, or "".
func CallIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}
