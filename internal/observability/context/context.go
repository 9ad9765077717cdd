package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type shopKey struct{}
type actorKey struct{}

type actor struct {
	typ string
	id  string
}

// WithRequestID stores the inbound request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// WithShop stores the shop domain the current work is scoped to.
func WithShop(ctx context.Context, shop string) context.Context {
	shop = strings.TrimSpace(shop)
	if shop == "" {
		return ctx
	}
	return context.WithValue(ctx, shopKey{}, shop)
}

func ShopFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(shopKey{}).(string)
	return v
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{
		typ: strings.TrimSpace(actorType),
		id:  strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	a, _ := ctx.Value(actorKey{}).(actor)
	return a.typ, a.id
}
