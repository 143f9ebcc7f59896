package keyrunes

import "context"

type requestIDContextKey struct{}
type namespaceContextKey struct{}

// WithRequestID attaches a caller-chosen request ID to ctx. The client
// sends it as X-Request-ID instead of generating one, so a call can be
// correlated across services.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// WithRequestNamespace overrides the client's default namespace for the
// registrations and logins issued under ctx.
func WithRequestNamespace(ctx context.Context, namespace string) context.Context {
	return context.WithValue(ctx, namespaceContextKey{}, namespace)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

func namespaceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	namespace, _ := ctx.Value(namespaceContextKey{}).(string)
	return namespace
}

// resolveNamespace picks the namespace for one request: context override,
// then client default, then the package default.
func (c *Client) resolveNamespace(ctx context.Context) string {
	if ns := namespaceFromContext(ctx); ns != "" {
		return ns
	}
	return c.Namespace()
}
