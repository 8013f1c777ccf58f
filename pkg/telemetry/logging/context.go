package logging

import "context"

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// OrgScopeKey is the context key for the tenant scope of a request.
	OrgScopeKey contextKey = "org_scope"

	// ContentHashKey is the context key for the file's content hash.
	ContentHashKey contextKey = "content_hash"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

// WithOrgScope adds an org scope to the context.
func WithOrgScope(ctx context.Context, org string) context.Context {
	return context.WithValue(ctx, OrgScopeKey, org)
}

// GetOrgScope retrieves the org scope from the context.
func GetOrgScope(ctx context.Context) string {
	v, _ := ctx.Value(OrgScopeKey).(string)
	return v
}

// WithContentHash adds a content hash to the context.
func WithContentHash(ctx context.Context, hash string) context.Context {
	return context.WithValue(ctx, ContentHashKey, hash)
}

// GetContentHash retrieves the content hash from the context.
func GetContentHash(ctx context.Context) string {
	v, _ := ctx.Value(ContentHashKey).(string)
	return v
}
