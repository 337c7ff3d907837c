package contextkeys

import "context"

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "feedback-sync context key " + string(c)
}

// UserIDKey carries the authenticated identity a call is made on behalf of.
// Stores that enforce rules read it to build the auth context.
const UserIDKey = contextKey("userID")

// SubscriptionIDKey carries the id of the live subscription a callback belongs to.
const SubscriptionIDKey = contextKey("subscriptionID")

// ComponentKey names the component that originated a call.
const ComponentKey = contextKey("component")

// OperationKey names the operation being performed.
const OperationKey = contextKey("operation")

// RequestIDKey carries a per-request correlation id (dev store server).
const RequestIDKey = contextKey("requestID")

// UserIDFrom returns the identity stored in ctx, if any.
func UserIDFrom(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(UserIDKey).(string)
	return uid, ok && uid != ""
}

// WithUserID returns a copy of ctx carrying uid.
func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, UserIDKey, uid)
}
