package identity

import "context"

// CredentialChecker decides whether a previously stored identity may still be
// trusted at restore time, before any remote record lookup.
type CredentialChecker interface {
	Check(ctx context.Context, userID string) error
}

// OptimisticChecker trusts any stored identity without contacting the
// provider. Credential-state checks produce false negatives in sandboxed and
// test environments, so a stored identity is treated as valid and only
// invalidated reactively when a remote operation proves it unknown.
type OptimisticChecker struct{}

func (OptimisticChecker) Check(ctx context.Context, userID string) error {
	return nil
}

// CheckerFunc adapts a function to the CredentialChecker interface, for
// environments that want a stricter revalidating policy.
type CheckerFunc func(ctx context.Context, userID string) error

func (f CheckerFunc) Check(ctx context.Context, userID string) error {
	return f(ctx, userID)
}
