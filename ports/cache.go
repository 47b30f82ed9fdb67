package ports

import "context"

// VerdictCache memoizes structural validation verdicts keyed by the raw token text.
// Entries older than the cache TTL must be reported as absent.
type VerdictCache interface {
	Get(ctx context.Context, token string) (valid bool, found bool, err error)
	Set(ctx context.Context, token string, valid bool) error
}
