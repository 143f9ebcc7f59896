package keyrunes

import (
	"context"
	"fmt"
	"strings"
	"time"

	internalmetrics "github.com/keyrunes/keyrunes-go/internal/metrics"

	"github.com/keyrunes/keyrunes-go/authcache"
)

// Guard is an authorization check bound to a client capability. Guards are
// built once at the composition root with [RequireGroup] or [RequireAdmin]
// and reused; every check re-verifies against the live service unless a
// cache is attached with [Guard.WithCache].
//
// A Guard constructed with a nil client resolves the process default
// ([SetDefault], [Configure]) at check time, and fails with ErrNoClient
// when none is installed.
type Guard struct {
	client     *Client
	groups     []string
	requireAll bool
	admin      bool

	cache    authcache.Cache
	cacheTTL time.Duration
}

// RequireGroup builds a guard that admits users belonging to at least one
// of the given groups. Switch to all-of semantics with [Guard.All]. Pass a
// nil client to bind the guard to the process default at check time.
func RequireGroup(c *Client, groups ...string) *Guard {
	return &Guard{
		client: c,
		groups: append([]string(nil), groups...),
	}
}

// RequireAdmin builds a guard that admits only administrators, verified by
// fetching the live user record.
func RequireAdmin(c *Client) *Guard {
	return &Guard{
		client: c,
		admin:  true,
	}
}

// All returns a copy of the guard requiring membership in every group
// instead of at least one.
func (g *Guard) All() *Guard {
	ng := *g
	ng.requireAll = true
	return &ng
}

// WithCache returns a copy of the guard that consults cache before asking
// the service, storing verdicts for ttl. Without this, every check is a
// live round trip.
func (g *Guard) WithCache(cache authcache.Cache, ttl time.Duration) *Guard {
	ng := *g
	ng.cache = cache
	ng.cacheTTL = ttl
	return &ng
}

// Authorize checks whether userID satisfies the guard. It returns nil on
// success, ErrAuthorization (with the denial reason) when the user fails
// the check, ErrMissingUserID for an empty ID, and ErrNoClient when no
// client could be resolved.
func (g *Guard) Authorize(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("keyrunes: authorize: %w", ErrMissingUserID)
	}

	client := g.client
	if client == nil {
		client = Default()
	}
	if client == nil {
		return fmt.Errorf("keyrunes: authorize: %w", ErrNoClient)
	}

	err := g.check(ctx, client, userID)
	if err != nil {
		client.metricInc(internalmetrics.MetricAuthzDenied)
		client.emitAudit(ctx, auditEventAuthzDenied, false, userID, "", err, g.auditMetadata)
		return err
	}

	client.metricInc(internalmetrics.MetricAuthzAllowed)
	client.emitAudit(ctx, auditEventAuthzAllowed, true, userID, "", nil, g.auditMetadata)
	return nil
}

func (g *Guard) check(ctx context.Context, client *Client, userID string) error {
	if g.admin {
		user, err := client.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if !user.IsAdmin {
			return fmt.Errorf("%w: user %s does not have admin privileges", ErrAuthorization, userID)
		}
		return nil
	}

	if len(g.groups) == 0 {
		return fmt.Errorf("%w: guard requires at least one group", ErrValidation)
	}

	if g.requireAll {
		for _, group := range g.groups {
			ok, err := g.memberOf(ctx, client, userID, group)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: user %s does not have required group %q", ErrAuthorization, userID, group)
			}
		}
		return nil
	}

	for _, group := range g.groups {
		ok, err := g.memberOf(ctx, client, userID, group)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: user %s does not belong to any of the required groups: %s",
		ErrAuthorization, userID, strings.Join(g.groups, ", "))
}

// memberOf resolves one membership verdict: cache first when attached,
// then a deduplicated live check.
func (g *Guard) memberOf(ctx context.Context, client *Client, userID, group string) (bool, error) {
	key := client.Namespace() + "|" + userID + "|" + group

	if g.cache != nil {
		allowed, found, err := g.cache.Get(ctx, key)
		if err == nil && found {
			client.metricInc(internalmetrics.MetricCacheHit)
			return allowed, nil
		}
		client.metricInc(internalmetrics.MetricCacheMiss)
	}

	v, err, _ := client.checks.Do(key, func() (interface{}, error) {
		return client.HasGroup(ctx, userID, group)
	})
	if err != nil {
		return false, err
	}
	allowed := v.(bool)

	if g.cache != nil {
		// Verdict writes are best effort.
		_ = g.cache.Set(ctx, key, allowed, g.cacheTTL)
	}
	return allowed, nil
}

func (g *Guard) auditMetadata() map[string]string {
	md := make(map[string]string, 2)
	if g.admin {
		md["check"] = "admin"
		return md
	}
	md["groups"] = strings.Join(g.groups, ",")
	if g.requireAll {
		md["mode"] = "all"
	} else {
		md["mode"] = "any"
	}
	return md
}

// GuardedFunc runs on behalf of a user once a guard admits them.
type GuardedFunc func(ctx context.Context, userID string) error

// Wrap decorates fn so it only executes after [Guard.Authorize] admits the
// user. On denial fn is never invoked; on success it runs exactly once.
func (g *Guard) Wrap(fn GuardedFunc) GuardedFunc {
	return func(ctx context.Context, userID string) error {
		if err := g.Authorize(ctx, userID); err != nil {
			return err
		}
		return fn(ctx, userID)
	}
}

// Guarded is the value-returning form of [Guard.Wrap] for functions that
// produce a result.
func Guarded[T any](g *Guard, fn func(ctx context.Context, userID string) (T, error)) func(ctx context.Context, userID string) (T, error) {
	return func(ctx context.Context, userID string) (T, error) {
		if err := g.Authorize(ctx, userID); err != nil {
			var zero T
			return zero, err
		}
		return fn(ctx, userID)
	}
}
