package auth

import (
	"context"
	"sort"
	"strings"

	"github.com/ocifetch/ocidist/registry"
)

// Scope actions recognized by the distribution token scope grammar.
// Reference: https://docs.docker.com/registry/spec/auth/scope/
const (
	ActionPull   = "pull"
	ActionPush   = "push"
	ActionDelete = "delete"
)

// ScopeRepository builds a `repository:<repository>:<actions>` scope
// string, with actions de-duplicated, sorted, and collapsed to a lone
// wildcard if any action is "*". Returns "" if repository is empty or no
// actions survive cleaning.
func ScopeRepository(repository string, actions ...string) string {
	if repository == "" {
		return ""
	}
	cleaned := cleanActions(actions)
	if len(cleaned) == 0 {
		return ""
	}
	return "repository:" + repository + ":" + strings.Join(cleaned, ",")
}

// cleanActions de-duplicates and sorts actions, dropping empty entries. A
// wildcard action ("*") subsumes every other action, so its presence
// collapses the result to a single "*".
func cleanActions(actions []string) []string {
	set := make(map[string]struct{}, len(actions))
	for _, action := range actions {
		if action == "" {
			continue
		}
		if action == "*" {
			return []string{"*"}
		}
		set[action] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	cleaned := make([]string, 0, len(set))
	for action := range set {
		cleaned = append(cleaned, action)
	}
	sort.Strings(cleaned)
	return cleaned
}

// scopesContextKey is the context key for the global scope hint list.
type scopesContextKey struct{}

// perHostScopesContextKey is the context key for the per-host scope hint
// map.
type perHostScopesContextKey struct{}

// WithScopes returns a context carrying scopes as hints for the auth client
// to request a Bearer token wide enough to cover all of them in one round
// trip. Scopes are de-duplicated and merged by CleanScopes.
//
// For example, uploading a blob to the repository "hello-world" issues a
// HEAD request before the POST/PUT: the HEAD challenge asks for
// `repository:hello-world:pull`, and a naive client fetches a token for
// that scope alone, then has to fetch a second, wider token once the POST
// challenge asks for `repository:hello-world:push`. Calling WithScopes
// with `repository:hello-world:pull,push` up front lets the cached token
// cover every request.
//
// Passing no scopes clears any scope hints already on ctx.
func WithScopes(ctx context.Context, scopes ...string) context.Context {
	return context.WithValue(ctx, scopesContextKey{}, CleanScopes(scopes))
}

// AppendScopes returns a context with scopes merged into whatever global
// scope hints ctx already carries. The context passed in is left
// untouched.
func AppendScopes(ctx context.Context, scopes ...string) context.Context {
	if len(scopes) == 0 {
		return ctx
	}
	return WithScopes(ctx, append(GetScopes(ctx), scopes...)...)
}

// GetScopes returns a copy of the global scope hints carried by ctx.
func GetScopes(ctx context.Context) []string {
	scopes, ok := ctx.Value(scopesContextKey{}).([]string)
	if !ok {
		return nil
	}
	return append([]string(nil), scopes...)
}

// perHostScopes is immutable once stored in a context: With/AppendScopesForHost
// always derive a fresh copy before writing.
type perHostScopes map[string][]string

// WithScopesForHost returns a context carrying scope hints for host,
// replacing whatever was previously hinted for that host. Scopes hinted
// for other hosts are left untouched.
func WithScopesForHost(ctx context.Context, host string, scopes ...string) context.Context {
	existing, _ := ctx.Value(perHostScopesContextKey{}).(perHostScopes)
	updated := make(perHostScopes, len(existing)+1)
	for h, s := range existing {
		updated[h] = s
	}
	updated[host] = CleanScopes(scopes)
	return context.WithValue(ctx, perHostScopesContextKey{}, updated)
}

// AppendScopesForHost returns a context with scopes merged into whatever
// is already hinted for host.
func AppendScopesForHost(ctx context.Context, host string, scopes ...string) context.Context {
	if len(scopes) == 0 {
		return ctx
	}
	return WithScopesForHost(ctx, host, append(GetScopesForHost(ctx, host), scopes...)...)
}

// GetScopesForHost returns a copy of the scope hints carried by ctx for
// host, not including the global (host-independent) scope hints.
func GetScopesForHost(ctx context.Context, host string) []string {
	existing, _ := ctx.Value(perHostScopesContextKey{}).(perHostScopes)
	return append([]string(nil), existing[host]...)
}

// GetAllScopesForHost merges the global scope hints with those hinted for
// host specifically, returning the result of CleanScopes over their union.
func GetAllScopesForHost(ctx context.Context, host string) []string {
	return CleanScopes(append(GetScopes(ctx), GetScopesForHost(ctx, host)...))
}

// AppendRepositoryScope is a convenience wrapper over AppendScopesForHost
// that hints a `repository:<ref.Repository>:<actions>` scope for ref's
// host.
func AppendRepositoryScope(ctx context.Context, ref registry.Reference, actions ...string) context.Context {
	scope := ScopeRepository(ref.Repository, actions...)
	if scope == "" {
		return ctx
	}
	return AppendScopesForHost(ctx, ref.Host(), scope)
}

// parsedScope is a single `resourceType:resourceName:actions` scope string
// split into its three parts, with actions held as a set for merging.
type parsedScope struct {
	resourceType string
	resourceName string
	actions      map[string]struct{}
}

// String reassembles the scope in canonical form, actions cleaned and
// sorted (wildcard-collapsed) the same way cleanActions does.
func (p parsedScope) String() string {
	actions := make([]string, 0, len(p.actions))
	for action := range p.actions {
		actions = append(actions, action)
	}
	return p.resourceType + ":" + p.resourceName + ":" + strings.Join(cleanActions(actions), ",")
}

// key identifies the (resourceType, resourceName) pair that two scope
// strings must share before their actions can be merged.
func (p parsedScope) key() string {
	return p.resourceType + "\x00" + p.resourceName
}

// parseScopeString splits a `type:name:actions` scope. ok is false when
// the scope does not have the expected two-colon shape, in which case the
// caller should pass it through unchanged.
func parseScopeString(scope string) (p parsedScope, ok bool) {
	i := strings.Index(scope, ":")
	if i == -1 {
		return parsedScope{}, false
	}
	p.resourceType, scope = scope[:i], scope[i+1:]

	j := strings.LastIndex(scope, ":")
	if j == -1 {
		return parsedScope{}, false
	}
	p.resourceName, scope = scope[:j], scope[j+1:]

	p.actions = make(map[string]struct{})
	for _, action := range strings.Split(scope, ",") {
		if action != "" {
			p.actions[action] = struct{}{}
		}
	}
	return p, true
}

// CleanScopes merges scopes that share a resource type and name, unions
// and sorts their actions (collapsing to a wildcard if any action is "*"),
// drops scopes left with no actions, and sorts the result — making the
// output deterministic regardless of input order or duplication.
func CleanScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}

	merged := make(map[string]parsedScope, len(scopes))
	var order []string
	var passthrough []string
	for _, scope := range scopes {
		p, ok := parseScopeString(scope)
		if !ok {
			passthrough = append(passthrough, scope)
			continue
		}
		if len(p.actions) == 0 {
			continue
		}
		k := p.key()
		existing, seen := merged[k]
		if !seen {
			merged[k] = p
			order = append(order, k)
			continue
		}
		for action := range p.actions {
			existing.actions[action] = struct{}{}
		}
	}

	if len(order) == 0 && len(passthrough) == 0 {
		return nil
	}

	result := make([]string, 0, len(order)+len(passthrough))
	result = append(result, passthrough...)
	for _, k := range order {
		result = append(result, merged[k].String())
	}
	sort.Strings(result)
	return result
}
