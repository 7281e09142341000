// internal/routing/alias.go
//
// Path alias table and rewrite middleware.
//
// Context
// -------
// Pages published before the Go relay still post to the old PHP script, and
// search engines keep a few retired URLs.  An alias maps such a path to its
// current target.  The middleware rewrites r.URL.Path before chi routes the
// request, so the target handler serves the alias without a redirect (a
// redirect would turn a POST into a GET in some clients).
//
// Workflow
// --------
//   1. cmd/web builds the table from `http.aliases` via NewAliases.
//   2. Middleware(table) is installed with r.Use, ahead of the routes.
//   3. On a hit the path is rewritten; otherwise the request passes through.
//   4. Replace swaps the whole table, e.g. after a config reload.

package routing

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ruthram360/site/internal/logger"
)

// -----------------------------------------------------------------------------
// Aliases
// -----------------------------------------------------------------------------

// Aliases stores alias→target pairs.  Safe for concurrent use.
type Aliases struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewAliases validates pairs and returns a ready table.
func NewAliases(pairs map[string]string) (*Aliases, error) {
	a := &Aliases{}
	if err := a.Replace(pairs); err != nil {
		return nil, err
	}
	return a, nil
}

// Replace swaps in a new table.  Both sides must be absolute paths and a
// target may not itself be an alias.
func (a *Aliases) Replace(pairs map[string]string) error {
	fresh := make(map[string]string, len(pairs))
	for from, to := range pairs {
		if !strings.HasPrefix(from, "/") || !strings.HasPrefix(to, "/") {
			return fmt.Errorf("routing: alias %q → %q must use absolute paths", from, to)
		}
		if from == to {
			return fmt.Errorf("routing: alias %q points at itself", from)
		}
		fresh[from] = to
	}
	for from, to := range fresh {
		if _, chained := fresh[to]; chained {
			return fmt.Errorf("routing: alias %q → %q is chained", from, to)
		}
	}

	a.mu.Lock()
	a.data = fresh
	a.mu.Unlock()
	return nil
}

// Lookup returns the target for path.
func (a *Aliases) Lookup(path string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	target, ok := a.data[path]
	return target, ok
}

// Len reports how many aliases are loaded.
func (a *Aliases) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.data)
}

// -----------------------------------------------------------------------------
// Middleware factory
// -----------------------------------------------------------------------------

// Middleware returns a chi middleware that rewrites alias paths.
func Middleware(a *Aliases) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			target, ok := a.Lookup(r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			original := r.URL.Path
			r.URL.Path = target
			r.URL.RawPath = ""
			logger.FromContext(r.Context()).Debugw("alias rewrite", "from", original, "to", target)

			next.ServeHTTP(w, r)
		})
	}
}
