// Package middleware decorates durable cache tiers.
package middleware

import "github.com/aretw0/weft/pkg/ports"

// Middleware allows wrapping a CacheTier to add behavior.
type Middleware func(ports.CacheTier) ports.CacheTier

// Chain applies middlewares so that the first one is outermost.
func Chain(tier ports.CacheTier, mws ...Middleware) ports.CacheTier {
	for i := len(mws) - 1; i >= 0; i-- {
		tier = mws[i](tier)
	}
	return tier
}
