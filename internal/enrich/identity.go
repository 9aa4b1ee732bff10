package enrich

import "math/rand/v2"

// IdentityPool draws per-session identities.
type IdentityPool struct {
	UserAgents     []string
	Width          IntRange
	Height         IntRange
	AcceptLanguage string

	// IntN overrides the random source; nil uses math/rand/v2.
	IntN func(n int) int
}

// Draw picks a user agent and a viewport.
func (p IdentityPool) Draw() Identity {
	id := Identity{AcceptLanguage: p.AcceptLanguage}
	if len(p.UserAgents) > 0 {
		id.UserAgent = p.UserAgents[p.intN(len(p.UserAgents))]
	}
	id.Viewport = Viewport{Width: p.between(p.Width), Height: p.between(p.Height)}
	return id
}

func (p IdentityPool) between(r IntRange) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + p.intN(r.Max-r.Min+1)
}

func (p IdentityPool) intN(n int) int {
	if p.IntN != nil {
		return p.IntN(n)
	}
	return rand.IntN(n)
}
