// Package trailz is the trail sharing zome. It has no content of its own
// yet and only knows where its sensemaker cell is.
package trailz

import (
	"github.com/pbaille/happz/internal/conductor"
	"github.com/pbaille/happz/internal/domain"
	"github.com/pbaille/happz/internal/zome/smfns"
)

// New returns the trailz zome backed by chain.
func New(chain smfns.Chain) *conductor.Zome {
	f := &smfns.Fns{Chain: chain}
	fns := map[string]conductor.Handler{}
	f.RegisterCellIDFns(fns)
	return &conductor.Zome{Name: domain.TrailzZome, Functions: fns}
}
