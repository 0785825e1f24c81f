// Package catalog implements the Public Catalog: a read-only, privacy-
// filtered projection of joinable rooms for lobby browsing. It never exposes
// room passwords or spectator identities, and excludes private rooms
// entirely.
package catalog

import (
	"sort"

	"github.com/chess-room-engine/backend/internal/v1/room"
)

// Source is the subset of the Hub this package depends on.
type Source interface {
	Listings() []room.Listing
}

// Filter narrows the catalog by optional criteria; zero values mean
// "no constraint".
type Filter struct {
	State       room.RoomState
	TimedOnly   bool
	UntimedOnly bool
}

// List returns joinable, non-private room listings matching filter, sorted
// by most recently active first.
func List(src Source, filter Filter) []room.Listing {
	all := src.Listings()
	out := make([]room.Listing, 0, len(all))
	for _, l := range all {
		if filter.State != "" && l.State != filter.State {
			continue
		}
		if filter.TimedOnly && l.TimeControl == nil {
			continue
		}
		if filter.UntimedOnly && l.TimeControl != nil {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity > out[j].LastActivity
	})
	return out
}
