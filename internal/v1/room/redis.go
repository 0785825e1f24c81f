package room

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/chess-room-engine/backend/internal/v1/bus"
	"github.com/chess-room-engine/backend/internal/v1/logging"
	"github.com/chess-room-engine/backend/internal/v1/wire"
	"go.uber.org/zap"
	"k8s.io/utils/set"
)

// subscribeToRedis joins this room's cross-pod channel so events published by
// a sibling process land on locally-connected clients.
func (r *Room) subscribeToRedis(ctx context.Context, wg *sync.WaitGroup) {
	if r.bus == nil {
		return
	}
	r.bus.Subscribe(ctx, string(r.id), wg, r.handleRedisMessage)
}

// handleRedisMessage re-broadcasts a message that originated on another pod,
// skipping republication to avoid an infinite relay loop.
func (r *Room) handleRedisMessage(payload bus.PubSubPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var roleSet set.Set[RoleType]
	if len(payload.Roles) > 0 {
		roleSet = set.New[RoleType]()
		for _, roleStr := range payload.Roles {
			roleSet.Insert(RoleType(roleStr))
		}
	}

	var decoded any
	if err := json.Unmarshal(payload.Payload, &decoded); err != nil {
		logging.Error(context.Background(), "failed to unmarshal redis payload", zap.Error(err))
		return
	}

	msg := wire.Message{Event: wire.Event(payload.Event), Payload: decoded}
	for id, c := range r.clients {
		if roleSet != nil && !roleSet.Has(c.GetRole()) {
			continue
		}
		if string(id) == payload.SenderID {
			continue
		}
		c.Send(msg)
	}
}
