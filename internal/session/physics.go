package session

import (
	ws "github.com/gokatarajesh/falling-trivia/pkg/http/ws"
)

// PhysicsParams are the server-authoritative values the host engine applies
// to a player's falling blocks.
type PhysicsParams struct {
	Gravity   float64
	FallSpeed float64
}

// PhysicsSink receives parameter changes for the engine's physics layer.
type PhysicsSink interface {
	ApplyPhysics(playerID string, p PhysicsParams) error
}

// MessageSink forwards physics changes to the player as physics-update
// messages.
type MessageSink struct {
	Sender ws.Sender
}

func (s MessageSink) ApplyPhysics(playerID string, p PhysicsParams) error {
	return ws.Notify(s.Sender, ws.TypePhysicsUpdate, ws.PhysicsUpdatePayload{
		Gravity:   p.Gravity,
		FallSpeed: p.FallSpeed,
	}, playerID)
}

// speedFactor scales the base fall speed by 10% per streak step, at most
// maxFactor.
func speedFactor(streak int, maxFactor float64) float64 {
	return min(1+0.1*float64(streak), maxFactor)
}
