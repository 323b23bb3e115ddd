package models

import "github.com/google/uuid"

// ActorType distinguishes the kinds of principals that can appear on a
// security event.
type ActorType string

const (
	ActorCentral   ActorType = "central"
	ActorTenant    ActorType = "tenant"
	ActorAnonymous ActorType = "anonymous"
)

// Actor is a tagged variant over the three principal kinds. Central actors
// carry an ID, tenant actors carry an ID plus their tenant, anonymous actors
// carry neither. Use the constructors; a zero Actor is anonymous.
type Actor struct {
	Type     ActorType
	ID       *uuid.UUID
	TenantID *uuid.UUID
}

// CentralActor returns an actor for a platform-level principal.
func CentralActor(id uuid.UUID) Actor {
	return Actor{Type: ActorCentral, ID: &id}
}

// TenantActor returns an actor scoped to a tenant.
func TenantActor(id, tenantID uuid.UUID) Actor {
	return Actor{Type: ActorTenant, ID: &id, TenantID: &tenantID}
}

// AnonymousActor returns the actor used for unauthenticated traffic.
func AnonymousActor() Actor {
	return Actor{Type: ActorAnonymous}
}

// IsAnonymous reports whether the actor carries no identity. Anonymous events
// are written to the log sink only, never to durable per-actor storage.
func (a Actor) IsAnonymous() bool {
	return a.Type == ActorAnonymous || a.ID == nil
}
