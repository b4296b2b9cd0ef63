// Package world declares the interfaces the prediction/rollback core
// requires from the embedding entity/component store and scheduler. The
// core never implements these itself; the embedder's entity-component
// system satisfies them the same way a gamemode's systems are driven by,
// but never implement, its core game loop.
package world

import (
	"io"

	"github.com/tickwire/netcode/pkg/netcode"
	"github.com/tickwire/netcode/pkg/tick"
)

// EntityID identifies one entity in the embedding world.
type EntityID uint64

// ComponentID identifies one registered component type, analogous to a
// channel's NetId: locally-unique and assigned by the shared protocol
// registry.
type ComponentID uint16

// TickDriver is what the rollback engine needs to advance or rewind the
// embedder's simulation clock and run one fixed-update step.
type TickDriver interface {
	AdvanceTick()
	RunFixedUpdate(isRollback bool)
	SetTickAndOverstep(ti tick.TickInstant)
	SetTimeRelativeSpeed(speed float32)
}

// ComponentRegistry is the per-component-type access surface the core uses
// to read and write predicted state during rollback restoration and history
// capture.
type ComponentRegistry interface {
	Serialize(entity EntityID, id ComponentID, w io.Writer) error
	Deserialize(entity EntityID, id ComponentID, r io.Reader) error
	Insert(entity EntityID, id ComponentID, value any) error
	Remove(entity EntityID, id ComponentID) error
	Get(entity EntityID, id ComponentID) (value any, ok bool)
	MapEntities(entity EntityID, id ComponentID, remap func(EntityID) EntityID) error
}

// MarkerRegistry toggles the Predicted/Confirmed tags the core and the
// embedder's systems both read to decide which entities participate in
// rollback.
type MarkerRegistry interface {
	AddPredicted(entity EntityID)
	RemovePredicted(entity EntityID)
	AddConfirmed(entity EntityID)
	RemoveConfirmed(entity EntityID)
	IsPredicted(entity EntityID) bool
	IsConfirmed(entity EntityID) bool
}

// World is the full surface the core requires from the embedder.
type World interface {
	TickDriver
	ComponentRegistry
	MarkerRegistry
}

// EventKind distinguishes the three event types the core raises toward the
// embedder.
type EventKind int

const (
	EventConnect EventKind = iota
	EventDisconnect
	EventTickSync
)

// Event is one core-raised notification; only the fields relevant to Kind
// are populated.
type Event struct {
	Kind             EventKind
	ClientID         uint64
	DisconnectReason netcode.DisconnectReason
}

// EventChannel fans core events out to the embedder without ever blocking
// the tick loop: a full channel drops the event rather than stalling,
// mirroring pkg/priority's DroppedReplication non-blocking-send pattern.
type EventChannel struct {
	ch chan Event
}

// NewEventChannel builds an event channel with the given buffer depth.
func NewEventChannel(depth int) *EventChannel {
	return &EventChannel{ch: make(chan Event, depth)}
}

// Publish sends ev, dropping it if the channel is full.
func (e *EventChannel) Publish(ev Event) bool {
	select {
	case e.ch <- ev:
		return true
	default:
		return false
	}
}

// Chan returns the receive side for the embedder to consume.
func (e *EventChannel) Chan() <-chan Event {
	return e.ch
}
