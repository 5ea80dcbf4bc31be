// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// PUSH EVENT ENVELOPE
// =============================================================================

// EventType identifies the kind of a push event.
type EventType string

const (
	// EventNodeAdded carries a GraphNode payload.
	EventNodeAdded EventType = "node_added"

	// EventRelationshipCreated carries a GraphEdge payload.
	EventRelationshipCreated EventType = "relationship_created"

	// EventGraphOptimized signals the consumer should re-layout; it does
	// not carry patchable graph data.
	EventGraphOptimized EventType = "graph_optimized"
)

// Errors returned by event parsing and decoding.
var (
	// ErrUnknownEvent indicates an envelope with an unrecognized type.
	// Receivers log and ignore these rather than treating them as
	// connection failures.
	ErrUnknownEvent = fmt.Errorf("unknown event type")

	// ErrEventPayload indicates a recognized type with a payload that
	// does not decode to the expected shape.
	ErrEventPayload = fmt.Errorf("malformed event payload")
)

// Event is the JSON envelope pushed over the live connection:
// { "type": ..., "data": ... }. Data stays raw until a consumer asks
// for the typed payload.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseEvent decodes a wire frame into an envelope. A frame that is not
// valid JSON returns the unmarshal error; a valid envelope with an
// unrecognized type returns the event along with ErrUnknownEvent so the
// caller can log what it is dropping.
func ParseEvent(frame []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event envelope: %w", err)
	}
	switch ev.Type {
	case EventNodeAdded, EventRelationshipCreated, EventGraphOptimized:
		return ev, nil
	default:
		return ev, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
}

// NodeAdded decodes the payload of a node_added event.
func (e Event) NodeAdded() (GraphNode, error) {
	if e.Type != EventNodeAdded {
		return GraphNode{}, fmt.Errorf("%w: want %s, got %s", ErrEventPayload, EventNodeAdded, e.Type)
	}
	var node GraphNode
	if err := json.Unmarshal(e.Data, &node); err != nil {
		return GraphNode{}, fmt.Errorf("%w: %v", ErrEventPayload, err)
	}
	return node, nil
}

// RelationshipCreated decodes the payload of a relationship_created event.
func (e Event) RelationshipCreated() (GraphEdge, error) {
	if e.Type != EventRelationshipCreated {
		return GraphEdge{}, fmt.Errorf("%w: want %s, got %s", ErrEventPayload, EventRelationshipCreated, e.Type)
	}
	var edge GraphEdge
	if err := json.Unmarshal(e.Data, &edge); err != nil {
		return GraphEdge{}, fmt.Errorf("%w: %v", ErrEventPayload, err)
	}
	return edge, nil
}

// GraphOptimized is the payload of a graph_optimized event.
type GraphOptimized struct {
	// Kind names the optimization the backend performed.
	Kind string `json:"type"`

	// Changes counts how many elements the optimization touched.
	Changes int `json:"changes"`
}

// Optimized decodes the payload of a graph_optimized event.
func (e Event) Optimized() (GraphOptimized, error) {
	if e.Type != EventGraphOptimized {
		return GraphOptimized{}, fmt.Errorf("%w: want %s, got %s", ErrEventPayload, EventGraphOptimized, e.Type)
	}
	var opt GraphOptimized
	if err := json.Unmarshal(e.Data, &opt); err != nil {
		return GraphOptimized{}, fmt.Errorf("%w: %v", ErrEventPayload, err)
	}
	return opt, nil
}
