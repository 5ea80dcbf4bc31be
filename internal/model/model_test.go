// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"testing"
	"time"
)

// =============================================================================
// CLONE TESTS
// =============================================================================

func TestSessionCloneIsDeep(t *testing.T) {
	sess := NewSession("Quantum basics")
	msg := NewMessage(RoleUser, "what is entanglement?")
	msg.Metadata = map[string]string{"source": "doc-1"}
	sess.Messages = append(sess.Messages, msg)

	clone := sess.Clone()
	clone.Title = "changed"
	clone.Messages[0].Content = "changed"
	clone.Messages[0].Metadata["source"] = "changed"

	if sess.Title != "Quantum basics" {
		t.Errorf("clone mutated original title: %q", sess.Title)
	}
	if sess.Messages[0].Content != "what is entanglement?" {
		t.Errorf("clone mutated original message: %q", sess.Messages[0].Content)
	}
	if sess.Messages[0].Metadata["source"] != "doc-1" {
		t.Errorf("clone shares metadata map with original")
	}
}

func TestGraphSnapshotCloneIsDeep(t *testing.T) {
	snap := &GraphSnapshot{
		Nodes: []GraphNode{{ID: "n1", Label: "A", Properties: map[string]string{"k": "v"}}},
		Edges: []GraphEdge{{ID: "e1", Source: "n1", Target: "n2"}},
	}

	clone := snap.Clone()
	clone.Nodes[0].Label = "B"
	clone.Nodes[0].Properties["k"] = "changed"
	clone.Edges[0].Target = "n9"

	if snap.Nodes[0].Label != "A" || snap.Nodes[0].Properties["k"] != "v" {
		t.Error("snapshot clone shares node state with original")
	}
	if snap.Edges[0].Target != "n2" {
		t.Error("snapshot clone shares edge state with original")
	}
}

func TestGraphSnapshotCloneNil(t *testing.T) {
	var snap *GraphSnapshot
	if snap.Clone() != nil {
		t.Error("expected nil clone of nil snapshot")
	}
}

// =============================================================================
// SESSION METADATA TESTS
// =============================================================================

func TestSessionLastActivity(t *testing.T) {
	sess := NewSession("t")
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	sess.UpdatedAt = base

	if got := sess.LastActivity(); !got.Equal(base) {
		t.Errorf("empty session: want %v, got %v", base, got)
	}

	msg := NewMessage(RoleUser, "hi")
	msg.Timestamp = base.Add(time.Hour)
	sess.Messages = append(sess.Messages, msg)

	if got := sess.LastActivity(); !got.Equal(base.Add(time.Hour)) {
		t.Errorf("want newest message time, got %v", got)
	}
}

func TestSessionPreview(t *testing.T) {
	sess := NewSession("t")
	if sess.Preview() != "" {
		t.Error("empty session should have empty preview")
	}

	sess.Messages = append(sess.Messages,
		NewMessage(RoleSystem, "connected"),
		NewMessage(RoleUser, "first\nquestion"),
	)
	if got := sess.Preview(); got != "first question" {
		t.Errorf("want %q, got %q", "first question", got)
	}
}

// =============================================================================
// EVENT PARSING TESTS
// =============================================================================

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr error
		want    EventType
	}{
		{
			name:  "node added",
			frame: `{"type":"node_added","data":{"id":"n1","label":"Physics"}}`,
			want:  EventNodeAdded,
		},
		{
			name:  "relationship created",
			frame: `{"type":"relationship_created","data":{"id":"e1","source":"n1","target":"n2"}}`,
			want:  EventRelationshipCreated,
		},
		{
			name:  "graph optimized",
			frame: `{"type":"graph_optimized","data":{"type":"merge","changes":4}}`,
			want:  EventGraphOptimized,
		},
		{
			name:    "unknown type",
			frame:   `{"type":"telemetry","data":{}}`,
			wantErr: ErrUnknownEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.frame))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ev.Type != tt.want {
				t.Errorf("want type %s, got %s", tt.want, ev.Type)
			}
		})
	}
}

func TestParseEventMalformed(t *testing.T) {
	if _, err := ParseEvent([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestEventTypedDecode(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"node_added","data":{"id":"n1","label":"Physics","kind":"topic"}}`))
	if err != nil {
		t.Fatal(err)
	}
	node, err := ev.NodeAdded()
	if err != nil {
		t.Fatal(err)
	}
	if node.ID != "n1" || node.Label != "Physics" || node.Kind != "topic" {
		t.Errorf("bad decode: %+v", node)
	}

	// Decoding as the wrong type is a payload error.
	if _, err := ev.RelationshipCreated(); !errors.Is(err, ErrEventPayload) {
		t.Errorf("want ErrEventPayload, got %v", err)
	}
}

func TestEventOptimizedDecode(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"graph_optimized","data":{"type":"cluster","changes":12}}`))
	if err != nil {
		t.Fatal(err)
	}
	opt, err := ev.Optimized()
	if err != nil {
		t.Fatal(err)
	}
	if opt.Kind != "cluster" || opt.Changes != 12 {
		t.Errorf("bad decode: %+v", opt)
	}
}
