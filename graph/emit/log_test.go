package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogEmitter_Text(t *testing.T) {
	var buf bytes.Buffer
	em := NewLogEmitter(&buf, false)

	em.Emit(Event{RunID: "run-1", Step: 2, NodeID: "keyword_extraction", Msg: "node_end",
		Meta: map[string]interface{}{"attempts": 1}})
	em.Emit(Event{RunID: "run-1", Step: 3, NodeID: "detailed_search", Msg: "node_start"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}

	want := `[node_end] runID=run-1 step=2 nodeID=keyword_extraction meta={"attempts":1}`
	if lines[0] != want {
		t.Errorf("line 0 = %q, want %q", lines[0], want)
	}
	if strings.Contains(lines[1], "meta=") {
		t.Errorf("line 1 = %q, want no meta for empty Meta", lines[1])
	}
}

func TestLogEmitter_JSON(t *testing.T) {
	var buf bytes.Buffer
	em := NewLogEmitter(&buf, true)

	em.Emit(Event{RunID: "run-1", Step: 1, NodeID: "initial_search", Msg: "error",
		Meta: map[string]interface{}{"error": "boom"}})

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, want nil", err)
	}
	if got["runID"] != "run-1" || got["nodeID"] != "initial_search" || got["msg"] != "error" {
		t.Errorf("decoded = %v", got)
	}
	meta, _ := got["meta"].(map[string]interface{})
	if meta["error"] != "boom" {
		t.Errorf("meta.error = %v, want boom", meta["error"])
	}
}

func TestEvent_WithMetaDoesNotMutate(t *testing.T) {
	orig := Event{Msg: "node_end", Meta: map[string]interface{}{"a": 1}}
	next := orig.WithMeta("b", 2).WithNodeID("finalize")

	if _, ok := orig.Meta["b"]; ok {
		t.Error("WithMeta() modified the receiver's map")
	}
	if next.Meta["a"] != 1 || next.Meta["b"] != 2 {
		t.Errorf("next.Meta = %v", next.Meta)
	}
	if next.NodeID != "finalize" || orig.NodeID != "" {
		t.Errorf("NodeID orig=%q next=%q", orig.NodeID, next.NodeID)
	}
}
