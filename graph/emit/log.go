package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes one line per event, either as text
//
//	[node_end] runID=3f1c step=2 nodeID=keyword_extraction meta={"attempts":1,"duration_ms":812}
//
// or, in JSON mode, as JSONL
//
//	{"runID":"3f1c","step":2,"nodeID":"keyword_extraction","msg":"node_end","meta":{"attempts":1,"duration_ms":812}}
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter writes to writer, or to stderr when writer is nil.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stderr
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

type jsonEvent struct {
	RunID  string                 `json:"runID"`
	Step   int                    `json:"step"`
	NodeID string                 `json:"nodeID"`
	Msg    string                 `json:"msg"`
	Meta   map[string]interface{} `json:"meta"`
}

// Emit writes event.
func (l *LogEmitter) Emit(event Event) {
	var line string
	if l.jsonMode {
		line = formatJSON(event)
	} else {
		line = formatText(event)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.writer, line)
}

func formatJSON(event Event) string {
	data, err := json.Marshal(jsonEvent{
		RunID:  event.RunID,
		Step:   event.Step,
		NodeID: event.NodeID,
		Msg:    event.Msg,
		Meta:   event.Meta,
	})
	if err != nil {
		return fmt.Sprintf("{\"error\":%q}\n", "marshal event: "+err.Error())
	}
	return string(data) + "\n"
}

func formatText(event Event) string {
	line := fmt.Sprintf("[%s] runID=%s step=%d nodeID=%s", event.Msg, event.RunID, event.Step, event.NodeID)
	if len(event.Meta) > 0 {
		if meta, err := json.Marshal(event.Meta); err == nil {
			line += " meta=" + string(meta)
		} else {
			line += fmt.Sprintf(" meta=%v", event.Meta)
		}
	}
	return line + "\n"
}
