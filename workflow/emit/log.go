package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// LogEmitter implements Emitter by writing structured log output to a
// writer.
//
// Supports two output modes:
//   - Text mode (default): human-readable format with key=value pairs
//   - JSON mode: machine-readable JSONL, one event per line
//
// Example text output:
//
//	[executor_invoked] runID=run-001 superstep=2 executorID=judge
//
// Example JSON output:
//
//	{"type":"executor_invoked","runID":"run-001","superstep":2,"executorID":"judge"}
//
// Usage:
//
//	// Text output to stdout
//	emitter := emit.NewLogEmitter(os.Stdout, false)
//
//	// JSON output to file
//	f, _ := os.Create("events.jsonl")
//	defer f.Close()
//	emitter := emit.NewLogEmitter(f, true)
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter writing to the given writer. A nil
// writer defaults to os.Stdout. jsonMode selects JSONL output over the
// text format.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{
		writer:   writer,
		jsonMode: jsonMode,
	}
}

// Emit writes one event in the configured format.
func (l *LogEmitter) Emit(event Event) {
	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event Event) {
	var errMsg string
	if event.Err != nil {
		errMsg = event.Err.Error()
	}
	var ts string
	if !event.Timestamp.IsZero() {
		ts = event.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(struct {
		Type       string         `json:"type"`
		RunID      string         `json:"runID"`
		Superstep  int            `json:"superstep"`
		ExecutorID string         `json:"executorID,omitempty"`
		Data       any            `json:"data,omitempty"`
		Err        string         `json:"err,omitempty"`
		Meta       map[string]any `json:"meta,omitempty"`
		Timestamp  string         `json:"ts,omitempty"`
	}{
		Type:       event.Type,
		RunID:      event.RunID,
		Superstep:  event.Superstep,
		ExecutorID: event.ExecutorID,
		Data:       event.Data,
		Err:        errMsg,
		Meta:       event.Meta,
		Timestamp:  ts,
	})
	if err != nil {
		fmt.Fprintf(l.writer, "{\"err\":\"failed to marshal event: %v\"}\n", err)
		return
	}

	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] runID=%s superstep=%d executorID=%s",
		event.Type, event.RunID, event.Superstep, event.ExecutorID)

	if event.Data != nil {
		if dataJSON, err := json.Marshal(event.Data); err == nil {
			fmt.Fprintf(l.writer, " data=%s", dataJSON)
		} else {
			fmt.Fprintf(l.writer, " data=%v", event.Data)
		}
	}
	if event.Err != nil {
		fmt.Fprintf(l.writer, " err=%q", event.Err.Error())
	}
	if len(event.Meta) > 0 {
		if metaJSON, err := json.Marshal(event.Meta); err == nil {
			fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}

	fmt.Fprint(l.writer, "\n")
}
