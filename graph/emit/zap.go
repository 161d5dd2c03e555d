package emit

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapEmitter logs events through a zap logger. Error events are logged at
// error level, retries at warn and everything else at debug, so a production
// logger only shows the interesting parts of a run.
type ZapEmitter struct {
	logger *zap.Logger
}

// NewZapEmitter wraps logger. A nil logger discards events.
func NewZapEmitter(logger *zap.Logger) *ZapEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapEmitter{logger: logger.Named("workflow")}
}

// Emit logs event.
func (z *ZapEmitter) Emit(event Event) {
	level := zapcore.DebugLevel
	switch event.Msg {
	case "error":
		level = zapcore.ErrorLevel
	case "node_retry", "warning":
		level = zapcore.WarnLevel
	}

	ce := z.logger.Check(level, event.Msg)
	if ce == nil {
		return
	}

	fields := make([]zap.Field, 0, 3+len(event.Meta))
	fields = append(fields,
		zap.String("run_id", event.RunID),
		zap.Int("step", event.Step),
		zap.String("node_id", event.NodeID),
	)

	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, event.Meta[k]))
	}

	ce.Write(fields...)
}
