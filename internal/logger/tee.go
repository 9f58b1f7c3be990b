package logger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/heater-controller/internal/telemetry"
)

// Reporter accepts telemetry lines.
type Reporter interface {
	SendMessage(sev telemetry.Severity, text string)
}

// TelemetryCore is a zapcore.Core that turns Warn and higher entries into
// telemetry messages.
type TelemetryCore struct {
	zapcore.LevelEnabler
	tel    Reporter
	fields []zapcore.Field
}

// NewTelemetryCore forwards entries at Warn and above to tel.
func NewTelemetryCore(tel Reporter) *TelemetryCore {
	return &TelemetryCore{LevelEnabler: zapcore.WarnLevel, tel: tel}
}

// With adds structured context to the core.
func (c *TelemetryCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field(nil), c.fields...), fields...)
	return &clone
}

// Check adds the core to ce if the entry level is enabled.
func (c *TelemetryCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write renders the entry as "message key=value ..." and sends it.
func (c *TelemetryCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	c.tel.SendMessage(Severity(ent.Level), render(ent.Message, enc.Fields))
	return nil
}

// Sync is a no-op; telemetry has its own drain.
func (c *TelemetryCore) Sync() error {
	return nil
}

// Severity maps a zap level to a telemetry severity.
func Severity(l zapcore.Level) telemetry.Severity {
	switch {
	case l >= zapcore.DPanicLevel:
		return telemetry.Fatal
	case l >= zapcore.ErrorLevel:
		return telemetry.Error
	case l >= zapcore.WarnLevel:
		return telemetry.Warning
	default:
		return telemetry.Info
	}
}

func render(msg string, fields map[string]any) string {
	if len(fields) == 0 {
		return msg
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

// WithTelemetry returns base with every Warn and higher entry also sent to
// tel. The telemetry drain path must keep using base.
func WithTelemetry(base *zap.SugaredLogger, tel Reporter) *zap.SugaredLogger {
	return base.Desugar().WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, NewTelemetryCore(tel))
	})).Sugar()
}
