package gologger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ZerologLogger implements glog.Logger over zerolog. Arguments are read as
// key/value pairs; trace and span ids are added when the bound context
// carries a valid span.
type ZerologLogger struct {
	logger zerolog.Logger
	ctx    context.Context
}

type ZerologOptions struct {
	Level  string
	Pretty bool
	Out    io.Writer
}

func NewZerologLogger(opts ZerologOptions) *ZerologLogger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return &ZerologLogger{
		logger: zerolog.New(out).Level(level).With().Timestamp().Logger(),
	}
}

func (l *ZerologLogger) Trace(msg string, args ...any) { l.emit(l.logger.Trace(), msg, args) }
func (l *ZerologLogger) Debug(msg string, args ...any) { l.emit(l.logger.Debug(), msg, args) }
func (l *ZerologLogger) Info(msg string, args ...any)  { l.emit(l.logger.Info(), msg, args) }
func (l *ZerologLogger) Warn(msg string, args ...any)  { l.emit(l.logger.Warn(), msg, args) }
func (l *ZerologLogger) Error(msg string, args ...any) { l.emit(l.logger.Error(), msg, args) }

// Fatal logs at fatal level without exiting the process.
func (l *ZerologLogger) Fatal(msg string, args ...any) {
	l.emit(l.logger.WithLevel(zerolog.FatalLevel), msg, args)
}

func (l *ZerologLogger) WithContext(ctx context.Context) glog.Logger {
	return &ZerologLogger{logger: l.logger, ctx: ctx}
}

func (l *ZerologLogger) WithFields(fields map[string]any) glog.Logger {
	return &ZerologLogger{logger: l.logger.With().Fields(fields).Logger(), ctx: l.ctx}
}

// Named returns a child logger tagged with name.
func (l *ZerologLogger) Named(name string) *ZerologLogger {
	return &ZerologLogger{logger: l.logger.With().Str("logger", name).Logger(), ctx: l.ctx}
}

func (l *ZerologLogger) emit(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	if l.ctx != nil {
		if spanContext := trace.SpanFromContext(l.ctx).SpanContext(); spanContext.IsValid() {
			event = event.Str("trace_id", spanContext.TraceID().String()).
				Str("span_id", spanContext.SpanID().String())
		}
	}
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			event = event.Interface("extra", args[i])
			break
		}
		switch value := args[i+1].(type) {
		case error:
			event = event.AnErr(key, value)
		default:
			event = event.Interface(key, value)
		}
	}
	event.Msg(msg)
}

// ZerologProvider hands out named children of one root logger.
type ZerologProvider struct {
	root *ZerologLogger
}

func NewZerologProvider(root *ZerologLogger) *ZerologProvider {
	if root == nil {
		root = NewZerologLogger(ZerologOptions{})
	}
	return &ZerologProvider{root: root}
}

func (p *ZerologProvider) GetLogger(name string) glog.Logger {
	return p.root.Named(name)
}

var (
	_ glog.Logger         = (*ZerologLogger)(nil)
	_ glog.FieldsLogger   = (*ZerologLogger)(nil)
	_ glog.LoggerProvider = (*ZerologProvider)(nil)
)
