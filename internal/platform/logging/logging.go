package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Config captures logging configuration options.
type Config struct {
	Level    string
	Dir      string
	Filename string
}

const logRetentionDays = 7

var levelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// textHandler renders records as timestamped lines with colored levels and
// highlighted module tags ([VAD], [ASR], [SESSION], ...).
type textHandler struct {
	writer io.Writer
	level  slog.Level
	color  bool
	mu     sync.Mutex
}

const (
	colorReset = "\x1b[0m"
	colorTime  = "\x1b[90m"
	colorDebug = "\x1b[36m"
	colorInfo  = "\x1b[32m"
	colorWarn  = "\x1b[33m"
	colorError = "\x1b[31m"
)

var moduleColors = map[string]string{
	"[BOOT]":      "\x1b[96m",
	"[HTTP]":      "\x1b[95m",
	"[WS]":        "\x1b[92m",
	"[AUDIO]":     "\x1b[94m",
	"[VAD]":       "\x1b[35m",
	"[ASR]":       "\x1b[34m",
	"[SESSION]":   "\x1b[93m",
	"[PARSER]":    "\x1b[36m",
	"[TASK]":      "\x1b[32m",
	"[ASSISTANT]": "\x1b[34m",
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	timeStr := r.Time.Format("2006-01-02 15:04:05.000")
	levelStr := strings.ToUpper(r.Level.String())

	msg := r.Message
	var attrs strings.Builder
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&attrs, " %s=%v", a.Key, a.Value)
		return true
	})

	if !h.color {
		_, err := fmt.Fprintf(h.writer, "[%s] [%s] %s%s\n", timeStr, levelStr, msg, attrs.String())
		return err
	}

	levelColor := colorReset
	switch r.Level {
	case slog.LevelDebug:
		levelColor = colorDebug
	case slog.LevelInfo:
		levelColor = colorInfo
	case slog.LevelWarn:
		levelColor = colorWarn
	case slog.LevelError:
		levelColor = colorError
	}

	for tag, color := range moduleColors {
		if strings.HasPrefix(msg, tag) {
			msg = color + tag + colorReset + msg[len(tag):]
			break
		}
	}

	_, err := fmt.Fprintf(h.writer, "%s[%s]%s %s[%s]%s %s%s\n",
		colorTime, timeStr, colorReset,
		levelColor, levelStr, colorReset,
		msg, attrs.String())
	return err
}

func (h *textHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *textHandler) WithGroup(_ string) slog.Handler      { return h }

// Logger wraps slog with printf-style helpers used across the codebase.
type Logger struct {
	slogger *slog.Logger
	file    *os.File
}

// New creates a Logger writing colored output to stdout and, when cfg.Dir is
// set, plain output to a daily log file. Old files past the retention window
// are swept on startup.
func New(cfg Config) (*Logger, error) {
	level, ok := levelNames[strings.ToLower(cfg.Level)]
	if !ok {
		level = slog.LevelInfo
	}

	handlers := []slog.Handler{
		&textHandler{writer: os.Stdout, level: level, color: true},
	}

	var file *os.File
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		name := cfg.Filename
		if name == "" {
			name = "voicetask.log"
		}
		path := filepath.Join(cfg.Dir, time.Now().Format("2006-01-02")+"_"+name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		handlers = append(handlers, &textHandler{writer: f, level: level})
		sweepOldLogs(cfg.Dir, name)
	}

	return &Logger{
		slogger: slog.New(multiHandler(handlers)),
		file:    file,
	}, nil
}

// Slog exposes the structured logger for components that prefer slog directly.
func (l *Logger) Slog() *slog.Logger {
	return l.slogger
}

// Close releases the log file, if one is open.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) Debug(format string, args ...any) { l.slogger.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Info(format string, args ...any)  { l.slogger.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warn(format string, args ...any)  { l.slogger.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Error(format string, args ...any) { l.slogger.Error(fmt.Sprintf(format, args...)) }

// InfoTag logs with a module tag prefix so the handler can colorize it.
func (l *Logger) InfoTag(tag, format string, args ...any) {
	l.slogger.Info("[" + tag + "] " + fmt.Sprintf(format, args...))
}

func (l *Logger) DebugTag(tag, format string, args ...any) {
	l.slogger.Debug("[" + tag + "] " + fmt.Sprintf(format, args...))
}

func (l *Logger) WarnTag(tag, format string, args ...any) {
	l.slogger.Warn("[" + tag + "] " + fmt.Sprintf(format, args...))
}

func (l *Logger) ErrorTag(tag, format string, args ...any) {
	l.slogger.Error("[" + tag + "] " + fmt.Sprintf(format, args...))
}

// multiHandler fans a record out to every handler.
type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}

func sweepOldLogs(dir, suffix string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -logRetentionDays)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		datePart, _, found := strings.Cut(e.Name(), "_")
		if !found {
			continue
		}
		day, err := time.Parse("2006-01-02", datePart)
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}
