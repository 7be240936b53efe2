package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel orders log severities
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// String returns the upper-case name used in log output
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLogLevel converts a level name to a LogLevel. Unknown names map to info.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// ProductionLogger writes structured logs as JSON (for log aggregation in
// Kubernetes) or as single-line text for local runs.
//
// Every line carries the service name and the component that emitted it.
// Child loggers created with WithComponent share the parent's output.
type ProductionLogger struct {
	level       LogLevel
	serviceName string
	component   string
	format      string
	output      io.Writer
	mu          *sync.Mutex
}

// NewProductionLogger creates a logger from the logging configuration.
// Output "stderr" writes to os.Stderr, anything else to os.Stdout.
func NewProductionLogger(cfg LoggingConfig, serviceName string) Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	format := strings.ToLower(cfg.Format)
	if format != "json" {
		format = "text"
	}
	return &ProductionLogger{
		level:       ParseLogLevel(cfg.Level),
		serviceName: serviceName,
		component:   "eureka",
		format:      format,
		output:      out,
		mu:          &sync.Mutex{},
	}
}

// NewWriterLogger creates a logger writing to w. Used by tools and tests that
// capture output.
func NewWriterLogger(w io.Writer, format, level, serviceName string) Logger {
	return &ProductionLogger{
		level:       ParseLogLevel(level),
		serviceName: serviceName,
		component:   "eureka",
		format:      strings.ToLower(format),
		output:      w,
		mu:          &sync.Mutex{},
	}
}

// WithComponent returns a child logger tagged with component
func (p *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		level:       p.level,
		serviceName: p.serviceName,
		component:   component,
		format:      p.format,
		output:      p.output,
		mu:          p.lock(),
	}
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.log(LogLevelInfo, msg, fields)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.log(LogLevelWarn, msg, fields)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.log(LogLevelError, msg, fields)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	p.log(LogLevelDebug, msg, fields)
}

func (p *ProductionLogger) lock() *sync.Mutex {
	if p.mu == nil {
		p.mu = &sync.Mutex{}
	}
	return p.mu
}

func (p *ProductionLogger) log(level LogLevel, msg string, fields map[string]interface{}) {
	if level < p.level {
		return
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	var line string
	if p.format == "json" {
		line = p.formatJSON(timestamp, level, msg, fields)
	} else {
		line = p.formatText(timestamp, level, msg, fields)
	}

	mu := p.lock()
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintln(p.output, line)
}

func (p *ProductionLogger) formatJSON(timestamp string, level LogLevel, msg string, fields map[string]interface{}) string {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     level.String(),
		"service":   p.serviceName,
		"component": p.component,
		"message":   msg,
	}
	for k, v := range fields {
		// Avoid overwriting core fields
		if _, reserved := entry[k]; reserved {
			continue
		}
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"level":"ERROR","message":"log marshal failed: %v"}`, err)
	}
	return string(data)
}

func (p *ProductionLogger) formatText(timestamp string, level LogLevel, msg string, fields map[string]interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] [%s:%s] %s", timestamp, level.String(), p.serviceName, p.component, msg)

	// Sorted keys keep text lines stable between runs
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fields[k]
		if s, ok := v.(string); ok && strings.ContainsAny(s, " \t") {
			fmt.Fprintf(&b, " %s=%q", k, s)
			continue
		}
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	return b.String()
}
