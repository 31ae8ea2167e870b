package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

var (
	// CLILogger is the SIMPLE-profile logger for one-shot commands.
	CLILogger *logging.Logger

	// ServerLogger is the STRUCTURED-profile logger used by serve.
	ServerLogger *logging.Logger
)

// Logger is the field-based logging surface shared by the pacing engine,
// the robots manager and the server. Both *logging.Logger and *zap.Logger
// satisfy it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// levelNames maps logging.level values onto gofulmen severities. Unknown
// values fall back to INFO.
var levelNames = map[string]string{
	"trace":   "TRACE",
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

func severity(level string) string {
	if name, ok := levelNames[strings.ToLower(strings.TrimSpace(level))]; ok {
		return name
	}
	return "INFO"
}

// InitCLILogger builds CLILogger. verbose overrides level with debug so
// per-request pacing decisions become visible.
func InitCLILogger(serviceName, level string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "initialize CLI logger", err)
	}
	if verbose {
		level = "debug"
	}
	switch severity(level) {
	case "TRACE", "DEBUG":
		logger.SetLevel(logging.DEBUG)
	case "WARN":
		logger.SetLevel(logging.WARN)
	case "ERROR":
		logger.SetLevel(logging.ERROR)
	}
	CLILogger = logger
}

// InitServerLogger builds ServerLogger: JSON on stderr with correlation
// middleware, tagged with namespace when given.
func InitServerLogger(serviceName, level string, namespace ...string) {
	logger, err := logging.New(serverLoggerConfig(serviceName, level, namespace...))
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "initialize server logger", err)
	}
	ServerLogger = logger
}

func serverLoggerConfig(serviceName, level string, namespace ...string) *logging.LoggerConfig {
	static := map[string]any{}
	if len(namespace) > 0 && namespace[0] != "" {
		static["namespace"] = namespace[0]
	}
	return &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: severity(level),
		Service:      serviceName,
		Environment:  "production",
		StaticFields: static,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

// Current returns the server logger when serving, else the CLI logger,
// else a no-op logger. It never returns nil.
func Current() Logger {
	switch {
	case ServerLogger != nil:
		return ServerLogger
	case CLILogger != nil:
		return CLILogger
	default:
		return zap.NewNop()
	}
}

// fatal exits before any logger exists.
func fatal(code foundry.ExitCode, what string, err error) {
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", what, err)
	if info, ok := foundry.GetExitCodeInfo(code); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(code))
}
