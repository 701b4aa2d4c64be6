// Package config resolves service settings from defaults, the environment, an
// optional YAML or JSON file and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/lkendrickd/httpapi/buildinfo"
	"github.com/lkendrickd/httpapi/internal/loghandler"
	"github.com/lkendrickd/httpapi/log"
)

// EnvPrefix is prepended to the upper-cased field name to form its
// environment variable.
const EnvPrefix = "SERVICE_"

// Settings is the resolved configuration for one process. It is built once by
// Resolve and must not be modified afterwards.
type Settings struct {
	AppName      string    `json:"app_name" env:"APP_NAME"`
	Debug        Bool      `json:"debug" env:"DEBUG"`
	Host         string    `json:"host" env:"HOST"`
	Port         Port      `json:"port" env:"PORT"`
	MetricsPort  Port      `json:"metrics_port" env:"METRICS_PORT"`
	LogLevel     LogLevel  `json:"log_level" env:"LOG_LEVEL"`
	LogFormat    LogFormat `json:"log_format" env:"LOG_FORMAT"`
	PushURL      string    `json:"push_url" env:"PUSH_URL"`
	CustomHeader Bool      `json:"custom_header" env:"CUSTOM_HEADER"`
	Version      string    `json:"version" env:"VERSION"`
	Commit       string    `json:"commit" env:"COMMIT"`
	Branch       string    `json:"branch" env:"BRANCH"`
	BuildDate    string    `json:"build_date" env:"BUILD_DATE"`
	ConfigFile   string    `json:"-" env:"CONFIG_FILE"`
}

// Default returns the built-in settings. Build provenance comes from the
// linker-set buildinfo variables.
func Default() Settings {
	return Settings{
		AppName:     "FastAPI App",
		Host:        "0.0.0.0",
		Port:        9000,
		MetricsPort: 8000,
		LogLevel:    LogLevel(slog.LevelInfo),
		LogFormat:   loghandler.FormatAuto,
		Version:     buildinfo.Version,
		Commit:      buildinfo.Commit,
		Branch:      buildinfo.Branch,
		BuildDate:   buildinfo.BuildDate,
	}
}

// Addr is the application listen address.
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Host, s.Port.String())
}

// MetricsAddr is the instrumentation listen address. It shares the
// application host.
func (s *Settings) MetricsAddr() string {
	return net.JoinHostPort(s.Host, s.MetricsPort.String())
}

var ErrPortCollision = errors.New("port and metrics_port are the same")

// Validate reports cross-field problems that Resolve does not reject.
func (s *Settings) Validate() error {
	if s.Port == s.MetricsPort && s.Port != 0 {
		return fmt.Errorf("%w: %d", ErrPortCollision, s.Port)
	}
	return nil
}

// BuildInfo is the build provenance reported by the index route.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Branch    string `json:"branch"`
	BuildDate string `json:"build_date"`
}

func (s *Settings) BuildInfo() BuildInfo {
	return BuildInfo{
		Version:   s.Version,
		Commit:    s.Commit,
		Branch:    s.Branch,
		BuildDate: s.BuildDate,
	}
}

func (s Settings) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("app_name", s.AppName),
		slog.Bool("debug", bool(s.Debug)),
		slog.String("host", s.Host),
		slog.Int("port", int(s.Port)),
		slog.Int("metrics_port", int(s.MetricsPort)),
		slog.String("log_level", s.LogLevel.String()),
		slog.String("log_format", string(s.LogFormat)),
		slog.String("push_url", s.PushURL),
		slog.Bool("custom_header", bool(s.CustomHeader)),
		slog.String("config_file", s.ConfigFile),
	)
}

// Bool is a switch that accepts the usual true/false-like tokens, case
// insensitively: 1, t, true, y, yes, on and their opposites.
type Bool bool

func (b *Bool) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "1", "t", "true", "y", "yes", "on":
		*b = true
	case "0", "f", "false", "n", "no", "off":
		*b = false
	default:
		return fmt.Errorf("%q is not a boolean", text)
	}
	return nil
}

// Port is a TCP port number.
type Port uint16

func (p *Port) UnmarshalText(b []byte) error {
	n, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 16)
	if err != nil {
		return fmt.Errorf("%q is not a port number between 0 and 65535", b)
	}
	*p = Port(n)
	return nil
}

func (p Port) String() string {
	return strconv.Itoa(int(p))
}

// LogLevel is one of DEBUG, INFO, WARNING, ERROR or CRITICAL.
type LogLevel slog.Level

func (l *LogLevel) UnmarshalText(b []byte) error {
	lvl, err := log.ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = LogLevel(lvl)
	return nil
}

func (l LogLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l LogLevel) Level() slog.Level {
	return slog.Level(l)
}

func (l LogLevel) String() string {
	return log.LevelName(slog.Level(l))
}

// LogFormat selects the log formatter: auto, json, text or human.
type LogFormat string

func (f *LogFormat) UnmarshalText(b []byte) error {
	s, err := loghandler.ParseFormat(string(b))
	if err != nil {
		return err
	}
	*f = LogFormat(s)
	return nil
}
