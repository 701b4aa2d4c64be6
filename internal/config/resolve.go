package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	iofs "io/fs"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-viper/mapstructure/v2"
	"github.com/peterbourgon/ff/v3"
	"gopkg.in/yaml.v3"
)

// Option configures Resolve.
type Option func(*resolver)

// WithEnviron replaces the process environment as the source of environment
// variables.
func WithEnviron(environ map[string]string) Option {
	return func(r *resolver) {
		r.environ = environ
	}
}

// WithConfigFile names a config file to load when --config is not given. It
// takes precedence over SERVICE_CONFIG_FILE.
func WithConfigFile(path string) Option {
	return func(r *resolver) {
		r.configFile = path
	}
}

type resolver struct {
	environ    map[string]string
	configFile string
}

// buildEnv holds the provenance variables read without the service prefix.
type buildEnv struct {
	Version   string `env:"VERSION"`
	Commit    string `env:"COMMIT"`
	Branch    string `env:"BRANCH"`
	BuildDate string `env:"BUILD_DATE"`
}

// Resolve builds Settings from defaults, then the environment, then the config
// file, then the flags in args. Each layer overrides the ones before it and
// a failing layer leaves no partial result.
//
// ff parses the flags and locates the config file: --config if given,
// otherwise WithConfigFile, otherwise SERVICE_CONFIG_FILE. A named file that
// does not exist is NotFound whatever its extension.
//
// --help returns ErrHelp. --version returns the resolved Settings together
// with ErrVersion. Every other failure is an [*Error].
func Resolve(args []string, opts ...Option) (*Settings, error) {
	var r resolver
	for _, opt := range opts {
		opt(&r)
	}

	s := Default()
	envErr := r.applyEnv(&s)
	if r.configFile != "" {
		s.ConfigFile = r.configFile
	}

	fs, cli := newFlagSet(s.ConfigFile)
	var ffOpts []ff.Option
	if envErr == nil {
		ffOpts = append(ffOpts,
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(cli.parseConfigFile),
		)
	}
	if err := ff.Parse(fs, args, ffOpts...); err != nil {
		return nil, parseError(err, cli.configFile)
	}
	if envErr != nil {
		return nil, envErr
	}
	if fs.NArg() > 0 {
		return nil, invalid("", "", fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " ")))
	}

	s.ConfigFile = cli.configFile
	if err := decodeInto(&s, cli.file, s.ConfigFile); err != nil {
		return nil, err
	}
	if err := decodeInto(&s, cli.values, ""); err != nil {
		return nil, err
	}
	if cli.version {
		return &s, ErrVersion
	}
	return &s, nil
}

// parseError maps a failed ff.Parse onto Resolve's errors. path is the config
// file ff tried to open, if any.
func parseError(err error, path string) error {
	var (
		cerr *Error
		perr *iofs.PathError
	)
	switch {
	case errors.Is(err, flag.ErrHelp):
		return ErrHelp
	case errors.As(err, &cerr):
		return cerr
	case errors.Is(err, iofs.ErrNotExist):
		return &Error{Kind: NotFound, Path: path}
	case errors.As(err, &perr):
		return invalid("", perr.Path, perr.Err)
	}
	return invalid("", "", err)
}

func (r *resolver) applyEnv(s *Settings) error {
	var build buildEnv
	if err := env.ParseWithOptions(&build, env.Options{Environment: r.environ}); err != nil {
		return envError(err, reflect.TypeOf(build))
	}
	for dst, src := range map[*string]string{
		&s.Version:   build.Version,
		&s.Commit:    build.Commit,
		&s.Branch:    build.Branch,
		&s.BuildDate: build.BuildDate,
	} {
		if src != "" {
			*dst = src
		}
	}
	if err := env.ParseWithOptions(s, env.Options{Prefix: EnvPrefix, Environment: r.environ}); err != nil {
		return envError(err, reflect.TypeOf(*s))
	}
	return nil
}

// envError converts the first env parse failure into an InvalidValue naming
// the settings field.
func envError(err error, t reflect.Type) error {
	var pe env.ParseError
	if !errors.As(err, &pe) {
		return invalid("", "", err)
	}
	field := toSnake(pe.Name)
	if sf, ok := t.FieldByName(pe.Name); ok {
		if tag, _, _ := strings.Cut(sf.Tag.Get("json"), ","); tag != "" && tag != "-" {
			field = tag
		}
	}
	return invalid(field, "", pe.Err)
}

// readConfig parses the contents of the config file at path, choosing the
// format by extension.
func readConfig(path string, rd io.Reader) (map[string]any, error) {
	var unmarshal func([]byte, any) error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	case ".json":
		unmarshal = json.Unmarshal
	default:
		return nil, &Error{Kind: UnsupportedFormat, Path: path, Err: fmt.Errorf("extension %q: must be .yaml, .yml or .json", ext)}
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return nil, invalid("", path, err)
	}
	var values map[string]any
	if err := unmarshal(b, &values); err != nil {
		return nil, invalid("", path, err)
	}
	return values, nil
}

var fileFields = func() map[string]bool {
	fields := map[string]bool{}
	t := reflect.TypeOf(Settings{})
	for i := 0; i < t.NumField(); i++ {
		if tag, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ","); tag != "" && tag != "-" {
			fields[tag] = true
		}
	}
	return fields
}()

var textUnmarshalerType = reflect.TypeOf((*interface{ UnmarshalText([]byte) error })(nil)).Elem()

// stringifyHook renders non-string scalars as text for fields that parse
// themselves, so a YAML port of 9000 goes through the same range check as
// the string "9000".
func stringifyHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() == reflect.String || !reflect.PointerTo(to).Implements(textUnmarshalerType) {
		return data, nil
	}
	switch from.Kind() {
	case reflect.Map, reflect.Slice, reflect.Struct:
		return data, nil
	}
	return fmt.Sprint(data), nil
}

// decodeInto applies values to s by field name, case-sensitively, ignoring
// unknown keys. Keys are decoded in sorted order so the reported field is
// deterministic. s is only modified if every key decodes.
func decodeInto(s *Settings, values map[string]any, path string) error {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		if fileFields[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	next := *s
	for _, k := range keys {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &next,
			TagName:          "json",
			WeaklyTypedInput: true,
			MatchName:        func(mapKey, fieldName string) bool { return mapKey == fieldName },
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				stringifyHook,
				mapstructure.TextUnmarshallerHookFunc(),
			),
		})
		if err != nil {
			return invalid(k, path, err)
		}
		if err := dec.Decode(map[string]any{k: values[k]}); err != nil {
			var de *mapstructure.DecodeError
			if errors.As(err, &de) {
				err = de.Unwrap()
			}
			return invalid(k, path, err)
		}
	}
	*s = next
	return nil
}

func toSnake(name string) string {
	var sb strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			sb.WriteByte('_')
		}
		sb.WriteRune(r)
	}
	return strings.ToLower(sb.String())
}

type flagDef struct {
	name        string
	field       string
	placeholder string
	usage       string
}

var flagDefs = []flagDef{
	{"config", "config_file", "<path>", "YAML or JSON config file, chosen by extension (.yaml, .yml, .json)"},
	{"host", "host", "<host>", "host to bind both listeners to"},
	{"port", "port", "<port>", "application port"},
	{"metrics-port", "metrics_port", "<port>", "instrumentation port serving metrics, health probes and log levels"},
	{"log-level", "log_level", "DEBUG|INFO|WARNING|ERROR|CRITICAL", "minimum log level"},
	{"log-format", "log_format", "auto|json|text|human", `logging format - "auto" will pick 'human' if attached to tty, 'json' otherwise`},
	{"push-url", "push_url", "http[s]://<Pushgateway host>", "URL to a Pushgateway host. Pushes all metrics to this host at shutdown using the app name as the job."},
}

type cliValues struct {
	values     map[string]any
	file       map[string]any
	configFile string
	version    bool
}

// parseConfigFile is the ff config file parser. Values are kept aside rather
// than set as flags since the file covers every settings field and decodes
// below the flags.
func (c *cliValues) parseConfigFile(r io.Reader, _ func(name, value string) error) error {
	values, err := readConfig(c.configFile, r)
	if err != nil {
		return err
	}
	c.file = values
	return nil
}

func newFlagSet(configFile string) (*flag.FlagSet, *cliValues) {
	fs := flag.NewFlagSet("httpapi", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	cli := &cliValues{values: map[string]any{}}
	for _, def := range flagDefs {
		def := def
		if def.field == "config_file" {
			fs.StringVar(&cli.configFile, def.name, configFile, def.usage)
			continue
		}
		fs.Func(def.name, def.usage, func(v string) error {
			cli.values[def.field] = v
			return nil
		})
	}
	fs.BoolVar(&cli.version, "version", false, "print version info")
	return fs, cli
}
