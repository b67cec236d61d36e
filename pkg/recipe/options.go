package recipe

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/mongorecipe/pkg/engine"
)

// InstallOptions is the resolved option set of one recipe run.
type InstallOptions struct {
	Version    string `json:"version" yaml:"version" validate:"required,pkgversion"`
	DBPath     string `json:"dbpath" yaml:"dbpath" validate:"required,startswith=/"`
	LogPath    string `json:"logpath" yaml:"logpath" validate:"required,startswith=/"`
	Port       int    `json:"port" yaml:"port" validate:"min=1,max=65535"`
	BindIP     string `json:"bind_ip" yaml:"bind_ip" validate:"required"`
	Verbose    bool   `json:"verbose" yaml:"verbose"`
	LogLevel   int    `json:"loglevel" yaml:"loglevel" validate:"min=0,max=5"`
	Journal    bool   `json:"journal" yaml:"journal"`
	CPULogging bool   `json:"cpu_logging" yaml:"cpu_logging"`

	// Tarball-only replication and auth flags.
	Master       bool         `json:"master" yaml:"master"`
	Auth         bool         `json:"auth" yaml:"auth"`
	Slave        bool         `json:"slave" yaml:"slave"`
	SlaveOptions SlaveOptions `json:"slave_options" yaml:"slave_options"`
}

// SlaveOptions configures master/slave replication for the tarball install.
type SlaveOptions struct {
	AutoResync bool   `json:"auto_resync" yaml:"auto_resync"`
	MasterHost string `json:"master_host" yaml:"master_host"`
}

// EffectiveLogLevel returns LogLevel, raised to 1 when Verbose is set.
func (o InstallOptions) EffectiveLogLevel() int {
	if o.Verbose && o.LogLevel < 1 {
		return 1
	}
	return o.LogLevel
}

// DefaultOptions returns the defaults of a strategy.
func DefaultOptions(s Strategy) InstallOptions {
	if s == LegacyTarball {
		return InstallOptions{
			Version: DefaultTarballVersion,
			DBPath:  "/data/db",
			LogPath: "/var/log/mongodb",
			Port:    27017,
			BindIP:  "0.0.0.0",
		}
	}
	return InstallOptions{
		Version:    DefaultAptVersion,
		DBPath:     "/var/lib/mongodb",
		LogPath:    "/var/log/mongodb",
		Port:       27017,
		BindIP:     "127.0.0.1",
		CPULogging: false,
		Verbose:    false,
		LogLevel:   0,
		Journal:    true,
	}
}

// Overrides holds caller-supplied options. Nil fields keep the default.
type Overrides struct {
	Version    *string `json:"version,omitempty" yaml:"version,omitempty"`
	DBPath     *string `json:"dbpath,omitempty" yaml:"dbpath,omitempty"`
	LogPath    *string `json:"logpath,omitempty" yaml:"logpath,omitempty"`
	Port       *int    `json:"port,omitempty" yaml:"port,omitempty"`
	BindIP     *string `json:"bind_ip,omitempty" yaml:"bind_ip,omitempty"`
	Verbose    *bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	LogLevel   *int    `json:"loglevel,omitempty" yaml:"loglevel,omitempty"`
	Journal    *bool   `json:"journal,omitempty" yaml:"journal,omitempty"`
	CPULogging *bool   `json:"cpu_logging,omitempty" yaml:"cpu_logging,omitempty"`
	Master     *bool   `json:"master,omitempty" yaml:"master,omitempty"`
	Auth       *bool   `json:"auth,omitempty" yaml:"auth,omitempty"`
	Slave      *bool   `json:"slave,omitempty" yaml:"slave,omitempty"`

	SlaveOptions SlaveOverrides `json:"slave_options,omitempty" yaml:"slave_options,omitempty"`
}

// SlaveOverrides holds caller-supplied replication sub-options.
type SlaveOverrides struct {
	AutoResync *bool   `json:"auto_resync,omitempty" yaml:"auto_resync,omitempty"`
	MasterHost *string `json:"master_host,omitempty" yaml:"master_host,omitempty"`
}

// RequestedVersion returns the version override, or "".
func (o Overrides) RequestedVersion() string {
	if o.Version == nil {
		return ""
	}
	return *o.Version
}

// MergeOptions overlays every set override onto defaults. The slave
// sub-options merge one level deep. The result is always complete.
func MergeOptions(defaults InstallOptions, o Overrides) InstallOptions {
	out := defaults
	mergeString(&out.Version, o.Version)
	mergeString(&out.DBPath, o.DBPath)
	mergeString(&out.LogPath, o.LogPath)
	mergeString(&out.BindIP, o.BindIP)
	if o.Port != nil {
		out.Port = *o.Port
	}
	if o.LogLevel != nil {
		out.LogLevel = *o.LogLevel
	}
	mergeBool(&out.Verbose, o.Verbose)
	mergeBool(&out.Journal, o.Journal)
	mergeBool(&out.CPULogging, o.CPULogging)
	mergeBool(&out.Master, o.Master)
	mergeBool(&out.Auth, o.Auth)
	mergeBool(&out.Slave, o.Slave)
	mergeBool(&out.SlaveOptions.AutoResync, o.SlaveOptions.AutoResync)
	mergeString(&out.SlaveOptions.MasterHost, o.SlaveOptions.MasterHost)
	return out
}

// Merge overlays next onto o; fields set in next win.
func (o Overrides) Merge(next Overrides) Overrides {
	out := o
	pick := func(dst **string, src *string) {
		if src != nil {
			*dst = src
		}
	}
	pickBool := func(dst **bool, src *bool) {
		if src != nil {
			*dst = src
		}
	}
	pickInt := func(dst **int, src *int) {
		if src != nil {
			*dst = src
		}
	}
	pick(&out.Version, next.Version)
	pick(&out.DBPath, next.DBPath)
	pick(&out.LogPath, next.LogPath)
	pick(&out.BindIP, next.BindIP)
	pickInt(&out.Port, next.Port)
	pickInt(&out.LogLevel, next.LogLevel)
	pickBool(&out.Verbose, next.Verbose)
	pickBool(&out.Journal, next.Journal)
	pickBool(&out.CPULogging, next.CPULogging)
	pickBool(&out.Master, next.Master)
	pickBool(&out.Auth, next.Auth)
	pickBool(&out.Slave, next.Slave)
	pickBool(&out.SlaveOptions.AutoResync, next.SlaveOptions.AutoResync)
	pick(&out.SlaveOptions.MasterHost, next.SlaveOptions.MasterHost)
	return out
}

func mergeString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func mergeBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// keyAliases maps normalized alternative spellings onto canonical keys.
var keyAliases = map[string]string{
	"journal_enabled": "journal",
	"bindip":          "bind_ip",
	"db_path":         "dbpath",
	"log_path":        "logpath",
	"log_level":       "loglevel",
	"cpu":             "cpu_logging",
	"slave_options":   "slave",
}

// normalizeKey folds case, a trailing "?", and "-" versus "_".
func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.TrimSuffix(k, "?")
	k = strings.ReplaceAll(k, "-", "_")
	if canonical, ok := keyAliases[k]; ok {
		return canonical
	}
	return k
}

// ParseOverrides converts a loosely keyed option map into Overrides.
//
// Keys are matched case-insensitively, a trailing "?" is ignored and "-"
// equals "_". Replication sub-options may be given as a nested "slave" map
// or as dotted "slave.<name>" keys; a boolean "slave" sets the slave flag.
// String values are accepted for numeric and boolean options.
func ParseOverrides(raw map[string]any) (Overrides, error) {
	var o Overrides
	var errs []error

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := o.set(normalizeKey(k), raw[k]); err != nil {
			errs = append(errs, fmt.Errorf("option %q: %w", k, err))
		}
	}

	if len(errs) > 0 {
		return Overrides{}, engine.NewPermanentError("invalid options", errors.Join(errs...)).
			WithCode(engine.ErrCodeValidation)
	}
	return o, nil
}

func (o *Overrides) set(key string, v any) error {
	if sub, ok := strings.CutPrefix(key, "slave."); ok {
		return o.setSlave(normalizeKey(sub), v)
	}

	var err error
	switch key {
	case "version":
		o.Version, err = stringPtr(v)
		if o.Version != nil {
			trimmed := strings.TrimPrefix(*o.Version, "v")
			o.Version = &trimmed
		}
	case "dbpath":
		o.DBPath, err = stringPtr(v)
	case "logpath":
		o.LogPath, err = stringPtr(v)
	case "bind_ip":
		o.BindIP, err = stringPtr(v)
	case "port":
		o.Port, err = intPtr(v)
	case "loglevel":
		o.LogLevel, err = intPtr(v)
	case "verbose":
		o.Verbose, err = boolPtr(v)
	case "journal":
		o.Journal, err = boolPtr(v)
	case "cpu_logging":
		o.CPULogging, err = boolPtr(v)
	case "master":
		o.Master, err = boolPtr(v)
	case "auth":
		o.Auth, err = boolPtr(v)
	case "slave":
		if m, ok := asMap(v); ok {
			subKeys := make([]string, 0, len(m))
			for sk := range m {
				subKeys = append(subKeys, sk)
			}
			sort.Strings(subKeys)
			for _, sk := range subKeys {
				if err := o.setSlave(normalizeKey(sk), m[sk]); err != nil {
					return fmt.Errorf("slave.%s: %w", sk, err)
				}
			}
			return nil
		}
		o.Slave, err = boolPtr(v)
	default:
		return fmt.Errorf("unknown option")
	}
	return err
}

func (o *Overrides) setSlave(key string, v any) error {
	var err error
	switch key {
	case "auto_resync", "autoresync":
		o.SlaveOptions.AutoResync, err = boolPtr(v)
	case "master_host", "source":
		o.SlaveOptions.MasterHost, err = stringPtr(v)
	default:
		return fmt.Errorf("unknown slave option %q", key)
	}
	return err
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func stringPtr(v any) (*string, error) {
	var s string
	switch x := v.(type) {
	case string:
		s = strings.TrimSpace(x)
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return nil, fmt.Errorf("expected a string, got %T", v)
	}
	return &s, nil
}

func intPtr(v any) (*int, error) {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int32:
		n = int(x)
	case int64:
		n = int(x)
	case uint64:
		n = int(x)
	case float64:
		if x != float64(int(x)) {
			return nil, fmt.Errorf("expected an integer, got %v", x)
		}
		n = int(x)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", x)
		}
		n = parsed
	default:
		return nil, fmt.Errorf("expected an integer, got %T", v)
	}
	return &n, nil
}

func boolPtr(v any) (*bool, error) {
	var b bool
	switch x := v.(type) {
	case bool:
		b = x
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("expected a boolean, got %q", x)
		}
		b = parsed
	default:
		return nil, fmt.Errorf("expected a boolean, got %T", v)
	}
	return &b, nil
}

// pkgVersionPattern matches the characters Debian allows in a version.
var pkgVersionPattern = regexp.MustCompile(`^[0-9][0-9A-Za-z.+~-]*$`)

// NewOptionsValidator returns a validator that knows the option rules.
func NewOptionsValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("pkgversion", func(fl validator.FieldLevel) bool {
		return pkgVersionPattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		o := sl.Current().Interface().(InstallOptions)
		if o.Slave && strings.TrimSpace(o.SlaveOptions.MasterHost) == "" {
			sl.ReportError(o.SlaveOptions.MasterHost, "SlaveOptions.MasterHost", "MasterHost", "required_with_slave", "")
		}
	}, InstallOptions{})
	return v
}

// ValidateOptions checks resolved options with v.
func ValidateOptions(v *validator.Validate, o InstallOptions) error {
	if err := v.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return engine.NewPermanentError("invalid options: "+strings.Join(msgs, "; "), err).
				WithCode(engine.ErrCodeValidation)
		}
		return engine.NewPermanentError("invalid options", err).WithCode(engine.ErrCodeValidation)
	}
	return nil
}
