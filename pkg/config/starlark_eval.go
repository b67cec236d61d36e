package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"golang.org/x/mod/semver"

	"github.com/openfroyo/mongorecipe/pkg/engine"
)

// StarlarkEvaluator executes override scripts with a timeout.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// Evaluate executes a Starlark script with the given input and returns its
// public globals. The thread is cancelled when ctx ends or the timeout passes.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, input map[string]interface{}) (*StarlarkResult, error) {
	startTime := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "mongorecipe",
		Print: func(_ *starlark.Thread, msg string) {
			// Scripts have no output channel.
		},
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-evalCtx.Done():
			thread.Cancel(fmt.Sprintf("execution timeout after %v", se.timeout))
		case <-done:
		}
	}()

	result, err := se.evaluate(thread, script, input)
	if err != nil {
		if evalCtx.Err() != nil {
			err = fmt.Errorf("starlark execution timeout: %w", err)
		}
		return &StarlarkResult{
			ExecutionTime: time.Since(startTime),
			Error:         err.Error(),
		}, err
	}

	result.ExecutionTime = time.Since(startTime)
	return result, nil
}

func (se *StarlarkEvaluator) evaluate(thread *starlark.Thread, script string, input map[string]interface{}) (*StarlarkResult, error) {
	predeclared := starlark.StringDict{
		"struct":         starlarkstruct.Default,
		"version_line":   starlark.NewBuiltin("version_line", builtinVersionLine),
		"version_cmp":    starlark.NewBuiltin("version_cmp", builtinVersionCmp),
		"normalize_arch": starlark.NewBuiltin("normalize_arch", builtinNormalizeArch),
	}

	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	globals, err := starlark.ExecFile(thread, "overrides.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]interface{})
	for name, val := range globals {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if _, ok := val.(starlark.Callable); ok {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = goVal
	}

	return &StarlarkResult{
		Output: output,
	}, nil
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, item := range val {
			goItem, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = goItem
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

func canonicalVersion(s string) string {
	return "v" + strings.TrimPrefix(strings.TrimSpace(s), "v")
}

// builtinVersionLine returns the major.minor line of a version, e.g. "3.2".
func builtinVersionLine(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var version string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &version); err != nil {
		return nil, err
	}
	v := canonicalVersion(version)
	if !semver.IsValid(v) {
		return nil, fmt.Errorf("%s: invalid version %q", b.Name(), version)
	}
	return starlark.String(strings.TrimPrefix(semver.MajorMinor(v), "v")), nil
}

// builtinVersionCmp compares two versions, returning -1, 0 or 1.
func builtinVersionCmp(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var left, right string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &left, &right); err != nil {
		return nil, err
	}
	l, r := canonicalVersion(left), canonicalVersion(right)
	if !semver.IsValid(l) || !semver.IsValid(r) {
		return nil, fmt.Errorf("%s: invalid version in (%q, %q)", b.Name(), left, right)
	}
	return starlark.MakeInt(semver.Compare(l, r)), nil
}

// builtinNormalizeArch maps an architecture onto its download name.
func builtinNormalizeArch(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var arch string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &arch); err != nil {
		return nil, err
	}
	return starlark.String(engine.NormalizeArch(arch)), nil
}
