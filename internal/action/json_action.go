package action

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// JSONGet implements json.get: it reads a dotted path from a JSON file,
// e.g. "scripts.build" from package.json.
type JSONGet struct{}

func (j *JSONGet) Execute(_ context.Context, params map[string]string) (map[string]string, error) {
	file, path := params["file"], params["path"]
	if file == "" {
		return nil, fmt.Errorf("json.get: missing required param 'file'")
	}
	if path == "" {
		return nil, fmt.Errorf("json.get: missing required param 'path'")
	}

	obj, err := readObject(file)
	if err != nil {
		return nil, fmt.Errorf("json.get: %w", err)
	}

	val, err := getPath(obj, strings.Split(path, "."))
	if err != nil {
		return nil, fmt.Errorf("json.get: %w", err)
	}

	switch v := val.(type) {
	case string:
		return map[string]string{"value": v}, nil
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("json.get: %w", err)
		}
		return map[string]string{"value": string(data)}, nil
	default:
		return map[string]string{"value": fmt.Sprintf("%v", v)}, nil
	}
}

func (j *JSONGet) DryRun(params map[string]string) string {
	return fmt.Sprintf("Would read %s from %s", params["path"], params["file"])
}

// JSONSet implements json.set. Missing files and intermediate objects are
// created.
type JSONSet struct{}

func (j *JSONSet) Execute(_ context.Context, params map[string]string) (map[string]string, error) {
	file, path, value := params["file"], params["path"], params["value"]
	if file == "" {
		return nil, fmt.Errorf("json.set: missing required param 'file'")
	}
	if path == "" {
		return nil, fmt.Errorf("json.set: missing required param 'path'")
	}

	obj, err := readObject(file)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("json.set: %w", err)
		}
		obj = map[string]any{}
	}

	if err := setPath(obj, strings.Split(path, "."), value); err != nil {
		return nil, fmt.Errorf("json.set: %w", err)
	}

	out, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json.set: %w", err)
	}
	if err := os.WriteFile(file, append(out, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("json.set: %w", err)
	}

	return map[string]string{"file": file}, nil
}

func (j *JSONSet) DryRun(params map[string]string) string {
	return fmt.Sprintf("Would set %s = %q in %s", params["path"], params["value"], params["file"])
}

func readObject(file string) (map[string]any, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, nil
}

func getPath(obj map[string]any, keys []string) (any, error) {
	current := any(obj)
	for _, k := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("key %q: not an object", k)
		}
		v, ok := m[k]
		if !ok {
			return nil, fmt.Errorf("key %q not found", k)
		}
		current = v
	}
	return current, nil
}

func setPath(obj map[string]any, keys []string, value string) error {
	for _, k := range keys[:len(keys)-1] {
		next, ok := obj[k]
		if !ok {
			next = map[string]any{}
			obj[k] = next
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("key %q: not an object", k)
		}
		obj = m
	}
	obj[keys[len(keys)-1]] = value
	return nil
}
