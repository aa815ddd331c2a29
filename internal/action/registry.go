package action

import (
	"context"
	"fmt"
	"sort"
)

// Action is the interface for built-in actions.
type Action interface {
	Execute(ctx context.Context, params map[string]string) (outputs map[string]string, err error)
	DryRun(params map[string]string) string
}

var registry = map[string]Action{
	"file.write":  &FileWrite{},
	"file.append": &FileAppend{},
	"json.get":    &JSONGet{},
	"json.set":    &JSONSet{},
	"env.get":     &EnvGet{},
	"http":        NewHTTPAction(),
}

// filePathParams names the params of each action that hold file paths. Other
// params, such as the key path of json.get, are passed through untouched.
var filePathParams = map[string][]string{
	"file.write":  {"path"},
	"file.append": {"path"},
	"json.get":    {"file"},
	"json.set":    {"file"},
}

// FileParams returns the params of the named action that are file paths.
func FileParams(name string) []string {
	return filePathParams[name]
}

// Get returns an action by name.
func Get(name string) (Action, error) {
	a, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", name)
	}
	return a, nil
}

// Known returns true if the action name is registered.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names lists registered actions in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
