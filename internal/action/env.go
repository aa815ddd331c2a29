package action

import (
	"context"
	"fmt"
	"os"
)

// EnvGet implements env.get. A "default" param is returned when the
// variable is unset; without one a missing variable is an error.
type EnvGet struct{}

func (e *EnvGet) Execute(_ context.Context, params map[string]string) (map[string]string, error) {
	name := params["name"]
	if name == "" {
		return nil, fmt.Errorf("env.get: missing required param 'name'")
	}
	val, ok := os.LookupEnv(name)
	if !ok {
		def, hasDefault := params["default"]
		if !hasDefault {
			return nil, fmt.Errorf("env.get: environment variable %q not set", name)
		}
		val = def
	}
	return map[string]string{"value": val}, nil
}

func (e *EnvGet) DryRun(params map[string]string) string {
	return fmt.Sprintf("Would read environment variable %q", params["name"])
}
