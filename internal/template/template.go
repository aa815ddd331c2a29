package template

import (
	"fmt"
	"regexp"
)

// refRe matches both reference forms in one pass, so text substituted from
// a step output is never scanned again.
var refRe = regexp.MustCompile(`\$\{\{\s*(?:steps\.([^.}\s]+)\.outputs\.([^}\s]+)|inputs\.([^}\s]+))\s*\}\}`)

// Context holds available values for template resolution.
type Context struct {
	Inputs      map[string]string
	StepOutputs map[string]map[string]string // stepID → outputName → value
}

// NewContext returns a context with no step outputs yet.
func NewContext(inputs map[string]string) *Context {
	if inputs == nil {
		inputs = map[string]string{}
	}
	return &Context{Inputs: inputs, StepOutputs: map[string]map[string]string{}}
}

// SetOutput records a step output for later references.
func (c *Context) SetOutput(stepID, name, value string) {
	if c.StepOutputs[stepID] == nil {
		c.StepOutputs[stepID] = map[string]string{}
	}
	c.StepOutputs[stepID][name] = value
}

// Resolve replaces all ${{ steps.X.outputs.Y }} and ${{ inputs.Z }} in s.
// Substituted values are inserted verbatim.
func Resolve(s string, ctx *Context) (string, error) {
	var resolveErr error
	result := refRe.ReplaceAllStringFunc(s, func(match string) string {
		if resolveErr != nil {
			return match
		}
		m := refRe.FindStringSubmatch(match)
		if m[3] != "" {
			val, ok := ctx.Inputs[m[3]]
			if !ok {
				resolveErr = fmt.Errorf("unresolved input %q", m[3])
				return match
			}
			return val
		}
		stepID, outputName := m[1], m[2]
		outs, ok := ctx.StepOutputs[stepID]
		if !ok {
			resolveErr = fmt.Errorf("unresolved step reference %q", stepID)
			return match
		}
		val, ok := outs[outputName]
		if !ok {
			resolveErr = fmt.Errorf("unresolved output %q on step %q", outputName, stepID)
			return match
		}
		return val
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return result, nil
}

// ResolveMap resolves every value of m.
func ResolveMap(m map[string]string, ctx *Context) (map[string]string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		r, err := Resolve(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = r
	}
	return out, nil
}
