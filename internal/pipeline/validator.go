package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/stevehiehn/piperun/internal/action"
	dagerrors "github.com/stevehiehn/piperun/internal/errors"
)

var templateRefRe = regexp.MustCompile(`\$\{\{\s*steps\.([^.}\s]+)\.outputs\.([^}\s]+)\s*\}\}`)
var templateInputRe = regexp.MustCompile(`\$\{\{\s*inputs\.([^}\s]+)\s*\}\}`)

// Validate checks a pipeline for structural correctness. Required inputs are
// only checked when providedInputs is non-nil, e.g. not in validate-only mode.
func Validate(p *Pipeline, providedInputs map[string]string) error {
	if len(p.Steps) == 0 {
		return dagerrors.NewConfigurationError("pipeline has no steps", "Declare at least one entry under steps:")
	}

	seen := map[string]int{}
	stepOutputs := map[string]map[string]bool{}

	if providedInputs != nil {
		for name, inp := range p.Inputs {
			if !inp.Required {
				continue
			}
			if _, ok := providedInputs[name]; !ok && inp.Default == "" {
				return dagerrors.NewConfigurationError(
					fmt.Sprintf("missing required input %q", name),
					fmt.Sprintf("Provide --input %s=<value>", name))
			}
		}
	}

	for i, s := range p.Steps {
		if s.ID == "" {
			return dagerrors.NewConfigurationError(fmt.Sprintf("step at index %d has no id", i), "")
		}
		if _, dup := seen[s.ID]; dup {
			return dagerrors.NewConfigurationError(fmt.Sprintf("duplicate step id %q", s.ID), "")
		}
		seen[s.ID] = i

		count := 0
		for _, set := range []bool{s.Run != "", s.Action != "", s.HTTP != nil} {
			if set {
				count++
			}
		}
		if count != 1 {
			which := "none"
			if count > 1 {
				which = "multiple"
			}
			return dagerrors.NewConfigurationError(
				fmt.Sprintf("step %q has %s of run/action/http", s.ID, which),
				"A step must have exactly one of: run, action, or http")
		}

		if s.HTTP != nil && s.HTTP.URL == "" {
			return dagerrors.NewConfigurationError(fmt.Sprintf("step %q: http requires a url", s.ID), "")
		}

		if s.Action != "" && !action.Known(s.Action) {
			return &dagerrors.RunError{
				Type:    dagerrors.ConfigurationError,
				StepID:  s.ID,
				Message: fmt.Sprintf("unknown action %q", s.Action),
				Hint:    "Known actions: " + strings.Join(action.Names(), ", "),
			}
		}

		for _, ref := range collectTemplateRefs(s) {
			idx, exists := seen[ref.stepID]
			if !exists {
				return dagerrors.NewConfigurationError(
					fmt.Sprintf("step %q references unknown step %q", s.ID, ref.stepID), "")
			}
			if idx >= i {
				return dagerrors.NewConfigurationError(
					fmt.Sprintf("step %q has forward reference to step %q", s.ID, ref.stepID),
					"Steps can only read outputs of earlier steps")
			}
			outs, ok := stepOutputs[ref.stepID]
			if !ok {
				return dagerrors.NewConfigurationError(
					fmt.Sprintf("step %q references step %q which has no outputs", s.ID, ref.stepID), "")
			}
			if !outs[ref.outputName] {
				return dagerrors.NewConfigurationError(
					fmt.Sprintf("step %q references non-existent output %q on step %q", s.ID, ref.outputName, ref.stepID), "")
			}
		}

		for _, name := range collectInputRefs(s) {
			if _, ok := p.Inputs[name]; !ok {
				return dagerrors.NewConfigurationError(
					fmt.Sprintf("step %q references unknown input %q", s.ID, name), "")
			}
		}

		if len(s.Outputs) > 0 {
			stepOutputs[s.ID] = map[string]bool{}
			for k := range s.Outputs {
				stepOutputs[s.ID][k] = true
			}
		}
	}

	return nil
}

type templateRef struct {
	stepID     string
	outputName string
}

func collectTemplateRefs(s Step) []templateRef {
	var refs []templateRef
	for _, str := range stepStrings(s) {
		for _, m := range templateRefRe.FindAllStringSubmatch(str, -1) {
			refs = append(refs, templateRef{stepID: m[1], outputName: m[2]})
		}
	}
	return refs
}

func collectInputRefs(s Step) []string {
	var refs []string
	for _, str := range stepStrings(s) {
		for _, m := range templateInputRe.FindAllStringSubmatch(str, -1) {
			refs = append(refs, m[1])
		}
	}
	return refs
}

func stepStrings(s Step) []string {
	strs := []string{s.Run, s.Dir}
	for _, v := range s.Env {
		strs = append(strs, v)
	}
	for _, v := range s.Params {
		strs = append(strs, v)
	}
	if s.HTTP != nil {
		strs = append(strs, s.HTTP.URL, s.HTTP.Body)
		for _, v := range s.HTTP.Headers {
			strs = append(strs, v)
		}
	}
	return strs
}
