package pipeline

// Pipeline is the top-level pipeline definition.
type Pipeline struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs      map[string]Input  `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Steps       []Step            `yaml:"steps" json:"steps"`
}

// Input defines a pipeline-level input parameter.
type Input struct {
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Default     string `yaml:"default,omitempty" json:"default,omitempty"`
}

// Step defines a single step in a pipeline.
// Exactly one of Run, Action, or HTTP must be set.
type Step struct {
	ID          string            `yaml:"id" json:"id"`
	Description string            `yaml:"name,omitempty" json:"name,omitempty"`
	Run         string            `yaml:"run,omitempty" json:"run,omitempty"`
	Dir         string            `yaml:"dir,omitempty" json:"dir,omitempty"` // relative to the work dir
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Action      string            `yaml:"action,omitempty" json:"action,omitempty"`
	Params      map[string]string `yaml:"with,omitempty" json:"with,omitempty"`
	Outputs     map[string]string `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Destructive bool              `yaml:"destructive,omitempty" json:"destructive,omitempty"`

	// HTTP step fields
	HTTP *HTTPRequest `yaml:"http,omitempty" json:"http,omitempty"`
}

// Kind returns "run", "action" or "http", or "" when none is set.
func (s Step) Kind() string {
	switch {
	case s.Run != "":
		return "run"
	case s.Action != "":
		return "action"
	case s.HTTP != nil:
		return "http"
	}
	return ""
}

// HTTPRequest defines an HTTP request step.
type HTTPRequest struct {
	URL     string            `yaml:"url" json:"url"`
	Method  string            `yaml:"method,omitempty" json:"method,omitempty"` // default: GET
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty" json:"body,omitempty"` // template-resolved string
}

// ApplyDefaults fills inputs missing from provided with their declared
// defaults and returns the merged map. provided is not modified.
func (p *Pipeline) ApplyDefaults(provided map[string]string) map[string]string {
	inputs := make(map[string]string, len(provided)+len(p.Inputs))
	for k, v := range provided {
		inputs[k] = v
	}
	for name, inp := range p.Inputs {
		if _, ok := inputs[name]; !ok && inp.Default != "" {
			inputs[name] = inp.Default
		}
	}
	return inputs
}
