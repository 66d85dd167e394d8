// Package plan loads scripted gesture plans and runs them against an
// environment page.
//
// A plan is a YAML document whose steps each name one action:
//
//	name: checkout
//	evaluation:
//	  params:
//	    task: place an order
//	steps:
//	  - click: { x: 540, y: 1210 }
//	  - type: { text: "42 Main St", delay: 20ms }
//	  - scroll: { x: 540, y: 1500, direction: down, distance: 300 }
//	  - wait: { duration: 1s }
//	  - screenshot: { path: "shots/{env}-final.png" }
//
// Coordinates are screenshot coordinates; the driver rescales them.
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/wobdriver/internal/gesture"
)

// Action names a plan step.
type Action string

const (
	ActionClick       Action = "click"
	ActionType        Action = "type"
	ActionScroll      Action = "scroll"
	ActionLongPress   Action = "long_press"
	ActionDrag        Action = "drag"
	ActionBack        Action = "back"
	ActionWait        Action = "wait"
	ActionScreenshot  Action = "screenshot"
	ActionState       Action = "state"
	ActionElementInfo Action = "element_info"
)

var actions = []Action{
	ActionClick, ActionType, ActionScroll, ActionLongPress, ActionDrag,
	ActionBack, ActionWait, ActionScreenshot, ActionState, ActionElementInfo,
}

var directions = []string{gesture.DirectionUp, gesture.DirectionDown, gesture.DirectionLeft, gesture.DirectionRight}

// Args holds the arguments of every step kind. Unset optional fields fall
// back to the driver defaults.
type Args struct {
	X         *float64       `yaml:"x,omitempty" json:"x,omitempty"`
	Y         *float64       `yaml:"y,omitempty" json:"y,omitempty"`
	Text      string         `yaml:"text,omitempty" json:"text,omitempty"`
	Delay     *time.Duration `yaml:"delay,omitempty" json:"delay,omitempty"`
	Duration  *time.Duration `yaml:"duration,omitempty" json:"duration,omitempty"`
	Direction string         `yaml:"direction,omitempty" json:"direction,omitempty"`
	Distance  *int           `yaml:"distance,omitempty" json:"distance,omitempty"`
	Selector  string         `yaml:"selector,omitempty" json:"selector,omitempty"`
	Path      string         `yaml:"path,omitempty" json:"path,omitempty"`
}

var argKeys = []string{"x", "y", "text", "delay", "duration", "direction", "distance", "selector", "path"}

// Step is one action with its arguments.
type Step struct {
	Action Action
	Args   Args
}

// UnmarshalYAML decodes the single-key mapping form `- action: { args }`.
// A bare scalar such as `- back` is accepted for steps without arguments.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		s.Action = Action(node.Value)
		s.Args = Args{}
		return nil
	case yaml.MappingNode:
	default:
		return fmt.Errorf("line %d: a step must be an action name or a single-key mapping", node.Line)
	}
	if len(node.Content) != 2 {
		return fmt.Errorf("line %d: a step must name exactly one action, got %d", node.Line, len(node.Content)/2)
	}

	key, value := node.Content[0], node.Content[1]
	s.Action = Action(key.Value)
	s.Args = Args{}
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: arguments of %q must be a mapping", value.Line, key.Value)
	}
	for i := 0; i < len(value.Content); i += 2 {
		if name := value.Content[i].Value; !slices.Contains(argKeys, name) {
			return fmt.Errorf("line %d: unknown argument %q for %q", value.Content[i].Line, name, key.Value)
		}
	}
	return value.Decode(&s.Args)
}

// MarshalYAML writes the step back in its single-key form.
func (s Step) MarshalYAML() (any, error) {
	return map[string]Args{string(s.Action): s.Args}, nil
}

// Evaluation asks the runner to wrap the steps in an evaluation cycle.
type Evaluation struct {
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Plan is a named sequence of steps.
type Plan struct {
	Name            string      `yaml:"name"`
	Evaluation      *Evaluation `yaml:"evaluation,omitempty"`
	ContinueOnError bool        `yaml:"continue_on_error,omitempty"`
	Steps           []Step      `yaml:"steps"`
}

// Load reads and validates a plan file. A leading ~ is expanded.
func Load(path string) (*Plan, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", expanded, err)
	}
	return p, nil
}

// Parse decodes and validates a plan document.
func Parse(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Plan
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("plan is empty")
		}
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks every step for the arguments its action needs.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return errors.New("plan has no steps")
	}
	for i, step := range p.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
	}
	return nil
}

// Validate checks the step's arguments against its action.
func (s Step) Validate() error {
	if !slices.Contains(actions, s.Action) {
		return fmt.Errorf("unknown action %q", s.Action)
	}
	a := s.Args

	switch s.Action {
	case ActionClick, ActionScroll, ActionLongPress, ActionDrag:
		if err := a.requirePoint(); err != nil {
			return err
		}
	case ActionType:
		if a.Text == "" {
			return errors.New("text is required")
		}
	case ActionWait:
		if a.Duration == nil || *a.Duration <= 0 {
			return errors.New("a positive duration is required")
		}
	case ActionElementInfo:
		hasPoint := a.X != nil || a.Y != nil
		if hasPoint && a.Selector != "" {
			return errors.New("use either x/y or selector, not both")
		}
		if a.Selector == "" {
			if err := a.requirePoint(); err != nil {
				return fmt.Errorf("%w (or a selector)", err)
			}
		}
	}

	if a.Direction != "" && !slices.Contains(directions, a.Direction) {
		return fmt.Errorf("direction must be one of %v, got %q", directions, a.Direction)
	}
	if a.Distance != nil && *a.Distance <= 0 {
		return fmt.Errorf("distance must be positive, got %d", *a.Distance)
	}
	if a.Delay != nil && *a.Delay < 0 {
		return fmt.Errorf("delay cannot be negative, got %s", *a.Delay)
	}
	if a.Duration != nil && *a.Duration < 0 {
		return fmt.Errorf("duration cannot be negative, got %s", *a.Duration)
	}
	return nil
}

func (a Args) requirePoint() error {
	if a.X == nil || a.Y == nil {
		return errors.New("x and y are required")
	}
	if *a.X < 0 || *a.Y < 0 {
		return fmt.Errorf("coordinates cannot be negative, got (%v, %v)", *a.X, *a.Y)
	}
	return nil
}

func expandPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand path %q: %w", path, err)
	}
	return expanded, nil
}
