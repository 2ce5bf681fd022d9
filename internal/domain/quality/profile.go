package quality

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
)

// Built-in profile names.
const (
	ProfileStrict  = "strict"
	ProfileLenient = "lenient"
	ProfileCustom  = "custom"
)

// builtinProfiles maps profile names to their predicates. Variables:
// overall, eeg, ppg, motion (double) and contacted (bool).
var builtinProfiles = map[string]string{
	ProfileStrict:  "overall >= 90.0 && eeg >= 90.0 && ppg >= 90.0 && contacted",
	ProfileLenient: "overall >= 80.0",
}

// Profile is a compiled gating predicate over a QualitySnapshot.
type Profile struct {
	name       string
	expression string
	program    cel.Program
}

// ProfileExpression returns the predicate source for a built-in profile.
func ProfileExpression(name string) (string, bool) {
	expr, ok := builtinProfiles[strings.ToLower(strings.TrimSpace(name))]
	return expr, ok
}

// ProfileByName compiles a built-in profile.
func ProfileByName(name string) (*Profile, error) {
	expr, ok := ProfileExpression(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return NewProfile(strings.ToLower(strings.TrimSpace(name)), expr)
}

// ResolveProfile compiles expression when set, otherwise the named profile.
func ResolveProfile(name, expression string) (*Profile, error) {
	if strings.TrimSpace(expression) != "" {
		if name == "" {
			name = ProfileCustom
		}
		return NewProfile(name, expression)
	}
	return ProfileByName(name)
}

// NewProfile compiles a CEL predicate. Compilation problems and non-boolean
// expressions are reported here rather than at evaluation time.
func NewProfile(name, expression string) (*Profile, error) {
	env, err := cel.NewEnv(
		cel.Variable("overall", cel.DoubleType),
		cel.Variable("eeg", cel.DoubleType),
		cel.Variable("ppg", cel.DoubleType),
		cel.Variable("motion", cel.DoubleType),
		cel.Variable("contacted", cel.BoolType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	p := &Profile{name: name, expression: expression, program: prg}
	// evaluate once so a non-boolean expression fails fast
	out, _, err := prg.Eval(activation(model.NoDataSnapshot()))
	if err == nil {
		if _, ok := out.Value().(bool); !ok {
			return nil, fmt.Errorf("%w: %q", ErrNonBooleanPredicate, expression)
		}
	}
	return p, nil
}

// Name returns the profile name.
func (p *Profile) Name() string { return p.name }

// Expression returns the predicate source.
func (p *Profile) Expression() string { return p.expression }

// Allows evaluates the predicate. Evaluation errors count as a failing predicate.
func (p *Profile) Allows(s model.QualitySnapshot) bool {
	out, _, err := p.program.Eval(activation(s))
	if err != nil {
		return false
	}
	ok, isBool := out.Value().(bool)
	return isBool && ok
}

func activation(s model.QualitySnapshot) map[string]any {
	return map[string]any{
		"overall":   s.Overall,
		"eeg":       s.EEG,
		"ppg":       s.PPG,
		"motion":    s.Motion,
		"contacted": s.SensorContacted,
	}
}
