package internal

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Rule routes matching events to one or more topics. When is a govaluate
// expression over the payload; dotted paths (pull_request.draft), indexed
// paths (labels[0]) and JSONPath ($.issue.labels[0].name) are accepted.
type Rule struct {
	When    string   `yaml:"when"`
	Emit    EmitList `yaml:"emit"`
	Drivers []string `yaml:"drivers"`
}

// EmitList accepts a single topic or a list of topics.
type EmitList []string

func (e *EmitList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*e = EmitList{node.Value}
		return nil
	case yaml.SequenceNode:
		var topics []string
		if err := node.Decode(&topics); err != nil {
			return err
		}
		*e = topics
		return nil
	default:
		return errors.Errorf("emit must be a string or a list, line %d", node.Line)
	}
}

// RuleMatch is one topic an event must be published to.
type RuleMatch struct {
	Topic   string
	Drivers []string
}

type compiledRule struct {
	when    string
	emit    []string
	drivers []string
	expr    *govaluate.EvaluableExpression
	paths   map[string]string
}

type RuleEngine struct {
	rules  []compiledRule
	strict bool
	logger logrus.FieldLogger
}

var ruleFunctions = map[string]govaluate.ExpressionFunction{
	"contains": containsFunc,
	"like":     likeFunc,
}

func NewRuleEngine(cfg RulesConfig) (*RuleEngine, error) {
	rules := make([]compiledRule, 0, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		rewritten, paths := rewritePaths(rule.When)
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(rewritten, ruleFunctions)
		if err != nil {
			return nil, errors.Wrapf(err, "compile rule %d %q", i, rule.When)
		}
		rules = append(rules, compiledRule{
			when:    rule.When,
			emit:    rule.Emit,
			drivers: rule.Drivers,
			expr:    expr,
			paths:   paths,
		})
	}

	return &RuleEngine{rules: rules, strict: cfg.Strict, logger: NewLogger("rules")}, nil
}

// Evaluate returns the topics event must be published to, in rule order.
func (r *RuleEngine) Evaluate(event Event) []RuleMatch {
	return r.EvaluateWithLogger(event, r.logger)
}

func (r *RuleEngine) EvaluateWithLogger(event Event, logger logrus.FieldLogger) []RuleMatch {
	if len(r.rules) == 0 {
		return nil
	}
	if logger == nil {
		logger = r.logger
	}

	params := newRuleParameters(event, r.strict)
	matches := make([]RuleMatch, 0, 1)
	for _, rule := range r.rules {
		params.paths = rule.paths
		result, err := rule.expr.Eval(params)
		if err != nil {
			logger.WithError(err).WithField("rule", rule.when).Debug("rule eval failed")
			continue
		}
		if ok, _ := result.(bool); !ok {
			continue
		}
		for _, topic := range rule.emit {
			matches = append(matches, RuleMatch{Topic: topic, Drivers: rule.drivers})
		}
	}
	return matches
}

// ruleParameters resolves expression variables against the event. Plain names
// look at the event metadata first, then the payload.
type ruleParameters struct {
	meta    map[string]interface{}
	payload interface{}
	flat    map[string]interface{}
	paths   map[string]string
	strict  bool
}

func newRuleParameters(event Event, strict bool) *ruleParameters {
	p := &ruleParameters{
		meta: map[string]interface{}{
			"provider":   event.Provider,
			"event_name": event.Name,
			"event_type": event.Type,
			"project":    event.Project,
		},
		strict: strict,
	}
	switch {
	case event.Data != nil:
		p.payload = event.Data
	case len(event.RawPayload) > 0:
		var decoded interface{}
		if err := json.Unmarshal(event.RawPayload, &decoded); err == nil {
			p.payload = decoded
		}
	}
	if obj, ok := p.payload.(map[string]interface{}); ok {
		p.flat = Flatten(obj)
	}
	return p
}

func (p *ruleParameters) Get(name string) (interface{}, error) {
	if path, ok := p.paths[name]; ok {
		return p.lookupPath(path)
	}
	if value, ok := p.meta[name]; ok {
		return value, nil
	}
	return p.lookupFlat(name)
}

func (p *ruleParameters) lookupPath(path string) (interface{}, error) {
	if strings.HasPrefix(path, "$") {
		value, err := jsonpath.Get(path, p.payload)
		if err != nil {
			return p.missing(path)
		}
		return value, nil
	}
	return p.lookupFlat(path)
}

func (p *ruleParameters) lookupFlat(name string) (interface{}, error) {
	if value, ok := p.flat[name]; ok {
		return value, nil
	}
	return p.missing(name)
}

func (p *ruleParameters) missing(name string) (interface{}, error) {
	if p.strict {
		return nil, errors.Errorf("no parameter %q", name)
	}
	return nil, nil
}

// rewritePaths replaces every path reference in expr with a plain variable
// govaluate can parse and returns the variable to path mapping.
func rewritePaths(expr string) (string, map[string]string) {
	paths := make(map[string]string)
	var out strings.Builder
	runes := []rune(expr)
	for i := 0; i < len(runes); {
		c := runes[i]
		switch {
		case c == '"' || c == '\'':
			j := i + 1
			for j < len(runes) && runes[j] != c {
				if runes[j] == '\\' {
					j++
				}
				j++
			}
			if j < len(runes) {
				j++
			}
			out.WriteString(string(runes[i:j]))
			i = j
		case c == '$' || isIdentStart(c):
			j := i + 1
			for j < len(runes) && isPathRune(runes[j]) {
				j++
			}
			token := string(runes[i:j])
			if c == '$' || strings.ContainsAny(token, ".[") {
				name := fmt.Sprintf("path%d", len(paths))
				paths[name] = token
				token = name
			}
			out.WriteString(token)
			i = j
		default:
			out.WriteRune(c)
			i++
		}
	}
	return out.String(), paths
}

func isIdentStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isPathRune(c rune) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '.' || c == '[' || c == ']' || c == '*' || c == '$'
}

// containsFunc reports whether the haystack holds the needle. govaluate
// spreads array arguments, so the needle is always the last argument and the
// arguments before it are either one string or the array items.
func containsFunc(args ...interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, errors.New("contains expects a haystack and a needle")
	}
	needle := args[len(args)-1]
	haystack := args[:len(args)-1]
	if len(haystack) == 1 {
		switch value := haystack[0].(type) {
		case string:
			s, ok := needle.(string)
			return ok && strings.Contains(value, s), nil
		case []interface{}:
			haystack = value
		}
	}
	for _, item := range haystack {
		if reflect.DeepEqual(item, needle) {
			return true, nil
		}
	}
	return false, nil
}

// likeFunc matches SQL LIKE patterns: % is any run, _ is one character.
func likeFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, errors.New("like expects 2 arguments")
	}
	value, ok := args[0].(string)
	if !ok {
		return false, nil
	}
	pattern, ok := args[1].(string)
	if !ok {
		return nil, errors.New("like pattern must be a string")
	}
	var re strings.Builder
	re.WriteString("^")
	for _, c := range pattern {
		switch c {
		case '%':
			re.WriteString(".*")
		case '_':
			re.WriteString(".")
		default:
			re.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	re.WriteString("$")
	return regexp.MatchString(re.String(), value)
}
