package internal

import "testing"

func mustEngine(t *testing.T, cfg RulesConfig) *RuleEngine {
	t.Helper()
	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}
	return engine
}

func TestRuleEngineEvaluate(t *testing.T) {
	engine := mustEngine(t, RulesConfig{Rules: []Rule{
		{When: `action == "opened"`, Emit: EmitList{"issue.opened"}},
		{When: `action == "closed" && merged == true`, Emit: EmitList{"pr.merged"}},
	}})

	matches := engine.Evaluate(Event{
		Provider:   "github",
		Name:       "issues",
		RawPayload: []byte(`{"action":"opened","merged":false}`),
	})
	if len(matches) != 1 {
		t.Fatalf("expected 1 topic, got %d", len(matches))
	}
	if matches[0].Topic != "issue.opened" {
		t.Fatalf("expected topic issue.opened, got %q", matches[0].Topic)
	}
}

func TestRuleEngineEventMetadata(t *testing.T) {
	engine := mustEngine(t, RulesConfig{Rules: []Rule{
		{When: `event_type == "assignedTasks" && project == "mihai/test"`, Emit: EmitList{"review.tasks"}},
		{When: `event_type == "newIssue"`, Emit: EmitList{"issue.new"}},
	}})

	matches := engine.Evaluate(Event{
		Provider: "github",
		Name:     "assignedTasks",
		Type:     "assignedTasks",
		Project:  "mihai/test",
	})
	if len(matches) != 1 || matches[0].Topic != "review.tasks" {
		t.Fatalf("expected review.tasks, got %+v", matches)
	}
}

func TestRuleEngineMultipleTopics(t *testing.T) {
	engine := mustEngine(t, RulesConfig{Rules: []Rule{
		{When: `event_type == "reopened"`, Emit: EmitList{"issue.reopened", "audit"}, Drivers: []string{"amqp", "http"}},
	}})

	matches := engine.Evaluate(Event{Type: "reopened"})
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[1].Topic != "audit" || len(matches[1].Drivers) != 2 {
		t.Fatalf("unexpected second match %+v", matches[1])
	}
}

func TestRuleEngineEvaluateMissingField(t *testing.T) {
	engine := mustEngine(t, RulesConfig{Rules: []Rule{
		{When: "missing == true", Emit: EmitList{"never"}},
	}})

	matches := engine.Evaluate(Event{Provider: "github", Name: "push", RawPayload: []byte(`{}`)})
	if len(matches) != 0 {
		t.Fatalf("expected no topics, got %d", len(matches))
	}
}

func TestRuleEngineStrictMissing(t *testing.T) {
	engine := mustEngine(t, RulesConfig{
		Rules:  []Rule{{When: "missing_field == nothing", Emit: EmitList{"never"}}},
		Strict: true,
	})

	matches := engine.Evaluate(Event{RawPayload: []byte(`{"action":"opened"}`)})
	if len(matches) != 0 {
		t.Fatalf("expected no matches in strict mode, got %d", len(matches))
	}
}

func TestRuleEngineDottedAndIndexedPaths(t *testing.T) {
	engine := mustEngine(t, RulesConfig{Rules: []Rule{
		{When: `action == "opened" && pull_request.draft == false`, Emit: EmitList{"pr.ready"}},
		{When: `issue.labels[0].name == "bug"`, Emit: EmitList{"issue.bug"}},
	}})

	matches := engine.Evaluate(Event{
		Name:       "pull_request",
		RawPayload: []byte(`{"action":"opened","pull_request":{"draft":false},"issue":{"labels":[{"name":"bug"}]}}`),
	})
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

func TestRuleEngineJSONPath(t *testing.T) {
	engine := mustEngine(t, RulesConfig{Rules: []Rule{
		{When: "$.pull_request.draft == false", Emit: EmitList{"pr.ready"}},
		{When: "$.comments[1].body == 'lgtm'", Emit: EmitList{"comment.lgtm"}},
	}})

	matches := engine.Evaluate(Event{
		RawPayload: []byte(`{"pull_request":{"draft":false},"comments":[{"body":"hi"},{"body":"lgtm"}]}`),
	})
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

func TestRuleEngineFunctions(t *testing.T) {
	engine := mustEngine(t, RulesConfig{Rules: []Rule{
		{When: `contains(labels, "bug")`, Emit: EmitList{"label.bug"}},
		{When: `like(ref, "refs/heads/%")`, Emit: EmitList{"branch.push"}},
		{When: `contains(labels, "docs")`, Emit: EmitList{"label.docs"}},
	}})

	matches := engine.Evaluate(Event{
		Name:       "push",
		RawPayload: []byte(`{"labels":["bug","ui"],"ref":"refs/heads/main"}`),
	})
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

func TestRewritePathsSkipsStringLiterals(t *testing.T) {
	expr, paths := rewritePaths(`issue.state == "pull_request.draft" && $.a[0] == 'x.y'`)
	if expr != `path0 == "pull_request.draft" && path1 == 'x.y'` {
		t.Fatalf("unexpected rewrite %q", expr)
	}
	if paths["path0"] != "issue.state" || paths["path1"] != "$.a[0]" {
		t.Fatalf("unexpected paths %v", paths)
	}
}

func TestContainsFuncSpreadArguments(t *testing.T) {
	cases := []struct {
		args []interface{}
		want bool
	}{
		{[]interface{}{"bug", "ui", "bug"}, true},
		{[]interface{}{"bug", "ui", "docs"}, false},
		{[]interface{}{[]interface{}{"bug", "ui"}, "ui"}, true},
		{[]interface{}{"refs/heads/main", "heads"}, true},
		{[]interface{}{float64(1), float64(2), float64(2)}, true},
		{[]interface{}{nil, "bug"}, false},
		{[]interface{}{"bug"}, false},
	}
	for _, tc := range cases {
		got, err := containsFunc(tc.args...)
		if err != nil {
			t.Fatalf("contains%v: %v", tc.args, err)
		}
		if got != tc.want {
			t.Fatalf("contains%v = %v, want %v", tc.args, got, tc.want)
		}
	}
	if _, err := containsFunc(); err == nil {
		t.Fatal("expected an error without arguments")
	}
}

func TestRuleEngineContainsOnLabelArray(t *testing.T) {
	engine := mustEngine(t, RulesConfig{Rules: []Rule{
		{When: `contains(labels, "ui")`, Emit: EmitList{"label.ui"}},
		{When: `contains(labels, "wontfix")`, Emit: EmitList{"label.wontfix"}},
	}})

	matches := engine.Evaluate(Event{RawPayload: []byte(`{"labels":["bug","ui","help"]}`)})
	if len(matches) != 1 || matches[0].Topic != "label.ui" {
		t.Fatalf("expected only label.ui, got %v", matches)
	}
}
