package internal

import "testing"

func TestFlattenIssuePayload(t *testing.T) {
	input := map[string]interface{}{
		"action": "opened",
		"issue": map[string]interface{}{
			"number": float64(1),
			"labels": []interface{}{
				map[string]interface{}{"name": "bug"},
				map[string]interface{}{"name": "ui"},
			},
		},
	}

	flat := Flatten(input)
	if flat["action"] != "opened" {
		t.Fatalf("expected action to be kept")
	}
	if flat["issue.number"] != float64(1) {
		t.Fatalf("expected issue.number to be 1")
	}
	if labels, ok := flat["issue.labels"].([]interface{}); !ok || len(labels) != 2 {
		t.Fatalf("expected issue.labels to hold the whole array")
	}
	if flat["issue.labels[1].name"] != "ui" {
		t.Fatalf("expected issue.labels[1].name to be ui")
	}
	if _, ok := flat["issue"].(map[string]interface{}); !ok {
		t.Fatalf("expected issue object to be kept")
	}
}
