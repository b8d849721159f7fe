package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"bitbucket.org/mmdatafocus/matchreview_backend/config"
)

func TestDefaultFieldPolicies(t *testing.T) {
	policies := config.DefaultFieldPolicies()

	for _, field := range []string{"recommendation", "dec_name", "dec_zip"} {
		if !policies.Editable(field) || policies.Deferred(field) {
			t.Fatalf("%s should be editable and immediate", field)
		}
	}
	for _, field := range []string{"jib", "rev", "vendor", "memo", "how_to_process", "address_reason"} {
		if !policies.Editable(field) || !policies.Deferred(field) {
			t.Fatalf("%s should be editable and deferred", field)
		}
	}
	for _, field := range []string{"canvas_id", "canvas_ssn", "ssn_match", "name_score", "nonexistent"} {
		if policies.Editable(field) {
			t.Fatalf("%s should be read-only", field)
		}
	}
}

func TestLoadFieldPoliciesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.json")
	body := `{"memo": {"editable": true, "persistence": "immediate"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	t.Setenv("FIELD_POLICY_FILE", path)

	policies, err := config.LoadFieldPolicies()
	if err != nil {
		t.Fatalf("LoadFieldPolicies: %v", err)
	}
	if !policies.Editable("memo") || policies.Deferred("memo") {
		t.Fatalf("override not applied: %+v", policies["memo"])
	}
	// The override replaces the whole table.
	if policies.Editable("recommendation") {
		t.Fatalf("fields absent from the file should be read-only")
	}
}

func TestLoadFieldPoliciesRejectsUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.json")
	body := `{"memo": {"editable": true, "persistence": "eventually"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	t.Setenv("FIELD_POLICY_FILE", path)

	if _, err := config.LoadFieldPolicies(); err == nil {
		t.Fatalf("expected error for unknown persistence mode")
	}
}
