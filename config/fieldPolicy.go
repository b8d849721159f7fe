package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// PersistenceMode says when an edit to a field reaches the backing store:
// immediate fields are written as part of the edit request, deferred fields
// accumulate as pending changes until an explicit save.
type PersistenceMode string

const (
	PersistImmediate PersistenceMode = "immediate"
	PersistDeferred  PersistenceMode = "deferred"
)

type FieldPolicy struct {
	Editable    bool            `json:"editable"`
	Persistence PersistenceMode `json:"persistence"`
}

// FieldPolicies maps field name -> edit policy. Loaded once at startup;
// fields absent from the table are read-only.
type FieldPolicies map[string]FieldPolicy

func (p FieldPolicies) Editable(field string) bool {
	return p[field].Editable
}

func (p FieldPolicies) Deferred(field string) bool {
	return p[field].Persistence == PersistDeferred
}

// DefaultFieldPolicies reflects the standard deployment: reference fields
// and the recommendation write straight through, review flags and free-text
// annotations stay pending until Save.
func DefaultFieldPolicies() FieldPolicies {
	policies := FieldPolicies{}
	for _, f := range []string{
		"recommendation", "dec_hdrcode", "dec_name", "dec_address",
		"dec_city", "dec_state", "dec_zip", "dec_contact",
	} {
		policies[f] = FieldPolicy{Editable: true, Persistence: PersistImmediate}
	}
	for _, f := range []string{
		"jib", "rev", "vendor", "memo", "how_to_process", "address_reason",
	} {
		policies[f] = FieldPolicy{Editable: true, Persistence: PersistDeferred}
	}
	return policies
}

// LoadFieldPolicies reads a deployment override from FIELD_POLICY_FILE,
// falling back to the defaults when unset.
func LoadFieldPolicies() (FieldPolicies, error) {
	path := StringFromEnv("FIELD_POLICY_FILE", "")
	if path == "" {
		return DefaultFieldPolicies(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read field policy file: %w", err)
	}
	var policies FieldPolicies
	if err := json.Unmarshal(raw, &policies); err != nil {
		return nil, fmt.Errorf("parse field policy file: %w", err)
	}
	for field, policy := range policies {
		if policy.Persistence != PersistImmediate && policy.Persistence != PersistDeferred {
			return nil, fmt.Errorf("field %q: unknown persistence mode %q", field, policy.Persistence)
		}
	}
	return policies, nil
}
