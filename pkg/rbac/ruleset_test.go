package rbac

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRuleSetYAML = `
version: 1
actions: [read, write, create, delete]
resources: [patient, emr, user]
roles:
  viewer:
    grants:
      - resource: "*"
        actions: [read]
  editor:
    inherits: [viewer]
    grants:
      - resource: patient
        actions: [write, create]
        when:
          - type: attribute_contains
            attribute: assigned_patients
      - resource: user
        actions: [write]
        when:
          - type: owner
`

func loadTestModel(t *testing.T, doc string) *RuleModel {
	t.Helper()
	rs, err := LoadRuleSet(strings.NewReader(doc))
	require.NoError(t, err)
	model, err := NewRuleModel(rs)
	require.NoError(t, err)
	return model
}

func defaultModel(t *testing.T) *RuleModel {
	t.Helper()
	rs, err := DefaultRuleSet()
	require.NoError(t, err)
	model, err := NewRuleModel(rs)
	require.NoError(t, err)
	return model
}

func TestLoadRuleSet(t *testing.T) {
	rs, err := LoadRuleSet(strings.NewReader(testRuleSetYAML))
	require.NoError(t, err)

	assert.Equal(t, 1, rs.Version)
	assert.Equal(t, []Action{ActionRead, ActionWrite, ActionCreate, ActionDelete}, rs.Actions)
	assert.Equal(t, []Resource{ResourcePatient, ResourceEMR, ResourceUser}, rs.Resources)
	require.Contains(t, rs.Roles, "editor")
	assert.Equal(t, []string{"viewer"}, rs.Roles["editor"].Inherits)
	require.Len(t, rs.Roles["editor"].Grants, 2)
	assert.Equal(t, PredicateAttributeContains, rs.Roles["editor"].Grants[0].When[0].Type)
}

func TestLoadRuleSetErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "empty document",
			doc:     "",
			wantErr: "empty document",
		},
		{
			name:    "malformed yaml",
			doc:     "actions: [read\n",
			wantErr: "decoding yaml",
		},
		{
			name: "unknown field",
			doc: `
actions: [read]
resources: [patient]
roles:
  viewer:
    grant:
      - resource: patient
        actions: [read]
`,
			wantErr: "grant",
		},
		{
			name: "missing actions",
			doc: `
resources: [patient]
roles:
  viewer: {}
`,
			wantErr: "actions",
		},
		{
			name: "duplicate resource",
			doc: `
actions: [read]
resources: [patient, patient]
roles:
  viewer: {}
`,
			wantErr: "duplicate value",
		},
		{
			name: "grant without resource",
			doc: `
actions: [read]
resources: [patient]
roles:
  viewer:
    grants:
      - actions: [read]
`,
			wantErr: "resource",
		},
		{
			name: "unknown predicate type",
			doc: `
actions: [read]
resources: [patient]
roles:
  viewer:
    grants:
      - resource: patient
        actions: [read]
        when:
          - type: nearby
`,
			wantErr: "type",
		},
		{
			name: "attribute predicate without attribute",
			doc: `
actions: [read]
resources: [patient]
roles:
  viewer:
    grants:
      - resource: patient
        actions: [read]
        when:
          - type: attribute_contains
`,
			wantErr: "attribute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRuleSet(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRuleSet)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRuleSetFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRuleSetYAML), 0o644))

	rs, err := LoadRuleSetFile(path)
	require.NoError(t, err)
	assert.Len(t, rs.Roles, 2)

	_, err = LoadRuleSetFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("roles: {}\n"), 0o644))
	_, err = LoadRuleSetFile(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRuleSet)
	assert.Contains(t, err.Error(), bad)
}

func TestLoadRuleModel(t *testing.T) {
	model, err := LoadRuleModel("")
	require.NoError(t, err)
	assert.Contains(t, model.Roles(), "org_admin")

	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRuleSetYAML), 0o644))

	model, err = LoadRuleModel(path)
	require.NoError(t, err)
	assert.Len(t, model.Roles(), 2)

	_, err = LoadRuleModel(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultRuleSet(t *testing.T) {
	rs, err := DefaultRuleSet()
	require.NoError(t, err)

	assert.Equal(t, []Action{ActionRead, ActionWrite, ActionCreate, ActionDelete, ActionAssign, ActionExport}, rs.Actions)
	for _, role := range []string{"admin", "org_admin", "physician", "nurse", "clinician", "auditor", "receptionist"} {
		assert.Contains(t, rs.Roles, role)
	}

	_, err = NewRuleModel(rs)
	require.NoError(t, err)
}

func TestRuleSetMarshalRoundTrip(t *testing.T) {
	rs, err := DefaultRuleSet()
	require.NoError(t, err)

	data, err := rs.Marshal()
	require.NoError(t, err)

	again, err := LoadRuleSet(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, rs, again)
}
