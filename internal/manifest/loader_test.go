package manifest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pieceflow/pieceflow/pkg/errors"
	"github.com/pieceflow/pieceflow/pkg/piece"
)

const airtableManifest = `
version: "1"
name: airtable
display_name: Airtable
auth: secret
base_url: %s
headers:
  Authorization: "Bearer {auth}"
actions:
  create_record:
    display_name: Create Record
    props:
      - name: base_id
        kind: short_text
        required: true
      - name: table
        kind: short_text
        required: true
        validate: 'len(value) > 0'
      - name: fields
        kind: object
    request:
      method: POST
      path: "/{base_id}/{table}"
      body:
        fields: "{fields}"
    transform: ".fields"
triggers:
  new_record:
    strategy: LAST_ITEM
    props:
      - name: base_id
        kind: short_text
        required: true
      - name: table
        kind: short_text
        required: true
    request:
      method: GET
      path: "/{base_id}/{table}"
      query:
        since: "{cursor_iso}"
    items: ".records"
    id_field: id
    timestamp_field: createdTime
`

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func testLoader(t *testing.T, handler http.Handler) (*Loader, string) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	loader, err := NewLoader(server.Client(), nil)
	require.NoError(t, err)
	return loader, server.URL
}

func TestLoadDirsBuildsPieces(t *testing.T) {
	loader, serverURL := testLoader(t, http.NotFoundHandler())

	dir := t.TempDir()
	writeManifest(t, dir, "airtable.yaml", manifestWithURL(t, serverURL))

	pieces, err := loader.LoadDirs([]string{dir})
	require.NoError(t, err)
	require.Len(t, pieces, 1)

	p := pieces[0]
	assert.Equal(t, "airtable", p.Name)
	require.NoError(t, p.Validate())
	require.Len(t, p.Actions, 1)
	require.Len(t, p.Triggers, 1)

	action := p.Actions[0]
	assert.Equal(t, "create_record", action.Name)
	assert.Equal(t, []string{"base_id", "table", "fields"}, action.Props.Names())
}

func TestLoadDirsRejectsBrokenManifest(t *testing.T) {
	loader, _ := testLoader(t, http.NotFoundHandler())

	dir := t.TempDir()
	writeManifest(t, dir, "broken.yaml", `
version: "1"
name: broken
base_url: https://example.com
actions:
  op:
    request:
      method: POST
      path: /x
    transform: ".["
`)

	_, err := loader.LoadDirs([]string{dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yaml")
}

func TestLoadDirsSkipsMissingDir(t *testing.T) {
	loader, _ := testLoader(t, http.NotFoundHandler())

	pieces, err := loader.LoadDirs([]string{"/does/not/exist"})
	require.NoError(t, err)
	assert.Empty(t, pieces)
}

func TestActionRunSendsTemplatedRequest(t *testing.T) {
	var gotPath, gotAuth string
	loader, serverURL := testLoader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"id":"rec1","fields":{"Name":"Task"}}`))
	}))

	p := loadTestPiece(t, loader, serverURL)
	action, err := p.Action("create_record")
	require.NoError(t, err)

	result, err := action.Run(context.Background(), piece.RunContext{
		Auth: "key_123",
		Props: map[string]interface{}{
			"base_id": "app1",
			"table":   "Tasks",
			"fields":  map[string]interface{}{"Name": "Task"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "/app1/Tasks", gotPath)
	assert.Equal(t, "Bearer key_123", gotAuth)
	// The transform projected the response down to .fields.
	assert.Equal(t, map[string]interface{}{"Name": "Task"}, result)
}

func TestActionRunFailsValidationRule(t *testing.T) {
	loader, serverURL := testLoader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent when validation fails")
	}))

	p := loadTestPiece(t, loader, serverURL)
	action, err := p.Action("create_record")
	require.NoError(t, err)

	_, err = action.Run(context.Background(), piece.RunContext{
		Auth: "key_123",
		Props: map[string]interface{}{
			"base_id": "app1",
			"table":   "",
		},
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestActionRunMissingPathProperty(t *testing.T) {
	loader, serverURL := testLoader(t, http.NotFoundHandler())

	p := loadTestPiece(t, loader, serverURL)
	action, err := p.Action("create_record")
	require.NoError(t, err)

	_, err = action.Run(context.Background(), piece.RunContext{
		Auth:  "key_123",
		Props: map[string]interface{}{"table": "Tasks"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestTriggerItemsExtraction(t *testing.T) {
	loader, serverURL := testLoader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"records":[
			{"id":"rec1","createdTime":"2026-08-29T10:00:00Z","fields":{}},
			{"id":"rec2","createdTime":"2026-08-29T11:00:00Z","fields":{}}
		]}`))
	}))

	p := loadTestPiece(t, loader, serverURL)
	trigger, err := p.Trigger("new_record")
	require.NoError(t, err)

	items, err := trigger.Polling.Items(context.Background(), piece.PollRequest{
		Auth:  "key_123",
		Props: map[string]interface{}{"base_id": "app1", "table": "Tasks"},
	})
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "rec1", items[0].ID)
	assert.Equal(t, "rec2|"+millis(t, "2026-08-29T11:00:00Z"), items[1].Key())
}

func TestTriggerItemsFilteredByCursor(t *testing.T) {
	var gotSince string
	loader, serverURL := testLoader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		// A remote that ignores the since filter: seen records must still
		// be dropped before the dedupe pass.
		w.Write([]byte(`{"records":[
			{"id":"rec1","createdTime":"2026-08-29T10:00:00Z","fields":{}},
			{"id":"rec2","createdTime":"2026-08-29T11:00:00Z","fields":{}},
			{"id":"rec3","createdTime":"2026-08-29T12:00:00Z","fields":{}}
		]}`))
	}))

	p := loadTestPiece(t, loader, serverURL)
	trigger, err := p.Trigger("new_record")
	require.NoError(t, err)

	items, err := trigger.Polling.Items(context.Background(), piece.PollRequest{
		Auth:       "key_123",
		Props:      map[string]interface{}{"base_id": "app1", "table": "Tasks"},
		LastCursor: "rec2|" + millis(t, "2026-08-29T11:00:00Z"),
	})
	require.NoError(t, err)

	assert.Equal(t, "2026-08-29T11:00:00Z", gotSince)
	require.Len(t, items, 1)
	assert.Equal(t, "rec3", items[0].ID)
}

func TestManifestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Manifest)
	}{
		{"missing version", func(m *Manifest) { m.Version = "" }},
		{"missing name", func(m *Manifest) { m.Name = "" }},
		{"missing base url", func(m *Manifest) { m.BaseURL = "" }},
		{"bad strategy", func(m *Manifest) {
			trig := m.Triggers["new_record"]
			trig.Strategy = "NEWEST"
			m.Triggers["new_record"] = trig
		}},
		{"bad prop kind", func(m *Manifest) {
			act := m.Actions["create_record"]
			act.Props[0].Kind = "textarea"
			m.Actions["create_record"] = act
		}},
		{"bad validate expression", func(m *Manifest) {
			act := m.Actions["create_record"]
			act.Props[0].Validate = "value >"
			m.Actions["create_record"] = act
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := parseTestManifest(t)
			tt.mutate(m)
			assert.Error(t, m.Validate())
		})
	}
}

func manifestWithURL(t *testing.T, serverURL string) string {
	t.Helper()
	return fmt.Sprintf(airtableManifest, serverURL)
}

func parseTestManifest(t *testing.T) *Manifest {
	t.Helper()

	var m Manifest
	require.NoError(t, yaml.Unmarshal([]byte(manifestWithURL(t, "https://example.com")), &m))
	require.NoError(t, m.Validate())
	return &m
}

func millis(t *testing.T, rfc string) string {
	t.Helper()

	ts, err := time.Parse(time.RFC3339, rfc)
	require.NoError(t, err)
	return strconv.FormatInt(ts.UnixMilli(), 10)
}

func loadTestPiece(t *testing.T, loader *Loader, serverURL string) *piece.Piece {
	t.Helper()

	dir := t.TempDir()
	writeManifest(t, dir, "airtable.yaml", manifestWithURL(t, serverURL))

	pieces, err := loader.LoadDirs([]string{dir})
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	return pieces[0]
}
