package resolver

import (
	"reflect"
	"testing"

	"github.com/pieceflow/pieceflow/pkg/piece"
)

func staticProps(t *testing.T) *piece.PropertyMap {
	t.Helper()
	m, err := piece.NewPropertyMap(
		piece.Property{Name: "title", Kind: piece.KindShortText, Required: true},
		piece.Property{Name: "content", Kind: piece.KindLongText},
		piece.Property{Name: "archived", Kind: piece.KindCheckbox},
		piece.Property{Name: "labels", Kind: piece.KindMultiSelect},
		piece.Property{Name: "icon", Kind: piece.KindStaticDropdown, Required: true},
	)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestResolveStaticDefaults(t *testing.T) {
	m := staticProps(t)

	values := ResolveStatic(m, nil)

	if values["title"] != "" {
		t.Errorf("title = %v, want empty string", values["title"])
	}
	if values["archived"] != false {
		t.Errorf("archived = %v, want false", values["archived"])
	}
	if labels, ok := values["labels"].([]interface{}); !ok || len(labels) != 0 {
		t.Errorf("labels = %v, want empty slice", values["labels"])
	}
	if values["icon"] != nil {
		t.Errorf("icon = %v, want nil (dropdown with no default)", values["icon"])
	}
}

func TestResolveStaticOutputKeysMatchInputKeys(t *testing.T) {
	m := staticProps(t)

	values := ResolveStatic(m, map[string]interface{}{
		"title":    "hello",
		"bogus":    "should not appear",
		"archived": true,
	})

	if len(values) != m.Len() {
		t.Errorf("output has %d keys, want %d", len(values), m.Len())
	}
	if _, ok := values["bogus"]; ok {
		t.Error("extra key introduced from existing input")
	}
	for _, name := range m.Names() {
		if _, ok := values[name]; !ok {
			t.Errorf("missing key %q", name)
		}
	}
}

func TestResolveStaticPreservesExplicitNull(t *testing.T) {
	m := staticProps(t)

	// title is present with an explicit null; content is absent.
	values := ResolveStatic(m, map[string]interface{}{"title": nil})

	if values["title"] != nil {
		t.Errorf("explicit null was not preserved: %v", values["title"])
	}
	if values["content"] != "" {
		t.Errorf("absent key should get default, got %v", values["content"])
	}
}

func TestResolveStaticExistingInputWins(t *testing.T) {
	m := staticProps(t)

	values := ResolveStatic(m, map[string]interface{}{"archived": true, "title": "My page"})

	if values["archived"] != true || values["title"] != "My page" {
		t.Errorf("existing input not applied: %v", values)
	}
}

func TestFormValid(t *testing.T) {
	m := staticProps(t)

	values := ResolveStatic(m, nil)
	if FormValid(m, values) {
		t.Error("form with unset required dropdown should be invalid")
	}

	values["title"] = "x"
	values["icon"] = "rocket"
	if !FormValid(m, values) {
		t.Error("form with all required values should be valid")
	}
}

func TestFormValidIgnoresDynamicProps(t *testing.T) {
	m, err := piece.NewPropertyMap(
		piece.Property{Name: "database_id", Kind: piece.KindDynamicDropdown, Required: true, Refreshers: []string{piece.AuthProperty}},
	)
	if err != nil {
		t.Fatal(err)
	}

	values := ResolveStatic(m, nil)
	if !FormValid(m, values) {
		t.Error("dynamic required props should not gate static form validity")
	}
	if !reflect.DeepEqual(ResolveStatic(m, nil), values) {
		t.Error("ResolveStatic is not deterministic")
	}
}
