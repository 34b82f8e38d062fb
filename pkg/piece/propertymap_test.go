package piece

import (
	"testing"
)

func TestNewPropertyMapPreservesOrder(t *testing.T) {
	m, err := NewPropertyMap(
		Property{Name: "title", Kind: KindShortText, Required: true},
		Property{Name: "archived", Kind: KindCheckbox},
		Property{Name: "tags", Kind: KindMultiSelect},
	)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"title", "archived", "tags"}
	got := m.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewPropertyMapRejectsDuplicates(t *testing.T) {
	_, err := NewPropertyMap(
		Property{Name: "title", Kind: KindShortText},
		Property{Name: "title", Kind: KindLongText},
	)
	if err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestNewPropertyMapRejectsSelfRefresher(t *testing.T) {
	_, err := NewPropertyMap(
		Property{Name: "database_id", Kind: KindDynamicDropdown, Refreshers: []string{"database_id"}},
	)
	if err == nil {
		t.Fatal("expected self-refresher error")
	}
}

func TestNewPropertyMapRejectsUnknownRefresher(t *testing.T) {
	_, err := NewPropertyMap(
		Property{Name: "fields", Kind: KindDynamicGroup, Refreshers: []string{"database_id"}},
	)
	if err == nil {
		t.Fatal("expected unknown refresher error")
	}
}

func TestNewPropertyMapAllowsAuthRefresher(t *testing.T) {
	_, err := NewPropertyMap(
		Property{Name: "database_id", Kind: KindDynamicDropdown, Refreshers: []string{AuthProperty}},
	)
	if err != nil {
		t.Fatalf("auth pseudo-property should always be allowed: %v", err)
	}
}

func TestNewPropertyMapRejectsUnknownKind(t *testing.T) {
	_, err := NewPropertyMap(Property{Name: "x", Kind: Kind("hologram")})
	if err == nil {
		t.Fatal("expected unknown kind error")
	}
}

func TestDependents(t *testing.T) {
	m := MustPropertyMap(
		Property{Name: "database_id", Kind: KindDynamicDropdown, Refreshers: []string{AuthProperty}},
		Property{Name: "fields", Kind: KindDynamicGroup, Refreshers: []string{AuthProperty, "database_id"}},
		Property{Name: "note", Kind: KindLongText},
	)

	deps := m.Dependents("database_id")
	if len(deps) != 1 || deps[0] != "fields" {
		t.Errorf("Dependents(database_id) = %v, want [fields]", deps)
	}

	authDeps := m.Dependents(AuthProperty)
	if len(authDeps) != 2 {
		t.Errorf("Dependents(auth) = %v, want both dynamic props", authDeps)
	}
}

func TestDefaultValue(t *testing.T) {
	tests := []struct {
		name string
		prop Property
		want interface{}
	}{
		{"text defaults empty", Property{Name: "t", Kind: KindShortText}, ""},
		{"checkbox defaults false", Property{Name: "c", Kind: KindCheckbox}, false},
		{"dropdown defaults nil", Property{Name: "d", Kind: KindStaticDropdown}, nil},
		{"number defaults nil", Property{Name: "n", Kind: KindNumber}, nil},
		{"declared default wins", Property{Name: "t", Kind: KindShortText, Default: "hello"}, "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.prop.DefaultValue(); got != tt.want {
				t.Errorf("DefaultValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultValueMultiSelect(t *testing.T) {
	got := Property{Name: "m", Kind: KindMultiSelect}.DefaultValue()
	slice, ok := got.([]interface{})
	if !ok || len(slice) != 0 {
		t.Errorf("multi-select default = %v, want empty slice", got)
	}
}

func TestUnsupportedKindPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unsupported kind")
		}
	}()
	Property{Name: "x", Kind: Kind("hologram")}.DefaultValue()
}
