package resolver

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pieceflow/pieceflow/pkg/piece"
)

func sessionProps(t *testing.T, fetches *int32) *piece.PropertyMap {
	t.Helper()
	m, err := piece.NewPropertyMap(
		piece.Property{
			Name:       "database_id",
			Kind:       piece.KindDynamicDropdown,
			Required:   true,
			Refreshers: []string{piece.AuthProperty},
			FetchOptions: func(ctx context.Context, auth string, rv map[string]interface{}) (*piece.DropdownState, error) {
				if fetches != nil {
					atomic.AddInt32(fetches, 1)
				}
				return &piece.DropdownState{Options: []piece.Option{{Label: "Tasks", Value: "db-1"}}}, nil
			},
		},
		piece.Property{
			Name:       "fields",
			Kind:       piece.KindDynamicGroup,
			Refreshers: []string{piece.AuthProperty, "database_id"},
			FetchProps: func(ctx context.Context, auth string, rv map[string]interface{}) (*piece.PropertyMap, error) {
				return piece.NewPropertyMap(
					piece.Property{Name: "Name", Kind: piece.KindShortText},
				)
			},
		},
		piece.Property{Name: "note", Kind: piece.KindLongText},
	)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestSessionInitialStates(t *testing.T) {
	s, err := NewSession(sessionProps(t, nil), nil)
	if err != nil {
		t.Fatal(err)
	}

	if s.State("database_id") != StateIdle {
		t.Errorf("database_id state = %s, want idle", s.State("database_id"))
	}
	if s.State("fields") != StateIdle {
		t.Errorf("fields state = %s, want idle", s.State("fields"))
	}
}

func TestSetAuthMarksDependentsLoading(t *testing.T) {
	s, err := NewSession(sessionProps(t, nil), nil)
	if err != nil {
		t.Fatal(err)
	}

	changed := s.SetAuth("secret_tok")

	if len(changed) != 2 {
		t.Fatalf("changed = %v, want both dynamic props", changed)
	}
	if s.State("database_id") != StateLoading {
		t.Errorf("database_id state = %s, want loading", s.State("database_id"))
	}
}

func TestSetValueSameValueIsNoOp(t *testing.T) {
	s, err := NewSession(sessionProps(t, nil), nil)
	if err != nil {
		t.Fatal(err)
	}

	first := s.SetValue("database_id", "db-1")
	second := s.SetValue("database_id", "db-1")

	if len(first) == 0 {
		t.Error("first change should mark dependents")
	}
	if len(second) != 0 {
		t.Error("setting the same value again must be a no-op (deep equality)")
	}
}

func TestSetValueDeepEquality(t *testing.T) {
	s, err := NewSession(sessionProps(t, nil), nil)
	if err != nil {
		t.Fatal(err)
	}

	v1 := map[string]interface{}{"a": []interface{}{1, 2}}
	v2 := map[string]interface{}{"a": []interface{}{1, 2}}

	s.SetValue("note", "x") // unrelated
	if got := s.SetValue("database_id", v1); len(got) == 0 {
		t.Fatal("first set should trigger refresh")
	}
	// Structurally equal but different reference: must not re-trigger.
	if got := s.SetValue("database_id", v2); len(got) != 0 {
		t.Error("deep-equal value must not re-trigger resolution")
	}
}

func TestRefresherChangeClearsDependentValues(t *testing.T) {
	s, err := NewSession(sessionProps(t, nil), nil)
	if err != nil {
		t.Fatal(err)
	}

	s.SetAuth("tok")
	s.SetValue("database_id", "db-1")
	s.Resolve(context.Background(), "fields")
	s.SetValue("Name", "Buy milk")

	// Changing the parent selection invalidates the group value and its
	// resolved sub-field values.
	s.SetValue("database_id", "db-2")

	if s.Value("fields") != nil {
		t.Errorf("fields value = %v, want cleared", s.Value("fields"))
	}
	if s.Value("Name") != nil {
		t.Errorf("sub-field value = %v, want cleared", s.Value("Name"))
	}
	if s.State("fields") != StateLoading {
		t.Errorf("fields state = %s, want loading", s.State("fields"))
	}
}

func TestResolveTransitionsToResolved(t *testing.T) {
	var fetches int32
	s, err := NewSession(sessionProps(t, &fetches), nil)
	if err != nil {
		t.Fatal(err)
	}

	s.SetAuth("tok")
	res := s.Resolve(context.Background(), "database_id")

	if res.Disabled() {
		t.Fatalf("unexpected disabled: %s", res.Dropdown.Placeholder)
	}
	if s.State("database_id") != StateResolved {
		t.Errorf("state = %s, want resolved", s.State("database_id"))
	}
	if atomic.LoadInt32(&fetches) != 1 {
		t.Errorf("fetches = %d, want exactly 1", fetches)
	}
}

func TestBeginSnapshotsAuthForUndeclaredRefresher(t *testing.T) {
	m, err := piece.NewPropertyMap(
		piece.Property{
			Name:       "item_id",
			Kind:       piece.KindDynamicDropdown,
			Refreshers: []string{"database_id"},
			FetchOptions: func(ctx context.Context, auth string, rv map[string]interface{}) (*piece.DropdownState, error) {
				return &piece.DropdownState{Options: []piece.Option{{Label: "Row", Value: "r1"}}}, nil
			},
		},
		piece.Property{Name: "database_id", Kind: piece.KindShortText},
	)
	if err != nil {
		t.Fatal(err)
	}

	s, err := NewSession(m, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.SetAuth("secret_tok")
	s.SetValue("database_id", "db-1")

	_, rv, ok := s.Begin("item_id")
	if !ok {
		t.Fatal("Begin failed")
	}
	if rv[piece.AuthProperty] != "secret_tok" {
		t.Errorf("auth = %v, want the connection token even though undeclared", rv[piece.AuthProperty])
	}

	res := s.Resolve(context.Background(), "item_id")
	if res.Disabled() {
		t.Fatalf("unexpected disabled state: %s", res.Dropdown.Placeholder)
	}
}

func TestResolveWithoutAuthDisables(t *testing.T) {
	s, err := NewSession(sessionProps(t, nil), nil)
	if err != nil {
		t.Fatal(err)
	}

	res := s.Resolve(context.Background(), "database_id")

	if !res.Disabled() {
		t.Fatal("expected disabled state without auth")
	}
	if s.State("database_id") != StateDisabled {
		t.Errorf("state = %s, want disabled", s.State("database_id"))
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	s, err := NewSession(sessionProps(t, nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	s.SetAuth("tok")

	// First fetch starts...
	token1, _, ok := s.Begin("database_id")
	if !ok {
		t.Fatal("Begin failed")
	}

	// ...but the refresher changes again before it completes, issuing a
	// newer token.
	token2, _, _ := s.Begin("database_id")

	stale := DynamicResult{Dropdown: &piece.DropdownState{Options: []piece.Option{{Label: "stale", Value: 1}}}}
	fresh := DynamicResult{Dropdown: &piece.DropdownState{Options: []piece.Option{{Label: "fresh", Value: 2}}}}

	if s.Complete("database_id", token1, stale) {
		t.Error("stale token must be discarded (last-request-wins)")
	}
	if !s.Complete("database_id", token2, fresh) {
		t.Error("latest token must be accepted")
	}

	res, _ := s.Result("database_id")
	if res.Dropdown.Options[0].Label != "fresh" {
		t.Errorf("result = %v, want fresh", res.Dropdown.Options)
	}
}

func TestSessionValuesExcludeAuth(t *testing.T) {
	s, err := NewSession(sessionProps(t, nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	s.SetAuth("secret_tok")

	if _, ok := s.Values()[piece.AuthProperty]; ok {
		t.Error("auth must not leak into form values")
	}
}
