package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/pieceflow/pieceflow/pkg/piece"
)

func TestResolveDynamicShortCircuitsOnUnsetAuth(t *testing.T) {
	fetchCalled := false
	prop := piece.Property{
		Name:       "database_id",
		Kind:       piece.KindDynamicDropdown,
		Refreshers: []string{piece.AuthProperty},
		FetchOptions: func(ctx context.Context, auth string, rv map[string]interface{}) (*piece.DropdownState, error) {
			fetchCalled = true
			return &piece.DropdownState{}, nil
		},
	}

	res := ResolveDynamic(context.Background(), prop, map[string]interface{}{})

	if fetchCalled {
		t.Error("fetch must not be called when auth is unset")
	}
	if !res.Disabled() {
		t.Error("expected disabled placeholder")
	}
	if len(res.Dropdown.Options) != 0 {
		t.Errorf("options = %v, want empty", res.Dropdown.Options)
	}
}

func TestResolveDynamicRequiresAuthEvenWhenUndeclared(t *testing.T) {
	fetchCalled := false
	prop := piece.Property{
		Name:       "item_id",
		Kind:       piece.KindDynamicDropdown,
		Refreshers: []string{"database_id"},
		FetchOptions: func(ctx context.Context, auth string, rv map[string]interface{}) (*piece.DropdownState, error) {
			fetchCalled = true
			return &piece.DropdownState{}, nil
		},
	}

	// The declared refresher is satisfied but no connection is set.
	res := ResolveDynamic(context.Background(), prop, map[string]interface{}{
		"database_id": "db-1",
	})

	if fetchCalled {
		t.Error("fetch must not be called while auth is unset")
	}
	if !res.Disabled() {
		t.Error("expected disabled placeholder")
	}
	if len(res.Dropdown.Options) != 0 {
		t.Errorf("options = %v, want empty", res.Dropdown.Options)
	}
}

func TestResolveDynamicShortCircuitsOnNilParent(t *testing.T) {
	fetchCalled := false
	prop := piece.Property{
		Name:       "fields",
		Kind:       piece.KindDynamicGroup,
		Refreshers: []string{piece.AuthProperty, "database_id"},
		FetchProps: func(ctx context.Context, auth string, rv map[string]interface{}) (*piece.PropertyMap, error) {
			fetchCalled = true
			return nil, nil
		},
	}

	// Parent dropdown present but not yet chosen (explicit null).
	res := ResolveDynamic(context.Background(), prop, map[string]interface{}{
		piece.AuthProperty: "secret_tok",
		"database_id":      nil,
	})

	if fetchCalled {
		t.Error("fetch must not be called with a nil parent value")
	}
	if !res.Disabled() {
		t.Error("expected disabled placeholder")
	}
}

func TestResolveDynamicFetchFailureDegrades(t *testing.T) {
	prop := piece.Property{
		Name:       "database_id",
		Kind:       piece.KindDynamicDropdown,
		Refreshers: []string{piece.AuthProperty},
		FetchOptions: func(ctx context.Context, auth string, rv map[string]interface{}) (*piece.DropdownState, error) {
			return nil, errors.New("notion api unreachable")
		},
	}

	res := ResolveDynamic(context.Background(), prop, map[string]interface{}{
		piece.AuthProperty: "secret_tok",
	})

	if !res.Disabled() {
		t.Fatal("fetch failure must map to disabled state, not an error")
	}
	if res.Dropdown.Placeholder == "" {
		t.Error("disabled placeholder should carry explanatory text")
	}
}

func TestResolveDynamicSuccess(t *testing.T) {
	prop := piece.Property{
		Name:       "database_id",
		Kind:       piece.KindDynamicDropdown,
		Refreshers: []string{piece.AuthProperty},
		FetchOptions: func(ctx context.Context, auth string, rv map[string]interface{}) (*piece.DropdownState, error) {
			if auth != "secret_tok" {
				t.Errorf("auth = %q, want secret_tok", auth)
			}
			return &piece.DropdownState{
				Options: []piece.Option{{Label: "Tasks", Value: "db-1"}},
			}, nil
		},
	}

	res := ResolveDynamic(context.Background(), prop, map[string]interface{}{
		piece.AuthProperty: "secret_tok",
	})

	if res.Disabled() {
		t.Fatalf("unexpected disabled state: %s", res.Dropdown.Placeholder)
	}
	if len(res.Dropdown.Options) != 1 || res.Dropdown.Options[0].Value != "db-1" {
		t.Errorf("options = %v", res.Dropdown.Options)
	}
}

func TestResolveDynamicGroupReturnsProps(t *testing.T) {
	sub := piece.MustPropertyMap(
		piece.Property{Name: "Name", Kind: piece.KindShortText},
		piece.Property{Name: "Done", Kind: piece.KindCheckbox},
	)

	prop := piece.Property{
		Name:       "fields",
		Kind:       piece.KindDynamicGroup,
		Refreshers: []string{piece.AuthProperty, "database_id"},
		FetchProps: func(ctx context.Context, auth string, rv map[string]interface{}) (*piece.PropertyMap, error) {
			return sub, nil
		},
	}

	res := ResolveDynamic(context.Background(), prop, map[string]interface{}{
		piece.AuthProperty: "tok",
		"database_id":      "db-1",
	})

	if res.Props == nil || res.Props.Len() != 2 {
		t.Errorf("expected resolved sub-property map, got %+v", res)
	}
}
