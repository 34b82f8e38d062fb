package schema

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/pieceflow/pieceflow/pkg/piece"
)

func TestFromPropertyMap(t *testing.T) {
	m := piece.MustPropertyMap(
		piece.Property{Name: "title", DisplayName: "Title", Kind: piece.KindShortText, Required: true},
		piece.Property{Name: "archived", Kind: piece.KindCheckbox},
		piece.Property{
			Name:       "database_id",
			Kind:       piece.KindDynamicDropdown,
			Required:   true,
			Refreshers: []string{piece.AuthProperty},
		},
	)

	node := FromPropertyMap(m)

	if node.Type != "object" {
		t.Errorf("Type = %v, want object", node.Type)
	}
	if !reflect.DeepEqual(node.Order, []string{"title", "archived", "database_id"}) {
		t.Errorf("Order = %v", node.Order)
	}
	if !reflect.DeepEqual(node.Required, []string{"title", "database_id"}) {
		t.Errorf("Required = %v", node.Required)
	}

	title := node.Properties["title"]
	if title.Type != "string" || title.Title != "Title" {
		t.Errorf("title node = %+v", title)
	}

	db := node.Properties["database_id"]
	if !db.Dynamic || !reflect.DeepEqual(db.Refreshers, []string{piece.AuthProperty}) {
		t.Errorf("database_id node = %+v", db)
	}
}

func TestOptionalWrappedAsNullableUnion(t *testing.T) {
	node := FromProperty(piece.Property{Name: "archived", Kind: piece.KindCheckbox})

	union, ok := node.Type.([]interface{})
	if !ok {
		t.Fatalf("Type = %v, want nullable union", node.Type)
	}
	if union[0] != "boolean" || union[1] != "null" {
		t.Errorf("union = %v", union)
	}
}

func TestStaticDropdownEnum(t *testing.T) {
	node := FromProperty(piece.Property{
		Name: "color",
		Kind: piece.KindStaticDropdown,
		Options: []piece.Option{
			{Label: "Red", Value: "red"},
			{Label: "Blue", Value: "blue"},
		},
	})

	if !reflect.DeepEqual(node.Enum, []interface{}{"red", "blue"}) {
		t.Errorf("Enum = %v", node.Enum)
	}
}

func TestNodeSerializesToJSON(t *testing.T) {
	m := piece.MustPropertyMap(
		piece.Property{Name: "title", Kind: piece.KindShortText, Required: true},
	)

	data, err := json.Marshal(FromPropertyMap(m))
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["type"] != "object" {
		t.Errorf("serialized type = %v", decoded["type"])
	}
}
