package jq

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestExecutorExecute(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		data       interface{}
		want       interface{}
		wantErr    bool
	}{
		{
			name:       "empty expression returns data as-is",
			expression: "",
			data:       map[string]interface{}{"id": "db1"},
			want:       map[string]interface{}{"id": "db1"},
		},
		{
			name:       "field extraction",
			expression: ".results",
			data:       map[string]interface{}{"results": []interface{}{"a", "b"}},
			want:       []interface{}{"a", "b"},
		},
		{
			name:       "option mapping",
			expression: `.results | map({label: .name, value: .id})`,
			data: map[string]interface{}{
				"results": []interface{}{
					map[string]interface{}{"id": "1", "name": "Tasks"},
				},
			},
			want: []interface{}{
				map[string]interface{}{"label": "Tasks", "value": "1"},
			},
		},
		{
			name:       "missing field yields nil",
			expression: ".ghost",
			data:       map[string]interface{}{"id": "db1"},
			want:       nil,
		},
		{
			name:       "invalid expression",
			expression: ".[",
			data:       map[string]interface{}{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := NewExecutor(DefaultTimeout, DefaultMaxInputSize)
			got, err := executor.Execute(context.Background(), tt.expression, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Execute() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestExecutorValidate(t *testing.T) {
	executor := NewExecutor(0, 0)

	if err := executor.Validate(""); err != nil {
		t.Errorf("empty expression should be valid: %v", err)
	}
	if err := executor.Validate(".results | map(.id)"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := executor.Validate(".["); err == nil {
		t.Error("invalid expression accepted")
	}
}

func TestExecutorInputSizeLimit(t *testing.T) {
	executor := NewExecutor(DefaultTimeout, 16)

	_, err := executor.Execute(context.Background(), ".", map[string]interface{}{
		"data": strings.Repeat("x", 64),
	})
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("err = %v, want size limit error", err)
	}
}

func TestExecutorTimeout(t *testing.T) {
	executor := NewExecutor(50*time.Millisecond, DefaultMaxInputSize)

	// An unbounded recursion never terminates on its own.
	_, err := executor.Execute(context.Background(), "recurse(.)", 0)
	if err == nil {
		t.Error("expected timeout error")
	}
}
