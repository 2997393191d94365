package batch

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestParseStringOrArray(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    []string
		wantErr bool
	}{
		{name: "single string", input: "work", want: []string{"work"}},
		{name: "array of strings", input: []any{"work", "home"}, want: []string{"work", "home"}},
		{name: "typed string slice", input: []string{"primary"}, want: []string{"primary"}},
		{name: "JSON string array", input: `["Team", "Family"]`, want: []string{"Team", "Family"}},
		{name: "JSON string array with spaces", input: `  ["Team"] `, want: []string{"Team"}},
		{name: "invalid JSON is literal", input: `[invalid json`, want: []string{`[invalid json`}},
		{name: "bracketed name is literal", input: `[ext] Conference room`, want: []string{`[ext] Conference room`}},
		{name: "nil input", input: nil, wantErr: true},
		{name: "empty string", input: "", wantErr: true},
		{name: "empty array", input: []any{}, wantErr: true},
		{name: "JSON empty array", input: `[]`, wantErr: true},
		{name: "array with non-string", input: []any{"work", 3}, wantErr: true},
		{name: "array with empty string", input: []any{"work", " "}, wantErr: true},
		{name: "invalid type", input: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStringOrArray(tt.input, "account")
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStringOrArray() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !slices.Equal(got, tt.want) {
				t.Errorf("ParseStringOrArray() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseOptionalStringOrArray(t *testing.T) {
	for _, input := range []any{nil, "", "   "} {
		got, err := ParseOptionalStringOrArray(input, "calendar")
		if err != nil || got != nil {
			t.Errorf("ParseOptionalStringOrArray(%v) = %v, %v; want nil, nil", input, got, err)
		}
	}

	got, err := ParseOptionalStringOrArray(`["a","b"]`, "calendar")
	if err != nil || !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("ParseOptionalStringOrArray() = %v, %v", got, err)
	}

	if _, err := ParseOptionalStringOrArray(true, "calendar"); err == nil {
		t.Error("expected error for a boolean")
	}
}

func TestProcess(t *testing.T) {
	var seen []string
	summary := Process(context.Background(), []string{"ev1", "ev2", "ev3"}, func(ctx context.Context, id string) (any, error) {
		seen = append(seen, id)
		if id == "ev2" {
			return nil, errors.New("event not found")
		}
		return "updated " + id, nil
	})

	if !slices.Equal(seen, []string{"ev1", "ev2", "ev3"}) {
		t.Errorf("processed %v, want every ID in order", seen)
	}
	if summary.Total != 3 || summary.Successful != 2 || summary.Failed != 1 {
		t.Errorf("summary counts = %d/%d/%d, want 3/2/1", summary.Total, summary.Successful, summary.Failed)
	}
	if summary.Results[1].Status != StatusError || summary.Results[1].Error != "event not found" {
		t.Errorf("results[1] = %+v", summary.Results[1])
	}
	if summary.Results[2].Result != "updated ev3" {
		t.Errorf("results[2].Result = %v", summary.Results[2].Result)
	}
}
