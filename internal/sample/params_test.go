package sample

import (
	"errors"
	"math"
	"testing"
)

func TestWithDefaultsFillsOnlyZeroFields(t *testing.T) {
	p := Params{Temperature: 0.2, TopK: 1}.WithDefaults()
	if p.Temperature != 0.2 || p.TopK != 1 {
		t.Fatalf("explicit values must be kept: %+v", p)
	}
	if p.TopP != DefaultTopP || p.RepeatPenalty != DefaultRepeatPenalty {
		t.Fatalf("zero values must take defaults: %+v", p)
	}
	if !p.Greedy() {
		t.Fatalf("top_k=1 should be greedy")
	}
	if (Params{}).WithDefaults() != Defaults() {
		t.Fatalf("zero params should equal defaults")
	}
}

func TestValidateResolved(t *testing.T) {
	cases := []struct {
		name  string
		p     Params
		field string
	}{
		{"defaults", Defaults(), ""},
		{"greedy", Params{Temperature: 0.1, TopK: 1, TopP: 1, RepeatPenalty: 1}, ""},
		{"zero temperature", Params{TopK: 40, TopP: 0.9, RepeatPenalty: 1}, "temperature"},
		{"zero top_k", Params{Temperature: 0.8, TopP: 0.9, RepeatPenalty: 1}, "top_k"},
		{"zero top_p", Params{Temperature: 0.8, TopK: 40, RepeatPenalty: 1}, "top_p"},
		{"zero penalty", Params{Temperature: 0.8, TopK: 40, TopP: 0.9}, "repeat_penalty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.ValidateResolved()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) || fe.Field != tc.field {
				t.Fatalf("expected %s error, got %v", tc.field, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		p     Params
		field string
	}{
		{"ok", Defaults(), ""},
		{"zero", Params{}, ""},
		{"negative temperature", Params{Temperature: -0.1}, "temperature"},
		{"nan temperature", Params{Temperature: float32(math.NaN())}, "temperature"},
		{"negative top_k", Params{TopK: -1}, "top_k"},
		{"top_p above one", Params{TopP: 1.5}, "top_p"},
		{"top_p negative", Params{TopP: -0.5}, "top_p"},
		{"top_p one", Params{TopP: 1}, ""},
		{"negative penalty", Params{RepeatPenalty: -1}, "repeat_penalty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FieldError, got %v", err)
			}
			if fe.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, fe.Field)
			}
		})
	}
}
