// Package sample holds the sampling parameters a request carries to the
// runtime, their documented defaults, and their validation rules.
package sample

import (
	"fmt"
	"math"
)

const (
	DefaultTemperature   = 0.8
	DefaultTopK          = 40
	DefaultTopP          = 0.95
	DefaultRepeatPenalty = 1.1
)

// Params configures token selection. Runtimes treat zero values as unset
// and apply the defaults above; TopK == 1 is greedy decoding.
type Params struct {
	Temperature   float32
	TopK          int
	TopP          float32
	RepeatPenalty float32
	// Seed 0 lets the runtime choose.
	Seed int64
}

// Defaults returns the documented default parameters.
func Defaults() Params {
	return Params{
		Temperature:   DefaultTemperature,
		TopK:          DefaultTopK,
		TopP:          DefaultTopP,
		RepeatPenalty: DefaultRepeatPenalty,
	}
}

// WithDefaults fills zero fields from Defaults. Non-zero values are kept
// unmodified.
func (p Params) WithDefaults() Params {
	d := Defaults()
	if p.Temperature == 0 {
		p.Temperature = d.Temperature
	}
	if p.TopK == 0 {
		p.TopK = d.TopK
	}
	if p.TopP == 0 {
		p.TopP = d.TopP
	}
	if p.RepeatPenalty == 0 {
		p.RepeatPenalty = d.RepeatPenalty
	}
	return p
}

// Greedy reports whether the parameters select the single most likely token.
func (p Params) Greedy() bool { return p.TopK == 1 }

// FieldError describes the first parameter that failed validation.
type FieldError struct {
	Field  string
	Value  any
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s=%v: %s", e.Field, e.Value, e.Reason)
}

// Validate checks ranges. It never modifies p.
func (p Params) Validate() error {
	switch {
	case math.IsNaN(float64(p.Temperature)) || p.Temperature < 0:
		return &FieldError{Field: "temperature", Value: p.Temperature, Reason: "must be >= 0"}
	case p.TopK < 0:
		return &FieldError{Field: "top_k", Value: p.TopK, Reason: "must be >= 0"}
	case math.IsNaN(float64(p.TopP)) || p.TopP < 0 || p.TopP > 1:
		return &FieldError{Field: "top_p", Value: p.TopP, Reason: "must be within [0,1]"}
	case math.IsNaN(float64(p.RepeatPenalty)) || p.RepeatPenalty < 0:
		return &FieldError{Field: "repeat_penalty", Value: p.RepeatPenalty, Reason: "must be >= 0"}
	}
	return nil
}

// ValidateResolved checks parameters whose fields have all been filled in,
// so that zero is a caller's choice rather than a placeholder. Temperature
// and RepeatPenalty must be positive, TopK at least 1, TopP within (0,1].
func (p Params) ValidateResolved() error {
	switch {
	case math.IsNaN(float64(p.Temperature)) || p.Temperature <= 0:
		return &FieldError{Field: "temperature", Value: p.Temperature, Reason: "must be > 0"}
	case p.TopK < 1:
		return &FieldError{Field: "top_k", Value: p.TopK, Reason: "must be >= 1"}
	case math.IsNaN(float64(p.TopP)) || p.TopP <= 0 || p.TopP > 1:
		return &FieldError{Field: "top_p", Value: p.TopP, Reason: "must be within (0,1]"}
	case math.IsNaN(float64(p.RepeatPenalty)) || p.RepeatPenalty <= 0:
		return &FieldError{Field: "repeat_penalty", Value: p.RepeatPenalty, Reason: "must be > 0"}
	}
	return nil
}
