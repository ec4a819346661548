package cli

import (
	"fmt"
	"strconv"
	"time"
)

// Optional is a flag.Value that remembers whether it was set.
type Optional[T any] struct {
	value  T
	set    bool
	parse  func(string) (T, error)
	isBool bool
}

// NewOptional returns an optional flag using parse to decode its argument.
func NewOptional[T any](parse func(string) (T, error)) Optional[T] {
	return Optional[T]{parse: parse}
}

// OptionalDuration parses time.ParseDuration values.
func OptionalDuration() Optional[time.Duration] {
	return NewOptional(time.ParseDuration)
}

// OptionalInt parses base-10 integers.
func OptionalInt() Optional[int] {
	return NewOptional(strconv.Atoi)
}

// OptionalString accepts any value.
func OptionalString() Optional[string] {
	return NewOptional(func(s string) (string, error) { return s, nil })
}

// OptionalBool parses strconv.ParseBool values and may be given without an argument.
func OptionalBool() Optional[bool] {
	o := NewOptional(strconv.ParseBool)
	o.isBool = true
	return o
}

func (o *Optional[T]) Set(s string) error {
	if o.parse == nil {
		return fmt.Errorf("optional flag has no parser")
	}
	v, err := o.parse(s)
	if err != nil {
		return err
	}
	o.value = v
	o.set = true
	return nil
}

func (o *Optional[T]) String() string {
	if o == nil || !o.set {
		return ""
	}
	return fmt.Sprint(o.value)
}

// IsBoolFlag lets the flag package accept "-flag" without a value.
func (o *Optional[T]) IsBoolFlag() bool {
	return o.isBool
}

// Value returns the parsed value and whether the flag was given.
func (o *Optional[T]) Value() (T, bool) {
	return o.value, o.set
}

// Ptr returns a pointer to the value when set, nil otherwise.
func (o *Optional[T]) Ptr() *T {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}
