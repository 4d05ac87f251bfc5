package linkpreview

import (
	"encoding/json"
	"strconv"
)

// Values holds every occurrence of a repeated property in document order.
// A single occurrence is encoded as a plain JSON value, two or more as a JSON
// array, so a property silently turns into a list once it repeats.
type Values[T any] []T

// First returns the first occurrence, or the zero value if there is none.
func (v Values[T]) First() T {
	var zero T
	if len(v) == 0 {
		return zero
	}
	return v[0]
}

// Last returns the most recent occurrence, or nil if there is none.
func (v Values[T]) Last() *T {
	if len(v) == 0 {
		return nil
	}
	return &v[len(v)-1]
}

// MarshalJSON implements json.Marshaler
func (v Values[T]) MarshalJSON() ([]byte, error) {
	switch len(v) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(v[0])
	}
	return json.Marshal([]T(v))
}

// UnmarshalJSON implements json.Unmarshaler, accepting both encodings
// produced by MarshalJSON.
func (v *Values[T]) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = nil
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var list []T
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*v = list
		return nil
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*v = Values[T]{one}
	return nil
}

// Scalar is a leaf property value: either text or an integer.
type Scalar struct {
	text  string
	num   int
	isNum bool
}

// Text returns text Scalar
func Text(s string) Scalar { return Scalar{text: s} }

// Int returns integer Scalar
func Int(n int) Scalar { return Scalar{num: n, isNum: true} }

// IsInt reports whether s holds an integer.
func (s Scalar) IsInt() bool { return s.isNum }

// Int returns integer value of s, 0 for text values.
func (s Scalar) Int() int { return s.num }

func (s Scalar) String() string {
	if s.isNum {
		return strconv.Itoa(s.num)
	}
	return s.text
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	if s.isNum {
		return []byte(strconv.Itoa(s.num)), nil
	}
	return json.Marshal(s.text)
}

func (s *Scalar) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		*s = Scalar{}
		return json.Unmarshal(b, &s.text)
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return err
	}
	*s = Int(n)
	return nil
}

// Object is a structured property such as an image, keyed by sub-property
// name: url, width, secure_url, etc.
type Object map[string]Values[Scalar]

// Get returns the first value of the sub-property as a string.
func (o Object) Get(sub string) string {
	return o[sub].First().String()
}

// Has reports whether sub-property is set.
func (o Object) Has(sub string) bool { return len(o[sub]) > 0 }
