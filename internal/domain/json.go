package domain

import (
	"encoding/json"
	"math"
)

// JSONFloat is a float64 that survives JSON encoding when non-finite.
// encoding/json rejects IEEE infinities and NaN; those encode as null so a
// sentinel like an infinite margin level does not fail a whole response.
// In-process math keeps the real value.
type JSONFloat float64

// MarshalJSON encodes finite values as plain numbers and non-finite values
// as null.
func (f JSONFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON decodes numbers and maps null back to +Inf, the only
// non-finite value this codebase serializes.
func (f *JSONFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = JSONFloat(math.Inf(1))
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = JSONFloat(v)
	return nil
}
