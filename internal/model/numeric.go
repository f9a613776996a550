package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Numeric is a number the feed may send either as a JSON string or as a JSON
// number. The raw text is kept; conversion happens in the normalizer.
type Numeric string

// UnmarshalJSON accepts "123", 123, 12.5 and null.
func (n *Numeric) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Numeric(strings.TrimSpace(s))
		return nil
	}
	*n = Numeric(b)
	return nil
}

// Int64 parses the text as a whole number. Empty text is zero. Decimal text
// such as "71500.0" is truncated. Non-finite or out-of-range values are
// errors.
func (n Numeric) Int64() (int64, error) {
	s := string(n)
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("numeric %q out of int64 range", s)
	}
	return int64(f), nil
}

// Float64 parses the text as a float. Empty text is zero; NaN and
// infinities are errors.
func (n Numeric) Float64() (float64, error) {
	if n == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("numeric %q is not finite", string(n))
	}
	return f, nil
}
