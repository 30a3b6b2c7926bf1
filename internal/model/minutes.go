// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Minutes is a duration in whole minutes as typed by an operator. Text that
// does not start with a number is kept as NaN instead of being rejected.
type Minutes int

// NaN marks a value that could not be parsed.
const NaN Minutes = math.MinInt32

// ParseMinutes reads the leading integer of s. Leading whitespace and a
// single sign are accepted and trailing garbage is ignored, so "15m" is 15.
// Anything without a leading digit, or out of the int range, is NaN. Large
// values are kept so range checks can reject them.
func ParseMinutes(s string) Minutes {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return NaN
	}
	n, err := strconv.ParseInt(s[:end], 10, 0)
	if err != nil || Minutes(n) == NaN {
		return NaN
	}
	return Minutes(n)
}

// Valid reports whether m holds a parsed number.
func (m Minutes) Valid() bool { return m != NaN }

func (m Minutes) String() string {
	if !m.Valid() {
		return "NaN"
	}
	return strconv.Itoa(int(m))
}

// MarshalJSON encodes NaN as null.
func (m Minutes) MarshalJSON() ([]byte, error) {
	if !m.Valid() {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(m))), nil
}

// UnmarshalJSON decodes null back to NaN.
func (m *Minutes) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = NaN
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*m = Minutes(n)
	return nil
}
