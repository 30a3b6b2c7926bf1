// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"encoding/json"
	"testing"
)

func TestParseMinutes(t *testing.T) {
	cases := []struct {
		in   string
		want Minutes
	}{
		{"600", 600},
		{"  42", 42},
		{"15m", 15},
		{"-3", -3},
		{"+7", 7},
		{"", NaN},
		{"abc", NaN},
		{"-", NaN},
		{" x1", NaN},
		{"99999999999999999999", NaN},
	}
	for _, c := range cases {
		if got := ParseMinutes(c.in); got != c.want {
			t.Errorf("ParseMinutes(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseMinutes_KeepsLargeValues(t *testing.T) {
	got := ParseMinutes("3000000000")
	if !got.Valid() || got.String() != "3000000000" {
		t.Fatalf("ParseMinutes(3000000000) = %v", got)
	}
}

func TestMinutesJSON(t *testing.T) {
	a := Authority{Expire: NaN, HostExpire: 30}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Authority
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Expire.Valid() {
		t.Fatalf("expected NaN to survive as null, got %v", back.Expire)
	}
	if back.HostExpire != 30 {
		t.Fatalf("expected 30, got %v", back.HostExpire)
	}
}

func TestAuthorityClone_DoesNotAlias(t *testing.T) {
	a := Authority{Roles: []string{"dev"}, HostTokens: []string{"t1"}}
	c := a.Clone()
	c.Roles[0] = "ops"
	c.HostTokens = append(c.HostTokens, "t2")
	if a.Roles[0] != "dev" || len(a.HostTokens) != 1 {
		t.Fatalf("clone aliases original: %+v", a)
	}
	if !a.Equal(a.Clone()) {
		t.Fatalf("clone should equal original")
	}
}

func TestNodeDeployed(t *testing.T) {
	n := Node{Authorities: []string{"a1"}}
	if !n.Deployed("a1") || n.Deployed("a2") {
		t.Fatalf("unexpected deployed result")
	}
}
