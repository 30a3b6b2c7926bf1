// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package i18n

import "testing"

func TestInitAndLanguages(t *testing.T) {
	Init("en")
	if GetLang() != "en" {
		t.Fatalf("expected lang 'en', got %q", GetLang())
	}
	langs := Languages()
	if len(langs) != 2 || langs[0] != "de" || langs[1] != "en" {
		t.Fatalf("unexpected languages: %v", langs)
	}
}

func TestT_BasicAndFormatting(t *testing.T) {
	Init("en")

	if got := T("authority.saved"); got != "Your changes have been saved" {
		t.Fatalf("unexpected translation: %q", got)
	}
	if got := T("cli.authority_created", "abc"); got != "Created authority abc" {
		t.Fatalf("unexpected formatted translation: %q", got)
	}
	if got := T("does.not.exist"); got != "does.not.exist" {
		t.Fatalf("expected id fallback, got %q", got)
	}
}

func TestT_German(t *testing.T) {
	Init("de")
	defer Init("en")

	if got := T("authority.saved"); got != "Ihre Änderungen wurden gespeichert" {
		t.Fatalf("unexpected german translation: %q", got)
	}
}
