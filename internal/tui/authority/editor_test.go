// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package authority

import (
	"slices"
	"testing"

	"github.com/toeirei/keymaster-ca/internal/model"
)

func sampleAuthority() model.Authority {
	return model.Authority{
		ID:         "a1",
		Name:       "prod",
		PublicKey:  "ssh-ed25519 AAAA",
		HostDomain: "example.com",
		Expire:     600,
		HostExpire: 600,
		Roles:      []string{},
		HostTokens: []string{"tok1", "tok2"},
		Info:       model.AuthorityInfo{KeyAlg: "ED25519"},
	}
}

func TestEditor_CleanRendersAuthoritative(t *testing.T) {
	e := NewEditor(sampleAuthority())
	if e.Dirty() || e.HasDraft() {
		t.Fatalf("new editor should be clean")
	}
	if !e.Current().Equal(sampleAuthority()) {
		t.Fatalf("clean editor should render the authoritative record")
	}

	updated := sampleAuthority()
	updated.Name = "renamed elsewhere"
	e.SetAuthority(updated)
	if e.Current().Name != "renamed elsewhere" {
		t.Fatalf("clean editor should follow refreshes, got %q", e.Current().Name)
	}
}

func TestEditor_CopyOnWriteComposition(t *testing.T) {
	auth := sampleAuthority()
	e := NewEditor(auth)

	e.Set(FieldName, "staging")
	e.Set(FieldHostDomain, "staging.example.com")
	e.Toggle(FlagMatchRoles)
	e.Set(FieldExpire, "30")
	e.Set(FieldHostProxy, "ec2-user@bastion.example.com")

	want := auth.Clone()
	want.Name = "staging"
	want.HostDomain = "staging.example.com"
	want.MatchRoles = true
	want.Expire = 30
	want.HostProxy = "ec2-user@bastion.example.com"

	draft, ok := e.Draft()
	if !ok || !e.Dirty() {
		t.Fatalf("expected a dirty draft")
	}
	if !draft.Equal(want) {
		t.Fatalf("draft mismatch:\n got %+v\nwant %+v", draft, want)
	}
	if !e.Authority().Equal(auth) {
		t.Fatalf("authoritative record was modified")
	}
}

func TestEditor_DraftSurvivesRefresh(t *testing.T) {
	e := NewEditor(sampleAuthority())
	e.Set(FieldName, "local")

	refreshed := sampleAuthority()
	refreshed.Name = "remote"
	e.SetAuthority(refreshed)

	if got := e.Current().Name; got != "local" {
		t.Fatalf("draft should win over refresh, got %q", got)
	}
	if e.Authority().Name != "remote" {
		t.Fatalf("authoritative record should be updated")
	}
}

func TestEditor_NumericParsing(t *testing.T) {
	e := NewEditor(sampleAuthority())
	e.Set(FieldExpire, "15m")
	e.Set(FieldHostExpire, "soon")

	cur := e.Current()
	if cur.Expire != 15 {
		t.Fatalf("expected expire 15, got %v", cur.Expire)
	}
	if cur.HostExpire.Valid() {
		t.Fatalf("expected NaN host expire, got %v", cur.HostExpire)
	}
	if !e.Dirty() {
		t.Fatalf("an unparsable entry is still an edit")
	}
}

func TestEditor_Scenario(t *testing.T) {
	auth := sampleAuthority()
	auth.Name = ""
	e := NewEditor(auth)

	e.Set(FieldName, "a")
	e.Toggle(FlagHostCertificates)
	cur := e.Current()
	if cur.Name != "a" || !cur.HostCertificates {
		t.Fatalf("expected name a with host certificates, got %+v", cur)
	}

	steps := []struct {
		add    string
		remove string
		want   []string
	}{
		{add: "ops", want: []string{"ops"}},
		{add: "dev", want: []string{"dev", "ops"}},
		{remove: "ops", want: []string{"dev"}},
	}
	for _, s := range steps {
		if s.add != "" {
			e.SetPendingRole(s.add)
			e.AddRole()
		} else {
			e.RemoveRole(s.remove)
		}
		if got := e.Current().Roles; !slices.Equal(got, s.want) {
			t.Fatalf("after add=%q remove=%q roles=%v, want %v", s.add, s.remove, got, s.want)
		}
	}
	if cur := e.Current(); cur.Name != "a" || !cur.HostCertificates {
		t.Fatalf("role edits lost earlier field edits: %+v", cur)
	}
}

func TestEditor_RoleSetSemantics(t *testing.T) {
	auth := sampleAuthority()
	auth.Roles = []string{"dev", "ops"}
	e := NewEditor(auth)

	e.SetPendingRole("dev")
	if !e.AddRole() {
		t.Fatalf("adding a duplicate is accepted silently")
	}
	if got := e.Current().Roles; !slices.Equal(got, []string{"dev", "ops"}) {
		t.Fatalf("duplicate changed roles: %v", got)
	}
	if e.PendingRole() != "" {
		t.Fatalf("pending role should be cleared")
	}

	e.SetPendingRole("admin")
	e.AddRole()
	if got := e.Current().Roles; !slices.Equal(got, []string{"admin", "dev", "ops"}) {
		t.Fatalf("expected sorted roles, got %v", got)
	}
	if !slices.Equal(e.Authority().Roles, []string{"dev", "ops"}) {
		t.Fatalf("authoritative roles were aliased")
	}
}

func TestEditor_AddRoleEmptyIsNoop(t *testing.T) {
	e := NewEditor(sampleAuthority())
	if e.AddRole() {
		t.Fatalf("empty add should be refused")
	}
	if e.Dirty() || e.HasDraft() {
		t.Fatalf("empty add must not create a draft")
	}
}

func TestEditor_RemoveRole(t *testing.T) {
	auth := sampleAuthority()
	auth.Roles = []string{"dev"}
	e := NewEditor(auth)

	if e.RemoveRole("ops") {
		t.Fatalf("removing an absent role should be a no-op")
	}
	if e.Dirty() {
		t.Fatalf("absent removal must not dirty a clean editor")
	}

	if !e.RemoveRole("dev") {
		t.Fatalf("expected removal")
	}
	if !e.Dirty() || len(e.Current().Roles) != 0 {
		t.Fatalf("removal on a clean record should dirty it, roles=%v", e.Current().Roles)
	}
}

func TestEditor_CancelDiscardsEverything(t *testing.T) {
	auth := sampleAuthority()
	e := NewEditor(auth)
	for i := 0; i < 5; i++ {
		e.Set(FieldName, "x")
		e.Toggle(FlagStrictHostChecking)
		e.SetPendingRole("r")
		e.AddRole()
	}
	if !e.Cancel() {
		t.Fatalf("cancel refused")
	}
	if e.Dirty() || e.HasDraft() || e.Message() != "" {
		t.Fatalf("cancel should return to clean")
	}
	if !e.Current().Equal(auth) {
		t.Fatalf("cancel left a partial draft: %+v", e.Current())
	}
}

func TestEditor_SaveSuccessThenExpiry(t *testing.T) {
	e := NewEditor(sampleAuthority())
	e.Set(FieldName, "saved")

	payload, gen, ok := e.BeginSave()
	if !ok || payload.Name != "saved" || !e.Busy() {
		t.Fatalf("BeginSave: ok=%v busy=%v payload=%+v", ok, e.Busy(), payload)
	}
	tok := e.SaveSucceeded(gen)
	if e.Busy() || e.Dirty() {
		t.Fatalf("success should clear busy and dirty")
	}
	if e.Message() != "Your changes have been saved" {
		t.Fatalf("unexpected message %q", e.Message())
	}
	if !e.HasDraft() {
		t.Fatalf("draft stays until the message expires")
	}

	if !e.ClearExpired(tok) {
		t.Fatalf("current token should be accepted")
	}
	if e.HasDraft() || e.Message() != "" {
		t.Fatalf("expiry should drop draft and message")
	}
}

func TestEditor_DeferredClearKeepsNewerEdit(t *testing.T) {
	e := NewEditor(sampleAuthority())
	e.Set(FieldName, "first")
	_, gen, _ := e.BeginSave()
	tok := e.SaveSucceeded(gen) // t=0

	e.Set(FieldName, "second") // t=1s

	e.ClearExpired(tok) // t=3s
	if !e.Dirty() {
		t.Fatalf("dirty flag must survive the deferred clear")
	}
	draft, ok := e.Draft()
	if !ok || draft.Name != "second" {
		t.Fatalf("newer edit lost: ok=%v draft=%+v", ok, draft)
	}
	if e.Message() != "" {
		t.Fatalf("message should still expire")
	}
}

func TestEditor_EditWhileSaveInFlight(t *testing.T) {
	e := NewEditor(sampleAuthority())
	e.Set(FieldName, "first")
	_, gen, _ := e.BeginSave()

	e.Set(FieldHostDomain, "other.example.com")
	tok := e.SaveSucceeded(gen)

	if !e.Dirty() {
		t.Fatalf("an edit made while saving must keep the editor dirty")
	}
	e.ClearExpired(tok)
	if draft, ok := e.Draft(); !ok || draft.HostDomain != "other.example.com" {
		t.Fatalf("edit made during save was dropped")
	}
}

func TestEditor_SaveFailureKeepsDraft(t *testing.T) {
	e := NewEditor(sampleAuthority())
	e.Set(FieldName, "unsaved")
	before, _ := e.Draft()

	_, _, ok := e.BeginSave()
	if !ok {
		t.Fatalf("BeginSave refused")
	}
	e.SaveFailed()

	if e.Busy() || e.Message() != "" || !e.Dirty() {
		t.Fatalf("failure: busy=%v message=%q dirty=%v", e.Busy(), e.Message(), e.Dirty())
	}
	after, ok := e.Draft()
	if !ok || !after.Equal(before) {
		t.Fatalf("draft changed on failure")
	}
}

func TestEditor_StaleTimerIgnored(t *testing.T) {
	e := NewEditor(sampleAuthority())
	e.Set(FieldName, "one")
	_, gen, _ := e.BeginSave()
	first := e.SaveSucceeded(gen)

	e.Set(FieldName, "two")
	_, gen, _ = e.BeginSave()
	second := e.SaveSucceeded(gen)

	if e.ClearExpired(first) {
		t.Fatalf("superseded timer should be ignored")
	}
	if e.Message() == "" {
		t.Fatalf("stale timer cleared the newer message")
	}
	if !e.ClearExpired(second) || e.HasDraft() {
		t.Fatalf("current timer should clear the draft")
	}
}

func TestEditor_CancelInvalidatesTimer(t *testing.T) {
	e := NewEditor(sampleAuthority())
	e.Set(FieldName, "one")
	_, gen, _ := e.BeginSave()
	tok := e.SaveSucceeded(gen)
	e.Cancel()

	e.Set(FieldName, "fresh")
	if e.ClearExpired(tok) {
		t.Fatalf("timer from before cancel should be stale")
	}
	if draft, ok := e.Draft(); !ok || draft.Name != "fresh" {
		t.Fatalf("new draft affected by stale timer")
	}
}

func TestEditor_BusyMutualExclusion(t *testing.T) {
	e := NewEditor(sampleAuthority())
	e.Set(FieldName, "x")
	if _, _, ok := e.BeginSave(); !ok {
		t.Fatalf("first save refused")
	}

	if _, _, ok := e.BeginSave(); ok {
		t.Fatalf("second save allowed while busy")
	}
	if e.ArmDelete() {
		t.Fatalf("delete armed while busy")
	}
	if _, ok := e.BeginDeploy(); ok {
		t.Fatalf("deploy allowed while busy")
	}
	if e.Cancel() {
		t.Fatalf("cancel allowed while busy")
	}
	if e.TokensEditable() {
		t.Fatalf("tokens editable while busy")
	}
}

func TestEditor_DeleteTwoPhase(t *testing.T) {
	e := NewEditor(sampleAuthority())
	e.Set(FieldName, "dirty is fine")

	if _, ok := e.ConfirmDelete(); ok {
		t.Fatalf("unarmed confirm must not issue a delete")
	}
	if !e.ArmDelete() {
		t.Fatalf("arm refused")
	}
	id, ok := e.ConfirmDelete()
	if !ok || id != "a1" {
		t.Fatalf("confirm: id=%q ok=%v", id, ok)
	}
	if _, ok := e.ConfirmDelete(); ok {
		t.Fatalf("a confirmed click must issue at most one delete")
	}

	e.Finish()
	if e.Busy() || !e.DeleteArmed() {
		t.Fatalf("failed delete should leave the confirmation armed for retry")
	}
}

func TestEditor_DeleteUsesAuthoritativeID(t *testing.T) {
	e := NewEditor(sampleAuthority())
	e.Set(FieldName, "x")
	e.ArmDelete()
	if id, _ := e.ConfirmDelete(); id != "a1" {
		t.Fatalf("expected authoritative id, got %q", id)
	}
}

func TestEditor_TokenGating(t *testing.T) {
	auth := sampleAuthority()
	e := NewEditor(auth)

	if _, ok := e.BeginCreateToken(); ok {
		t.Fatalf("token create allowed without host certificates")
	}

	auth.HostCertificates = true
	e.SetAuthority(auth)
	e.Set(FieldName, "unsaved")
	if _, ok := e.BeginCreateToken(); ok {
		t.Fatalf("token create allowed with unsaved edits")
	}
	if e.ArmToken("tok1") {
		t.Fatalf("token delete allowed with unsaved edits")
	}

	e.Cancel()
	id, ok := e.BeginCreateToken()
	if !ok || id != "a1" {
		t.Fatalf("token create refused on clean record")
	}
	e.Finish()

	if e.ArmToken("unknown") {
		t.Fatalf("armed a token the authority does not have")
	}
	if _, _, ok := e.ConfirmToken(); ok {
		t.Fatalf("unarmed token confirm must not fire")
	}
	if !e.ArmToken("tok2") {
		t.Fatalf("arm refused")
	}
	aid, tok, ok := e.ConfirmToken()
	if !ok || aid != "a1" || tok != "tok2" {
		t.Fatalf("confirm: %q %q %v", aid, tok, ok)
	}
	if _, _, ok := e.ConfirmToken(); ok {
		t.Fatalf("token delete issued twice")
	}
	e.Finish()

	auth.HostTokens = []string{"tok1"}
	e.SetAuthority(auth)
	if e.ArmedToken() != "" {
		t.Fatalf("armed token should be dropped once it disappears")
	}
	if !slices.Equal(e.Tokens(), []string{"tok1"}) {
		t.Fatalf("tokens come from the authoritative record, got %v", e.Tokens())
	}
}

func TestEditor_TokensIgnoreDraft(t *testing.T) {
	auth := sampleAuthority()
	e := NewEditor(auth)
	e.Set(FieldName, "x")
	auth.HostTokens = append(auth.HostTokens, "tok3")
	e.SetAuthority(auth)
	if got := e.Tokens(); len(got) != 3 {
		t.Fatalf("expected refreshed tokens while dirty, got %v", got)
	}
}
