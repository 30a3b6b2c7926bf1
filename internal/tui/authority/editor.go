// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

// Package authority implements the detail/edit card of one authority: a
// local draft layered over the authoritative record, committed or discarded
// through the action dispatcher.
package authority

import (
	"slices"

	"github.com/toeirei/keymaster-ca/internal/i18n"
	"github.com/toeirei/keymaster-ca/internal/model"
)

// Field names a free-text field of the card.
type Field int

const (
	FieldName Field = iota
	FieldHostDomain
	FieldHostProxy
	FieldExpire
	FieldHostExpire
)

// Flag names a boolean switch of the card.
type Flag int

const (
	FlagHostCertificates Flag = iota
	FlagStrictHostChecking
	FlagMatchRoles
)

// Editor is the draft state machine of one card. It performs no I/O: the
// Begin* methods hand out the payload of a network operation and mark the
// editor busy, the caller reports the outcome back.
//
// Every mutation copies from the draft if one exists, else from the
// authoritative record, so edits accumulate.
type Editor struct {
	authority model.Authority
	draft     *model.Authority
	changed   bool
	busy      bool
	message   string

	pendingRole string

	// gen counts mutations. A save remembers the value it was issued at so a
	// completion can tell whether newer edits arrived meanwhile.
	gen uint64
	// msgToken identifies the current message timer; older timers are stale.
	msgToken uint64

	deleteArmed bool
	armedToken  string
}

// NewEditor returns a clean editor over a.
func NewEditor(a model.Authority) *Editor {
	return &Editor{authority: a.Clone()}
}

// SetAuthority replaces the authoritative record after a refresh. The draft
// is left alone.
func (e *Editor) SetAuthority(a model.Authority) {
	e.authority = a.Clone()
	if e.armedToken != "" && !e.authority.HasToken(e.armedToken) {
		e.armedToken = ""
	}
}

// Authority returns the authoritative record.
func (e *Editor) Authority() model.Authority { return e.authority.Clone() }

// ID is the identifier of the authoritative record.
func (e *Editor) ID() string { return e.authority.ID }

// Current returns what the card renders: the draft if present, else the
// authoritative record.
func (e *Editor) Current() model.Authority {
	if e.draft != nil {
		return e.draft.Clone()
	}
	return e.authority.Clone()
}

// Draft returns the draft and whether one exists.
func (e *Editor) Draft() (model.Authority, bool) {
	if e.draft == nil {
		return model.Authority{}, false
	}
	return e.draft.Clone(), true
}

// HasDraft reports whether a draft exists. It stays true for the message
// window after a successful save.
func (e *Editor) HasDraft() bool { return e.draft != nil }

// Dirty reports unsaved edits.
func (e *Editor) Dirty() bool { return e.changed }

// Busy reports an in-flight network operation.
func (e *Editor) Busy() bool { return e.busy }

// Message is the status banner text.
func (e *Editor) Message() string { return e.message }

// PendingRole is the text typed into the add-role input.
func (e *Editor) PendingRole() string { return e.pendingRole }

// DeleteArmed reports whether the next ConfirmDelete issues the delete.
func (e *Editor) DeleteArmed() bool { return e.deleteArmed }

// ArmedToken is the token awaiting delete confirmation, if any.
func (e *Editor) ArmedToken() string { return e.armedToken }

// Tokens lists host tokens. They come from the authoritative record since
// token changes are never staged in the draft.
func (e *Editor) Tokens() []string { return slices.Clone(e.authority.HostTokens) }

func (e *Editor) base() model.Authority {
	if e.draft != nil {
		return e.draft.Clone()
	}
	return e.authority.Clone()
}

func (e *Editor) store(a model.Authority) {
	e.draft = &a
	e.changed = true
	e.gen++
}

// Set writes a text field. Expiry fields are parsed here; text that is not
// a number is kept as model.NaN.
func (e *Editor) Set(f Field, text string) {
	a := e.base()
	switch f {
	case FieldName:
		a.Name = text
	case FieldHostDomain:
		a.HostDomain = text
	case FieldHostProxy:
		a.HostProxy = text
	case FieldExpire:
		a.Expire = model.ParseMinutes(text)
	case FieldHostExpire:
		a.HostExpire = model.ParseMinutes(text)
	default:
		return
	}
	e.store(a)
}

// Toggle flips a switch.
func (e *Editor) Toggle(f Flag) {
	a := e.base()
	switch f {
	case FlagHostCertificates:
		a.HostCertificates = !a.HostCertificates
	case FlagStrictHostChecking:
		a.StrictHostChecking = !a.StrictHostChecking
	case FlagMatchRoles:
		a.MatchRoles = !a.MatchRoles
	default:
		return
	}
	e.store(a)
}

// SetPendingRole updates the add-role buffer. It is not part of the draft.
func (e *Editor) SetPendingRole(role string) { e.pendingRole = role }

// AddRole moves the pending role into the role set. An empty buffer is a
// no-op. A duplicate leaves the roles unchanged but still counts as an edit.
func (e *Editor) AddRole() bool {
	if e.pendingRole == "" {
		return false
	}
	a := e.base()
	roles := slices.Clone(a.Roles)
	if !slices.Contains(roles, e.pendingRole) {
		roles = append(roles, e.pendingRole)
	}
	slices.Sort(roles)
	a.Roles = roles

	e.pendingRole = ""
	e.message = ""
	e.store(a)
	return true
}

// RemoveRole drops role from the role set. Removing an absent role changes
// nothing at all.
func (e *Editor) RemoveRole(role string) bool {
	a := e.base()
	i := slices.Index(a.Roles, role)
	if i < 0 {
		return false
	}
	a.Roles = slices.Delete(slices.Clone(a.Roles), i, i+1)

	e.pendingRole = ""
	e.message = ""
	e.store(a)
	return true
}

// Cancel discards the draft entirely and invalidates any pending message
// timer. It is refused while busy.
func (e *Editor) Cancel() bool {
	if e.busy {
		return false
	}
	e.draft = nil
	e.changed = false
	e.message = ""
	e.gen++
	e.msgToken++
	return true
}

// BeginSave marks the editor busy and returns the draft to commit together
// with the generation it was taken at.
func (e *Editor) BeginSave() (model.Authority, uint64, bool) {
	if e.busy || e.draft == nil || !e.changed {
		return model.Authority{}, 0, false
	}
	e.busy = true
	return e.draft.Clone(), e.gen, true
}

// SaveSucceeded shows the saved message and returns the token of the timer
// that should later call ClearExpired. Edits made after the save was issued
// keep the editor dirty.
func (e *Editor) SaveSucceeded(gen uint64) uint64 {
	e.busy = false
	e.message = i18n.T("authority.saved")
	if gen == e.gen {
		e.changed = false
	}
	e.msgToken++
	return e.msgToken
}

// SaveFailed clears busy and the message. The draft stays for a retry.
func (e *Editor) SaveFailed() {
	e.busy = false
	e.message = ""
}

// ClearExpired handles the message timer. The message is cleared, and the
// draft too unless it holds edits made after the save. Stale tokens are
// ignored.
func (e *Editor) ClearExpired(token uint64) bool {
	if token != e.msgToken {
		return false
	}
	e.message = ""
	if !e.changed {
		e.draft = nil
	}
	return true
}

// ArmDelete is the first phase of deleting the authority.
func (e *Editor) ArmDelete() bool {
	if e.busy || e.authority.ID == "" {
		return false
	}
	e.deleteArmed = true
	return true
}

// DisarmDelete withdraws an armed delete.
func (e *Editor) DisarmDelete() { e.deleteArmed = false }

// ConfirmDelete is the second phase: it returns the authoritative ID to
// delete and marks the editor busy. It never fires unarmed or while busy.
func (e *Editor) ConfirmDelete() (string, bool) {
	if !e.deleteArmed || e.busy || e.authority.ID == "" {
		return "", false
	}
	e.busy = true
	return e.authority.ID, true
}

// TokensEditable reports whether host tokens may be created or deleted:
// host certificates are enabled on the rendered record and there are no
// unsaved edits.
func (e *Editor) TokensEditable() bool {
	return !e.busy && !e.changed && e.authority.ID != "" && e.Current().HostCertificates
}

// BeginCreateToken returns the authority ID to create a token for.
func (e *Editor) BeginCreateToken() (string, bool) {
	if !e.TokensEditable() {
		return "", false
	}
	e.busy = true
	return e.authority.ID, true
}

// ArmToken is the first phase of deleting a host token.
func (e *Editor) ArmToken(token string) bool {
	if !e.TokensEditable() || !e.authority.HasToken(token) {
		return false
	}
	e.armedToken = token
	return true
}

// DisarmToken withdraws an armed token delete.
func (e *Editor) DisarmToken() { e.armedToken = "" }

// ConfirmToken returns the authority ID and armed token to delete and marks
// the editor busy.
func (e *Editor) ConfirmToken() (string, string, bool) {
	if e.armedToken == "" || !e.TokensEditable() {
		return "", "", false
	}
	e.busy = true
	return e.authority.ID, e.armedToken, true
}

// BeginDeploy marks the editor busy for a deployment change.
func (e *Editor) BeginDeploy() (string, bool) {
	if e.busy || e.authority.ID == "" {
		return "", false
	}
	e.busy = true
	return e.authority.ID, true
}

// Finish clears busy after a delete, token or deploy operation, whatever
// its outcome.
func (e *Editor) Finish() { e.busy = false }
