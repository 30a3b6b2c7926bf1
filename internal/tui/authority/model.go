// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package authority

import (
	"context"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/toeirei/keymaster-ca/internal/i18n"
	"github.com/toeirei/keymaster-ca/internal/model"
)

// DefaultMessageTTL is how long the saved banner stays up.
const DefaultMessageTTL = 3 * time.Second

const opTimeout = 30 * time.Second

// writeClipboard is swapped out in tests.
var writeClipboard = clipboard.WriteAll

// Actions is the part of the action dispatcher a card drives.
type Actions interface {
	Commit(ctx context.Context, a model.Authority) (model.Authority, error)
	Remove(ctx context.Context, id string) error
	CreateToken(ctx context.Context, authorityID string) (string, error)
	DeleteToken(ctx context.Context, authorityID, token string) error
	Deploy(ctx context.Context, nodeID, authorityID string, on bool) error
}

// Routed is implemented by every message that belongs to one card, so the
// list can deliver it to the card with that authority ID. Messages for a
// card that no longer exists are dropped.
type Routed interface {
	AuthorityID() string
}

// Op names a network operation other than save.
type Op int

const (
	OpDelete Op = iota
	OpCreateToken
	OpDeleteToken
	OpDeploy
)

// SavedMsg reports the outcome of a commit.
type SavedMsg struct {
	ID  string
	Gen uint64
	Err error
}

// ExpiredMsg fires when the saved banner's time is up.
type ExpiredMsg struct {
	ID    string
	Token uint64
}

// DoneMsg reports the outcome of a delete, token or deploy operation.
type DoneMsg struct {
	ID  string
	Op  Op
	Err error
}

// CopiedMsg reports a clipboard write.
type CopiedMsg struct {
	ID  string
	Err error
}

func (m SavedMsg) AuthorityID() string   { return m.ID }
func (m ExpiredMsg) AuthorityID() string { return m.ID }
func (m DoneMsg) AuthorityID() string    { return m.ID }
func (m CopiedMsg) AuthorityID() string  { return m.ID }

type itemKind int

const (
	itemField itemKind = iota
	itemFlag
	itemRole
	itemRoleInput
	itemToken
	itemAddToken
	itemNode
	itemURL
	itemPublicKey
)

// item is one focusable line of the card.
type item struct {
	kind  itemKind
	field Field
	flag  Flag
	value string
}

// Model is the Bubble Tea card for one authority.
type Model struct {
	editor    *Editor
	actions   Actions
	nodes     []model.Node
	publicURL string
	ttl       time.Duration

	inputs    [FieldHostExpire + 1]textinput.Model
	roleInput textinput.Model

	focused bool
	cursor  int
	note    string

	keys keyMap
	help help.Model
}

// New returns a card for a. publicURL is the base of the public key
// download URL.
func New(a model.Authority, nodes []model.Node, actions Actions, publicURL string) *Model {
	m := &Model{
		editor:    NewEditor(a),
		actions:   actions,
		nodes:     nodes,
		publicURL: strings.TrimRight(publicURL, "/"),
		ttl:       DefaultMessageTTL,
		keys:      newKeyMap(),
		help:      help.New(),
	}
	placeholders := map[Field]string{
		FieldName:       i18n.T("authority.placeholder.name"),
		FieldHostDomain: i18n.T("authority.placeholder.host_domain"),
		FieldHostProxy:  i18n.T("authority.placeholder.host_proxy"),
		FieldExpire:     i18n.T("authority.placeholder.expire"),
		FieldHostExpire: i18n.T("authority.placeholder.host_expire"),
	}
	for f := range m.inputs {
		t := textinput.New()
		t.Prompt = ""
		t.CharLimit = 256
		t.Placeholder = placeholders[Field(f)]
		m.inputs[f] = t
	}
	m.roleInput = textinput.New()
	m.roleInput.Prompt = ""
	m.roleInput.CharLimit = 64
	m.roleInput.Placeholder = i18n.T("authority.placeholder.role")
	m.syncInputs()
	return m
}

// SetTTL overrides the saved banner lifetime.
func (m *Model) SetTTL(d time.Duration) { m.ttl = d }

// Editor exposes the card's state machine.
func (m *Model) Editor() *Editor { return m.editor }

// ID is the authority ID this card is keyed by.
func (m *Model) ID() string { return m.editor.ID() }

// SetAuthority passes a refreshed authoritative record to the card.
func (m *Model) SetAuthority(a model.Authority) {
	m.editor.SetAuthority(a)
	m.syncInputs()
	m.clampCursor()
}

// SetNodes passes the refreshed node snapshot to the card.
func (m *Model) SetNodes(nodes []model.Node) {
	m.nodes = nodes
	m.clampCursor()
}

// Focus gives the card keyboard input.
func (m *Model) Focus() {
	m.focused = true
	m.syncFocus()
}

// Blur takes keyboard input away.
func (m *Model) Blur() {
	m.focused = false
	m.syncFocus()
}

// Focused reports whether the card receives key input.
func (m *Model) Focused() bool { return m.focused }

// Editing reports whether a text input has the cursor, in which case the
// list should not interpret letter keys.
func (m *Model) Editing() bool {
	if !m.focused {
		return false
	}
	it, ok := m.current()
	return ok && (it.kind == itemField || it.kind == itemRoleInput)
}

func (m *Model) items() []item {
	cur := m.editor.Current()
	out := []item{
		{kind: itemField, field: FieldName},
		{kind: itemFlag, flag: FlagHostCertificates},
	}
	if cur.HostCertificates {
		out = append(out, item{kind: itemFlag, flag: FlagStrictHostChecking})
	}
	out = append(out,
		item{kind: itemField, field: FieldHostDomain},
		item{kind: itemField, field: FieldHostProxy},
		item{kind: itemField, field: FieldExpire},
	)
	if cur.HostCertificates {
		out = append(out, item{kind: itemField, field: FieldHostExpire})
	}
	out = append(out, item{kind: itemFlag, flag: FlagMatchRoles})
	if cur.MatchRoles {
		for _, r := range cur.Roles {
			out = append(out, item{kind: itemRole, value: r})
		}
		out = append(out, item{kind: itemRoleInput})
	}
	if cur.HostCertificates {
		for _, t := range m.editor.Tokens() {
			out = append(out, item{kind: itemToken, value: t})
		}
		out = append(out, item{kind: itemAddToken})
	}
	for _, n := range m.nodes {
		out = append(out, item{kind: itemNode, value: n.ID})
	}
	out = append(out, item{kind: itemURL}, item{kind: itemPublicKey})
	return out
}

func (m *Model) current() (item, bool) {
	items := m.items()
	if m.cursor < 0 || m.cursor >= len(items) {
		return item{}, false
	}
	return items[m.cursor], true
}

func (m *Model) clampCursor() {
	if n := len(m.items()); m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.syncFocus()
}

func (m *Model) move(delta int) {
	n := len(m.items())
	m.cursor = (m.cursor + delta + n) % n
	m.syncFocus()
}

func (m *Model) syncFocus() {
	it, ok := m.current()
	for f := range m.inputs {
		if m.focused && ok && it.kind == itemField && it.field == Field(f) {
			m.inputs[f].Focus()
		} else {
			m.inputs[f].Blur()
		}
	}
	if m.focused && ok && it.kind == itemRoleInput {
		m.roleInput.Focus()
	} else {
		m.roleInput.Blur()
	}
}

func minutesText(v model.Minutes) string {
	if !v.Valid() {
		return ""
	}
	return v.String()
}

func fieldText(a model.Authority, f Field) string {
	switch f {
	case FieldName:
		return a.Name
	case FieldHostDomain:
		return a.HostDomain
	case FieldHostProxy:
		return a.HostProxy
	case FieldExpire:
		return minutesText(a.Expire)
	case FieldHostExpire:
		return minutesText(a.HostExpire)
	}
	return ""
}

// syncInputs makes the inputs show the rendered record. A focused numeric
// input keeps the operator's text as long as it parses to the stored value.
func (m *Model) syncInputs() {
	cur := m.editor.Current()
	for i := range m.inputs {
		f := Field(i)
		in := &m.inputs[i]
		if in.Focused() && (f == FieldExpire || f == FieldHostExpire) {
			stored := cur.Expire
			if f == FieldHostExpire {
				stored = cur.HostExpire
			}
			if model.ParseMinutes(in.Value()) == stored {
				continue
			}
		}
		if want := fieldText(cur, f); in.Value() != want {
			in.SetValue(want)
		}
	}
	if m.roleInput.Value() != m.editor.PendingRole() {
		m.roleInput.SetValue(m.editor.PendingRole())
	}
}

// DownloadURL is where the authority's public key can be fetched.
func (m *Model) DownloadURL() string {
	return m.publicURL + "/ssh_public_key/" + m.editor.ID()
}

func (m *Model) saveCmd(a model.Authority, gen uint64) tea.Cmd {
	id, actions := m.editor.ID(), m.actions
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		_, err := actions.Commit(ctx, a)
		return SavedMsg{ID: id, Gen: gen, Err: err}
	}
}

func (m *Model) opCmd(op Op, run func(ctx context.Context, a Actions) error) tea.Cmd {
	id, actions := m.editor.ID(), m.actions
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return DoneMsg{ID: id, Op: op, Err: run(ctx, actions)}
	}
}

func (m *Model) copyCmd(text string) tea.Cmd {
	id := m.editor.ID()
	return func() tea.Msg {
		return CopiedMsg{ID: id, Err: writeClipboard(text)}
	}
}

func (m *Model) expireCmd(token uint64) tea.Cmd {
	id := m.editor.ID()
	return tea.Tick(m.ttl, func(time.Time) tea.Msg {
		return ExpiredMsg{ID: id, Token: token}
	})
}

// Update handles a message addressed to this card. Completions are handled
// whether or not the card is focused; keys only when focused.
func (m *Model) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case SavedMsg:
		if msg.Err != nil {
			m.editor.SaveFailed()
			return nil
		}
		token := m.editor.SaveSucceeded(msg.Gen)
		return m.expireCmd(token)

	case ExpiredMsg:
		if m.editor.ClearExpired(msg.Token) {
			m.syncInputs()
			m.clampCursor()
		}
		return nil

	case DoneMsg:
		m.editor.Finish()
		return nil

	case CopiedMsg:
		if msg.Err != nil {
			m.note = errorStyle.Render(i18n.T("authority.copy_failed"))
		} else {
			m.note = successStyle.Render(i18n.T("authority.copied"))
		}
		return nil

	case tea.KeyMsg:
		if !m.focused {
			return nil
		}
		return m.handleKey(msg)
	}
	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	m.note = ""
	switch {
	case key.Matches(msg, m.keys.Save):
		a, gen, ok := m.editor.BeginSave()
		if !ok {
			return nil
		}
		return m.saveCmd(a, gen)

	case key.Matches(msg, m.keys.Cancel):
		switch {
		case m.editor.DeleteArmed():
			m.editor.DisarmDelete()
		case m.editor.ArmedToken() != "":
			m.editor.DisarmToken()
		default:
			m.editor.Cancel()
			m.syncInputs()
			m.clampCursor()
		}
		return nil

	case key.Matches(msg, m.keys.Delete):
		if !m.editor.DeleteArmed() {
			m.editor.ArmDelete()
			return nil
		}
		id, ok := m.editor.ConfirmDelete()
		if !ok {
			return nil
		}
		return m.opCmd(OpDelete, func(ctx context.Context, a Actions) error { return a.Remove(ctx, id) })

	case key.Matches(msg, m.keys.Up):
		m.move(-1)
		return nil

	case key.Matches(msg, m.keys.Down):
		m.move(1)
		return nil
	}

	it, ok := m.current()
	if !ok {
		return nil
	}
	switch it.kind {
	case itemField:
		return m.updateField(it.field, msg)
	case itemRoleInput:
		return m.updateRoleInput(msg)
	case itemFlag:
		if key.Matches(msg, m.keys.Select) {
			m.editor.Toggle(it.flag)
			m.clampCursor()
		}
	case itemRole:
		if key.Matches(msg, m.keys.Remove) {
			m.editor.RemoveRole(it.value)
			m.syncInputs()
			m.clampCursor()
		}
	case itemToken:
		switch {
		case key.Matches(msg, m.keys.Copy):
			return m.copyCmd(it.value)
		case key.Matches(msg, m.keys.Remove):
			if m.editor.ArmedToken() != it.value {
				m.editor.ArmToken(it.value)
				return nil
			}
			id, token, ok := m.editor.ConfirmToken()
			if !ok {
				return nil
			}
			return m.opCmd(OpDeleteToken, func(ctx context.Context, a Actions) error { return a.DeleteToken(ctx, id, token) })
		}
	case itemAddToken:
		if key.Matches(msg, m.keys.Select) {
			id, ok := m.editor.BeginCreateToken()
			if !ok {
				return nil
			}
			return m.opCmd(OpCreateToken, func(ctx context.Context, a Actions) error {
				_, err := a.CreateToken(ctx, id)
				return err
			})
		}
	case itemNode:
		if key.Matches(msg, m.keys.Select) {
			on := !m.deployed(it.value)
			id, ok := m.editor.BeginDeploy()
			if !ok {
				return nil
			}
			nodeID := it.value
			return m.opCmd(OpDeploy, func(ctx context.Context, a Actions) error { return a.Deploy(ctx, nodeID, id, on) })
		}
	case itemURL:
		if key.Matches(msg, m.keys.Copy, m.keys.Select) {
			return m.copyCmd(m.DownloadURL())
		}
	case itemPublicKey:
		if key.Matches(msg, m.keys.Copy, m.keys.Select) {
			return m.copyCmd(m.editor.Current().PublicKey)
		}
	}
	return nil
}

func (m *Model) deployed(nodeID string) bool {
	for _, n := range m.nodes {
		if n.ID == nodeID {
			return n.Deployed(m.editor.ID())
		}
	}
	return false
}

func (m *Model) updateField(f Field, msg tea.KeyMsg) tea.Cmd {
	in := &m.inputs[f]
	before := in.Value()
	var cmd tea.Cmd
	*in, cmd = in.Update(msg)
	if in.Value() != before {
		m.editor.Set(f, in.Value())
		m.syncInputs()
	}
	return cmd
}

func (m *Model) updateRoleInput(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyEnter {
		before := len(m.editor.Current().Roles)
		if m.editor.AddRole() {
			m.syncInputs()
			// Keep the cursor on the input, which moved down if a tag was inserted.
			if len(m.editor.Current().Roles) > before {
				m.cursor++
				m.clampCursor()
			}
		}
		return nil
	}
	var cmd tea.Cmd
	m.roleInput, cmd = m.roleInput.Update(msg)
	m.editor.SetPendingRole(m.roleInput.Value())
	return cmd
}

// HelpView renders the key help line.
func (m *Model) HelpView() string {
	return m.help.View(m.keys)
}
