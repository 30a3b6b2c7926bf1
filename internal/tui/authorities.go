// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/toeirei/keymaster-ca/internal/actions"
	"github.com/toeirei/keymaster-ca/internal/i18n"
	"github.com/toeirei/keymaster-ca/internal/model"
	"github.com/toeirei/keymaster-ca/internal/store"
	"github.com/toeirei/keymaster-ca/internal/tui/authority"
)

const syncTimeout = 30 * time.Second

// snapshotChangedMsg signals that the authority or node snapshot was published.
type snapshotChangedMsg struct{}

// syncedMsg reports the outcome of the initial or a manual refresh.
type syncedMsg struct{ err error }

// createdMsg reports the outcome of creating an authority.
type createdMsg struct {
	id  string
	err error
}

type listKeyMap struct {
	Next    key.Binding
	Prev    key.Binding
	New     key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

func newListKeyMap() listKeyMap {
	return listKeyMap{
		Next: key.NewBinding(
			key.WithKeys("pgdown", "]"),
			key.WithHelp("]/pgdn", i18n.T("authorities.help.next")),
		),
		Prev: key.NewBinding(
			key.WithKeys("pgup", "["),
			key.WithHelp("[/pgup", i18n.T("authorities.help.prev")),
		),
		New: key.NewBinding(
			key.WithKeys("n", "ctrl+n"),
			key.WithHelp("n/ctrl+n", i18n.T("authorities.help.new")),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r", "ctrl+r"),
			key.WithHelp("r/ctrl+r", i18n.T("authorities.help.refresh")),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", i18n.T("authorities.help.quit")),
		),
	}
}

func (k listKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Prev, k.New, k.Refresh, k.Quit}
}

func (k listKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// authoritiesModel is the list of authority cards. It follows the
// dispatcher's snapshots and keeps one card per authority ID, so a card's
// draft survives refreshes of its row.
type authoritiesModel struct {
	disp *actions.Dispatcher
	opts Options

	cards []*authority.Model
	byID  map[string]*authority.Model
	// seen is the last authoritative record handed to each card.
	seen  map[string]model.Authority
	nodes []model.Node

	cursor       int
	creating     bool
	pendingFocus string
	err          error

	changed    chan struct{}
	done       chan struct{}
	subscribed bool
	authSub    store.ListenerID
	nodeSub    store.ListenerID

	keys  listKeyMap
	help  help.Model
	width int
}

func newAuthoritiesModel(disp *actions.Dispatcher, opts Options) *authoritiesModel {
	return &authoritiesModel{
		disp:    disp,
		opts:    opts,
		byID:    make(map[string]*authority.Model),
		seen:    make(map[string]model.Authority),
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
		keys:    newListKeyMap(),
		help:    help.New(),
	}
}

// notify is the snapshot listener. Bursts of publishes collapse into one
// pending signal.
func (m *authoritiesModel) notify() {
	select {
	case m.changed <- struct{}{}:
	default:
	}
}

func (m *authoritiesModel) waitForChange() tea.Cmd {
	changed, done := m.changed, m.done
	return func() tea.Msg {
		select {
		case <-changed:
			return snapshotChangedMsg{}
		case <-done:
			return nil
		}
	}
}

func (m *authoritiesModel) syncCmd() tea.Cmd {
	disp := m.disp
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		return syncedMsg{err: disp.SyncAll(ctx)}
	}
}

func (m *authoritiesModel) createCmd() tea.Cmd {
	disp := m.disp
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		a, err := disp.Create(ctx, nil)
		return createdMsg{id: a.ID, err: err}
	}
}

// Init subscribes to both snapshots and loads them.
func (m *authoritiesModel) Init() tea.Cmd {
	if !m.subscribed {
		m.authSub = m.disp.Authorities.Subscribe(m.notify)
		m.nodeSub = m.disp.Nodes.Subscribe(m.notify)
		m.subscribed = true
	}
	m.reconcile()
	return tea.Batch(m.waitForChange(), m.syncCmd())
}

// Close unsubscribes from the snapshots. Pending waits are released.
func (m *authoritiesModel) Close() {
	if !m.subscribed {
		return
	}
	m.disp.Authorities.Unsubscribe(m.authSub)
	m.disp.Nodes.Unsubscribe(m.nodeSub)
	m.subscribed = false
	close(m.done)
}

func (m *authoritiesModel) focusedID() string {
	if m.cursor < 0 || m.cursor >= len(m.cards) {
		return ""
	}
	return m.cards[m.cursor].ID()
}

// reconcile re-reads both snapshots and brings the card list in line:
// new authorities get a card, vanished ones lose theirs, and only cards
// whose record or node list changed are updated.
func (m *authoritiesModel) reconcile() {
	focused := m.focusedID()
	authorities := m.disp.Authorities.Get()
	nodes := m.disp.Nodes.Get()
	nodesChanged := !slices.EqualFunc(nodes, m.nodes, model.Node.Equal)
	m.nodes = nodes

	cards := make([]*authority.Model, 0, len(authorities))
	byID := make(map[string]*authority.Model, len(authorities))
	seen := make(map[string]model.Authority, len(authorities))
	for _, a := range authorities {
		c, ok := m.byID[a.ID]
		switch {
		case !ok:
			c = authority.New(a, nodes, m.disp, m.opts.PublicURL)
			if m.opts.MessageTTL > 0 {
				c.SetTTL(m.opts.MessageTTL)
			}
		default:
			if prev := m.seen[a.ID]; !prev.Equal(a) {
				c.SetAuthority(a)
			}
			if nodesChanged {
				c.SetNodes(nodes)
			}
		}
		cards = append(cards, c)
		byID[a.ID] = c
		seen[a.ID] = a.Clone()
	}
	m.cards, m.byID, m.seen = cards, byID, seen

	if m.pendingFocus != "" {
		if _, ok := byID[m.pendingFocus]; ok {
			focused = m.pendingFocus
			m.pendingFocus = ""
		}
	}
	m.cursor = m.indexOf(focused, m.cursor)
	m.applyFocus()
}

func (m *authoritiesModel) indexOf(id string, fallback int) int {
	for i, c := range m.cards {
		if c.ID() == id {
			return i
		}
	}
	if fallback >= len(m.cards) {
		fallback = len(m.cards) - 1
	}
	if fallback < 0 {
		fallback = 0
	}
	return fallback
}

func (m *authoritiesModel) applyFocus() {
	for i, c := range m.cards {
		if i == m.cursor {
			if !c.Focused() {
				c.Focus()
			}
		} else if c.Focused() {
			c.Blur()
		}
	}
}

// Update routes messages: snapshot changes reconcile the list, card
// completions go to the card with that ID, keys go to the focused card
// unless the list handles them.
func (m *authoritiesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case snapshotChangedMsg:
		m.reconcile()
		return m, m.waitForChange()

	case syncedMsg:
		m.err = msg.err
		return m, nil

	case createdMsg:
		m.creating = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		if _, ok := m.byID[msg.id]; ok {
			m.cursor = m.indexOf(msg.id, m.cursor)
			m.applyFocus()
		} else {
			m.pendingFocus = msg.id
		}
		return m, nil

	case authority.Routed:
		if c, ok := m.byID[msg.AuthorityID()]; ok {
			return m, c.Update(msg)
		}
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *authoritiesModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyCtrlC {
		return tea.Quit
	}
	var focused *authority.Model
	if m.cursor < len(m.cards) {
		focused = m.cards[m.cursor]
	}
	// Typed characters belong to the focused input.
	if focused != nil && focused.Editing() && msg.Type == tea.KeyRunes {
		return focused.Update(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.New):
		if m.creating {
			return nil
		}
		m.creating = true
		return m.createCmd()
	case key.Matches(msg, m.keys.Refresh):
		return m.syncCmd()
	case key.Matches(msg, m.keys.Next):
		if len(m.cards) > 0 {
			m.cursor = (m.cursor + 1) % len(m.cards)
			m.applyFocus()
		}
		return nil
	case key.Matches(msg, m.keys.Prev):
		if len(m.cards) > 0 {
			m.cursor = (m.cursor - 1 + len(m.cards)) % len(m.cards)
			m.applyFocus()
		}
		return nil
	}

	if focused != nil {
		return focused.Update(msg)
	}
	return nil
}

// View renders the focused card in full and every other card as a summary.
func (m *authoritiesModel) View() string {
	var b strings.Builder
	b.WriteString(mainTitleStyle.Render("🔑 " + i18n.T("authorities.title")))
	b.WriteString("\n")

	if m.creating {
		b.WriteString(specialStyle.Render(i18n.T("authorities.creating")) + "\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(i18n.T("authorities.error", m.err.Error())) + "\n")
	}

	if len(m.cards) == 0 {
		b.WriteString(emptyStyle.Render(lipgloss.JoinVertical(lipgloss.Center,
			i18n.T("authorities.empty.title"),
			helpStyle.Render(i18n.T("authorities.empty.hint")),
		)))
		b.WriteString("\n")
	}

	for i, c := range m.cards {
		if i == m.cursor {
			b.WriteString(c.View())
		} else {
			b.WriteString(c.Summary())
		}
		b.WriteString("\n")
	}

	count := statusMessageStyle.Render(fmt.Sprintf("%d/%d", min(m.cursor+1, len(m.cards)), len(m.cards)))
	left := m.help.View(m.keys)
	if m.cursor < len(m.cards) {
		left += "  " + m.cards[m.cursor].HelpView()
	}
	width := m.width
	if width == 0 {
		width = 80
	}
	b.WriteString(footerStyle.Render(AlignFooter(left, count, width-4)))
	return docStyle.Render(b.String())
}
