// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package authority

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/toeirei/keymaster-ca/internal/i18n"
	"github.com/toeirei/keymaster-ca/internal/model"
)

var fieldLabels = map[Field]string{
	FieldName:       "authority.field.name",
	FieldHostDomain: "authority.field.host_domain",
	FieldHostProxy:  "authority.field.host_proxy",
	FieldExpire:     "authority.field.expire",
	FieldHostExpire: "authority.field.host_expire",
}

var flagLabels = map[Flag]string{
	FlagHostCertificates:   "authority.field.host_certificates",
	FlagStrictHostChecking: "authority.field.strict_host_checking",
	FlagMatchRoles:         "authority.field.match_roles",
}

func checkbox(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}

func shortKey(k string) string {
	k = strings.TrimSpace(k)
	if len(k) <= 48 {
		return k
	}
	return k[:24] + "…" + k[len(k)-20:]
}

func (m *Model) nodeName(id string) (model.Node, bool) {
	for _, n := range m.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return model.Node{}, false
}

func (m *Model) renderItem(it item, cur model.Authority) string {
	switch it.kind {
	case itemField:
		return labelStyle.Render(i18n.T(fieldLabels[it.field])) + m.inputs[it.field].View()
	case itemFlag:
		var on bool
		switch it.flag {
		case FlagHostCertificates:
			on = cur.HostCertificates
		case FlagStrictHostChecking:
			on = cur.StrictHostChecking
		case FlagMatchRoles:
			on = cur.MatchRoles
		}
		return labelStyle.Render(i18n.T(flagLabels[it.flag])) + checkbox(on)
	case itemRole:
		return labelStyle.Render("") + tagStyle.Render(it.value)
	case itemRoleInput:
		return labelStyle.Render(i18n.T("authority.field.add_role")) + m.roleInput.View()
	case itemToken:
		line := labelStyle.Render(i18n.T("authority.field.token")) + it.value
		if m.editor.ArmedToken() == it.value {
			line += " " + warnStyle.Render(i18n.T("authority.confirm_token"))
		}
		return line
	case itemAddToken:
		label := i18n.T("authority.add_token")
		if !m.editor.TokensEditable() {
			return labelStyle.Render("") + readOnlyStyle.Render(label)
		}
		return labelStyle.Render("") + label
	case itemNode:
		n, _ := m.nodeName(it.value)
		return labelStyle.Render(i18n.T("authority.field.node")) +
			fmt.Sprintf("%s %s (%s)", checkbox(n.Deployed(m.editor.ID())), n.Name, n.Type)
	case itemURL:
		return labelStyle.Render(i18n.T("authority.field.url")) + m.DownloadURL()
	case itemPublicKey:
		return labelStyle.Render(i18n.T("authority.field.public_key")) + readOnlyStyle.Render(shortKey(cur.PublicKey))
	}
	return ""
}

// View renders the card.
func (m *Model) View() string {
	cur := m.editor.Current()
	var b strings.Builder

	title := cur.Name
	if title == "" {
		title = i18n.T("authority.untitled")
	}
	b.WriteString(titleStyle.Render(title))
	if m.editor.Dirty() {
		b.WriteString(warnStyle.Render(" *"))
	}
	b.WriteString("\n")
	b.WriteString(readOnlyStyle.Render(fmt.Sprintf("%s  %s", m.editor.ID(), cur.Info.KeyAlg)))
	b.WriteString("\n\n")

	for i, it := range m.items() {
		marker := "  "
		if m.focused && i == m.cursor {
			marker = cursorStyle.Render("> ")
		}
		line := m.renderItem(it, cur)
		if m.focused && i == m.cursor && it.kind == itemRole {
			line = labelStyle.Render("") + selectedTagStyle.Render(it.value)
		}
		b.WriteString(marker + line + "\n")
	}

	if m.editor.DeleteArmed() {
		b.WriteString("\n" + warnStyle.Render(i18n.T("authority.confirm_delete")) + "\n")
	}

	if m.editor.HasDraft() {
		var bar string
		switch {
		case m.editor.Busy():
			bar = busyStyle.Render(i18n.T("authority.saving"))
		case m.editor.Message() != "":
			bar = successStyle.Render(m.editor.Message())
		default:
			bar = helpStyle.Render(i18n.T("authority.save_hint"))
		}
		b.WriteString(saveBarStyle.Render(bar) + "\n")
	} else if m.editor.Busy() {
		b.WriteString(busyStyle.Render(i18n.T("authority.working")) + "\n")
	}

	if m.note != "" {
		b.WriteString(m.note + "\n")
	}

	style := cardStyle
	if m.focused {
		style = focusedCardStyle
	}
	return style.Render(strings.TrimRight(b.String(), "\n"))
}

// Summary is the one-line rendering used when the card is collapsed.
func (m *Model) Summary() string {
	cur := m.editor.Current()
	name := cur.Name
	if name == "" {
		name = i18n.T("authority.untitled")
	}
	parts := []string{titleStyle.Render(name)}
	if cur.HostCertificates {
		parts = append(parts, tagStyle.Render(i18n.T("authority.tag.hosts")))
	}
	if cur.MatchRoles {
		parts = append(parts, tagStyle.Render(i18n.T("authority.tag.roles", len(cur.Roles))))
	}
	if m.editor.Dirty() {
		parts = append(parts, warnStyle.Render("*"))
	}
	return cardStyle.Render(lipgloss.JoinHorizontal(lipgloss.Center, strings.Join(parts, " ")))
}
