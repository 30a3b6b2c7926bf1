// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model holds the records shared by the store, the API and the UI.
package model

import (
	"slices"
	"time"
)

// AuthorityInfo carries server-derived details about an authority.
type AuthorityInfo struct {
	KeyAlg string `json:"key_alg"`
}

// Authority is a certificate-issuing entity. Its signing key never leaves the
// store; the console only ever sees the public half.
type Authority struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	PublicKey          string        `json:"public_key"`
	HostCertificates   bool          `json:"host_certificates"`
	StrictHostChecking bool          `json:"strict_host_checking"`
	HostDomain         string        `json:"host_domain"`
	HostProxy          string        `json:"host_proxy"`
	Expire             Minutes       `json:"expire"`
	HostExpire         Minutes       `json:"host_expire"`
	MatchRoles         bool          `json:"match_roles"`
	Roles              []string      `json:"roles"`
	HostTokens         []string      `json:"host_tokens"`
	Info               AuthorityInfo `json:"info"`
}

// Clone returns a copy that shares no slices with a.
func (a Authority) Clone() Authority {
	c := a
	c.Roles = slices.Clone(a.Roles)
	c.HostTokens = slices.Clone(a.HostTokens)
	return c
}

// Equal reports whether a and b carry the same field values.
func (a Authority) Equal(b Authority) bool {
	return a.ID == b.ID &&
		a.Name == b.Name &&
		a.PublicKey == b.PublicKey &&
		a.HostCertificates == b.HostCertificates &&
		a.StrictHostChecking == b.StrictHostChecking &&
		a.HostDomain == b.HostDomain &&
		a.HostProxy == b.HostProxy &&
		a.Expire == b.Expire &&
		a.HostExpire == b.HostExpire &&
		a.MatchRoles == b.MatchRoles &&
		slices.Equal(a.Roles, b.Roles) &&
		slices.Equal(a.HostTokens, b.HostTokens) &&
		a.Info == b.Info
}

// HasToken reports whether token is one of the authority's host tokens.
func (a Authority) HasToken(token string) bool {
	return slices.Contains(a.HostTokens, token)
}

// NodeType classifies what a node serves.
type NodeType string

const (
	NodeManagement NodeType = "management"
	NodeUser       NodeType = "user"
	NodeProxy      NodeType = "proxy"
)

// Node is a server an authority can be deployed to.
type Node struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        NodeType `json:"type"`
	Authorities []string `json:"authorities"`
}

// Clone returns a copy that shares no slices with n.
func (n Node) Clone() Node {
	c := n
	c.Authorities = slices.Clone(n.Authorities)
	return c
}

// Equal reports whether n and o carry the same field values.
func (n Node) Equal(o Node) bool {
	return n.ID == o.ID && n.Name == o.Name && n.Type == o.Type &&
		slices.Equal(n.Authorities, o.Authorities)
}

// Deployed reports whether the authority with id is deployed to n.
func (n Node) Deployed(authorityID string) bool {
	return slices.Contains(n.Authorities, authorityID)
}

// AuditEntry is one row of the audit log.
type AuditEntry struct {
	ID        int       `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
}

// BackupVersion is bumped whenever the Backup layout changes.
const BackupVersion = 1

// Backup is a full export of the console's records.
type Backup struct {
	Version     int         `json:"version"`
	CreatedAt   time.Time   `json:"created_at"`
	Authorities []Authority `json:"authorities"`
	// PrivateKeys maps authority ID to its PEM signing key.
	PrivateKeys map[string]string `json:"private_keys"`
	Nodes       []Node            `json:"nodes"`
}
