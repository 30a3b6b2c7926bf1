// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package actions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/toeirei/keymaster-ca/internal/model"
)

var errFake = errors.New("remote unavailable")

// fakeRemote is an in-memory Remote. Setting fail makes every call error.
type fakeRemote struct {
	mu          sync.Mutex
	authorities []model.Authority
	nodes       []model.Node
	seq         int
	fail        bool
	failNodes   bool
	listDelay   time.Duration
	listCalls   int
}

func (f *fakeRemote) next(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func (f *fakeRemote) ListAuthorities(ctx context.Context) ([]model.Authority, error) {
	if f.listDelay > 0 {
		select {
		case <-time.After(f.listDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.fail {
		return nil, errFake
	}
	out := make([]model.Authority, 0, len(f.authorities))
	for _, a := range f.authorities {
		out = append(out, a.Clone())
	}
	return out, nil
}

func (f *fakeRemote) CreateAuthority(_ context.Context, initial *model.Authority) (model.Authority, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return model.Authority{}, errFake
	}
	a := model.Authority{Name: "New Authority", Expire: 600, HostExpire: 600}
	if initial != nil {
		a = initial.Clone()
	}
	a.ID = f.next("a")
	f.authorities = append(f.authorities, a)
	return a, nil
}

func (f *fakeRemote) UpdateAuthority(_ context.Context, a model.Authority) (model.Authority, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return model.Authority{}, errFake
	}
	for i := range f.authorities {
		if f.authorities[i].ID == a.ID {
			a.HostTokens = f.authorities[i].HostTokens
			f.authorities[i] = a.Clone()
			return a, nil
		}
	}
	return model.Authority{}, errors.New("not found")
}

func (f *fakeRemote) DeleteAuthority(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errFake
	}
	f.authorities = slices.DeleteFunc(f.authorities, func(a model.Authority) bool { return a.ID == id })
	for i := range f.nodes {
		f.nodes[i].Authorities = slices.DeleteFunc(f.nodes[i].Authorities, func(v string) bool { return v == id })
	}
	return nil
}

func (f *fakeRemote) CreateHostToken(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errFake
	}
	for i := range f.authorities {
		if f.authorities[i].ID == id {
			tok := f.next("tok")
			f.authorities[i].HostTokens = append(f.authorities[i].HostTokens, tok)
			return tok, nil
		}
	}
	return "", errors.New("not found")
}

func (f *fakeRemote) DeleteHostToken(_ context.Context, id, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errFake
	}
	for i := range f.authorities {
		if f.authorities[i].ID == id {
			f.authorities[i].HostTokens = slices.DeleteFunc(f.authorities[i].HostTokens, func(v string) bool { return v == token })
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeRemote) ListNodes(context.Context) ([]model.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.failNodes {
		return nil, errFake
	}
	out := make([]model.Node, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n.Clone())
	}
	return out, nil
}

func (f *fakeRemote) CreateNode(_ context.Context, n model.Node) (model.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return model.Node{}, errFake
	}
	n.ID = f.next("n")
	f.nodes = append(f.nodes, n.Clone())
	return n, nil
}

func (f *fakeRemote) UpdateNode(_ context.Context, n model.Node) (model.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return model.Node{}, errFake
	}
	for i := range f.nodes {
		if f.nodes[i].ID == n.ID {
			f.nodes[i] = n.Clone()
			return n, nil
		}
	}
	return model.Node{}, errors.New("not found")
}

func (f *fakeRemote) DeleteNode(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errFake
	}
	f.nodes = slices.DeleteFunc(f.nodes, func(n model.Node) bool { return n.ID == id })
	return nil
}
