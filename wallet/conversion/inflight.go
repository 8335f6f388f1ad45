// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package conversion

import (
	"fmt"
	"sync"
)

// inflightGuard hands out at most one token per user. The mutex only guards
// the map and is never held across a network call.
type inflightGuard struct {
	mu    sync.Mutex
	users map[string]struct{}
}

// newInflightGuard creates an empty guard.
func newInflightGuard() *inflightGuard {
	return &inflightGuard{users: make(map[string]struct{})}
}

// acquire takes the user's token. The returned func releases it and must be
// called exactly once.
func (g *inflightGuard) acquire(user string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.users[user]; ok {
		return nil, fmt.Errorf("%w: user %s", ErrConversionInFlight,
			user)
	}
	g.users[user] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.users, user)
			g.mu.Unlock()
		})
	}

	return release, nil
}

// busy reports whether the user holds a token.
func (g *inflightGuard) busy(user string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.users[user]

	return ok
}
