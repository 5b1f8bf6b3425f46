// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package authz

import (
	"errors"
	"sync"

	"github.com/luxfi/attrib/pkg/ids"
)

// ErrNotAuthorized is returned when a caller lacks the required permission
var ErrNotAuthorized = errors.New("caller not authorized")

// Action names an administrative mutation subject to policy
type Action string

const (
	ActionUpdateRoot      Action = "update_root"
	ActionManageSpenders  Action = "manage_spenders"
	ActionAssignPublisher Action = "assign_publisher"
	ActionOverrideScore   Action = "override_score"
	ActionTogglePrivacy   Action = "toggle_privacy"
	ActionResetMetrics    Action = "reset_metrics"
	ActionWithdraw        Action = "withdraw"
)

// Authorizer decides whether an identity may perform an administrative
// action. Implementations range from a single owner key to a quorum
// policy; business logic only sees this interface.
type Authorizer interface {
	Allowed(caller ids.Identity, action Action) bool
}

// SingleOwner authorizes exactly one identity for every action
type SingleOwner struct {
	owner ids.Identity
}

// NewSingleOwner creates a single-owner policy
func NewSingleOwner(owner ids.Identity) *SingleOwner {
	return &SingleOwner{owner: owner}
}

// Allowed reports whether the caller is the owner
func (s *SingleOwner) Allowed(caller ids.Identity, _ Action) bool {
	return caller == s.owner
}

// Owner returns the owning identity
func (s *SingleOwner) Owner() ids.Identity {
	return s.owner
}

// RoleSet authorizes identities per action, owner-managed
type RoleSet struct {
	mu    sync.RWMutex
	owner ids.Identity
	roles map[Action]map[ids.Identity]struct{}
}

// NewRoleSet creates a role-based policy rooted at owner
func NewRoleSet(owner ids.Identity) *RoleSet {
	return &RoleSet{
		owner: owner,
		roles: make(map[Action]map[ids.Identity]struct{}),
	}
}

// Grant allows an identity to perform an action
func (r *RoleSet) Grant(caller, grantee ids.Identity, action Action) error {
	if caller != r.owner {
		return ErrNotAuthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.roles[action] == nil {
		r.roles[action] = make(map[ids.Identity]struct{})
	}
	r.roles[action][grantee] = struct{}{}
	return nil
}

// Revoke removes an identity's permission for an action
func (r *RoleSet) Revoke(caller, grantee ids.Identity, action Action) error {
	if caller != r.owner {
		return ErrNotAuthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.roles[action], grantee)
	return nil
}

// Allowed reports whether the caller may perform the action
func (r *RoleSet) Allowed(caller ids.Identity, action Action) bool {
	if caller == r.owner {
		return true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.roles[action][caller]
	return ok
}
