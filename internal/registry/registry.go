// Package registry tracks the live sessions of this process. It enforces the
// one-orchestrator-per-call rule and exposes read-only snapshots for the admin
// surface. With a shared store attached, ownership extends across replicas.
package registry

import (
	"context"
	"sync"
	"time"

	"connectai/internal/domain/call"
	"connectai/pkg/errors"
	"connectai/pkg/logger"
)

// Member is a registered session. The registry only ever reads snapshots;
// mutation stays with the session's orchestrator.
type Member interface {
	Snapshot() call.Snapshot
}

// Store is the shared-ownership surface backed by Redis. All methods are
// optional at runtime; a nil Store keeps the registry process-local.
type Store interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Registry is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	byID       map[string]Member
	byExternal map[string]string

	store Store
	ttl   time.Duration
	log   *logger.Logger
}

// New builds a registry. store may be nil; ttl bounds how long a crashed
// process can hold a call's ownership.
func New(store Store, ttl time.Duration) *Registry {
	return &Registry{
		byID:       make(map[string]Member),
		byExternal: make(map[string]string),
		store:      store,
		ttl:        ttl,
		log:        logger.Get().With("component", "session_registry"),
	}
}

// Add claims the external call id and registers the member. A second add for
// the same external id fails with ErrDuplicateSession and leaves the first
// registration untouched.
func (r *Registry) Add(ctx context.Context, m Member) error {
	snap := m.Snapshot()

	r.mu.Lock()
	if _, exists := r.byExternal[snap.ExternalID]; exists {
		r.mu.Unlock()
		return errors.Wrapf(errors.ErrDuplicateSession, "call %s", snap.ExternalID)
	}
	if _, exists := r.byID[snap.SessionID]; exists {
		r.mu.Unlock()
		return errors.Wrapf(errors.ErrDuplicateSession, "session %s", snap.SessionID)
	}
	r.byID[snap.SessionID] = m
	r.byExternal[snap.ExternalID] = snap.SessionID
	r.mu.Unlock()

	if r.store != nil {
		ok, err := r.store.AcquireLock(ctx, ownershipKey(snap.ExternalID), r.ttl)
		if err == nil && !ok {
			r.evict(snap)
			return errors.Wrapf(errors.ErrDuplicateSession, "call %s is owned elsewhere", snap.ExternalID)
		}
		if err != nil {
			// Shared store trouble must not take calls down; local exclusivity
			// still holds.
			r.log.Warnf("Ownership lock for %s unavailable: %v", snap.ExternalID, err)
		}
		if err := r.store.Set(ctx, snapshotKey(snap.SessionID), snap, r.ttl); err != nil {
			r.log.Debugf("Snapshot publish for %s failed: %v", snap.SessionID, err)
		}
	}

	r.log.Infof("Session registered: id=%s external=%s domain=%s", snap.SessionID, snap.ExternalID, snap.Domain)
	return nil
}

// Remove releases the session and its ownership claim. Removing an unknown id
// is a no-op.
func (r *Registry) Remove(ctx context.Context, sessionID string) {
	r.mu.Lock()
	m, ok := r.byID[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	snap := m.Snapshot()
	delete(r.byID, sessionID)
	delete(r.byExternal, snap.ExternalID)
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.ReleaseLock(ctx, ownershipKey(snap.ExternalID)); err != nil {
			r.log.Debugf("Ownership release for %s failed: %v", snap.ExternalID, err)
		}
		if err := r.store.Delete(ctx, snapshotKey(sessionID)); err != nil {
			r.log.Debugf("Snapshot delete for %s failed: %v", sessionID, err)
		}
	}

	r.log.Infof("Session removed: id=%s external=%s", sessionID, snap.ExternalID)
}

// Get returns a registered member by session id.
func (r *Registry) Get(sessionID string) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[sessionID]
	return m, ok
}

// GetByExternal returns a registered member by telephony call id.
func (r *Registry) GetByExternal(externalID string) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byExternal[externalID]
	if !ok {
		return nil, false
	}
	m, ok := r.byID[id]
	return m, ok
}

// Snapshots lists a point-in-time view of every live session.
func (r *Registry) Snapshots() []call.Snapshot {
	r.mu.RLock()
	members := make([]Member, 0, len(r.byID))
	for _, m := range r.byID {
		members = append(members, m)
	}
	r.mu.RUnlock()

	out := make([]call.Snapshot, 0, len(members))
	for _, m := range members {
		out = append(out, m.Snapshot())
	}
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) evict(snap call.Snapshot) {
	r.mu.Lock()
	delete(r.byID, snap.SessionID)
	delete(r.byExternal, snap.ExternalID)
	r.mu.Unlock()
}

func ownershipKey(externalID string) string {
	return "call:" + externalID
}

func snapshotKey(sessionID string) string {
	return "session:" + sessionID
}
