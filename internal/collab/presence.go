package collab

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// PresenceManager tracks per-user cursor, selection and tool. A user with
// several tabs open counts as present until the last one leaves.
type PresenceManager struct {
	mu        sync.RWMutex
	presences map[string]*PresencePayload // userID -> presence
	conns     map[string]int              // userID -> open clients
}

func NewPresenceManager() *PresenceManager {
	return &PresenceManager{
		presences: make(map[string]*PresencePayload),
		conns:     make(map[string]int),
	}
}

// Join counts a connection and reports whether it is the user's first.
func (pm *PresenceManager) Join(userID, displayName string) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.conns[userID]++
	if pm.conns[userID] > 1 {
		return false
	}
	pm.presences[userID] = &PresencePayload{DisplayName: displayName}
	return true
}

func (pm *PresenceManager) Update(userID string, p *PresencePayload) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	cp := *p
	cp.Selection = append([]string(nil), p.Selection...)
	pm.presences[userID] = &cp
}

// Remove drops one connection and reports whether the user left entirely.
func (pm *PresenceManager) Remove(userID string) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.conns[userID] > 1 {
		pm.conns[userID]--
		return false
	}
	delete(pm.conns, userID)
	delete(pm.presences, userID)
	return true
}

func (pm *PresenceManager) Get(userID string) (PresencePayload, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	p, ok := pm.presences[userID]
	if !ok {
		return PresencePayload{}, false
	}
	return *p, true
}

func (pm *PresenceManager) GetAll() map[string]*PresencePayload {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := make(map[string]*PresencePayload, len(pm.presences))
	for k, v := range pm.presences {
		cp := *v
		result[k] = &cp
	}
	return result
}

func (pm *PresenceManager) StateMessage() *Message {
	payload, err := json.Marshal(PresenceStatePayload{Presences: pm.GetAll()})
	if err != nil {
		slog.Error("marshal presence state", "error", err)
		return nil
	}
	return &Message{
		Type:    TypePresenceState,
		Payload: payload,
	}
}
