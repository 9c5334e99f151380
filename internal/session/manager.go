// Package session holds the in-memory state of active play sessions:
// participants, their outbound message channels, and conversation history.
// It implements the broadcast port consumed by the approval state machine
// and the queue workers.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/domain"
)

// Role of a session participant.
type Role string

const (
	RoleDM        Role = "dm"
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

// Participant is one connected client. Out is drained by the transport
// layer; sends are non-blocking and drop (with a warning) when the buffer is
// full rather than stalling a broadcast.
type Participant struct {
	ClientID string
	UserID   string
	Role     Role
	JoinedAt time.Time
	Out      chan Message
}

// HistoryEntry is one line of session conversation history.
type HistoryEntry struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

type sessionState struct {
	id             string
	worldID        string
	createdAt      time.Time
	currentSceneID string
	participants   map[string]*Participant
	history        []HistoryEntry
}

func (s *sessionState) dm() *Participant {
	for _, p := range s.participants {
		if p.Role == RoleDM {
			return p
		}
	}
	return nil
}

// Manager owns all session state behind a single reader/writer lock: many
// concurrent readers for status queries, exclusive writer for mutation.
// Workers never reach into session state directly; everything goes through
// these methods.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	clients  map[string]string // clientID -> sessionID
	logger   *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*sessionState),
		clients:  make(map[string]string),
		logger:   logger,
	}
}

// Create starts a new session for a world and returns its id.
func (m *Manager) Create(worldID string) string {
	s := &sessionState{
		id:           uuid.New().String(),
		worldID:      worldID,
		createdAt:    time.Now().UTC(),
		participants: make(map[string]*Participant),
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info("session created",
		zap.String("session_id", s.id), zap.String("world_id", worldID))
	return s.id
}

// Join adds a participant and returns their outbound channel. A session
// holds at most one DM.
func (m *Manager) Join(sessionID, clientID, userID string, role Role, buffer int) (<-chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if role == RoleDM && s.dm() != nil {
		return nil, domain.ErrDMAlreadyPresent
	}

	p := &Participant{
		ClientID: clientID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
		Out:      make(chan Message, buffer),
	}
	s.participants[clientID] = p
	m.clients[clientID] = sessionID

	m.logger.Info("participant joined",
		zap.String("session_id", sessionID),
		zap.String("client_id", clientID),
		zap.String("role", string(role)))
	return p.Out, nil
}

// Leave removes a participant and closes their channel.
func (m *Manager) Leave(clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessionID, ok := m.clients[clientID]
	if !ok {
		return domain.ErrClientNotInSession
	}
	delete(m.clients, clientID)

	if s, ok := m.sessions[sessionID]; ok {
		if p, ok := s.participants[clientID]; ok {
			delete(s.participants, clientID)
			close(p.Out)
		}
	}
	return nil
}

// SessionIDs returns the ids of all active sessions.
func (m *Manager) SessionIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// SessionExists reports whether the session is active.
func (m *Manager) SessionExists(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[sessionID]
	return ok
}

// ClientSession returns the session a client belongs to.
func (m *Manager) ClientSession(clientID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.clients[clientID]
	return id, ok
}

// IsClientDM reports whether the client is the DM of the session they are in.
func (m *Manager) IsClientDM(clientID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessionID, ok := m.clients[clientID]
	if !ok {
		return false
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	p, ok := s.participants[clientID]
	return ok && p.Role == RoleDM
}

// BroadcastToSession sends to every participant.
func (m *Manager) BroadcastToSession(sessionID string, msg Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	for _, p := range s.participants {
		m.send(p, msg)
	}
	return nil
}

// BroadcastToPlayers sends to players only, excluding the DM and spectators.
func (m *Manager) BroadcastToPlayers(sessionID string, msg Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	for _, p := range s.participants {
		if p.Role == RolePlayer {
			m.send(p, msg)
		}
	}
	return nil
}

// SendToDM sends only to the session's DM. Sessions without a DM swallow
// the message; approvals simply wait until a DM is present.
func (m *Manager) SendToDM(sessionID string, msg Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if dm := s.dm(); dm != nil {
		m.send(dm, msg)
	}
	return nil
}

// SendToClient sends to one participant, wherever they are.
func (m *Manager) SendToClient(clientID string, msg Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessionID, ok := m.clients[clientID]
	if !ok {
		return domain.ErrClientNotInSession
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	p, ok := s.participants[clientID]
	if !ok {
		return domain.ErrClientNotInSession
	}
	m.send(p, msg)
	return nil
}

// AddToConversationHistory appends a spoken line to the session history.
func (m *Manager) AddToConversationHistory(sessionID, speaker, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.history = append(s.history, HistoryEntry{
		Speaker: speaker,
		Text:    text,
		At:      time.Now().UTC(),
	})
	return nil
}

// History returns a copy of the session's conversation history.
func (m *Manager) History(sessionID string) ([]HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out, nil
}

// SetCurrentScene records the session's active scene.
func (m *Manager) SetCurrentScene(sessionID, sceneID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.currentSceneID = sceneID
	return nil
}

func (m *Manager) send(p *Participant, msg Message) {
	select {
	case p.Out <- msg:
	default:
		m.logger.Warn("participant channel full, dropping message",
			zap.String("client_id", p.ClientID),
			zap.String("type", msg.Type))
	}
}
