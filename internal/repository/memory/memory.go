// Package memory provides in-memory implementations of the repository
// interfaces. They back the service tests and small single-node deployments.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"harbor-chat/internal/domain/conversation"
	"harbor-chat/internal/domain/message"
	"harbor-chat/internal/domain/user"
	harbor_errors "harbor-chat/pkg/errors"

	"github.com/google/uuid"
)

// Store holds every table behind one mutex. Each exported method is a
// single atomic operation, mirroring what the SQL store guarantees.
type Store struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*conversation.Conversation
	participants  map[uuid.UUID][]*conversation.Participant
	messages      map[uuid.UUID]*message.Message
	reactions     map[uuid.UUID]*message.MessageReaction
	users         map[uuid.UUID]*user.User
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[uuid.UUID]*conversation.Conversation),
		participants:  make(map[uuid.UUID][]*conversation.Participant),
		messages:      make(map[uuid.UUID]*message.Message),
		reactions:     make(map[uuid.UUID]*message.MessageReaction),
		users:         make(map[uuid.UUID]*user.User),
	}
}

// PutUser seeds a user row.
func (s *Store) PutUser(u user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := u
	s.users[u.ID] = &copied
}

// --- ConversationRepository ---

func (s *Store) Create(_ context.Context, c *conversation.Conversation, participants []conversation.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[c.ID]; exists {
		return harbor_errors.ErrAlreadyExists
	}
	copied := *c
	copied.Participants = nil
	s.conversations[c.ID] = &copied
	for i := range participants {
		p := participants[i]
		s.participants[c.ID] = append(s.participants[c.ID], &p)
	}
	c.Participants = participants
	return nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotConversation(id)
}

func (s *Store) GetDirectPair(_ context.Context, a, b uuid.UUID) (conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.conversations {
		if c.Type != conversation.TypeDirect {
			continue
		}
		parts := s.participants[id]
		if len(parts) != 2 {
			continue
		}
		ids := map[uuid.UUID]bool{parts[0].UserID: true, parts[1].UserID: true}
		if ids[a] && ids[b] {
			return s.snapshotConversation(id)
		}
	}
	return conversation.Conversation{}, harbor_errors.ErrNotFound
}

func (s *Store) GetUserConversations(_ context.Context, userID uuid.UUID) ([]conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []conversation.Conversation
	for id := range s.conversations {
		for _, p := range s.participants[id] {
			if p.UserID == userID && p.IsActive {
				c, err := s.snapshotConversation(id)
				if err != nil {
					return nil, err
				}
				out = append(out, c)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) GetParticipant(_ context.Context, conversationID, userID uuid.UUID) (conversation.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants[conversationID] {
		if p.UserID == userID {
			return *p, nil
		}
	}
	return conversation.Participant{}, harbor_errors.ErrNotFound
}

func (s *Store) AddParticipant(_ context.Context, p *conversation.Participant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[p.ConversationID]; !exists {
		return false, harbor_errors.ErrNotFound
	}
	for _, existing := range s.participants[p.ConversationID] {
		if existing.UserID == p.UserID {
			return false, nil
		}
	}
	copied := *p
	s.participants[p.ConversationID] = append(s.participants[p.ConversationID], &copied)
	return true, nil
}

func (s *Store) SetParticipantsActive(_ context.Context, conversationID uuid.UUID, userIDs []uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}
	for _, p := range s.participants[conversationID] {
		if wanted[p.UserID] {
			p.IsActive = active
		}
	}
	return nil
}

func (s *Store) SetParticipantLastRead(_ context.Context, conversationID, userID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants[conversationID] {
		if p.UserID == userID {
			p.LastReadAt = sql.NullTime{Time: at, Valid: true}
			return nil
		}
	}
	return harbor_errors.ErrNotFound
}

func (s *Store) Touch(_ context.Context, conversationID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return harbor_errors.ErrNotFound
	}
	c.UpdatedAt = at
	return nil
}

// --- MessageRepository ---

func (s *Store) CreateMessage(_ context.Context, m *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *m
	copied.ReadBy = append([]uuid.UUID(nil), m.ReadBy...)
	s.messages[m.ID] = &copied
	return nil
}

func (s *Store) GetMessageByID(_ context.Context, id uuid.UUID) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return message.Message{}, harbor_errors.ErrNotFound
	}
	return snapshotMessage(m), nil
}

func (s *Store) GetConversationMessages(_ context.Context, conversationID uuid.UUID, before time.Time, limit int) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []message.Message
	for _, m := range s.messages {
		if m.ConversationID != conversationID {
			continue
		}
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		out = append(out, snapshotMessage(m))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetLatestMessage(_ context.Context, conversationID uuid.UUID) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *message.Message
	for _, m := range s.messages {
		if m.ConversationID != conversationID {
			continue
		}
		if latest == nil || m.CreatedAt.After(latest.CreatedAt) {
			latest = m
		}
	}
	if latest == nil {
		return message.Message{}, harbor_errors.ErrNotFound
	}
	return snapshotMessage(latest), nil
}

func (s *Store) CountUnread(_ context.Context, conversationID, userID uuid.UUID, since sql.NullTime) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, m := range s.messages {
		if m.ConversationID != conversationID {
			continue
		}
		if m.SenderID.Valid && m.SenderID.UUID == userID {
			continue
		}
		if since.Valid && !m.CreatedAt.After(since.Time) {
			continue
		}
		count++
	}
	return count, nil
}

func (s *Store) MarkAllRead(_ context.Context, conversationID, userID uuid.UUID, _ time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var marked int64
	for _, m := range s.messages {
		if m.ConversationID != conversationID {
			continue
		}
		if m.SenderID.Valid && m.SenderID.UUID == userID {
			continue
		}
		already := false
		for _, id := range m.ReadBy {
			if id == userID {
				already = true
				break
			}
		}
		if !already {
			m.ReadBy = append(m.ReadBy, userID)
			marked++
		}
	}
	return marked, nil
}

func (s *Store) GetUserReaction(_ context.Context, messageID, userID uuid.UUID) (message.MessageReaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reactions {
		if r.MessageID == messageID && r.UserID == userID {
			return *r, nil
		}
	}
	return message.MessageReaction{}, harbor_errors.ErrNotFound
}

func (s *Store) AddReaction(_ context.Context, r *message.MessageReaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *r
	s.reactions[r.ID] = &copied
	return nil
}

func (s *Store) UpdateReaction(_ context.Context, reactionID uuid.UUID, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reactions[reactionID]
	if !ok {
		return harbor_errors.ErrNotFound
	}
	r.Emoji = emoji
	return nil
}

func (s *Store) RemoveReaction(_ context.Context, reactionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reactions[reactionID]; !ok {
		return harbor_errors.ErrNotFound
	}
	delete(s.reactions, reactionID)
	return nil
}

func (s *Store) GetMessageReactions(_ context.Context, messageID uuid.UUID) ([]message.MessageReaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []message.MessageReaction
	for _, r := range s.reactions {
		if r.MessageID == messageID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// --- UserRepository ---

func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return user.User{}, harbor_errors.ErrNotFound
	}
	return *u, nil
}

func (s *Store) GetUsersByIDs(_ context.Context, ids []uuid.UUID) ([]user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []user.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *Store) GetActiveByRoles(_ context.Context, roles []string) ([]user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(roles))
	for _, r := range roles {
		wanted[r] = true
	}
	var out []user.User
	for _, u := range s.users {
		if u.IsActive && wanted[u.Role] {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) snapshotConversation(id uuid.UUID) (conversation.Conversation, error) {
	c, ok := s.conversations[id]
	if !ok {
		return conversation.Conversation{}, harbor_errors.ErrNotFound
	}
	out := *c
	out.Participants = nil
	for _, p := range s.participants[id] {
		out.Participants = append(out.Participants, *p)
	}
	return out, nil
}

func snapshotMessage(m *message.Message) message.Message {
	out := *m
	out.ReadBy = append([]uuid.UUID(nil), m.ReadBy...)
	return out
}
