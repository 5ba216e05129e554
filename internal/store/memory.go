// Package store provides the ConversationStore contract the engine persists
// through (spec §6) and an in-memory reference implementation. The engine
// treats ConversationStore as an opaque collaborator; a durable backend
// (Postgres, SQLite, etc.) is an external concern this package deliberately
// does not implement, matching the teacher's split between its in-memory
// session store and its database-backed one.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/pkg/models"
)

// ErrNotFound is returned when a conversation or plan id is unknown.
var ErrNotFound = errors.New("store: not found")

// ConversationMeta is the subset of Conversation fields listed without
// loading the full message history, returned by List/Search.
type ConversationMeta struct {
	ID           string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Model        string
	Subagent     string
	ContextFiles []string
}

// ConversationStore is the persistence contract the engine depends on.
// Implementations must preserve block ordering and message roles exactly;
// text storage must be UTF-8.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	LoadConversation(ctx context.Context, id string) (*models.Conversation, error)
	AppendMessage(ctx context.Context, id string, msg models.Message) error
	UpdateMeta(ctx context.Context, conv *models.Conversation) error
	ListConversations(ctx context.Context, limit, offset int) ([]ConversationMeta, error)
	SearchConversations(ctx context.Context, query string) ([]ConversationMeta, error)
	SavePlan(ctx context.Context, conversationID, markdown string) error
	LoadPlan(ctx context.Context, conversationID string) (string, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-memory ConversationStore, the default/test store.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*models.Conversation
	plans map[string]string
}

// NewMemoryStore creates an empty in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs: make(map[string]*models.Conversation),
		plans: make(map[string]string),
	}
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	clone := *c
	clone.Messages = append([]models.Message(nil), c.Messages...)
	clone.ContextFiles = append([]string(nil), c.ContextFiles...)
	clone.Todos = append([]models.TodoItem(nil), c.Todos...)
	return &clone
}

func (s *MemoryStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return errors.New("store: conversation is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	conv.UpdatedAt = conv.CreatedAt
	s.convs[conv.ID] = cloneConversation(conv)
	return nil
}

func (s *MemoryStore) LoadConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, id string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.CreatedAt
	return nil
}

func (s *MemoryStore) UpdateMeta(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return errors.New("store: conversation is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.convs[conv.ID]
	if !ok {
		return ErrNotFound
	}
	clone := cloneConversation(conv)
	clone.Messages = existing.Messages
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now()
	s.convs[conv.ID] = clone
	return nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, limit, offset int) ([]ConversationMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]ConversationMeta, 0, len(s.convs))
	for _, c := range s.convs {
		all = append(all, metaOf(c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })

	if offset >= len(all) {
		return nil, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

func (s *MemoryStore) SearchConversations(ctx context.Context, query string) ([]ConversationMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	var out []ConversationMeta
	for _, c := range s.convs {
		if q == "" || conversationMatches(c, q) {
			out = append(out, metaOf(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func conversationMatches(c *models.Conversation, q string) bool {
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(models.TextOf(m.Blocks)), q) {
			return true
		}
	}
	return false
}

func metaOf(c *models.Conversation) ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Model:        c.Model,
		Subagent:     c.Subagent,
		ContextFiles: append([]string(nil), c.ContextFiles...),
	}
}

func (s *MemoryStore) SavePlan(ctx context.Context, conversationID, markdown string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[conversationID]; !ok {
		return ErrNotFound
	}
	s.plans[conversationID] = markdown
	return nil
}

func (s *MemoryStore) LoadPlan(ctx context.Context, conversationID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[conversationID]
	if !ok {
		return "", ErrNotFound
	}
	return plan, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[id]; !ok {
		return ErrNotFound
	}
	delete(s.convs, id)
	delete(s.plans, id)
	return nil
}
