package conversation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/google/uuid"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
	StatusPending  Status = "pending"
)

type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
)

const maxMessageLength = 2000

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidMessage       = errors.New("message must be 1 to 2000 characters")
	ErrInvalidStatus        = errors.New("status must be active, resolved or pending")
	ErrInvalidSender        = errors.New("sender must be user or admin")
)

type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Messages  []Message `json:"messages"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

func (c *Conversation) VersionRef() *int { return &c.Version }

// UnreadCount counts messages the reader has not seen yet, i.e. unread
// messages from the other side
func (c *Conversation) UnreadCount(reader Sender) int {
	n := 0
	for _, m := range c.Messages {
		if m.Sender != reader && !m.Read {
			n++
		}
	}
	return n
}

// Notifier pushes a payload to a user's live connections and to admins
type Notifier interface {
	Notify(userID string, payload any)
}

// MessagePosted is pushed through the Notifier for every new message
type MessagePosted struct {
	Type           string  `json:"type"`
	ConversationID string  `json:"conversation_id"`
	UserID         string  `json:"user_id"`
	Status         Status  `json:"status"`
	Message        Message `json:"message"`
}

type Service struct {
	store    store.DocumentStore
	notifier Notifier
}

// NewService creates a conversation service; notifier may be nil
func NewService(s store.DocumentStore, notifier Notifier) *Service {
	return &Service{store: s, notifier: notifier}
}

// ConversationID returns the id of a user's conversation; each customer has one
func ConversationID(userID string) string {
	return "conv-" + userID
}

// ForUser returns the user's conversation, starting one on first access
func (s *Service) ForUser(ctx context.Context, userID, userName string) (*Conversation, error) {
	id := ConversationID(userID)
	c, err := store.GetAs[Conversation](ctx, s.store, store.Conversations, id)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	c = &Conversation{
		ID:        id,
		UserID:    userID,
		UserName:  userName,
		Messages:  []Message{},
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Insert(ctx, store.Conversations, id, c); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.GetAs[Conversation](ctx, s.store, store.Conversations, id)
		}
		return nil, err
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Conversation, error) {
	c, err := store.GetAs[Conversation](ctx, s.store, store.Conversations, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return c, nil
}

// List returns conversations, most recently active first. An empty status
// returns all of them.
func (s *Service) List(ctx context.Context, status Status) ([]*Conversation, error) {
	if status != "" && !validStatus(status) {
		return nil, ErrInvalidStatus
	}
	all, err := store.ListAs[Conversation](ctx, s.store, store.Conversations)
	if err != nil {
		return nil, err
	}

	out := make([]*Conversation, 0, len(all))
	for _, c := range all {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// PostUserMessage appends a customer message. A resolved conversation is
// reopened as pending.
func (s *Service) PostUserMessage(ctx context.Context, userID, userName, text string) (*Conversation, error) {
	text, err := cleanMessage(text)
	if err != nil {
		return nil, err
	}
	c, err := s.ForUser(ctx, userID, userName)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, c.ID, SenderUser, text, func(c *Conversation) {
		if c.Status == StatusResolved {
			c.Status = StatusPending
		}
		if userName != "" {
			c.UserName = userName
		}
	})
}

// PostAdminReply appends a staff reply and marks the conversation active
func (s *Service) PostAdminReply(ctx context.Context, id, text string) (*Conversation, error) {
	text, err := cleanMessage(text)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, id, SenderAdmin, text, func(c *Conversation) {
		c.Status = StatusActive
	})
}

func cleanMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > maxMessageLength {
		return "", ErrInvalidMessage
	}
	return text, nil
}

func (s *Service) post(ctx context.Context, id string, sender Sender, text string, apply func(*Conversation)) (*Conversation, error) {
	var msg Message
	c, err := s.update(ctx, id, func(c *Conversation) error {
		apply(c)
		now := time.Now().UTC()
		msg = Message{
			ID:        uuid.New().String(),
			Sender:    sender,
			Text:      text,
			CreatedAt: now,
		}
		c.Messages = append(c.Messages, msg)
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.Notify(c.UserID, MessagePosted{
			Type:           "message",
			ConversationID: c.ID,
			UserID:         c.UserID,
			Status:         c.Status,
			Message:        msg,
		})
	}
	return c, nil
}

// MarkRead marks every message from the other side as read by reader
func (s *Service) MarkRead(ctx context.Context, id string, reader Sender) (*Conversation, error) {
	if reader != SenderUser && reader != SenderAdmin {
		return nil, ErrInvalidSender
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UnreadCount(reader) == 0 {
		return c, nil
	}
	return s.update(ctx, id, func(c *Conversation) error {
		for i := range c.Messages {
			if c.Messages[i].Sender != reader {
				c.Messages[i].Read = true
			}
		}
		return nil
	})
}

func (s *Service) SetStatus(ctx context.Context, id string, status Status) (*Conversation, error) {
	if !validStatus(status) {
		return nil, ErrInvalidStatus
	}
	return s.update(ctx, id, func(c *Conversation) error {
		c.Status = status
		c.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// update rewrites a conversation through store.Update, so messages posted
// concurrently by the customer and staff are all kept
func (s *Service) update(ctx context.Context, id string, mutate func(*Conversation) error) (*Conversation, error) {
	c, err := store.Update(ctx, s.store, store.Conversations, id, mutate)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return c, nil
}

// AdminUnreadCount is the number of customer messages no admin has read
func (s *Service) AdminUnreadCount(ctx context.Context) (int, error) {
	all, err := store.ListAs[Conversation](ctx, s.store, store.Conversations)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range all {
		n += c.UnreadCount(SenderAdmin)
	}
	return n, nil
}

func validStatus(s Status) bool {
	return s == StatusActive || s == StatusResolved || s == StatusPending
}
