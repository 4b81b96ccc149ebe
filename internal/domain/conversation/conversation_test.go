package conversation

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/example/ec-storefront/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notification struct {
	UserID  string
	Payload any
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (m *mockNotifier) Notify(userID string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, notification{UserID: userID, Payload: payload})
}

func newTestConversationService() (*Service, *mockNotifier) {
	notifier := &mockNotifier{}
	return NewService(mocks.NewMockDocumentStore(), notifier), notifier
}

// ============================================
// Conversation Lifecycle Tests
// ============================================

func TestService_ForUser_CreatesOnce(t *testing.T) {
	service, _ := newTestConversationService()
	ctx := context.Background()

	c, err := service.ForUser(ctx, "user-1", "Ann")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, c.Status)
	assert.Empty(t, c.Messages)

	again, err := service.ForUser(ctx, "user-1", "Ann")
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
}

func TestService_PostUserMessage_Notifies(t *testing.T) {
	service, notifier := newTestConversationService()

	c, err := service.PostUserMessage(context.Background(), "user-1", "Ann", "  where is my order?  ")

	require.NoError(t, err)
	require.Len(t, c.Messages, 1)
	assert.Equal(t, "where is my order?", c.Messages[0].Text)
	assert.Equal(t, SenderUser, c.Messages[0].Sender)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "user-1", notifier.sent[0].UserID)
	posted := notifier.sent[0].Payload.(MessagePosted)
	assert.Equal(t, c.ID, posted.ConversationID)
	assert.Equal(t, "message", posted.Type)
}

func TestService_PostUserMessage_ReopensResolved(t *testing.T) {
	service, _ := newTestConversationService()
	ctx := context.Background()
	c, err := service.PostUserMessage(ctx, "user-1", "Ann", "hello")
	require.NoError(t, err)
	_, err = service.SetStatus(ctx, c.ID, StatusResolved)
	require.NoError(t, err)

	c, err = service.PostUserMessage(ctx, "user-1", "Ann", "one more thing")

	require.NoError(t, err)
	assert.Equal(t, StatusPending, c.Status)
}

func TestService_PostAdminReply_Activates(t *testing.T) {
	service, notifier := newTestConversationService()
	ctx := context.Background()
	c, err := service.PostUserMessage(ctx, "user-1", "Ann", "hello")
	require.NoError(t, err)
	_, err = service.SetStatus(ctx, c.ID, StatusPending)
	require.NoError(t, err)

	c, err = service.PostAdminReply(ctx, c.ID, "hi, how can we help?")

	require.NoError(t, err)
	assert.Equal(t, StatusActive, c.Status)
	assert.Equal(t, SenderAdmin, c.Messages[1].Sender)
	assert.Len(t, notifier.sent, 2)

	_, err = service.PostAdminReply(ctx, "missing", "hi")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestService_Post_InvalidMessage(t *testing.T) {
	service, notifier := newTestConversationService()
	ctx := context.Background()

	_, err := service.PostUserMessage(ctx, "user-1", "Ann", "   ")
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = service.PostUserMessage(ctx, "user-1", "Ann", strings.Repeat("x", 2001))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	assert.Empty(t, notifier.sent)
}

// ============================================
// Read Tracking Tests
// ============================================

func TestService_MarkRead(t *testing.T) {
	service, _ := newTestConversationService()
	ctx := context.Background()
	c, err := service.PostUserMessage(ctx, "user-1", "Ann", "hello")
	require.NoError(t, err)
	_, err = service.PostUserMessage(ctx, "user-1", "Ann", "anyone?")
	require.NoError(t, err)
	c, err = service.PostAdminReply(ctx, c.ID, "yes")
	require.NoError(t, err)

	assert.Equal(t, 2, c.UnreadCount(SenderAdmin))
	assert.Equal(t, 1, c.UnreadCount(SenderUser))

	unread, err := service.AdminUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	c, err = service.MarkRead(ctx, c.ID, SenderAdmin)
	require.NoError(t, err)
	assert.Equal(t, 0, c.UnreadCount(SenderAdmin))
	assert.Equal(t, 1, c.UnreadCount(SenderUser), "admin reading leaves the reply unread for the user")

	_, err = service.MarkRead(ctx, c.ID, Sender("bot"))
	assert.ErrorIs(t, err, ErrInvalidSender)
}

// ============================================
// Listing Tests
// ============================================

func TestService_List_FilterAndOrder(t *testing.T) {
	service, _ := newTestConversationService()
	ctx := context.Background()

	first, err := service.PostUserMessage(ctx, "user-1", "Ann", "hello")
	require.NoError(t, err)
	second, err := service.PostUserMessage(ctx, "user-2", "Bo", "hello")
	require.NoError(t, err)
	_, err = service.SetStatus(ctx, second.ID, StatusResolved)
	require.NoError(t, err)

	all, err := service.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "most recently updated first")

	active, err := service.List(ctx, StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)

	_, err = service.List(ctx, Status("archived"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

// ============================================
// Concurrent Posting Tests
// ============================================

func TestService_ConcurrentPostsAllKept(t *testing.T) {
	service, notifier := newTestConversationService()
	ctx := context.Background()
	c, err := service.ForUser(ctx, "user-1", "Ann")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = service.PostUserMessage(ctx, "user-1", "Ann", "customer message")
			} else {
				_, errs[i] = service.PostAdminReply(ctx, c.ID, "staff reply")
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	stored, err := service.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 4, "no post overwrote another")
	assert.Len(t, notifier.sent, 4)
}
