package conversation

import (
	"chat-memory/internal/cache"
	"chat-memory/internal/repository/db"
	"chat-memory/internal/session"
	"chat-memory/internal/testutil"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner    int64 = 1
	stranger int64 = 2
)

type stubTitles struct {
	got   string
	title string
}

func (s *stubTitles) GenerateTitle(ctx context.Context, first string) (string, error) {
	s.got = first
	return s.title, nil
}

type fixture struct {
	store   *testutil.FakeStore
	memory  *cache.MemoryCache
	manager *session.Manager
	titles  *stubTitles
	service *ConversationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewFakeStore()
	memory := cache.NewMemoryCache()
	manager := session.NewManager(store, memory, &testutil.MockSummarizer{}, session.Options{TTL: time.Minute})
	titles := &stubTitles{title: "Redis tips"}
	return &fixture{
		store:   store,
		memory:  memory,
		manager: manager,
		titles:  titles,
		service: NewConversationService(store, manager, titles),
	}
}

func (f *fixture) create(t *testing.T, userID int64) *db.Conversation {
	t.Helper()
	conv, err := f.service.CreateConversation(context.Background(), userID, "")
	require.NoError(t, err)
	return conv
}

func TestCreateConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv := f.create(t, owner)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, db.DefaultTitle, conv.Title)
	assert.True(t, conv.IsActive)
	assert.Equal(t, owner, conv.UserID)

	named, err := f.service.CreateConversation(ctx, owner, "  Trip plans ")
	require.NoError(t, err)
	assert.Equal(t, "Trip plans", named.Title)
	assert.NotEqual(t, conv.ID, named.ID)
}

func TestCreateConversation_StoreError(t *testing.T) {
	f := newFixture(t)
	f.store.SetError("CreateConversation", errors.New("db down"))

	_, err := f.service.CreateConversation(context.Background(), owner, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create conversation")
}

func TestGetUserConversations_Pagination(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.create(t, owner)
	}
	f.create(t, stranger)

	page, err := f.service.GetUserConversations(context.Background(), owner, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Conversations, 2)

	page, err = f.service.GetUserConversations(context.Background(), owner, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Conversations, 1)
	assert.Equal(t, 2, page.Offset)
}

func TestGetConversation_Ownership(t *testing.T) {
	f := newFixture(t)
	conv := f.create(t, owner)

	got, err := f.service.GetConversation(context.Background(), conv.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = f.service.GetConversation(context.Background(), conv.ID, stranger)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.service.GetConversation(context.Background(), "missing", owner)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestGetConversationMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t, owner)

	_, err := f.manager.AddMessage(ctx, owner, conv.ID, "user", "first", 2)
	require.NoError(t, err)
	_, err = f.manager.AddMessage(ctx, owner, conv.ID, "assistant", "second", 2)
	require.NoError(t, err)

	page, err := f.service.GetConversationMessages(ctx, conv.ID, owner, 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, "first", page.Messages[0].Content)
	assert.Equal(t, db.RoleAssistant, page.Messages[1].Role)

	_, err = f.service.GetConversationMessages(ctx, conv.ID, stranger, 0, 10)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRenameConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t, owner)

	renamed, err := f.service.RenameConversation(ctx, conv.ID, owner, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Title)

	_, err = f.service.RenameConversation(ctx, conv.ID, owner, "   ")
	assert.Error(t, err)

	_, err = f.service.RenameConversation(ctx, conv.ID, stranger, "Mine now")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSetActive(t *testing.T) {
	f := newFixture(t)
	conv := f.create(t, owner)

	require.NoError(t, f.service.SetActive(context.Background(), conv.ID, owner, false))
	stored, ok := f.store.Conversation(conv.ID)
	require.True(t, ok)
	assert.False(t, stored.IsActive)

	assert.ErrorIs(t, f.service.SetActive(context.Background(), conv.ID, stranger, true), ErrUnauthorized)
}

func TestSuggestTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t, owner)

	title, err := f.service.SuggestTitle(ctx, conv.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, db.DefaultTitle, title, "no user message yet")

	_, err = f.manager.AddMessage(ctx, owner, conv.ID, "user", "How do I tune Redis?", 5)
	require.NoError(t, err)
	before, _ := f.store.Conversation(conv.ID)

	title, err = f.service.SuggestTitle(ctx, conv.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, "Redis tips", title)
	assert.Equal(t, "How do I tune Redis?", f.titles.got)

	after, _ := f.store.Conversation(conv.ID)
	assert.Equal(t, before.Title, after.Title, "suggesting must not write")
}

func TestSuggestTitle_NoGenerator(t *testing.T) {
	store := testutil.NewFakeStore()
	service := NewConversationService(store, nil, nil)
	conv, err := service.CreateConversation(context.Background(), owner, "")
	require.NoError(t, err)

	title, err := service.SuggestTitle(context.Background(), conv.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, db.DefaultTitle, title)
}

func TestDeleteConversation_ClearsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.create(t, owner)

	_, err := f.manager.AddMessage(ctx, owner, conv.ID, "user", "hello", 1)
	require.NoError(t, err)
	_, cached, err := f.memory.Get(ctx, cache.SessionKey(conv.ID))
	require.NoError(t, err)
	require.True(t, cached)

	require.NoError(t, f.service.DeleteConversation(ctx, conv.ID, owner))

	_, cached, err = f.memory.Get(ctx, cache.SessionKey(conv.ID))
	require.NoError(t, err)
	assert.False(t, cached)

	stored, ok := f.store.Conversation(conv.ID)
	require.True(t, ok)
	assert.True(t, stored.IsDeleted)
	assert.NotNil(t, stored.DeletedAt)
	assert.Len(t, f.store.Messages(conv.ID), 1, "history is kept on soft delete")

	_, err = f.manager.GetSession(ctx, owner, conv.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)

	err = f.service.DeleteConversation(ctx, conv.ID, owner)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestDeleteConversation_Unauthorized(t *testing.T) {
	f := newFixture(t)
	conv := f.create(t, owner)

	err := f.service.DeleteConversation(context.Background(), conv.ID, stranger)
	assert.ErrorIs(t, err, ErrUnauthorized)

	stored, _ := f.store.Conversation(conv.ID)
	assert.False(t, stored.IsDeleted)
}

func TestConversationService_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateConversation(ctx, owner, strings.Repeat("t", 256))
	assert.Error(t, err)

	_, err = f.service.GetUserConversations(ctx, owner, -1, 10)
	assert.Error(t, err)

	conv := f.create(t, owner)
	_, err = f.service.GetConversationMessages(ctx, conv.ID, owner, 0, 5000)
	assert.Error(t, err)
	assert.Zero(t, f.store.CallCount("ListMessages"))
}
