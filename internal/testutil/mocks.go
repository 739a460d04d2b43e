package testutil

import (
	"chat-memory/internal/config"
	"chat-memory/internal/repository/db"
	"chat-memory/internal/service/llm"
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Ensure FakeStore implements db.ConversationStore interface
var _ db.ConversationStore = (*FakeStore)(nil)

// FakeStore is an in-memory db.ConversationStore for testing. Errors set in
// Errors are returned by the method of the same name; Calls counts invocations.
type FakeStore struct {
	mu            sync.Mutex
	conversations map[string]*db.Conversation
	messages      map[string][]db.Message
	nextID        int64

	Errors map[string]error
	Calls  map[string]int
	Now    func() time.Time
}

// NewFakeStore creates an empty fake store
func NewFakeStore() *FakeStore {
	return &FakeStore{
		conversations: make(map[string]*db.Conversation),
		messages:      make(map[string][]db.Message),
		Errors:        make(map[string]error),
		Calls:         make(map[string]int),
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetError makes method fail with err; a nil err clears it
func (f *FakeStore) SetError(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Errors, method)
		return
	}
	f.Errors[method] = err
}

// CallCount returns how many times method was invoked
func (f *FakeStore) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[method]
}

// Conversation returns a copy of the stored row, including soft-deleted ones
func (f *FakeStore) Conversation(id string) (db.Conversation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return db.Conversation{}, false
	}
	return *c, true
}

// Messages returns a copy of every stored message of a conversation
func (f *FakeStore) Messages(id string) []db.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]db.Message(nil), f.messages[id]...)
}

func (f *FakeStore) enter(method string) error {
	f.Calls[method]++
	return f.Errors[method]
}

func (f *FakeStore) live(id string) (*db.Conversation, bool) {
	c, ok := f.conversations[id]
	if !ok || c.IsDeleted {
		return nil, false
	}
	return c, true
}

func (f *FakeStore) CreateConversation(ctx context.Context, id string, userID int64, title string) (*db.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateConversation"); err != nil {
		return nil, err
	}
	if _, exists := f.conversations[id]; exists {
		return nil, errors.New("duplicate conversation id")
	}
	if title == "" {
		title = db.DefaultTitle
	}
	now := f.Now()
	c := &db.Conversation{ID: id, UserID: userID, Title: title, IsActive: true, CreatedAt: now, UpdatedAt: now}
	f.conversations[id] = c
	out := *c
	return &out, nil
}

func (f *FakeStore) GetConversation(ctx context.Context, id string) (*db.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetConversation"); err != nil {
		return nil, err
	}
	c, ok := f.live(id)
	if !ok {
		return nil, db.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (f *FakeStore) ListConversations(ctx context.Context, userID int64, offset, limit int) ([]db.Conversation, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListConversations"); err != nil {
		return nil, 0, err
	}
	var all []db.Conversation
	for _, c := range f.conversations {
		if c.UserID == userID && !c.IsDeleted {
			all = append(all, *c)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})
	return page(all, offset, limit), len(all), nil
}

func (f *FakeStore) UpdateTitle(ctx context.Context, conversationID, title string) (*db.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateTitle"); err != nil {
		return nil, err
	}
	c, ok := f.live(conversationID)
	if !ok {
		return nil, db.ErrNotFound
	}
	c.Title = title
	c.UpdatedAt = f.Now()
	out := *c
	return &out, nil
}

func (f *FakeStore) UpdateSummary(ctx context.Context, conversationID, summary string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateSummary"); err != nil {
		return false, err
	}
	c, ok := f.live(conversationID)
	if !ok {
		return false, nil
	}
	c.Summary = &summary
	c.UpdatedAt = f.Now()
	return true, nil
}

func (f *FakeStore) UpdateCounters(ctx context.Context, conversationID string, messageCount, totalTokens int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateCounters"); err != nil {
		return false, err
	}
	c, ok := f.live(conversationID)
	if !ok {
		return false, nil
	}
	c.MessageCount = messageCount
	c.TotalTokens = totalTokens
	return true, nil
}

func (f *FakeStore) SetActive(ctx context.Context, conversationID string, active bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SetActive"); err != nil {
		return false, err
	}
	c, ok := f.live(conversationID)
	if !ok {
		return false, nil
	}
	c.IsActive = active
	return true, nil
}

func (f *FakeStore) SoftDeleteConversation(ctx context.Context, conversationID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SoftDeleteConversation"); err != nil {
		return false, err
	}
	c, ok := f.live(conversationID)
	if !ok {
		return false, nil
	}
	now := f.Now()
	c.IsDeleted = true
	c.IsActive = false
	c.DeletedAt = &now
	return true, nil
}

func (f *FakeStore) AppendMessage(ctx context.Context, conversationID, messageID string, role db.Role, content string, tokens int, importance float64) (*db.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AppendMessage"); err != nil {
		return nil, err
	}
	c, ok := f.live(conversationID)
	if !ok {
		return nil, db.ErrNotFound
	}
	f.nextID++
	msg := db.Message{
		ID:             f.nextID,
		ConversationID: conversationID,
		MessageID:      messageID,
		Role:           role,
		Content:        content,
		Tokens:         tokens,
		Importance:     importance,
		CreatedAt:      db.MessageTimestamp(role, f.Now()),
	}
	f.messages[conversationID] = append(f.messages[conversationID], msg)
	c.MessageCount++
	c.TotalTokens += tokens
	out := msg
	return &out, nil
}

func (f *FakeStore) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]db.Message, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListMessages"); err != nil {
		return nil, 0, err
	}
	all := append([]db.Message(nil), f.messages[conversationID]...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return page(all, offset, limit), len(all), nil
}

func (f *FakeStore) CountMessages(ctx context.Context, conversationID string, role db.Role) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CountMessages"); err != nil {
		return 0, err
	}
	n := 0
	for _, m := range f.messages[conversationID] {
		if m.Role == role {
			n++
		}
	}
	return n, nil
}

func (f *FakeStore) Close() error { return nil }

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// MockLLMProvider is a mock implementation of llm.LLMProvider for testing
type MockLLMProvider struct {
	ChatFunc       func(ctx context.Context, req llm.ChatRequest) (string, error)
	ChatStreamFunc func(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error)
	DefaultModelID string

	mu       sync.Mutex
	Requests []llm.ChatRequest
}

func (m *MockLLMProvider) record(req llm.ChatRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
}

// LastRequest returns the most recent request, or a zero request
func (m *MockLLMProvider) LastRequest() llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return llm.ChatRequest{}
	}
	return m.Requests[len(m.Requests)-1]
}

func (m *MockLLMProvider) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	m.record(req)
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	return "", errors.New("not implemented")
}

func (m *MockLLMProvider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	m.record(req)
	if m.ChatStreamFunc != nil {
		return m.ChatStreamFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *MockLLMProvider) Name() string { return "mock" }

func (m *MockLLMProvider) DefaultModel() string {
	if m.DefaultModelID != "" {
		return m.DefaultModelID
	}
	return "test-model"
}

// StreamOf returns a closed channel that yields each piece then a done chunk
func StreamOf(pieces ...string) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk, len(pieces)+1)
	for _, p := range pieces {
		ch <- llm.StreamChunk{Content: p}
	}
	ch <- llm.StreamChunk{IsDone: true}
	close(ch)
	return ch
}

// MockSummarizer is a mock summarizer for session tests
type MockSummarizer struct {
	SummarizeFunc func(ctx context.Context, transcript []llm.Message, prior *string) (string, error)

	mu    sync.Mutex
	calls int
}

func (m *MockSummarizer) Summarize(ctx context.Context, transcript []llm.Message, prior *string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, transcript, prior)
	}
	return "summary", nil
}

// Calls returns how many times Summarize was invoked
func (m *MockSummarizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// NewMockLLMConfig creates an LLMConfig with test prompts and fallbacks
func NewMockLLMConfig() *config.LLMConfig {
	return &config.LLMConfig{
		Provider:            "openai",
		APIKey:              "test-key",
		Model:               "test-model",
		RequestTimeout:      5 * time.Second,
		DefaultSystemPrompt: "You are a helpful assistant.",
		SummarizationPrompt: config.DefaultSummarizationPrompt,
		TitlePrompt:         config.DefaultTitlePrompt,
		FallbackResponses:   []string{"Sorry, I cannot answer right now."},
	}
}

// NewMockModelsConfig creates a ModelsConfig with test models
func NewMockModelsConfig() *config.ModelsConfig {
	return config.NewStaticModelsConfig("test-model", "other-model")
}
