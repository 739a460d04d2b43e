package chat

import (
	"chat-memory/internal/cache"
	"chat-memory/internal/logger"
	"chat-memory/internal/repository/db"
	"chat-memory/internal/service/conversation"
	"chat-memory/internal/service/llm"
	"chat-memory/internal/session"
	"chat-memory/internal/testutil"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser int64 = 7

type fixture struct {
	store    *testutil.FakeStore
	provider *testutil.MockLLMProvider
	service  *ChatService
	convID   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewFakeStore()
	manager := session.NewManager(store, cache.NewMemoryCache(), &testutil.MockSummarizer{}, session.Options{
		TTL:          time.Minute,
		SystemPrompt: "You are a test assistant.",
	})
	conversations := conversation.NewConversationService(store, manager, nil)
	provider := &testutil.MockLLMProvider{}

	conv, err := conversations.CreateConversation(context.Background(), testUser, "")
	require.NoError(t, err)

	return &fixture{
		store:    store,
		provider: provider,
		service:  NewChatService(manager, conversations, provider, testutil.NewMockLLMConfig(), testutil.NewMockModelsConfig()),
		convID:   conv.ID,
	}
}

func (f *fixture) request(message string) SendMessageRequest {
	return SendMessageRequest{Message: message, ConversationID: f.convID, UserID: testUser}
}

func collect(t *testing.T, ch <-chan StreamMessageChunk) []StreamMessageChunk {
	t.Helper()
	var chunks []StreamMessageChunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, c)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	f.provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (string, error) {
		return "Use appendonly yes.", nil
	}

	resp, err := f.service.SendMessage(context.Background(), f.request("How do I enable AOF?"))
	require.NoError(t, err)
	assert.Equal(t, "Use appendonly yes.", resp.Response)
	assert.Equal(t, f.convID, resp.ConversationID)
	assert.Equal(t, "test-model", resp.Model)
	assert.False(t, resp.Fallback)

	req := f.provider.LastRequest()
	require.Len(t, req.Messages, 2, "system preamble and the single user turn")
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "How do I enable AOF?"}, req.Messages[1])

	stored := f.store.Messages(f.convID)
	require.Len(t, stored, 2)
	assert.Equal(t, db.RoleUser, stored[0].Role)
	assert.Equal(t, llm.EstimateTokens("How do I enable AOF?"), stored[0].Tokens)
	assert.Equal(t, db.RoleAssistant, stored[1].Role)
	assert.Equal(t, "Use appendonly yes.", stored[1].Content)
}

func TestSendMessage_LogsContextTokenEstimate(t *testing.T) {
	hook := test.NewLocal(logger.Log)
	level := logger.Log.GetLevel()
	logger.Log.SetLevel(logrus.DebugLevel)
	t.Cleanup(func() {
		logger.Log.SetLevel(level)
		logger.Log.ReplaceHooks(make(logrus.LevelHooks))
	})

	f := newFixture(t)
	f.provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (string, error) {
		return "ok", nil
	}

	_, err := f.service.SendMessage(context.Background(), f.request("How do I enable AOF?"))
	require.NoError(t, err)

	var prepared *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "Prepared for LLM call" {
			prepared = e
		}
	}
	require.NotNil(t, prepared)
	assert.Equal(t, llm.EstimateMessagesTokens(f.provider.LastRequest().Messages), prepared.Data["context_tokens"])
	assert.Positive(t, prepared.Data["context_tokens"])
}

func TestSendMessage_CarriesHistory(t *testing.T) {
	f := newFixture(t)
	f.provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (string, error) {
		return "reply", nil
	}

	_, err := f.service.SendMessage(context.Background(), f.request("first"))
	require.NoError(t, err)
	_, err = f.service.SendMessage(context.Background(), f.request("second"))
	require.NoError(t, err)

	req := f.provider.LastRequest()
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "first", req.Messages[1].Content)
	assert.Equal(t, "reply", req.Messages[2].Content)
	assert.Equal(t, "second", req.Messages[3].Content)
}

func TestSendMessage_ProviderFailureServesFallback(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{name: "error", err: errors.New("upstream 503")},
		{name: "empty completion", reply: "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (string, error) {
				return tt.reply, tt.err
			}

			resp, err := f.service.SendMessage(context.Background(), f.request("hello"))
			require.NoError(t, err)
			assert.True(t, resp.Fallback)
			assert.Equal(t, "Sorry, I cannot answer right now.", resp.Response)

			stored := f.store.Messages(f.convID)
			require.Len(t, stored, 2)
			assert.Equal(t, resp.Response, stored[1].Content)
		})
	}
}

func TestSendMessage_AssistantSaveFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (string, error) {
		f.store.SetError("AppendMessage", errors.New("disk full"))
		return "still answered", nil
	}

	resp, err := f.service.SendMessage(context.Background(), f.request("hello"))
	require.NoError(t, err)
	assert.Equal(t, "still answered", resp.Response)
	assert.Len(t, f.store.Messages(f.convID), 1)
}

func TestSendMessage_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.SendMessage(context.Background(), f.request("   "))
	assert.ErrorIs(t, err, ErrEmptyMessage)

	req := f.request("hello")
	req.Model = "unknown-model"
	_, err = f.service.SendMessage(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid model")

	req = f.request("hello")
	req.Temperature = llm.Float(3)
	_, err = f.service.SendMessage(context.Background(), req)
	assert.Error(t, err)

	assert.Empty(t, f.store.Messages(f.convID))
	assert.Empty(t, f.provider.Requests)
}

func TestSendMessage_UsesRequestedModel(t *testing.T) {
	f := newFixture(t)
	f.provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (string, error) {
		return "ok", nil
	}

	req := f.request("hello")
	req.Model = "other-model"
	req.Temperature = llm.Float(0.2)
	resp, err := f.service.SendMessage(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "other-model", resp.Model)
	assert.Equal(t, "other-model", f.provider.LastRequest().Model)
	assert.Equal(t, 0.2, *f.provider.LastRequest().Temperature)
}

func TestSendMessage_CreatesConversation(t *testing.T) {
	f := newFixture(t)
	f.provider.ChatFunc = func(ctx context.Context, req llm.ChatRequest) (string, error) {
		return "hi", nil
	}

	resp, err := f.service.SendMessage(context.Background(), SendMessageRequest{Message: "Start something new", UserID: testUser})
	require.NoError(t, err)
	require.NotEqual(t, f.convID, resp.ConversationID)

	conv, ok := f.store.Conversation(resp.ConversationID)
	require.True(t, ok)
	assert.Equal(t, testUser, conv.UserID)
	assert.Equal(t, "Start something new", conv.Title)
	assert.Len(t, f.store.Messages(resp.ConversationID), 2)
}

func TestSendMessage_UnknownConversation(t *testing.T) {
	f := newFixture(t)

	req := f.request("hello")
	req.ConversationID = "missing"
	_, err := f.service.SendMessage(context.Background(), req)
	assert.ErrorIs(t, err, session.ErrNotFound)

	req = f.request("hello")
	req.UserID = testUser + 1
	_, err = f.service.SendMessage(context.Background(), req)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestSendMessageStream(t *testing.T) {
	f := newFixture(t)
	f.provider.ChatStreamFunc = func(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
		return testutil.StreamOf("Hel", "", "lo"), nil
	}

	ch, err := f.service.SendMessageStream(context.Background(), f.request("greet me"))
	require.NoError(t, err)
	chunks := collect(t, ch)

	require.Len(t, chunks, 3)
	assert.Equal(t, StreamMessageChunk{Content: "Hel", ConvID: f.convID, Model: "test-model"}, chunks[0])
	assert.Equal(t, "lo", chunks[1].Content)
	assert.Empty(t, chunks[1].ConvID)
	assert.True(t, chunks[2].Done)
	assert.False(t, chunks[2].Fallback)

	stored := f.store.Messages(f.convID)
	require.Len(t, stored, 2)
	assert.Equal(t, "Hello", stored[1].Content)
}

func TestSendMessageStream_StartFailureServesFallback(t *testing.T) {
	f := newFixture(t)
	f.provider.ChatStreamFunc = func(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
		return nil, errors.New("connection refused")
	}

	ch, err := f.service.SendMessageStream(context.Background(), f.request("hello"))
	require.NoError(t, err)
	chunks := collect(t, ch)

	require.Len(t, chunks, 2)
	assert.Equal(t, "Sorry, I cannot answer right now.", chunks[0].Content)
	assert.True(t, chunks[0].Fallback)
	assert.Equal(t, f.convID, chunks[0].ConvID)
	assert.True(t, chunks[1].Done)
	assert.True(t, chunks[1].Fallback)

	stored := f.store.Messages(f.convID)
	require.Len(t, stored, 2)
	assert.Equal(t, chunks[0].Content, stored[1].Content)
}

func TestSendMessageStream_MidStreamErrorKeepsPartialReply(t *testing.T) {
	f := newFixture(t)
	f.provider.ChatStreamFunc = func(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
		ch := make(chan llm.StreamChunk, 2)
		ch <- llm.StreamChunk{Content: "partial"}
		ch <- llm.StreamChunk{Err: errors.New("connection reset"), IsDone: true}
		close(ch)
		return ch, nil
	}

	ch, err := f.service.SendMessageStream(context.Background(), f.request("hello"))
	require.NoError(t, err)
	chunks := collect(t, ch)

	require.Len(t, chunks, 2)
	assert.Equal(t, "partial", chunks[0].Content)
	assert.True(t, chunks[1].Done)
	assert.False(t, chunks[1].Fallback)

	stored := f.store.Messages(f.convID)
	require.Len(t, stored, 2)
	assert.Equal(t, "partial", stored[1].Content)
}

func TestSendMessageStream_ForwardsUsage(t *testing.T) {
	f := newFixture(t)
	usage := &llm.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}
	f.provider.ChatStreamFunc = func(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
		ch := make(chan llm.StreamChunk, 2)
		ch <- llm.StreamChunk{Content: "ok"}
		ch <- llm.StreamChunk{Usage: usage, IsDone: true}
		close(ch)
		return ch, nil
	}

	ch, err := f.service.SendMessageStream(context.Background(), f.request("hello"))
	require.NoError(t, err)
	chunks := collect(t, ch)

	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.True(t, last.Done)
	assert.Equal(t, usage, last.Usage)
}

func TestSendMessageStream_RejectsBeforeStreaming(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.SendMessageStream(context.Background(), f.request(""))
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, f.provider.Requests)
}

func TestSendMessage_QuestionSurvivesRollover(t *testing.T) {
	store := testutil.NewFakeStore()
	manager := session.NewManager(store, cache.NewMemoryCache(), &testutil.MockSummarizer{}, session.Options{
		TTL:          time.Minute,
		MaxRounds:    1,
		SystemPrompt: "You are a test assistant.",
	})
	conversations := conversation.NewConversationService(store, manager, nil)
	provider := &testutil.MockLLMProvider{
		ChatFunc: func(ctx context.Context, req llm.ChatRequest) (string, error) {
			return "reply", nil
		},
	}
	service := NewChatService(manager, conversations, provider, testutil.NewMockLLMConfig(), testutil.NewMockModelsConfig())

	conv, err := conversations.CreateConversation(context.Background(), testUser, "")
	require.NoError(t, err)

	for _, q := range []string{"first", "second"} {
		_, err := service.SendMessage(context.Background(), SendMessageRequest{Message: q, ConversationID: conv.ID, UserID: testUser})
		require.NoError(t, err)
	}

	req := provider.Requests[1]
	require.Len(t, req.Messages, 3)
	assert.Equal(t, llm.RoleSystem, req.Messages[1].Role)
	assert.Contains(t, req.Messages[1].Content, "summary")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "second"}, req.Messages[2])
}
