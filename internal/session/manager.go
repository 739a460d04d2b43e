package session

import (
	"chat-memory/internal/cache"
	"chat-memory/internal/config"
	"chat-memory/internal/logger"
	"chat-memory/internal/repository/db"
	"chat-memory/internal/service/llm"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// summaryPrefix frames the rolling summary as prior context for the model
const summaryPrefix = "Summary of the earlier conversation: "

// Summarizer folds a window of messages and the previous summary into a new summary
type Summarizer interface {
	Summarize(ctx context.Context, transcript []llm.Message, prior *string) (string, error)
}

// expirer is implemented by caches that hold entries the backend will not expire on its own
type expirer interface {
	PurgeExpired() int
}

// Options configures a Manager. Zero values take the defaults.
type Options struct {
	TTL               time.Duration
	MaxRounds         int
	MaxTokens         int
	CleanupInterval   time.Duration
	SummaryTimeout    time.Duration
	SystemPrompt      string
	ImportantKeywords []string
	RoleWeights       map[string]float64
	Now               func() time.Time
}

// OptionsFromConfig maps the session configuration onto manager options
func OptionsFromConfig(cfg config.SessionConfig, systemPrompt string) Options {
	return Options{
		TTL:               cfg.TTL,
		MaxRounds:         cfg.MaxRounds,
		MaxTokens:         cfg.MaxTokens,
		CleanupInterval:   cfg.CleanupInterval,
		SummaryTimeout:    cfg.SummaryTimeout,
		SystemPrompt:      systemPrompt,
		ImportantKeywords: cfg.ImportantKeywords,
		RoleWeights:       cfg.RoleWeights,
	}
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 600 * time.Second
	}
	if o.MaxRounds <= 0 {
		o.MaxRounds = 10
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4000
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = 5 * time.Minute
	}
	if o.SummaryTimeout <= 0 {
		o.SummaryTimeout = 30 * time.Second
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = config.DefaultSystemPrompt
	}
	if o.ImportantKeywords == nil {
		o.ImportantKeywords = config.DefaultImportantKeywords()
	}
	if o.RoleWeights == nil {
		o.RoleWeights = config.DefaultRoleWeights()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Manager is the single entry point for a conversation's short-term memory
type Manager struct {
	store      db.ConversationStore
	cache      cache.Cache
	summarizer Summarizer
	opts       Options
	scorer     *Scorer
	locks      *keyLock

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a new session manager
func NewManager(store db.ConversationStore, sessionCache cache.Cache, summarizer Summarizer, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		store:      store,
		cache:      sessionCache,
		summarizer: summarizer,
		opts:       opts,
		scorer:     NewScorer(opts.RoleWeights, opts.ImportantKeywords),
		locks:      newKeyLock(),
	}
}

// Start launches the janitor that purges expired in-process cache entries.
// Calling Start on a running manager is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.janitor(ctx, m.done)

	logger.Log.WithField("interval", m.opts.CleanupInterval.String()).Info("Session janitor started")
}

// Stop halts the janitor and waits for it to exit
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Log.Info("Session janitor stopped")
}

func (m *Manager) janitor(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.PurgeExpired()
		}
	}
}

// PurgeExpired runs one janitor pass and returns the number of entries dropped
func (m *Manager) PurgeExpired() int {
	e, ok := m.cache.(expirer)
	if !ok {
		return 0
	}
	purged := e.PurgeExpired()
	if purged > 0 {
		logger.Log.WithField("purged", purged).Debug("Purged expired sessions")
	}
	return purged
}

func (m *Manager) now() time.Time {
	return m.opts.Now().UTC()
}

// GetSession returns the live session for a conversation. A cached session has its
// activity time and TTL refreshed; otherwise an empty session carrying the durable
// summary is returned without being cached.
func (m *Manager) GetSession(ctx context.Context, userID int64, conversationID string) (*Session, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required: %w", ErrInvalidArgument)
	}

	unlock, err := m.locks.Lock(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, cached, err := m.load(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if cached {
		s.LastActivity = m.now()
		m.save(ctx, s)
	}
	return s, nil
}

// AddMessage appends a message to the window and the durable log, sets the title on the
// first user turn and rolls the window into a summary once it exceeds MaxRounds.
func (m *Manager) AddMessage(ctx context.Context, userID int64, conversationID, role, content string, tokens int) (*Session, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required: %w", ErrInvalidArgument)
	}
	msgRole, ok := db.ParseRole(role)
	if !ok {
		return nil, fmt.Errorf("unknown role %q: %w", role, ErrInvalidArgument)
	}
	if tokens < 0 {
		return nil, fmt.Errorf("negative token count: %w", ErrInvalidArgument)
	}

	unlock, err := m.locks.Lock(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, _, err := m.load(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	log := logger.WithConversation(conversationID).WithField("user_id", userID)

	importance := m.scorer.Score(msgRole, content)
	stored, err := m.store.AppendMessage(ctx, conversationID, newMessageID(userID), msgRole, content, tokens, importance)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error persisting message: %w", err)
	}

	s.Messages = append(s.Messages, Message{
		Role:       msgRole,
		Content:    content,
		Timestamp:  stored.CreatedAt.UTC(),
		Tokens:     tokens,
		Importance: importance,
	})
	s.TotalTokens += tokens
	s.LastActivity = m.now()

	if msgRole == db.RoleUser && s.Rounds() == 1 {
		m.maybeSetTitle(ctx, log, conversationID, content)
	}

	if s.OverBudget() {
		log.WithFields(logrus.Fields{"total_tokens": s.TotalTokens, "max_tokens": s.MaxTokens}).Debug("Session over token budget")
	}

	if rounds := s.Rounds(); rounds > s.MaxRounds {
		log.WithFields(logrus.Fields{"rounds": rounds, "max_rounds": s.MaxRounds}).Info("Round limit exceeded, rolling session over")
		m.rollover(ctx, log, s)
	}

	m.save(ctx, s)
	return s, nil
}

// maybeSetTitle titles the conversation from its first user message. The durable
// count guards against re-titling after a rollover or cache expiry empties the window.
func (m *Manager) maybeSetTitle(ctx context.Context, log *logrus.Entry, conversationID, content string) {
	count, err := m.store.CountMessages(ctx, conversationID, db.RoleUser)
	if err != nil {
		log.WithError(err).Warn("Failed to count user messages, skipping title")
		return
	}
	if count != 1 {
		return
	}

	title := TitleFromMessage(content)
	if title == "" {
		return
	}
	if _, err := m.store.UpdateTitle(ctx, conversationID, title); err != nil {
		log.WithError(err).Error("Failed to update conversation title")
	}
}

// rollover replaces the window with a summary. On failure the session is left untouched
// so the next AddMessage retries with the same window.
func (m *Manager) rollover(ctx context.Context, log *logrus.Entry, s *Session) {
	if m.summarizer == nil {
		log.Warn("No summarizer configured, skipping rollover")
		return
	}

	summaryCtx, cancel := context.WithTimeout(ctx, m.opts.SummaryTimeout)
	defer cancel()

	summary, err := m.summarizer.Summarize(summaryCtx, s.History(), s.Summary)
	if err != nil {
		log.WithError(err).Error("Failed to summarize session, keeping window")
		return
	}

	updated, err := m.store.UpdateSummary(ctx, s.ConversationID, summary)
	if err != nil {
		log.WithError(err).Error("Failed to persist summary, keeping window")
		return
	}
	if !updated {
		log.Warn("Conversation vanished during rollover, keeping window")
		return
	}

	dropped := len(s.Messages)
	s.clearWindow(summary)
	log.WithFields(logrus.Fields{"dropped_messages": dropped, "summary_length": len(summary)}).Info("Session rolled over")
}

// GetConversationContext builds the message list for the model: the system preamble,
// the summary as prior context when present, then the live window.
func (m *Manager) GetConversationContext(ctx context.Context, userID int64, conversationID string) ([]llm.Message, error) {
	s, err := m.GetSession(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(s.Messages)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: m.opts.SystemPrompt})
	if s.Summary != nil && *s.Summary != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: summaryPrefix + *s.Summary})
	}
	return append(messages, s.History()...), nil
}

// ClearSession removes the cached session. The durable store is not touched.
func (m *Manager) ClearSession(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id is required: %w", ErrInvalidArgument)
	}

	// Serialized with writers so an in-flight AddMessage cannot re-cache the session
	unlock, err := m.locks.Lock(ctx, conversationID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.cache.Delete(ctx, cache.SessionKey(conversationID)); err != nil {
		logger.WithConversation(conversationID).WithError(err).Warn("Failed to clear cached session")
	}
	logger.WithConversation(conversationID).Debug("Cleared cached session")
	return nil
}

// load reads the session from cache, or builds an empty one from the durable
// conversation. The bool reports a cache hit.
func (m *Manager) load(ctx context.Context, userID int64, conversationID string) (*Session, bool, error) {
	key := cache.SessionKey(conversationID)
	log := logger.WithConversation(conversationID)

	raw, ok, err := m.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Session cache read failed, loading from store")
		ok = false
	}
	if ok {
		s, err := Decode(raw, m.opts.MaxTokens, m.opts.MaxRounds)
		if err == nil && s.ConversationID == conversationID {
			if s.UserID != userID {
				return nil, false, ErrNotFound
			}
			return s, true, nil
		}
		log.WithError(err).Warn("Discarding undecodable cached session")
		if err := m.cache.Delete(ctx, key); err != nil {
			log.WithError(err).Warn("Failed to delete undecodable session")
		}
	}

	conv, err := m.store.GetConversation(ctx, conversationID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("error loading conversation: %w", err)
	}
	if conv.UserID != userID {
		return nil, false, ErrNotFound
	}

	s := New(userID, conversationID, m.opts.MaxTokens, m.opts.MaxRounds, m.now())
	s.Summary = conv.Summary
	log.Debug("Cold-loaded session from store")
	return s, false, nil
}

// save writes the session back with a fresh TTL. Cache failures are logged only.
func (m *Manager) save(ctx context.Context, s *Session) {
	raw, err := Encode(s)
	if err != nil {
		logger.WithConversation(s.ConversationID).WithError(err).Error("Failed to encode session")
		return
	}
	if err := m.cache.SetWithExpiry(ctx, cache.SessionKey(s.ConversationID), raw, m.opts.TTL); err != nil {
		logger.WithConversation(s.ConversationID).WithError(err).Warn("Failed to cache session")
	}
}

// newMessageID returns msg_<16 hex>_<user id>
func newMessageID(userID int64) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "msg_" + hex[:16] + "_" + strconv.FormatInt(userID, 10)
}
