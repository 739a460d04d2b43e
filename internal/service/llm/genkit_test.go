package llm

import (
	"chat-memory/internal/config"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenkitProvider_ChatErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	url := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"upstream down"}}`)
	})

	p, err := NewGenkitProvider(context.Background(),
		&config.LLMConfig{APIKey: "k", BaseURL: url, RequestTimeout: 5 * time.Second},
		config.NewStaticModelsConfig("test-model"))
	require.NoError(t, err)

	_, err = p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}
