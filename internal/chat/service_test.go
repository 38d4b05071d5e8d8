package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FabG/proxy-uc-genie/internal/inference"
	"github.com/FabG/proxy-uc-genie/internal/models"
)

// fakeAdapter is a scriptable inference backend.
type fakeAdapter struct {
	mu       sync.Mutex
	fail     bool
	reply    string
	models   []string
	requests []inference.Request
}

func (f *fakeAdapter) Generate(ctx context.Context, req inference.Request) (*inference.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.fail {
		return nil, errors.New("backend unreachable")
	}
	reply := f.reply
	if reply == "" {
		reply = "generated reply"
	}
	return &inference.Result{
		Text:           reply,
		ProcessingTime: 42 * time.Millisecond,
		TokenCount:     7,
	}, nil
}

func (f *fakeAdapter) ListModels(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("backend unreachable")
	}
	if f.models == nil {
		return []string{"llama2", "mistral"}, nil
	}
	return f.models, nil
}

func (f *fakeAdapter) Ping(ctx context.Context) error {
	_, err := f.ListModels(ctx)
	return err
}

func (f *fakeAdapter) lastRequest(t *testing.T) inference.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newTestService(adapter *fakeAdapter) (*Service, *Store) {
	store := NewStore()
	return NewService(store, adapter, "llama2", zap.NewNop().Sugar()), store
}

func TestStartConversation(t *testing.T) {
	adapter := &fakeAdapter{reply: "hello there"}
	service, _ := newTestService(adapter)

	result, err := service.StartConversation(context.Background(), TurnRequest{
		Message:   "hello",
		Model:     "m1",
		UseCaseID: "100000",
	})
	require.NoError(t, err)

	conv := result.Conversation
	assert.NotEmpty(t, conv.ID)
	_, err = uuid.Parse(conv.ID)
	assert.NoError(t, err)

	require.Len(t, conv.Messages, 2)
	assert.Equal(t, models.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Equal(t, models.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "hello there", conv.Messages[1].Content)
	assert.Equal(t, "100000", conv.UseCaseID)
	assert.Equal(t, "m1", conv.ModelUsed)

	assert.True(t, result.Success)
	assert.Equal(t, "hello there", result.Response)
	assert.Equal(t, 7, result.TokenCount)
	assert.Greater(t, result.ProcessingTime, 0.0)

	// Only the fresh user message goes to the backend.
	sent := adapter.lastRequest(t)
	require.Len(t, sent.Messages, 1)
	assert.Equal(t, "hello", sent.Messages[0].Content)
	assert.Equal(t, "m1", sent.Model)
}

func TestStartConversationDefaults(t *testing.T) {
	adapter := &fakeAdapter{}
	service, _ := newTestService(adapter)

	result, err := service.StartConversation(context.Background(), TurnRequest{Message: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "llama2", result.Conversation.ModelUsed)
	assert.Equal(t, "unknown", result.Conversation.UseCaseID)
}

func TestStartConversationEmptyMessage(t *testing.T) {
	service, _ := newTestService(&fakeAdapter{})

	_, err := service.StartConversation(context.Background(), TurnRequest{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestStartConversationDegradesOnBackendFailure(t *testing.T) {
	adapter := &fakeAdapter{fail: true}
	service, _ := newTestService(adapter)

	result, err := service.StartConversation(context.Background(), TurnRequest{
		Message:   "hello",
		UseCaseID: "100000",
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, degradedReply, result.Response)
	assert.Zero(t, result.TokenCount)

	// The conversation is still created and stored.
	conv, err := service.GetConversation(result.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, degradedReply, conv.Messages[1].Content)
}

func TestContinueConversation(t *testing.T) {
	adapter := &fakeAdapter{}
	service, _ := newTestService(adapter)

	started, err := service.StartConversation(context.Background(), TurnRequest{
		Message:   "hello",
		UseCaseID: "100000",
	})
	require.NoError(t, err)

	continued, err := service.ContinueConversation(context.Background(), started.Conversation.ID, TurnRequest{
		Message: "again",
	})
	require.NoError(t, err)

	conv := continued.Conversation
	require.Len(t, conv.Messages, 4)
	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Equal(t, "again", conv.Messages[2].Content)
	assert.Equal(t, "100000", conv.UseCaseID)

	for i := 1; i < len(conv.Messages); i++ {
		assert.GreaterOrEqual(t, conv.Messages[i].Timestamp, conv.Messages[i-1].Timestamp)
	}
}

func TestContinueConversationUnknownID(t *testing.T) {
	service, _ := newTestService(&fakeAdapter{})

	_, err := service.ContinueConversation(context.Background(), uuid.NewString(), TurnRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestContinueTruncatesContextNotHistory(t *testing.T) {
	adapter := &fakeAdapter{}
	service, store := newTestService(adapter)

	conv := &models.Conversation{
		ID:        uuid.NewString(),
		ModelUsed: "m1",
		UseCaseID: "100000",
	}
	for i := 0; i < 30; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		conv.Messages = append(conv.Messages, models.ChatMessage{
			Role:      role,
			Content:   fmt.Sprintf("msg-%d", i),
			Timestamp: float64(i),
		})
	}
	store.Create(conv)

	result, err := service.ContinueConversation(context.Background(), conv.ID, TurnRequest{Message: "latest"})
	require.NoError(t, err)

	// The backend sees the last 10 stored messages plus the new user turn.
	sent := adapter.lastRequest(t)
	require.Len(t, sent.Messages, contextWindowSize+1)
	assert.Equal(t, "msg-20", sent.Messages[0].Content)
	assert.Equal(t, "msg-29", sent.Messages[contextWindowSize-1].Content)
	assert.Equal(t, "latest", sent.Messages[contextWindowSize].Content)

	// Stored history is never truncated.
	assert.Len(t, result.Conversation.Messages, 32)
}

func TestContinueModelOverride(t *testing.T) {
	adapter := &fakeAdapter{}
	service, _ := newTestService(adapter)

	started, err := service.StartConversation(context.Background(), TurnRequest{Message: "hello", Model: "m1"})
	require.NoError(t, err)

	continued, err := service.ContinueConversation(context.Background(), started.Conversation.ID, TurnRequest{
		Message: "switch",
		Model:   "m2",
	})
	require.NoError(t, err)
	assert.Equal(t, "m2", continued.ModelUsed)
	assert.Equal(t, "m2", adapter.lastRequest(t).Model)

	// Without an override the conversation's model sticks.
	continued, err = service.ContinueConversation(context.Background(), started.Conversation.ID, TurnRequest{
		Message: "and back",
	})
	require.NoError(t, err)
	assert.Equal(t, "m2", continued.ModelUsed)
}

func TestDeleteConversation(t *testing.T) {
	service, _ := newTestService(&fakeAdapter{})

	started, err := service.StartConversation(context.Background(), TurnRequest{Message: "hello"})
	require.NoError(t, err)
	id := started.Conversation.ID

	require.NoError(t, service.DeleteConversation(id))

	_, err = service.GetConversation(id)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = service.ContinueConversation(context.Background(), id, TurnRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	assert.ErrorIs(t, service.DeleteConversation(id), ErrConversationNotFound)
}

func TestListModelsPassthrough(t *testing.T) {
	adapter := &fakeAdapter{models: []string{"m1", "m2"}}
	service, _ := newTestService(adapter)

	got, err := service.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, got)
}

func TestHealthCheckDegradesWhenBackendDown(t *testing.T) {
	adapter := &fakeAdapter{}
	service, _ := newTestService(adapter)

	_, err := service.StartConversation(context.Background(), TurnRequest{Message: "hello"})
	require.NoError(t, err)

	health := service.HealthCheck(context.Background())
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.ActiveConversations)

	adapter.mu.Lock()
	adapter.fail = true
	adapter.mu.Unlock()

	health = service.HealthCheck(context.Background())
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "unreachable", health.Inference)
	assert.Equal(t, 1, health.ActiveConversations)
}

func TestConcurrentContinuationsStayOrdered(t *testing.T) {
	adapter := &fakeAdapter{}
	service, _ := newTestService(adapter)

	started, err := service.StartConversation(context.Background(), TurnRequest{Message: "hello"})
	require.NoError(t, err)
	id := started.Conversation.ID

	const turns = 16
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := service.ContinueConversation(context.Background(), id, TurnRequest{
				Message: fmt.Sprintf("turn-%d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	conv, err := service.GetConversation(id)
	require.NoError(t, err)

	// No turn is lost and user/assistant pairs never interleave.
	require.Len(t, conv.Messages, 2+2*turns)
	for i, msg := range conv.Messages {
		if i%2 == 0 {
			assert.Equal(t, models.RoleUser, msg.Role)
		} else {
			assert.Equal(t, models.RoleAssistant, msg.Role)
		}
	}
	for i := 1; i < len(conv.Messages); i++ {
		assert.GreaterOrEqual(t, conv.Messages[i].Timestamp, conv.Messages[i-1].Timestamp)
	}
}
