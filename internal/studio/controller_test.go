package studio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"genai-studio/internal/genai/gemini"
	"genai-studio/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type mockClient struct {
	editCalls     atomic.Int32
	generateCalls atomic.Int32

	editFunc     func(ctx context.Context, image *utils.ImageInput, instruction string) ([]byte, error)
	generateFunc func(ctx context.Context, instruction string) ([]byte, error)
}

func (m *mockClient) EditImage(ctx context.Context, image *utils.ImageInput, instruction string) ([]byte, error) {
	m.editCalls.Add(1)
	if m.editFunc != nil {
		return m.editFunc(ctx, image, instruction)
	}
	return []byte("edited"), nil
}

func (m *mockClient) GenerateImage(ctx context.Context, instruction string) ([]byte, error) {
	m.generateCalls.Add(1)
	if m.generateFunc != nil {
		return m.generateFunc(ctx, instruction)
	}
	return []byte("generated"), nil
}

type mockPublisher struct {
	url string
	err error

	mu       sync.Mutex
	workflow string
	mimeType string
}

func (m *mockPublisher) Publish(ctx context.Context, workflow string, data []byte, mimeType string) (string, error) {
	m.mu.Lock()
	m.workflow, m.mimeType = workflow, mimeType
	m.mu.Unlock()
	return m.url, m.err
}

func mustLookup(t *testing.T, kind Kind) Workflow {
	t.Helper()
	wf, err := Lookup(string(kind))
	require.NoError(t, err)
	return wf
}

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("request did not settle")
	}
}

var logo = &utils.ImageInput{MIMEType: "image/png", Data: []byte("logo")}

// --- Tests ---

func TestController_ValidationNeverCallsClient(t *testing.T) {
	tests := []struct {
		kind    Kind
		input   Input
		message string
	}{
		{KindGenerator, Input{Prompt: ""}, "Please enter a prompt."},
		{KindGenerator, Input{Prompt: "   "}, "Please enter a prompt."},
		{KindMockup, Input{Prompt: "mug"}, "Please upload a logo and enter a prompt."},
		{KindMockup, Input{Image: logo}, "Please upload a logo and enter a prompt."},
		{KindEditor, Input{Prompt: "vintage"}, "Please upload an image and enter an editing instruction."},
		{KindEditor, Input{Prompt: "vintage", Image: &utils.ImageInput{}}, "Please upload an image and enter an editing instruction."},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			client := &mockClient{}
			c := NewController(mustLookup(t, tt.kind), client)
			defer c.Close()

			done, err := c.Submit(context.Background(), tt.input)
			assert.Nil(t, done)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.message, verr.Message)

			state := c.Snapshot()
			assert.Equal(t, PhaseIdle, state.Phase)
			assert.Equal(t, tt.message, state.Validation)
			assert.Zero(t, client.editCalls.Load())
			assert.Zero(t, client.generateCalls.Load())
		})
	}
}

func TestController_MockupScenario(t *testing.T) {
	release := make(chan struct{})
	client := &mockClient{
		editFunc: func(ctx context.Context, image *utils.ImageInput, instruction string) ([]byte, error) {
			assert.Equal(t, logo, image)
			assert.Equal(t, "A white coffee mug with the logo on it.", instruction)
			<-release
			return []byte("mockup-jpeg"), nil
		},
	}
	var phases []Phase
	var mu sync.Mutex
	c := NewController(mustLookup(t, KindMockup), client, WithOnChange(func(s State) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	}))
	defer c.Close()

	done, err := c.Submit(context.Background(), Input{Prompt: "A white coffee mug with the logo on it.", Image: logo})
	require.NoError(t, err)

	// Loading 在提交返回时已经生效
	loading := c.Snapshot()
	assert.Equal(t, PhaseLoading, loading.Phase)
	assert.NotEmpty(t, loading.RequestID)
	assert.Empty(t, loading.DataURI())

	close(release)
	wait(t, done)

	state := c.Snapshot()
	assert.Equal(t, PhaseSuccess, state.Phase)
	assert.Equal(t, []byte("mockup-jpeg"), state.Image)
	assert.Equal(t, utils.DataURI([]byte("mockup-jpeg")), state.DataURI())
	assert.Equal(t, int32(1), client.editCalls.Load())
	assert.Zero(t, client.generateCalls.Load())

	mu.Lock()
	assert.Equal(t, []Phase{PhaseLoading, PhaseSuccess}, phases)
	mu.Unlock()
}

func TestController_EditorNoImageInResponse(t *testing.T) {
	client := &mockClient{
		editFunc: func(context.Context, *utils.ImageInput, string) ([]byte, error) {
			return nil, gemini.ErrNoImageInResponse
		},
	}
	c := NewController(mustLookup(t, KindEditor), client)
	defer c.Close()

	done, err := c.Submit(context.Background(), Input{Prompt: "Add a retro, vintage filter.", Image: logo})
	require.NoError(t, err)
	wait(t, done)

	state := c.Snapshot()
	assert.Equal(t, PhaseError, state.Phase)
	assert.Equal(t, "Failed to edit image. Please try again.", state.Message)
	assert.Nil(t, state.Image)
}

func TestController_GeneratorUsesTextOnlyCall(t *testing.T) {
	client := &mockClient{}
	c := NewController(mustLookup(t, KindGenerator), client)
	defer c.Close()

	done, err := c.Submit(context.Background(), Input{Prompt: "a lion", Image: logo})
	require.NoError(t, err)
	wait(t, done)

	assert.Equal(t, PhaseSuccess, c.Snapshot().Phase)
	assert.Equal(t, int32(1), client.generateCalls.Load())
	assert.Zero(t, client.editCalls.Load())
}

func TestController_ResubmitClearsPreviousOutcome(t *testing.T) {
	var fail atomic.Bool
	release := make(chan struct{}, 1)
	client := &mockClient{
		generateFunc: func(context.Context, string) ([]byte, error) {
			<-release
			if fail.Load() {
				return nil, errors.New("quota exceeded")
			}
			return []byte("img"), nil
		},
	}
	c := NewController(mustLookup(t, KindGenerator), client)
	defer c.Close()

	// Success → Loading：旧结果被清空
	release <- struct{}{}
	done, err := c.Submit(context.Background(), Input{Prompt: "first"})
	require.NoError(t, err)
	wait(t, done)
	require.Equal(t, PhaseSuccess, c.Snapshot().Phase)
	firstID := c.Snapshot().RequestID

	fail.Store(true)
	done, err = c.Submit(context.Background(), Input{Prompt: "second"})
	require.NoError(t, err)
	state := c.Snapshot()
	assert.Equal(t, PhaseLoading, state.Phase)
	assert.Nil(t, state.Image)
	assert.NotEqual(t, firstID, state.RequestID)

	release <- struct{}{}
	wait(t, done)
	require.Equal(t, PhaseError, c.Snapshot().Phase)

	// Error → Loading：旧错误被清空
	fail.Store(false)
	done, err = c.Submit(context.Background(), Input{Prompt: "third"})
	require.NoError(t, err)
	state = c.Snapshot()
	assert.Equal(t, PhaseLoading, state.Phase)
	assert.Empty(t, state.Message)
	assert.Empty(t, state.Validation)

	release <- struct{}{}
	wait(t, done)
	assert.Equal(t, PhaseSuccess, c.Snapshot().Phase)
}

func TestController_BusyWhileLoading(t *testing.T) {
	release := make(chan struct{})
	client := &mockClient{
		generateFunc: func(context.Context, string) ([]byte, error) {
			<-release
			return []byte("img"), nil
		},
	}
	c := NewController(mustLookup(t, KindGenerator), client)
	defer c.Close()

	done, err := c.Submit(context.Background(), Input{Prompt: "a"})
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), Input{Prompt: "b"})
	assert.ErrorIs(t, err, ErrBusy)
	assert.True(t, c.Busy())

	close(release)
	wait(t, done)
	assert.Equal(t, int32(1), client.generateCalls.Load())
}

func TestController_CloseCancelsAndDiscards(t *testing.T) {
	started := make(chan struct{})
	client := &mockClient{
		generateFunc: func(ctx context.Context, _ string) ([]byte, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	c := NewController(mustLookup(t, KindGenerator), client)

	done, err := c.Submit(context.Background(), Input{Prompt: "a"})
	require.NoError(t, err)
	<-started

	c.Close()
	wait(t, done)

	// 关闭后到达的结果不落盘
	assert.Equal(t, PhaseLoading, c.Snapshot().Phase)

	_, err = c.Submit(context.Background(), Input{Prompt: "b"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestController_SubmitContextCancels(t *testing.T) {
	client := &mockClient{
		generateFunc: func(ctx context.Context, _ string) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	c := NewController(mustLookup(t, KindGenerator), client)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done, err := c.Submit(ctx, Input{Prompt: "a"})
	require.NoError(t, err)
	cancel()
	wait(t, done)

	state := c.Snapshot()
	assert.Equal(t, PhaseError, state.Phase)
	assert.Equal(t, "Failed to generate image. Please try again.", state.Message)
}

func TestController_Publisher(t *testing.T) {
	t.Run("URLAttachedOnSuccess", func(t *testing.T) {
		pub := &mockPublisher{url: "https://cdn/x.jpg"}
		c := NewController(mustLookup(t, KindEditor), &mockClient{}, WithPublisher(pub))
		defer c.Close()

		done, err := c.Submit(context.Background(), Input{Prompt: "p", Image: logo})
		require.NoError(t, err)
		wait(t, done)

		state := c.Snapshot()
		assert.Equal(t, PhaseSuccess, state.Phase)
		assert.Equal(t, "https://cdn/x.jpg", state.ImageURL)
		pub.mu.Lock()
		assert.Equal(t, "editor", pub.workflow)
		assert.Equal(t, "image/jpeg", pub.mimeType)
		pub.mu.Unlock()
	})

	t.Run("FailureKeepsInlineResult", func(t *testing.T) {
		pub := &mockPublisher{err: errors.New("bucket missing")}
		c := NewController(mustLookup(t, KindEditor), &mockClient{}, WithPublisher(pub))
		defer c.Close()

		done, err := c.Submit(context.Background(), Input{Prompt: "p", Image: logo})
		require.NoError(t, err)
		wait(t, done)

		state := c.Snapshot()
		assert.Equal(t, PhaseSuccess, state.Phase)
		assert.Empty(t, state.ImageURL)
		assert.Equal(t, []byte("edited"), state.Image)
	})
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "loading", PhaseLoading.String())
	assert.Equal(t, "success", PhaseSuccess.String())
	assert.Equal(t, "error", PhaseError.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
