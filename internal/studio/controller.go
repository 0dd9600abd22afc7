package studio

import (
	"context"
	"strings"
	"sync"
	"time"

	"genai-studio/common"
	"genai-studio/internal/genai/gemini"

	"github.com/google/uuid"
)

// resultMIMEType 结果图片按 JPEG 展示和发布
const resultMIMEType = "image/jpeg"

// Publisher 把成功的结果额外发布到外部存储
type Publisher interface {
	Publish(ctx context.Context, workflow string, data []byte, mimeType string) (string, error)
}

// Option 控制器可选配置
type Option func(*Controller)

// WithPublisher 成功后把结果上传到外部存储
func WithPublisher(p Publisher) Option {
	return func(c *Controller) {
		c.publisher = p
	}
}

// WithOnChange 每次状态变化后回调（在锁外调用）
func WithOnChange(fn func(State)) Option {
	return func(c *Controller) {
		c.onChange = fn
	}
}

// Controller 单个工作流的请求/结果状态机：
// Idle → Loading → Success | Error，任何非 Loading 状态都可以重新提交。
type Controller struct {
	wf        Workflow
	client    gemini.GenimiIface
	publisher Publisher
	onChange  func(State)

	// 生命周期，Close 时取消所有进行中的请求
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	closed bool
}

// NewController 创建控制器，初始状态为 Idle
func NewController(wf Workflow, client gemini.GenimiIface, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		wf:     wf,
		client: client,
		ctx:    ctx,
		cancel: cancel,
		state:  State{Phase: PhaseIdle, UpdatedAt: time.Now()},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Workflow 返回控制器对应的工作流
func (c *Controller) Workflow() Workflow {
	return c.wf
}

// Snapshot 返回当前状态
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy 是否有请求正在进行
func (c *Controller) Busy() bool {
	return c.Snapshot().Phase == PhaseLoading
}

// Submit 校验输入并发起一次生成请求。
// 校验失败时不发请求、不改变阶段，只记录提示并返回 *ValidationError。
// 成功受理后立即进入 Loading，返回的 channel 在请求结束时关闭。
// 请求使用 ctx 和控制器生命周期中先结束的那个。
func (c *Controller) Submit(ctx context.Context, in Input) (<-chan struct{}, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.state.Phase == PhaseLoading {
		c.mu.Unlock()
		return nil, ErrBusy
	}

	if err := c.validate(in); err != nil {
		c.state.Validation = err.Message
		c.state.UpdatedAt = time.Now()
		snapshot := c.state
		c.mu.Unlock()

		common.WithFields(map[string]interface{}{
			"workflow": c.wf.Kind,
		}).Debug("Submission rejected by validation")
		c.notify(snapshot)
		return nil, err
	}

	// 重新提交会清掉上一次的结果和错误
	requestID := uuid.NewString()
	c.state = State{
		Phase:     PhaseLoading,
		RequestID: requestID,
		UpdatedAt: time.Now(),
	}
	snapshot := c.state
	c.mu.Unlock()

	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)

	common.WithFields(map[string]interface{}{
		"workflow":   c.wf.Kind,
		"request_id": requestID,
		"has_image":  in.Image != nil,
	}).Info("Generation request started")
	c.notify(snapshot)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer stop()
		defer cancel()
		c.run(callCtx, requestID, in)
	}()
	return done, nil
}

// validate 检查提交前置条件
func (c *Controller) validate(in Input) *ValidationError {
	if strings.TrimSpace(in.Prompt) == "" {
		return &ValidationError{Workflow: c.wf.Kind, Message: c.wf.ValidationMessage}
	}
	if c.wf.RequiresImage && (in.Image == nil || len(in.Image.Data) == 0) {
		return &ValidationError{Workflow: c.wf.Kind, Message: c.wf.ValidationMessage}
	}
	return nil
}

// run 执行一次请求并落定状态
func (c *Controller) run(ctx context.Context, requestID string, in Input) {
	fields := map[string]interface{}{
		"workflow":   c.wf.Kind,
		"request_id": requestID,
	}
	start := time.Now()

	var (
		data []byte
		err  error
	)
	if c.wf.RequiresImage {
		data, err = c.client.EditImage(ctx, in.Image, in.Prompt)
	} else {
		data, err = c.client.GenerateImage(ctx, in.Prompt)
	}

	var imageURL string
	if err == nil && c.publisher != nil {
		url, perr := c.publisher.Publish(ctx, string(c.wf.Kind), data, resultMIMEType)
		if perr != nil {
			common.WithError(perr).WithFields(fields).Warn("Failed to publish result, keeping inline image")
		} else {
			imageURL = url
		}
	}

	c.mu.Lock()
	// 控制器已关闭或已被新请求替换，丢弃结果
	if c.closed || c.state.RequestID != requestID {
		c.mu.Unlock()
		common.WithFields(fields).Debug("Discarding stale generation result")
		return
	}
	if err != nil {
		c.state = State{
			Phase:     PhaseError,
			Message:   c.wf.FailureMessage,
			RequestID: requestID,
			UpdatedAt: time.Now(),
		}
	} else {
		c.state = State{
			Phase:     PhaseSuccess,
			Image:     data,
			ImageURL:  imageURL,
			RequestID: requestID,
			UpdatedAt: time.Now(),
		}
	}
	snapshot := c.state
	c.mu.Unlock()

	entry := common.WithFields(fields).WithField("duration", time.Since(start).String())
	if err != nil {
		// 原始错误只进日志，用户看到的是固定文案
		entry.WithError(err).Error("Generation request failed")
	} else {
		entry.WithField("size", len(data)).Info("Generation request succeeded")
	}
	c.notify(snapshot)
}

func (c *Controller) notify(s State) {
	if c.onChange != nil {
		c.onChange(s)
	}
}

// Close 取消进行中的请求，之后到达的结果被丢弃
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}
