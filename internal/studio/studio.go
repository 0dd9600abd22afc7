package studio

import (
	"context"
	"sync"
	"time"

	"genai-studio/common"
	"genai-studio/internal/genai/gemini"
)

// Studio 一个浏览器会话拥有的三个相互独立的控制器
type Studio struct {
	controllers map[Kind]*Controller

	mu       sync.Mutex
	lastSeen time.Time
}

// NewStudio 为每个工作流创建一个控制器
func NewStudio(client gemini.GenimiIface, opts ...Option) *Studio {
	s := &Studio{
		controllers: make(map[Kind]*Controller, len(workflows)),
		lastSeen:    time.Now(),
	}
	for _, wf := range workflows {
		s.controllers[wf.Kind] = NewController(wf, client, opts...)
	}
	return s
}

// Controller 返回指定工作流的控制器
func (s *Studio) Controller(kind Kind) (*Controller, error) {
	c, ok := s.controllers[kind]
	if !ok {
		return nil, ErrUnknownWorkflow
	}
	return c, nil
}

// touch 记录最近一次访问时间
func (s *Studio) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Studio) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Studio) busy() bool {
	for _, c := range s.controllers {
		if c.Busy() {
			return true
		}
	}
	return false
}

// Close 关闭所有控制器
func (s *Studio) Close() {
	for _, c := range s.controllers {
		c.Close()
	}
}

// Registry 会话 ID → Studio
type Registry struct {
	client gemini.GenimiIface
	opts   []Option
	now    func() time.Time

	mu      sync.Mutex
	studios map[string]*Studio
}

// NewRegistry 创建会话注册表，opts 作用于每个新建的控制器
func NewRegistry(client gemini.GenimiIface, opts ...Option) *Registry {
	return &Registry{
		client:  client,
		opts:    opts,
		now:     time.Now,
		studios: make(map[string]*Studio),
	}
}

// Get 返回会话对应的 Studio，不存在时创建
func (r *Registry) Get(sessionID string) *Studio {
	now := r.now()

	r.mu.Lock()
	s, ok := r.studios[sessionID]
	if !ok {
		s = NewStudio(r.client, r.opts...)
		r.studios[sessionID] = s
	}
	r.mu.Unlock()

	if !ok {
		common.WithField("session_id", sessionID).Debug("Created studio for new session")
	}
	s.touch(now)
	return s
}

// Len 当前会话数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.studios)
}

// Sweep 关闭并移除空闲超过 maxIdle 的会话，有请求进行中的会话保留
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	var evicted []*Studio
	r.mu.Lock()
	for id, s := range r.studios {
		if s.idleSince().Before(cutoff) && !s.busy() {
			evicted = append(evicted, s)
			delete(r.studios, id)
		}
	}
	r.mu.Unlock()

	for _, s := range evicted {
		s.Close()
	}
	if len(evicted) > 0 {
		common.WithField("count", len(evicted)).Info("Evicted idle studio sessions")
	}
	return len(evicted)
}

// Run 定期清理空闲会话，直到 ctx 结束
func (r *Registry) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(maxIdle)
		}
	}
}

// Close 关闭全部会话
func (r *Registry) Close() {
	r.mu.Lock()
	studios := r.studios
	r.studios = make(map[string]*Studio)
	r.mu.Unlock()

	for _, s := range studios {
		s.Close()
	}
}
