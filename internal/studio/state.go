package studio

import (
	"errors"
	"time"

	"genai-studio/internal/utils"
)

var (
	// ErrBusy 上一次请求尚未结束
	ErrBusy = errors.New("a request is already in progress")
	// ErrClosed 控制器已关闭
	ErrClosed = errors.New("controller is closed")
)

// Phase 控制器所处阶段
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSuccess
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// State 控制器状态快照
type State struct {
	Phase Phase
	// Image 成功时服务端返回的原始图片字节
	Image []byte
	// ImageURL 结果发布到 OSS 后的地址
	ImageURL string
	// Message 请求失败时展示给用户的固定文案
	Message string
	// Validation 输入校验失败的提示，不触发网络请求
	Validation string
	RequestID  string
	UpdatedAt  time.Time
}

// DataURI 结果图片的 data URI，无结果时为空
func (s State) DataURI() string {
	if s.Phase != PhaseSuccess || len(s.Image) == 0 {
		return ""
	}
	return utils.DataURI(s.Image)
}

// Input 一次提交的输入
type Input struct {
	Prompt string
	Image  *utils.ImageInput
}

// ValidationError 缺少必需输入
type ValidationError struct {
	Workflow Kind
	Message  string
}

func (e *ValidationError) Error() string {
	return string(e.Workflow) + ": " + e.Message
}
