package studio

import (
	"errors"
	"fmt"
)

// ErrUnknownWorkflow 未知的工作流
var ErrUnknownWorkflow = errors.New("unknown workflow")

// Kind 工作流类型
type Kind string

const (
	// KindMockup 商品效果图：logo + 描述 → 合成图
	KindMockup Kind = "mockup"
	// KindGenerator 文生图
	KindGenerator Kind = "generator"
	// KindEditor 图片编辑：图片 + 编辑指令 → 新图
	KindEditor Kind = "editor"
)

// Workflow 描述一个工作流的输入要求和对用户展示的固定文案
type Workflow struct {
	Kind          Kind
	Title         string
	RequiresImage bool

	ImageLabel        string
	UploadLabel       string
	PromptLabel       string
	DefaultPrompt     string
	PromptPlaceholder string
	SubmitLabel       string

	ValidationMessage string
	FailureMessage    string
	LoadingText       string
	PlaceholderText   string
	ResultAlt         string
}

var workflows = []Workflow{
	{
		Kind:              KindMockup,
		Title:             "Product Mockup",
		RequiresImage:     true,
		ImageLabel:        "1. Upload your logo",
		UploadLabel:       "Click to upload logo",
		PromptLabel:       "2. Describe the product",
		DefaultPrompt:     "A white coffee mug with the logo on it.",
		PromptPlaceholder: "e.g., A black t-shirt worn by a model...",
		SubmitLabel:       "Generate Mockup",
		ValidationMessage: "Please upload a logo and enter a prompt.",
		FailureMessage:    "Failed to generate mockup. Please try again.",
		LoadingText:       "Generating your mockup...",
		PlaceholderText:   "Your generated mockup will appear here.",
		ResultAlt:         "Generated Mockup",
	},
	{
		Kind:              KindGenerator,
		Title:             "Image Generator",
		PromptLabel:       "Enter your prompt",
		DefaultPrompt:     "A photorealistic image of a majestic lion in the savanna at sunset.",
		PromptPlaceholder: "e.g., An astronaut riding a horse on Mars...",
		SubmitLabel:       "Generate Image",
		ValidationMessage: "Please enter a prompt.",
		FailureMessage:    "Failed to generate image. Please try again.",
		LoadingText:       "Generating your image...",
		PlaceholderText:   "Your generated image will appear here.",
		ResultAlt:         "Generated Image",
	},
	{
		Kind:              KindEditor,
		Title:             "Image Editor",
		RequiresImage:     true,
		ImageLabel:        "1. Upload image to edit",
		UploadLabel:       "Click to upload an image",
		PromptLabel:       "2. Describe your edit",
		DefaultPrompt:     "Add a retro, vintage filter.",
		PromptPlaceholder: "e.g., Remove the person in the background...",
		SubmitLabel:       "Apply Edit",
		ValidationMessage: "Please upload an image and enter an editing instruction.",
		FailureMessage:    "Failed to edit image. Please try again.",
		LoadingText:       "Applying your edits...",
		PlaceholderText:   "Your edited image will appear here.",
		ResultAlt:         "Edited Image",
	},
}

// Workflows 按页面顺序返回全部工作流
func Workflows() []Workflow {
	out := make([]Workflow, len(workflows))
	copy(out, workflows)
	return out
}

// Lookup 按名称查找工作流
func Lookup(kind string) (Workflow, error) {
	for _, wf := range workflows {
		if string(wf.Kind) == kind {
			return wf, nil
		}
	}
	return Workflow{}, fmt.Errorf("%w: %q", ErrUnknownWorkflow, kind)
}
