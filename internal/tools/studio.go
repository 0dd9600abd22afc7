package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"genai-studio/common"
	"genai-studio/internal/genai/gemini"
	"genai-studio/internal/studio"
	"genai-studio/internal/utils"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// toolDef 工作流到 MCP tool 的映射
type toolDef struct {
	name        string
	kind        studio.Kind
	description string
	promptDesc  string
	imageDesc   string
}

var toolDefs = []toolDef{
	{
		name:        "studio_product_mockup",
		kind:        studio.KindMockup,
		description: "Compose a logo onto a generated product scene. Returns the mockup as a JPEG image.",
		promptDesc:  "Description of the product scene, e.g. 'A white coffee mug with the logo on it.'",
		imageDesc:   "Logo image as a data URI or an HTTP/HTTPS URL.",
	},
	{
		name:        "studio_generate_image",
		kind:        studio.KindGenerator,
		description: "Generate one square JPEG image from a text prompt.",
		promptDesc:  "Text prompt describing the image to generate.",
	},
	{
		name:        "studio_edit_image",
		kind:        studio.KindEditor,
		description: "Apply a textual edit instruction to an image. Returns the edited image.",
		promptDesc:  "Instruction describing how to edit the image.",
		imageDesc:   "Image to edit as a data URI or an HTTP/HTTPS URL.",
	},
}

// RegisterStudioTools 注册商品效果图、文生图、图片编辑三个 MCP tools
func RegisterStudioTools(s *server.MCPServer, client gemini.GenimiIface, opts ...studio.Option) error {
	if client == nil {
		return fmt.Errorf("client is required")
	}

	for _, def := range toolDefs {
		wf, err := studio.Lookup(string(def.kind))
		if err != nil {
			return err
		}

		toolOpts := []mcp.ToolOption{
			mcp.WithDescription(def.description),
			mcp.WithString("prompt",
				mcp.Required(),
				mcp.Description(def.promptDesc),
			),
		}
		if wf.RequiresImage {
			toolOpts = append(toolOpts, mcp.WithString("image",
				mcp.Required(),
				mcp.Description(def.imageDesc),
			))
		}

		s.AddTool(mcp.NewTool(def.name, toolOpts...), workflowHandler(wf, client, opts...))
	}
	return nil
}

// workflowHandler 每次调用使用一个新的控制器，同步等待结果
func workflowHandler(wf studio.Workflow, client gemini.GenimiIface, opts ...studio.Option) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in := studio.Input{Prompt: req.GetString("prompt", "")}

		if ref := req.GetString("image", ""); ref != "" && wf.RequiresImage {
			image, err := utils.LoadImage(ctx, ref)
			if err != nil {
				common.WithError(err).WithField("workflow", wf.Kind).Warn("MCP: failed to load input image")
				return mcp.NewToolResultError(fmt.Sprintf("failed to load image: %v", err)), nil
			}
			in.Image = image
		}

		ctrl := studio.NewController(wf, client, opts...)
		defer ctrl.Close()

		done, err := ctrl.Submit(ctx, in)
		if err != nil {
			var verr *studio.ValidationError
			if errors.As(err, &verr) {
				return mcp.NewToolResultError(verr.Message), nil
			}
			return mcp.NewToolResultError(err.Error()), nil
		}

		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		state := ctrl.Snapshot()
		if state.Phase != studio.PhaseSuccess {
			return mcp.NewToolResultError(state.Message), nil
		}

		text := fmt.Sprintf("%s (request %s)", wf.ResultAlt, state.RequestID)
		if state.ImageURL != "" {
			text = fmt.Sprintf("%s: %s", text, state.ImageURL)
		}
		return mcp.NewToolResultImage(text, base64.StdEncoding.EncodeToString(state.Image), "image/jpeg"), nil
	}
}
