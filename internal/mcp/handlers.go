package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/quill/internal/errors"
	"github.com/hpungsan/quill/internal/plugin"
	"github.com/hpungsan/quill/internal/save"
	"github.com/hpungsan/quill/internal/shell"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	shell *shell.Shell
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sh *shell.Shell) *Handlers {
	return &Handlers{shell: sh}
}

// Request types for each tool

// NewRequest represents the arguments for editor_new.
type NewRequest struct {
	Name     string `json:"name,omitempty"`
	Content  string `json:"content,omitempty"`
	Language string `json:"language,omitempty"`
}

// PathRequest represents the arguments for editor_open.
type PathRequest struct {
	Path string `json:"path"`
}

// IDRequest represents the arguments for tools addressing one document.
type IDRequest struct {
	ID string `json:"id,omitempty"`
}

// SetTextRequest represents the arguments for editor_set_text.
type SetTextRequest struct {
	ID      string  `json:"id,omitempty"`
	Content *string `json:"content"`
}

// SaveRequest represents the arguments for editor_save.
type SaveRequest struct {
	ID       string  `json:"id,omitempty"`
	Path     string  `json:"path,omitempty"`
	Filename *string `json:"filename,omitempty"`
}

// SetCompareRequest represents the arguments for editor_set_compare.
type SetCompareRequest struct {
	Path    string  `json:"path,omitempty"`
	Content *string `json:"content,omitempty"`
	Name    string  `json:"name,omitempty"`
}

// SetModeRequest represents the arguments for editor_set_mode.
type SetModeRequest struct {
	Mode       string `json:"mode,omitempty"`
	ScrollLock *bool  `json:"scroll_lock,omitempty"`
	Policy     string `json:"policy,omitempty"`
}

// SaveAllOutput is the result of editor_save_all.
type SaveAllOutput struct {
	Outcomes []save.Outcome `json:"outcomes"`
	Status   shell.Status   `json:"status"`
}

// ActionsOutput lists the registered plugin actions.
type ActionsOutput struct {
	Actions []plugin.Action `json:"actions"`
}

// Handler implementations

// HandleList handles the editor_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.shell.List())
}

// HandleNew handles the editor_new tool call.
func (h *Handlers) HandleNew(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NewRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return successResult(h.shell.New(shell.NewInput{
		Name:     input.Name,
		Content:  input.Content,
		Language: input.Language,
	}))
}

// HandleOpen handles the editor_open tool call.
func (h *Handlers) HandleOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PathRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Path == "" {
		return errorResult(errors.NewInvalidRequest("path is required")), nil
	}

	result, err := h.shell.OpenPath(ctx, input.Path)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleActivate handles the editor_activate tool call.
func (h *Handlers) HandleActivate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ID == "" {
		return errorResult(errors.NewInvalidRequest("id is required")), nil
	}

	result, err := h.shell.Activate(input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleClose handles the editor_close tool call.
func (h *Handlers) HandleClose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.shell.CloseDocument(input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleGetText handles the editor_get_text tool call.
func (h *Handlers) HandleGetText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.shell.Text(input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSetText handles the editor_set_text tool call.
func (h *Handlers) HandleSetText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SetTextRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Content == nil {
		return errorResult(errors.NewInvalidRequest("content is required")), nil
	}

	result, err := h.shell.SetText(input.ID, *input.Content)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSave handles the editor_save tool call. Outcomes that did not reach
// storage are error results carrying the outcome's code.
func (h *Handlers) HandleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SaveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if input.Filename != nil {
		ctx = shell.WithFilename(ctx, *input.Filename)
	}
	var out save.Outcome
	if input.Path != "" {
		out = h.shell.SaveAs(ctx, input.ID, input.Path)
	} else {
		out = h.shell.Save(ctx, input.ID)
	}
	if !out.OK() && out.Status != save.StatusSkipped {
		return statusResult(h.shell.Status()), nil
	}
	return successResult(out)
}

// HandleSaveAll handles the editor_save_all tool call.
func (h *Handlers) HandleSaveAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outs := h.shell.SaveAll(ctx)
	return successResult(SaveAllOutput{Outcomes: outs, Status: h.shell.Status()})
}

// HandleSetCompare handles the editor_set_compare tool call.
func (h *Handlers) HandleSetCompare(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SetCompareRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	switch {
	case input.Path != "":
		result, err := h.shell.LoadCompare(ctx, input.Path)
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(result)
	case input.Content != nil:
		return successResult(h.shell.SetCompare(*input.Content, input.Name))
	}
	return errorResult(errors.NewInvalidRequest("path or content is required")), nil
}

// HandleClearCompare handles the editor_clear_compare tool call.
func (h *Handlers) HandleClearCompare(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.shell.ClearCompare())
}

// HandleSetMode handles the editor_set_mode tool call. Mode applies first so
// a lock can be engaged in the same call that enters split.
func (h *Handlers) HandleSetMode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SetModeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Mode == "" && input.ScrollLock == nil && input.Policy == "" {
		return errorResult(errors.NewInvalidRequest("mode, scroll_lock or policy is required")), nil
	}

	if input.Mode != "" {
		if _, err := h.shell.SetMode(input.Mode); err != nil {
			return errorResult(err), nil
		}
	}
	if input.Policy != "" {
		if _, err := h.shell.SetLockPolicy(input.Policy); err != nil {
			return errorResult(err), nil
		}
	}
	if input.ScrollLock != nil {
		if _, err := h.shell.SetScrollLock(*input.ScrollLock); err != nil {
			return errorResult(err), nil
		}
	}
	return successResult(h.shell.ViewState())
}

// HandleSetCursor handles the editor_set_cursor tool call.
func (h *Handlers) HandleSetCursor(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[shell.CursorInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.shell.SetCursor(input)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDiff handles the editor_diff tool call.
func (h *Handlers) HandleDiff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.shell.Diff())
}

// HandleRunAction handles the editor_run_action tool call.
func (h *Handlers) HandleRunAction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ID == "" {
		return successResult(ActionsOutput{Actions: h.shell.Actions()})
	}

	if err := h.shell.RunAction(ctx, input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(h.shell.Status())
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var qErr *errors.QuillError
	if stderrors.As(err, &qErr) {
		errorObj := map[string]any{
			"code":    qErr.Code,
			"message": qErr.Message,
			"status":  qErr.Status,
		}
		if qErr.Code != errors.ErrInternal && qErr.Details != nil {
			errorObj["details"] = qErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	return marshalError(payload)
}

// statusResult reports a failed shell status line as an error result.
func statusResult(st shell.Status) *mcp.CallToolResult {
	return marshalError(map[string]any{
		"error": map[string]any{
			"code":    st.Code,
			"message": st.Message,
			"op":      st.Op,
		},
	})
}

func marshalError(payload map[string]any) *mcp.CallToolResult {
	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
