package mcp

import "github.com/mark3labs/mcp-go/mcp"

const idDescription = "Document ID. Omit to use the active document."

var listToolDef = mcp.NewTool("editor_list",
	mcp.WithDescription("List open documents in tab order with the active document ID."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var newToolDef = mcp.NewTool("editor_new",
	mcp.WithDescription("Create a document and make it active. Names are made unique within the session."),
	mcp.WithString("name", mcp.Description("Document name. Defaults to Untitled.")),
	mcp.WithString("content", mcp.Description("Initial content.")),
	mcp.WithString("language", mcp.Description("Language ID. Inferred from the name when omitted.")),
)

var openToolDef = mcp.NewTool("editor_open",
	mcp.WithDescription("Open a file into a new document bound to that file. Re-opening an open file activates its document."),
	mcp.WithString("path", mcp.Required(), mcp.Description("File path.")),
)

var activateToolDef = mcp.NewTool("editor_activate",
	mcp.WithDescription("Make a document the active one."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Document ID.")),
)

var closeToolDef = mcp.NewTool("editor_close",
	mcp.WithDescription("Close a document without saving. Closing the last document leaves a fresh untitled one."),
	mcp.WithString("id", mcp.Description(idDescription)),
	mcp.WithDestructiveHintAnnotation(true),
)

var getTextToolDef = mcp.NewTool("editor_get_text",
	mcp.WithDescription("Return a document with its content."),
	mcp.WithString("id", mcp.Description(idDescription)),
	mcp.WithReadOnlyHintAnnotation(true),
)

var setTextToolDef = mcp.NewTool("editor_set_text",
	mcp.WithDescription("Replace a document's content. The document becomes dirty."),
	mcp.WithString("id", mcp.Description(idDescription)),
	mcp.WithString("content", mcp.Required(), mcp.Description("New content.")),
)

var saveToolDef = mcp.NewTool("editor_save",
	mcp.WithDescription("Save a document. Bound documents are written in place; unbound ones go to path, or to the downloads directory when no path is given."),
	mcp.WithString("id", mcp.Description(idDescription)),
	mcp.WithString("path", mcp.Description("Save As destination. Binds the document to this file.")),
	mcp.WithString("filename", mcp.Description("Download file name for an unbound document saved without a path. An empty name cancels the save.")),
)

var saveAllToolDef = mcp.NewTool("editor_save_all",
	mcp.WithDescription("Save every dirty document and report one outcome per document."),
)

var setCompareToolDef = mcp.NewTool("editor_set_compare",
	mcp.WithDescription("Load the compare buffer from a file path or from literal content."),
	mcp.WithString("path", mcp.Description("File to load. Takes precedence over content.")),
	mcp.WithString("content", mcp.Description("Literal compare content.")),
	mcp.WithString("name", mcp.Description("Display name for literal content.")),
)

var clearCompareToolDef = mcp.NewTool("editor_clear_compare",
	mcp.WithDescription("Empty the compare buffer."),
)

var setModeToolDef = mcp.NewTool("editor_set_mode",
	mcp.WithDescription("Set the view mode, and optionally the scroll lock and its policy."),
	mcp.WithString("mode", mcp.Description("View mode."), mcp.Enum("single", "split", "diff")),
	mcp.WithBoolean("scroll_lock", mcp.Description("Engage or release the scroll lock. Only split mode accepts a lock.")),
	mcp.WithString("policy", mcp.Description("Scroll lock policy."), mcp.Enum("sync", "offset")),
)

var setCursorToolDef = mcp.NewTool("editor_set_cursor",
	mcp.WithDescription("Set the selection and scroll offset of the edited pane. Plugin actions read and replace this selection; a locked compare pane follows the scroll."),
	mcp.WithNumber("selection_start", mcp.Description("Selection start as a byte offset. Without selection_end the selection collapses to a caret here.")),
	mcp.WithNumber("selection_end", mcp.Description("Selection end as a byte offset.")),
	mcp.WithNumber("scroll_top", mcp.Description("Vertical scroll offset in pixels.")),
)

var diffToolDef = mcp.NewTool("editor_diff",
	mcp.WithDescription("Summarize the line differences between the active document and the compare buffer."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var runActionToolDef = mcp.NewTool("editor_run_action",
	mcp.WithDescription("Run a plugin action by ID. Omit id to list the registered actions."),
	mcp.WithString("id", mcp.Description("Action ID.")),
)
