// Package mcpserver registers MCP tools that drive the sync engine, so
// an assistant or editor integration can report changes and trigger
// pushes and pulls.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alexjbarnes/chatsync/internal/codec"
	apperrors "github.com/alexjbarnes/chatsync/internal/errors"
	"github.com/alexjbarnes/chatsync/internal/metrics"
	"github.com/alexjbarnes/chatsync/internal/scheduler"
	"github.com/alexjbarnes/chatsync/internal/syncstate"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Engine runs sync pipelines.
type Engine interface {
	Push(ctx context.Context) error
	Pull(ctx context.Context) error
	ForcePush(ctx context.Context) error
	ForcePull(ctx context.Context) error
}

// State exposes sync bookkeeping.
type State interface {
	Snapshot() syncstate.State
	ClearError() error
}

// Scheduler receives change notifications.
type Scheduler interface {
	OnChange(ctx context.Context, kind scheduler.Kind) error
	SetBusy(ctx context.Context, busy bool) error
	Pending() bool
	Policy() scheduler.Policy
}

// Deps holds what the tools operate on.
type Deps struct {
	Engine    Engine
	State     State
	Scheduler Scheduler
}

// RegisterTools adds all sync tools to the given MCP server.
func RegisterTools(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Report sync status: not-connected, idle, dirty, syncing or error, with the last sync token, last error and push policy.",
	}, statusHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_push",
		Description: "Publish local changes to the remote store. With force, overwrite the remote even if another device published since the last sync.",
	}, pushHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_pull",
		Description: "Replace local data with the remote snapshot if it changed. With force, discard unsynced local edits without asking.",
	}, pullHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_clear_error",
		Description: "Acknowledge and clear the sticky last sync error.",
	}, clearErrorHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_notify_change",
		Description: "Report a local change. kind is structural (create, delete or rename of a profile, chat or memory) or incremental (message appended). Pushes according to the configured policy.",
	}, notifyChangeHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_set_busy",
		Description: "Mark whether a response is being generated. Pushes are deferred while busy and fire when busy is cleared.",
	}, setBusyHandler(d))
}

// --- Input types ---

// StatusInput has no parameters.
type StatusInput struct{}

// SyncInput holds parameters for sync_push and sync_pull.
type SyncInput struct {
	Force bool `json:"force,omitempty" jsonschema:"overwrite the other side without a conflict check"`
}

// ClearErrorInput has no parameters.
type ClearErrorInput struct{}

// NotifyChangeInput holds parameters for sync_notify_change.
type NotifyChangeInput struct {
	Kind string `json:"kind" jsonschema:"structural or incremental"`
}

// SetBusyInput holds parameters for sync_set_busy.
type SetBusyInput struct {
	Busy bool `json:"busy" jsonschema:"true while a response is being generated"`
}

// --- Output types ---

// StatusResult is the flattened sync state.
type StatusResult struct {
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	Dirty       bool   `json:"dirty"`
	LastSyncID  string `json:"last_sync_id,omitempty"`
	LastSyncAt  string `json:"last_sync_at,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	LastErrorAt string `json:"last_error_at,omitempty"`
	PushPolicy  string `json:"push_policy"`
	PushPending bool   `json:"push_pending"`
}

// SyncResult reports the outcome of a push or pull.
type SyncResult struct {
	Outcome       string              `json:"outcome"`
	Message       string              `json:"message,omitempty"`
	MissingAssets map[string][]string `json:"missing_assets,omitempty"`
	Status        StatusResult        `json:"status"`
}

// --- Handlers ---

func statusHandler(d Deps) mcp.ToolHandlerFor[StatusInput, *StatusResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, *StatusResult, error) {
		result := status(d)
		return textResult(result), result, nil
	}
}

func pushHandler(d Deps) mcp.ToolHandlerFor[SyncInput, *SyncResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SyncInput) (*mcp.CallToolResult, *SyncResult, error) {
		run := d.Engine.Push
		if input.Force {
			run = d.Engine.ForcePush
		}

		return syncResult(d, run(ctx))
	}
}

func pullHandler(d Deps) mcp.ToolHandlerFor[SyncInput, *SyncResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SyncInput) (*mcp.CallToolResult, *SyncResult, error) {
		run := d.Engine.Pull
		if input.Force {
			run = d.Engine.ForcePull
		}

		return syncResult(d, run(ctx))
	}
}

func clearErrorHandler(d Deps) mcp.ToolHandlerFor[ClearErrorInput, *StatusResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ ClearErrorInput) (*mcp.CallToolResult, *StatusResult, error) {
		if err := d.State.ClearError(); err != nil {
			return nil, nil, err
		}

		result := status(d)

		return textResult(result), result, nil
	}
}

func notifyChangeHandler(d Deps) mcp.ToolHandlerFor[NotifyChangeInput, *SyncResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input NotifyChangeInput) (*mcp.CallToolResult, *SyncResult, error) {
		kind, err := scheduler.ParseKind(input.Kind)
		if err != nil {
			return nil, nil, err
		}

		return syncResult(d, d.Scheduler.OnChange(ctx, kind))
	}
}

func setBusyHandler(d Deps) mcp.ToolHandlerFor[SetBusyInput, *SyncResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SetBusyInput) (*mcp.CallToolResult, *SyncResult, error) {
		return syncResult(d, d.Scheduler.SetBusy(ctx, input.Busy))
	}
}

// syncResult turns a pipeline error into a result. Declined conflicts and
// missing assets are outcomes the caller acts on, not tool failures.
func syncResult(d Deps, err error) (*mcp.CallToolResult, *SyncResult, error) {
	result := &SyncResult{Outcome: metrics.Outcome(err)}

	var missing *codec.MissingAssetsError

	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrConflictDeclined):
		result.Message = err.Error()
	case errors.As(err, &missing):
		result.Message = err.Error()
		result.MissingAssets = missing.Report
	default:
		return nil, nil, err
	}

	result.Status = *status(d)

	return textResult(result), result, nil
}

func status(d Deps) *StatusResult {
	st := d.State.Snapshot()

	result := &StatusResult{
		Status:      string(st.Status),
		Detail:      st.Detail,
		Dirty:       st.Dirty,
		LastSyncID:  st.LastSyncID,
		PushPolicy:  d.Scheduler.Policy().String(),
		PushPending: d.Scheduler.Pending(),
	}

	if !st.LastSyncAt.IsZero() {
		result.LastSyncAt = st.LastSyncAt.Format(time.RFC3339)
	}

	if st.LastError != nil {
		result.LastError = st.LastError.Message
		result.LastErrorAt = st.LastError.Timestamp.Format(time.RFC3339)
	}

	return result
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
