package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// DefaultTimeout bounds a single hook invocation when Def.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// MessagePayload is the stdin payload for pre_message/post_message hooks.
type MessagePayload struct {
	Point          Point  `json:"point"`
	ConversationID string `json:"conversation_id"`
	UserMessage    string `json:"user_message"`
}

// ToolPayload is the stdin payload for pre_tool/post_tool hooks.
type ToolPayload struct {
	Point          Point           `json:"point"`
	ConversationID string          `json:"conversation_id"`
	ToolName       string          `json:"tool_name"`
	ToolArguments  json.RawMessage `json:"tool_arguments,omitempty"`
	ToolResult     string          `json:"tool_result,omitempty"`
	IsError        bool            `json:"is_error,omitempty"`
}

// Directive is a hook's parsed stdout response. All fields are optional;
// non-JSON stdout yields a zero Directive, which callers treat as a no-op.
type Directive struct {
	Action        string          `json:"action,omitempty"` // "abort"
	Message       string          `json:"message,omitempty"`
	UserMessage   *string         `json:"user_message,omitempty"`
	ToolArguments json.RawMessage `json:"tool_arguments,omitempty"`
}

// Aborted reports whether the directive cancels the current turn.
func (d Directive) Aborted() bool { return d.Action == "abort" }

// Runner executes the hooks registered for a manifest, in declaration order.
type Runner struct {
	manifest *Manifest
	logger   *slog.Logger
}

// NewRunner creates a Runner bound to a manifest. A nil manifest makes every
// Run call a no-op, so callers need not branch on whether hooks are configured.
func NewRunner(manifest *Manifest, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{manifest: manifest, logger: logger.With("component", "hooks")}
}

// Run executes every hook registered at point, feeding each the same stdin
// payload, stopping at the first directive that aborts or replaces the
// payload. A hook whose process exits non-zero is fatal unless its
// ContinueOnError is set.
func (r *Runner) Run(ctx context.Context, point Point, payload any) (Directive, error) {
	if r.manifest == nil {
		return Directive{}, nil
	}

	stdin, err := json.Marshal(payload)
	if err != nil {
		return Directive{}, fmt.Errorf("marshal hook payload: %w", err)
	}

	for _, def := range r.manifest.At(point) {
		directive, err := r.invoke(ctx, def, stdin)
		if err != nil {
			if def.ContinueOnError {
				r.logger.Warn("hook failed, continuing", "point", point, "command", def.Command, "error", err)
				continue
			}
			return Directive{}, fmt.Errorf("hook %v at %s: %w", def.Command, point, err)
		}
		if directive.Aborted() || directive.UserMessage != nil || len(directive.ToolArguments) > 0 {
			return directive, nil
		}
	}

	return Directive{}, nil
}

func (r *Runner) invoke(ctx context.Context, def Def, stdin []byte) (Directive, error) {
	timeout := def.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, def.Command[0], def.Command[1:]...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Directive{}, fmt.Errorf("%w: %s", err, stderr.String())
	}

	var directive Directive
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &directive); err != nil {
		// Non-JSON stdout is ignored per contract, not an error.
		return Directive{}, nil
	}
	return directive, nil
}
