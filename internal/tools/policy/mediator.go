// Package policy evaluates tool calls against a PermissionPolicy and
// mediates prompts for decisions that require user adjudication.
package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	execsafety "github.com/haasonsaas/nexus/internal/exec"
	"github.com/haasonsaas/nexus/pkg/models"
)

// DefaultPromptTimeout is how long a Prompt decision waits for resolution
// before the mediator cancels it and denies the call.
const DefaultPromptTimeout = 10 * time.Minute

// MutatingTools lists built-in tools that plan-mode blocks outright.
var MutatingTools = map[string]bool{
	"write_file":      true,
	"edit_file":       true,
	"create_directory": true,
	"delete_file":     true,
	"bash":            true,
}

// Mediator evaluates ToolCalls against a workspace's PermissionPolicy,
// promoting Prompt decisions into PendingPermission records awaiting
// resolution by whoever is driving the conversation (a TUI, a web client,
// an ACP peer - out of this package's scope).
type Mediator struct {
	mu           sync.Mutex
	policy       *models.PermissionPolicy
	workspaceDir string
	pending      map[string]*pendingEntry
	promptTO     time.Duration
}

type pendingEntry struct {
	perm   models.PendingPermission
	result chan int
}

// NewMediator builds a mediator bound to a workspace root (used to resolve
// relative file paths for the file-domain policy check) and an initial
// policy. A nil policy is treated as empty (everything prompts).
func NewMediator(workspaceDir string, pol *models.PermissionPolicy) *Mediator {
	if pol == nil {
		pol = models.NewPermissionPolicy()
	}
	return &Mediator{
		policy:       pol,
		workspaceDir: workspaceDir,
		pending:      make(map[string]*pendingEntry),
		promptTO:     DefaultPromptTimeout,
	}
}

// Policy returns the mediator's current policy. Callers must not mutate the
// returned value directly; use AddAllow/AddDeny via UpdatePolicy instead.
func (m *Mediator) Policy() *models.PermissionPolicy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy
}

// Evaluate computes a Decision for a tool call. subject is the bash command
// string for DomainBash or the file path for DomainFile; it is ignored for
// tools outside both domains (those always prompt unless YOLO).
func (m *Mediator) Evaluate(toolName, subject string, isMCPTool bool) models.Decision {
	m.mu.Lock()
	pol := m.policy
	m.mu.Unlock()

	if pol.YOLO {
		return models.Allow()
	}
	if pol.PlanMode && (isMCPTool || MutatingTools[toolName]) {
		return models.Deny("plan mode")
	}

	switch toolName {
	case "bash":
		return m.evaluateBash(pol, subject)
	case "write_file", "edit_file", "create_directory", "delete_file", "read_file":
		return m.evaluateFile(pol, subject)
	default:
		return models.Prompt(toolName, subject,
			models.PermissionOption{Label: "Allow once"},
			models.PermissionOption{Label: "Deny"},
		)
	}
}

// evaluateBash tokenizes the command, checking the first word (the
// executable) and the full command string against deny then allow
// patterns. Deny always wins over allow at equal specificity.
func (m *Mediator) evaluateBash(pol *models.PermissionPolicy, command string) models.Decision {
	words := strings.Fields(command)
	first := ""
	if len(words) > 0 {
		first = words[0]
	}

	if rule, ok := matchDomain(pol.Deny[models.DomainBash], first, command); ok {
		return models.Deny(fmt.Sprintf("denied by rule: %s", rule.Pattern))
	}
	if _, ok := matchDomain(pol.Allow[models.DomainBash], first, command); ok {
		return models.Allow()
	}

	return models.Prompt(
		"Run shell command?",
		command,
		models.PermissionOption{Label: "Allow once"},
		models.PermissionOption{Label: "Always allow " + first},
		models.PermissionOption{Label: "Always allow matching commands"},
		models.PermissionOption{Label: "Deny"},
	)
}

// evaluateFile resolves path against the workspace root and checks it
// against per-domain deny/allow patterns.
func (m *Mediator) evaluateFile(pol *models.PermissionPolicy, path string) models.Decision {
	resolved := path
	if !filepath.IsAbs(resolved) && m.workspaceDir != "" {
		resolved = filepath.Join(m.workspaceDir, resolved)
	}
	resolved = filepath.Clean(resolved)

	if rule, ok := matchDomain(pol.Deny[models.DomainFile], resolved, resolved); ok {
		return models.Deny(fmt.Sprintf("denied by rule: %s", rule.Pattern))
	}
	if _, ok := matchDomain(pol.Allow[models.DomainFile], resolved, resolved); ok {
		return models.Allow()
	}

	return models.Prompt(
		"Access file?",
		resolved,
		models.PermissionOption{Label: "Allow once"},
		models.PermissionOption{Label: "Always allow this path"},
		models.PermissionOption{Label: "Deny"},
	)
}

// matchDomain checks exact patterns against primary (the first bash word or
// resolved file path) and glob patterns against secondary (the full command
// string), preferring an exact match when both match.
func matchDomain(rules []models.PatternRule, primary, secondary string) (models.PatternRule, bool) {
	var globMatch *models.PatternRule
	for i := range rules {
		r := rules[i]
		if r.Exact {
			if r.Pattern == primary || r.Pattern == secondary {
				return r, true
			}
			continue
		}
		if ok, _ := filepath.Match(r.Pattern, primary); ok {
			globMatch = &r
			continue
		}
		if ok, _ := filepath.Match(r.Pattern, secondary); ok {
			globMatch = &r
		}
	}
	if globMatch != nil {
		return *globMatch, true
	}
	return models.PatternRule{}, false
}

// RegisterPrompt records a PendingPermission awaiting resolution and returns
// a channel that receives the chosen option index (or is closed with -1 on
// timeout/cancellation).
func (m *Mediator) RegisterPrompt(ctx context.Context, conversationID string, decision models.Decision, domain models.ToolDomain) (models.PendingPermission, <-chan int) {
	perm := models.PendingPermission{
		ID:             fmt.Sprintf("perm_%d", time.Now().UnixNano()),
		ConversationID: conversationID,
		Category:       domain,
		Subject:        decision.Detail,
		Options:        decision.Options,
		CreatedAt:      time.Now(),
	}
	result := make(chan int, 1)

	m.mu.Lock()
	m.pending[perm.ID] = &pendingEntry{perm: perm, result: result}
	m.mu.Unlock()

	go func() {
		timeout := m.promptTO
		if timeout <= 0 {
			timeout = DefaultPromptTimeout
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			m.mu.Lock()
			if entry, ok := m.pending[perm.ID]; ok {
				delete(m.pending, perm.ID)
				close(entry.result)
			}
			m.mu.Unlock()
		case <-result:
			// Resolve already delivered and removed the entry.
		}
	}()

	return perm, result
}

// Resolve delivers the user's chosen option index for a pending permission.
// optionIndex of -1 means deny. When label starts with "Always", the
// mediator persists a new allow pattern derived from subject.
func (m *Mediator) Resolve(permID string, optionIndex int) error {
	m.mu.Lock()
	entry, ok := m.pending[permID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("policy: no pending permission %s", permID)
	}
	delete(m.pending, permID)
	m.mu.Unlock()

	if optionIndex >= 0 && optionIndex < len(entry.perm.Options) {
		label := entry.perm.Options[optionIndex].Label
		if strings.HasPrefix(label, "Always") {
			m.persistAlways(entry.perm, label)
		}
	}

	entry.result <- optionIndex
	close(entry.result)
	return nil
}

func (m *Mediator) persistAlways(perm models.PendingPermission, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch perm.Category {
	case models.DomainBash:
		exact := !strings.Contains(label, "matching")
		pattern := perm.Subject
		if exact {
			pattern = strings.Fields(perm.Subject)[0]
		}
		m.policy.AddAllow(models.DomainBash, pattern, exact)
	case models.DomainFile:
		m.policy.AddAllow(models.DomainFile, perm.Subject, true)
	}
}

// PendingFor returns the pending permissions open for a conversation.
func (m *Mediator) PendingFor(conversationID string) []models.PendingPermission {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PendingPermission
	for _, e := range m.pending {
		if e.perm.ConversationID == conversationID {
			out = append(out, e.perm)
		}
	}
	return out
}

// ValidateBashExecutable reports whether command's leading token is a safe
// executable reference (no shell-metacharacter or option-injection tricks),
// independent of the allow/deny decision above.
func ValidateBashExecutable(command string) bool {
	words := strings.Fields(command)
	if len(words) == 0 {
		return false
	}
	return execsafety.IsSafeExecutableValue(words[0])
}
