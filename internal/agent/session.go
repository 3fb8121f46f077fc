// Package agent drives the propose → confirm/edit/cancel → execute cycle
// around structured actions proposed by the conversational model.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/skohli/splitvoice/internal/directory"
	"github.com/skohli/splitvoice/internal/expense"
)

// State is the lifecycle of a proposed action.
type State int

const (
	StateProposed State = iota
	StateConfirmed
	StateExecuted
	StateCancelled
	StateSuperseded
)

func (s State) String() string {
	switch s {
	case StateProposed:
		return "proposed"
	case StateConfirmed:
		return "confirmed"
	case StateExecuted:
		return "executed"
	case StateCancelled:
		return "cancelled"
	case StateSuperseded:
		return "superseded"
	}
	return "unknown"
}

// Proposal is a structured action awaiting human confirmation. Arguments are
// raw as the model produced them; resolution happens on execution.
type Proposal struct {
	ID      string
	Tool    string
	CallID  string
	RawArgs json.RawMessage
	State   State
}

// Summary renders the proposal for display to the human.
func (p *Proposal) Summary() string {
	var pretty map[string]interface{}
	if err := json.Unmarshal(p.RawArgs, &pretty); err == nil {
		if out, err := json.MarshalIndent(pretty, "", "  "); err == nil {
			return fmt.Sprintf("%s %s", p.Tool, out)
		}
	}
	return fmt.Sprintf("%s %s", p.Tool, p.RawArgs)
}

type OutcomeKind int

const (
	OutcomeText OutcomeKind = iota
	OutcomeProposal
)

// Outcome is the result of one conversational turn: either text to show the
// human, or a proposal awaiting Confirm/Cancel/Feedback.
type Outcome struct {
	Kind     OutcomeKind
	Text     string
	Proposal *Proposal
}

// Recorder receives executed actions for auditing. Implementations must
// tolerate being nil-checked by the caller; recording failures are logged,
// never surfaced.
type Recorder interface {
	Record(ctx context.Context, sessionID, tool string, args []byte, result string) error
}

// maxAutoExec bounds back-to-back executions in auto-confirm mode so a
// model that keeps proposing actions cannot loop.
const maxAutoExec = 3

// Session is one user's sequential conversation: at most one proposal is
// pending at a time, and a new natural-language turn while one is pending is
// treated as feedback on it, not as an independent command.
type Session struct {
	ID string

	chat     Chat
	expenses *expense.Service
	dir      *directory.Directory
	recorder Recorder
	pending  *Proposal
	log      *logrus.Entry
}

func NewSession(chat Chat, expenses *expense.Service, dir *directory.Directory, recorder Recorder) *Session {
	id := uuid.NewString()
	return &Session{
		ID:       id,
		chat:     chat,
		expenses: expenses,
		dir:      dir,
		recorder: recorder,
		log:      logrus.WithField("session", id),
	}
}

// Pending returns the proposal awaiting confirmation, if any.
func (s *Session) Pending() *Proposal {
	return s.pending
}

// ProcessInput handles one user turn. While a proposal is pending the text
// is routed through Feedback.
func (s *Session) ProcessInput(ctx context.Context, text string) (*Outcome, error) {
	if s.pending != nil {
		return s.Feedback(ctx, text)
	}
	reply, err := s.chat.SendText(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.handleReply(ctx, reply, true)
}

// Confirm executes the pending proposal exactly once, feeds the result back
// to the model, and returns the model's follow-up. Execution errors become
// part of the tool result so the model can relay them; they never corrupt
// the session.
func (s *Session) Confirm(ctx context.Context) (*Outcome, error) {
	if s.pending == nil {
		return nil, fmt.Errorf("no action awaiting confirmation")
	}
	p := s.pending
	p.State = StateConfirmed

	result := s.executeTool(ctx, p.Tool, p.RawArgs)
	p.State = StateExecuted
	s.pending = nil
	s.record(ctx, p.Tool, p.RawArgs, result)

	reply, err := s.chat.SendToolResult(ctx, p.CallID, p.Tool, result)
	if err != nil {
		// The action already ran; report it even when the model cannot
		// acknowledge.
		s.log.WithError(err).Warn("model failed to acknowledge tool execution")
		return &Outcome{Kind: OutcomeText, Text: "Action executed: " + result}, nil
	}
	return s.handleReply(ctx, reply, false)
}

// Cancel discards the pending proposal. Nothing is executed and no result is
// sent back to the model; the turn simply ends.
func (s *Session) Cancel() {
	if s.pending == nil {
		return
	}
	s.pending.State = StateCancelled
	s.log.WithField("tool", s.pending.Tool).Info("action cancelled")
	s.pending = nil
}

// Feedback supersedes the pending proposal with corrective input. The model
// may re-propose an action with new arguments or answer in plain text.
func (s *Session) Feedback(ctx context.Context, text string) (*Outcome, error) {
	if s.pending != nil {
		s.pending.State = StateSuperseded
		s.pending = nil
	}
	reply, err := s.chat.SendText(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.handleReply(ctx, reply, true)
}

// ProcessAndExecute handles a turn with confirmation delegated to the
// caller's policy of "always yes", used by server surfaces where the remote
// caller has already decided.
func (s *Session) ProcessAndExecute(ctx context.Context, text string) (string, error) {
	outcome, err := s.ProcessInput(ctx, text)
	if err != nil {
		return "", err
	}
	for i := 0; i < maxAutoExec && outcome.Kind == OutcomeProposal; i++ {
		outcome, err = s.Confirm(ctx)
		if err != nil {
			return "", err
		}
	}
	if outcome.Kind == OutcomeProposal {
		s.Cancel()
		return "", fmt.Errorf("model kept proposing actions; giving up after %d executions", maxAutoExec)
	}
	return outcome.Text, nil
}

// handleReply classifies a model response. The read-only friend listing
// auto-executes with exactly one level of chaining: its result goes back to
// the model and that single follow-up may carry a human-facing action.
func (s *Session) handleReply(ctx context.Context, reply *Reply, allowChain bool) (*Outcome, error) {
	if reply.Kind == ReplyText {
		return &Outcome{Kind: OutcomeText, Text: reply.Content}, nil
	}

	if reply.Tool == ToolListFriends && allowChain {
		result := s.executeTool(ctx, reply.Tool, reply.RawArgs)
		s.record(ctx, reply.Tool, reply.RawArgs, result)
		next, err := s.chat.SendToolResult(ctx, reply.CallID, reply.Tool, result)
		if err != nil {
			return nil, err
		}
		return s.handleReply(ctx, next, false)
	}

	p := &Proposal{
		ID:      uuid.NewString(),
		Tool:    reply.Tool,
		CallID:  reply.CallID,
		RawArgs: reply.RawArgs,
		State:   StateProposed,
	}
	s.pending = p
	s.log.WithField("tool", p.Tool).Info("action proposed")
	return &Outcome{Kind: OutcomeProposal, Proposal: p}, nil
}

// executeTool runs a tool and renders its result as text for the model.
// Failures are folded into the result string: they are feedback for the
// conversation, not session faults.
func (s *Session) executeTool(ctx context.Context, tool string, rawArgs json.RawMessage) string {
	switch tool {
	case ToolAddExpense:
		var args expense.Args
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return fmt.Sprintf("Error: invalid arguments: %v", err)
		}
		id, payload, err := s.expenses.Create(ctx, args)
		if err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return fmt.Sprintf("Success! Added expense '%s' for %s (ID: %d)", payload.Description, payload.Cost, id)

	case ToolDeleteExpense:
		var args struct {
			ExpenseID json.Number `json:"expense_id"`
		}
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return fmt.Sprintf("Error: invalid arguments: %v", err)
		}
		id, err := args.ExpenseID.Int64()
		if err != nil {
			return fmt.Sprintf("Error: invalid expense ID %q", args.ExpenseID)
		}
		if err := s.expenses.Delete(ctx, id); err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return fmt.Sprintf("Success! Deleted expense %d.", id)

	case ToolListFriends:
		friends, err := s.dir.Friends(ctx)
		if err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		names := make([]string, 0, len(friends))
		for _, f := range friends {
			names = append(names, f.FullName())
		}
		return "Friends: " + strings.Join(names, ", ")
	}
	return fmt.Sprintf("Error: unknown tool %q", tool)
}

func (s *Session) record(ctx context.Context, tool string, args json.RawMessage, result string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, s.ID, tool, args, result); err != nil {
		s.log.WithError(err).Warn("failed to record action")
	}
}
