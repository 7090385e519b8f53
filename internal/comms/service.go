// Package comms routes messages between actors. Every message is
// validated against the roster and the call-chain rules before it is
// admitted to the recipient's mailbox, then answered by an agent turn.
package comms

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CorpClaw/CorpClaw/internal/actor"
	"github.com/CorpClaw/CorpClaw/internal/agent"
	"github.com/CorpClaw/CorpClaw/internal/dispatch"
	"github.com/CorpClaw/CorpClaw/internal/provider"
	"github.com/CorpClaw/CorpClaw/internal/store"
	"github.com/CorpClaw/CorpClaw/internal/tools"
)

// DefaultTimeout is how long a sender waits for the recipient's answer
// before getting a TimeoutError. The recipient keeps working.
const DefaultTimeout = 2 * time.Minute

// Message statuses. A message leaves pending exactly once.
const (
	StatusPending   = "pending"
	StatusResponded = "responded"
	StatusFailed    = "failed"
)

const messageKind = "message"

// Message is one actor-to-actor exchange.
type Message struct {
	ID          string     `json:"id"`
	FromActor   string     `json:"from_actor"`
	ToActor     string     `json:"to_actor"`
	Content     string     `json:"content"`
	Response    string     `json:"response,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// UnknownActorError reports a message to an id the roster does not
// know, or one that is not available to receive work.
type UnknownActorError struct {
	ActorID string
	Reason  string
}

func (e *UnknownActorError) Error() string {
	return fmt.Sprintf("actor %s: %s", e.ActorID, e.Reason)
}

// Options configures a Service.
type Options struct {
	Timeout      time.Duration
	MaxCallDepth int
	// Registry supplies the tools recipients may use while answering.
	Registry *tools.Registry
	// Store persists message records when set. Persistence failures are
	// logged and never fail the exchange.
	Store *store.Store
}

// Service validates, dispatches, and records actor messages.
type Service struct {
	roster     *actor.Roster
	dispatcher *dispatch.Dispatcher
	runner     *agent.Runner
	opts       Options

	mu       sync.Mutex
	messages map[string]*Message
	history  map[string][]provider.Message
}

// NewService creates a message service over the given roster,
// dispatcher, and runner.
func NewService(roster *actor.Roster, d *dispatch.Dispatcher, runner *agent.Runner, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Service{
		roster:     roster,
		dispatcher: d,
		runner:     runner,
		opts:       opts,
		messages:   make(map[string]*Message),
		history:    make(map[string][]provider.Message),
	}
}

// Send delivers content from one actor to another and waits for the
// answer up to the service timeout. Validation failures reject the
// message before anything is enqueued; a timeout returns the pending
// message together with a TimeoutError while the recipient finishes in
// the background.
func (s *Service) Send(ctx context.Context, fromID, toID, content string, cc actor.CallContext) (*Message, error) {
	fut, msg, err := s.submit(ctx, fromID, toID, content, cc)
	if err != nil {
		return nil, err
	}
	if _, err := dispatch.WithTimeout(fut, s.opts.Timeout, fmt.Sprintf("message %s to %s", msg.ID, toID)); err != nil {
		slog.Warn("Message wait timed out, recipient keeps working", "message", msg.ID, "to", toID)
		return s.Get(msg.ID), err
	}
	return s.Get(msg.ID), nil
}

// SendAsync delivers content without waiting for the answer.
func (s *Service) SendAsync(ctx context.Context, fromID, toID, content string, cc actor.CallContext) (*Message, *dispatch.Future, error) {
	fut, msg, err := s.submit(ctx, fromID, toID, content, cc)
	if err != nil {
		return nil, nil, err
	}
	return msg, fut, nil
}

// SystemNotify delivers an internally generated notification. System
// notifications start a fresh chain at the system originator, which is
// exempt from cycle and depth enforcement.
func (s *Service) SystemNotify(ctx context.Context, toID, content string) (*Message, error) {
	return s.Send(ctx, actor.SystemOriginator, toID, content, actor.NewCallContext(actor.SystemOriginator))
}

func (s *Service) submit(ctx context.Context, fromID, toID, content string, cc actor.CallContext) (*dispatch.Future, *Message, error) {
	target, ok := s.roster.Get(toID)
	if !ok {
		return nil, nil, &UnknownActorError{ActorID: toID, Reason: "not on the roster"}
	}
	if !s.roster.Available(toID) {
		return nil, nil, &UnknownActorError{ActorID: toID, Reason: "not available (status " + s.roster.Status(toID) + ")"}
	}
	if err := actor.ValidateCall(toID, cc, s.opts.MaxCallDepth); err != nil {
		return nil, nil, err
	}

	msg := &Message{
		ID:        uuid.NewString(),
		FromActor: fromID,
		ToActor:   toID,
		Content:   content,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.messages[msg.ID] = msg
	s.mu.Unlock()
	s.persist(msg, false)
	slog.Info("Message admitted", "message", msg.ID, "from", fromID, "to", toID)

	descended := cc.Descend(toID)
	fut := s.dispatcher.Enqueue(ctx, toID, func(taskCtx context.Context) (string, error) {
		res, err := s.runner.RunTurn(taskCtx, agent.TurnRequest{
			ActorID:        toID,
			SystemPrompt:   systemPrompt(target),
			History:        s.historyFor(toID),
			Instruction:    fmt.Sprintf("Message from %s:\n%s", fromID, content),
			Call:           descended,
			ConversationID: toID,
			Privileged:     target.Tier == actor.TierPrivileged,
			Registry:       s.opts.Registry,
		})
		if err != nil {
			s.finish(msg.ID, "", StatusFailed)
			return "", err
		}
		s.appendHistory(toID, res.History)
		s.finish(msg.ID, res.Content, StatusResponded)
		return res.Content, nil
	})
	return fut, msg, nil
}

// finish applies the terminal status. Later calls for the same message
// are ignored so a terminal status is set exactly once.
func (s *Service) finish(messageID, response, status string) {
	s.mu.Lock()
	msg, ok := s.messages[messageID]
	if !ok || msg.Status != StatusPending {
		s.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	msg.Response = response
	msg.Status = status
	msg.RespondedAt = &now
	snapshot := *msg
	s.mu.Unlock()
	s.persist(&snapshot, true)
}

// Get returns a copy of a message record, or nil when unknown.
func (s *Service) Get(messageID string) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return nil
	}
	out := *msg
	return &out
}

func (s *Service) historyFor(actorID string) []provider.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]provider.Message{}, s.history[actorID]...)
}

func (s *Service) appendHistory(actorID string, history []provider.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[actorID] = append([]provider.Message{}, history...)
}

// persist writes the record to the store when one is configured. sync
// forces an awaited flush for terminal transitions.
func (s *Service) persist(msg *Message, sync bool) {
	if s.opts.Store == nil {
		return
	}
	var err error
	if sync {
		err = s.opts.Store.PutSync(messageKind, msg.ID, msg)
	} else {
		err = s.opts.Store.Put(messageKind, msg.ID, msg)
	}
	if err != nil {
		slog.Warn("Message persistence failed", "message", msg.ID, "error", err)
	}
}

func systemPrompt(a actor.Actor) string {
	return fmt.Sprintf(
		"You are %s, the %s. Answer messages from colleagues in your role. Be concrete and brief.",
		a.DisplayName, a.Role,
	)
}
