// Package dispatch sends one model request at a time for a session and
// reconciles the reply back into it.
package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/diogo/geminichat/internal/api"
	apperrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/models"
	"github.com/diogo/geminichat/internal/session"
)

// State of the dispatcher
type State int

const (
	Idle State = iota
	Sending
)

func (s State) String() string {
	if s == Sending {
		return "sending"
	}
	return "idle"
}

// DefaultTimeout bounds a single request including retries
const DefaultTimeout = 300 * time.Second

// Result is the outcome of one request, tagged with the conversation it was
// sent from.
type Result struct {
	ConversationID string
	Text           string
	Err            error
	Elapsed        time.Duration

	seq uint64
}

// Pending is the handle of an in-flight request
type Pending struct {
	convID string
	seq    uint64
	done   chan struct{}
	result Result
	cancel context.CancelFunc
}

// ConversationID returns the id of the conversation the request belongs to
func (p *Pending) ConversationID() string { return p.convID }

// Done is closed when the result is available
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the request finishes and returns its result
func (p *Pending) Wait() Result {
	<-p.done
	return p.result
}

// Cancel aborts the request. The result then carries a transport error.
func (p *Pending) Cancel() {
	p.cancel()
}

// Dispatcher allows at most one outstanding request. The request runs on
// its own goroutine and never touches the session; Complete applies its
// result and must be called from the session's goroutine.
type Dispatcher struct {
	sem *semaphore.Weighted

	mu        sync.Mutex
	client    api.ChatClient
	maxTokens int
	timeout   time.Duration
	pending   *Pending
	seq       uint64
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithMaxTokens sets the output token bound sent with each request
func WithMaxTokens(n int) Option {
	return func(d *Dispatcher) {
		d.maxTokens = n
	}
}

// WithTimeout bounds each request; zero disables the bound
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// New creates a dispatcher. client may be nil when no API key is
// configured; sends then fail with ErrModelUnavailable.
func New(client api.ChatClient, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sem:       semaphore.NewWeighted(1),
		client:    client,
		maxTokens: models.DefaultMaxOutputTokens,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetClient replaces the model client, e.g. after a key is configured
func (d *Dispatcher) SetClient(client api.ChatClient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.client = client
}

// Available reports whether a model client is configured
func (d *Dispatcher) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.client != nil
}

// SetMaxTokens changes the output token bound for later requests
func (d *Dispatcher) SetMaxTokens(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n > 0 {
		d.maxTokens = n
	}
}

// State reports whether a request is in flight
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		return Sending
	}
	return Idle
}

// Send appends userText to the session as a user turn, saves it, and starts
// the model request. The user turn is kept even when the request cannot be
// made or later fails. A send while another is in flight returns ErrBusy
// and changes nothing.
func (d *Dispatcher) Send(ctx context.Context, sess *session.Session, userText string) (*Pending, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, apperrors.ErrEmptyInput
	}

	if !d.sem.TryAcquire(1) {
		return nil, apperrors.ErrBusy
	}
	launched := false
	defer func() {
		if !launched {
			d.sem.Release(1)
		}
	}()

	if err := sess.AppendUserTurn(userText); err != nil {
		return nil, err
	}
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("conversation_id", sess.CurrentID()).Msg("Failed to save user turn")
		sess.AddErrorAnnotation(apperrors.FormatForTranscript(err))
	}

	d.mu.Lock()
	client := d.client
	maxTokens := d.maxTokens
	timeout := d.timeout
	d.mu.Unlock()

	if client == nil {
		sess.AddErrorAnnotation(apperrors.FormatForTranscript(apperrors.ErrModelUnavailable))
		return nil, apperrors.ErrModelUnavailable
	}

	hist := sess.History()
	outbound := BuildContext(sess.SystemPrompt(), hist[:len(hist)-1])

	var (
		reqCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		reqCtx, cancel = context.WithCancel(ctx)
	}

	d.mu.Lock()
	d.seq++
	p := &Pending{
		convID: sess.CurrentID(),
		seq:    d.seq,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	d.pending = p
	d.mu.Unlock()
	launched = true

	log.Debug().
		Str("conversation_id", p.convID).
		Int("context_turns", len(outbound)).
		Int("max_tokens", maxTokens).
		Msg("Dispatching request")

	go func() {
		defer cancel()
		start := time.Now()
		text, err := client.Send(reqCtx, outbound, userText, maxTokens)
		p.result = Result{
			ConversationID: p.convID,
			Text:           text,
			Err:            err,
			Elapsed:        time.Since(start),
			seq:            p.seq,
		}
		close(p.done)
	}()

	return p, nil
}

// Complete applies res to the session and returns the dispatcher to Idle.
// A reply for the active conversation is appended and saved; a reply for a
// conversation the user has left is saved to that conversation's record
// only. A failure never becomes a turn: it is shown as an annotation when
// its conversation is still active. The returned error is the request or
// delivery failure, already reported in the transcript where applicable.
func (d *Dispatcher) Complete(sess *session.Session, res Result) error {
	d.mu.Lock()
	if d.pending != nil && d.pending.seq == res.seq {
		d.pending = nil
		d.sem.Release(1)
	}
	d.mu.Unlock()

	active := res.ConversationID == sess.CurrentID()

	if res.Err != nil {
		log.Warn().Err(res.Err).
			Str("conversation_id", res.ConversationID).
			Bool("active", active).
			Dur("elapsed", res.Elapsed).
			Msg("Request failed")
		if active {
			sess.AddErrorAnnotation(apperrors.FormatForTranscript(res.Err))
		}
		return res.Err
	}

	if err := sess.DeliverModelTurn(res.ConversationID, res.Text); err != nil {
		log.Error().Err(err).Str("conversation_id", res.ConversationID).Msg("Failed to store reply")
		if active {
			sess.AddErrorAnnotation(apperrors.FormatForTranscript(err))
		}
		return err
	}

	log.Info().
		Str("conversation_id", res.ConversationID).
		Bool("active", active).
		Dur("elapsed", res.Elapsed).
		Int("chars", len(res.Text)).
		Msg("Reply received")
	return nil
}

// Close cancels the in-flight request, if any
func (d *Dispatcher) Close() {
	d.mu.Lock()
	p := d.pending
	d.mu.Unlock()
	if p != nil {
		p.Cancel()
	}
}

// Pending returns the in-flight request handle, or nil
func (d *Dispatcher) Pending() *Pending {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// BuildContext returns the history sent ahead of a new message. A non-empty
// system prompt is sent as a leading user turn answered by a fixed model
// acknowledgement, since the transport has no system role.
func BuildContext(systemPrompt string, history []models.Turn) []models.Turn {
	prompt := strings.TrimSpace(systemPrompt)
	out := make([]models.Turn, 0, len(history)+2)
	if prompt != "" {
		out = append(out,
			models.NewTurn(models.RoleUser, prompt),
			models.NewTurn(models.RoleModel, models.SystemPromptAck),
		)
	}
	return append(out, history...)
}
