package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogo/geminichat/internal/api"
	apperrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/history"
	"github.com/diogo/geminichat/internal/models"
	"github.com/diogo/geminichat/internal/session"
)

func newTestSession(t *testing.T) (*session.Session, *history.Store) {
	t.Helper()
	store, err := history.NewStore(t.TempDir())
	require.NoError(t, err)
	return session.New(store), store
}

func waitResult(t *testing.T, p *Pending) Result {
	t.Helper()
	select {
	case <-p.Done():
		return p.Wait()
	case <-time.After(5 * time.Second):
		t.Fatal("request did not finish")
		return Result{}
	}
}

func countAnnotations(entries []models.Entry) int {
	n := 0
	for _, e := range entries {
		if e.Kind == models.EntryError {
			n++
		}
	}
	return n
}

func TestSend_Success(t *testing.T) {
	sess, store := newTestSession(t)
	_, err := sess.CreateNew("Chat")
	require.NoError(t, err)

	client := &api.MockClient{Response: "Cześć!"}
	d := New(client, WithMaxTokens(1024))

	p, err := d.Send(context.Background(), sess, "Hello")
	require.NoError(t, err)
	assert.Equal(t, sess.CurrentID(), p.ConversationID())

	res := waitResult(t, p)
	require.NoError(t, d.Complete(sess, res))
	assert.Equal(t, Idle, d.State())

	hist := sess.History()
	require.Len(t, hist, 2)
	assert.Equal(t, models.RoleUser, hist[0].Role)
	assert.Equal(t, "Hello", hist[0].Text())
	assert.Equal(t, models.RoleModel, hist[1].Role)
	assert.Equal(t, "Cześć!", hist[1].Text())
	assert.False(t, sess.Dirty())

	rec, err := store.Load(sess.CurrentID())
	require.NoError(t, err)
	assert.Len(t, rec.History, 2)

	call, ok := client.LastCall()
	require.True(t, ok)
	assert.Equal(t, "Hello", call.Message)
	assert.Equal(t, 1024, call.MaxTokens)
}

func TestSend_ContextExcludesNewTurn(t *testing.T) {
	sess, _ := newTestSession(t)
	_, err := sess.CreateNew("Chat")
	require.NoError(t, err)

	client := &api.MockClient{Responses: []string{"one", "two"}}
	d := New(client)

	p, err := d.Send(context.Background(), sess, "first")
	require.NoError(t, err)
	require.NoError(t, d.Complete(sess, waitResult(t, p)))

	p, err = d.Send(context.Background(), sess, "second")
	require.NoError(t, err)
	require.NoError(t, d.Complete(sess, waitResult(t, p)))

	call, _ := client.LastCall()
	assert.Equal(t, "second", call.Message)

	var texts []string
	for _, turn := range call.History {
		texts = append(texts, turn.Text())
	}
	assert.Equal(t, []string{models.BootstrapSystemPrompt, models.SystemPromptAck, "first", "one"}, texts)
	assert.Equal(t, 4, sess.Len())
}

func TestSend_CreatesConversationWhenNoneActive(t *testing.T) {
	sess, store := newTestSession(t)
	d := New(&api.MockClient{Response: "ok"})

	p, err := d.Send(context.Background(), sess, "Hi")
	require.NoError(t, err)
	require.True(t, sess.HasActive())

	require.NoError(t, d.Complete(sess, waitResult(t, p)))
	rec, err := store.Load(sess.CurrentID())
	require.NoError(t, err)
	assert.Len(t, rec.History, 2)
}

func TestSend_Busy(t *testing.T) {
	sess, _ := newTestSession(t)
	_, err := sess.CreateNew("Chat")
	require.NoError(t, err)

	client := &api.MockClient{Response: "done", Gate: make(chan struct{})}
	d := New(client)

	p, err := d.Send(context.Background(), sess, "one")
	require.NoError(t, err)
	assert.Equal(t, Sending, d.State())

	_, err = d.Send(context.Background(), sess, "two")
	assert.ErrorIs(t, err, apperrors.ErrBusy)
	assert.Equal(t, 1, sess.Len(), "rejected send must not append")

	close(client.Gate)
	require.NoError(t, d.Complete(sess, waitResult(t, p)))
	assert.Equal(t, Idle, d.State())
	assert.Equal(t, 1, client.CallCount())

	p, err = d.Send(context.Background(), sess, "three")
	require.NoError(t, err)
	require.NoError(t, d.Complete(sess, waitResult(t, p)))
}

func TestSend_EmptyInput(t *testing.T) {
	sess, _ := newTestSession(t)
	client := &api.MockClient{Response: "x"}
	d := New(client)

	_, err := d.Send(context.Background(), sess, "   ")
	assert.ErrorIs(t, err, apperrors.ErrEmptyInput)
	assert.False(t, sess.HasActive())
	assert.Equal(t, 0, client.CallCount())
	assert.Equal(t, Idle, d.State())
}

func TestSend_NoClient(t *testing.T) {
	sess, store := newTestSession(t)
	_, err := sess.CreateNew("Chat")
	require.NoError(t, err)

	d := New(nil)
	assert.False(t, d.Available())

	_, err = d.Send(context.Background(), sess, "Hello")
	assert.ErrorIs(t, err, apperrors.ErrModelUnavailable)
	assert.Equal(t, Idle, d.State())

	assert.Equal(t, 1, sess.Len())
	assert.Equal(t, 1, countAnnotations(sess.Transcript()))

	rec, err := store.Load(sess.CurrentID())
	require.NoError(t, err)
	assert.Len(t, rec.History, 1)

	client := &api.MockClient{Response: "ok"}
	d.SetClient(client)
	p, err := d.Send(context.Background(), sess, "Again")
	require.NoError(t, err)
	require.NoError(t, d.Complete(sess, waitResult(t, p)))
	assert.Equal(t, 3, sess.Len())
}

func TestComplete_Failure(t *testing.T) {
	sess, store := newTestSession(t)
	_, err := sess.CreateNew("Chat")
	require.NoError(t, err)

	failure := apperrors.NewTransportError(503, true, assert.AnError)
	d := New(&api.MockClient{Err: failure})

	p, err := d.Send(context.Background(), sess, "Hello")
	require.NoError(t, err)

	err = d.Complete(sess, waitResult(t, p))
	assert.ErrorIs(t, err, apperrors.ErrTransport)
	assert.Equal(t, Idle, d.State())

	hist := sess.History()
	require.Len(t, hist, 1)
	assert.Equal(t, models.RoleUser, hist[0].Role)

	transcript := sess.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, models.EntryError, transcript[1].Kind)

	rec, err := store.Load(sess.CurrentID())
	require.NoError(t, err)
	assert.Len(t, rec.History, 1, "failure must never become a turn")
}

func TestComplete_AfterSwitchAway(t *testing.T) {
	sess, store := newTestSession(t)
	origin, err := sess.CreateNew("A")
	require.NoError(t, err)

	client := &api.MockClient{Response: "late reply", Gate: make(chan struct{})}
	d := New(client)

	p, err := d.Send(context.Background(), sess, "Question")
	require.NoError(t, err)

	other, err := sess.CreateNew("B")
	require.NoError(t, err)

	var background []string
	sess.Subscribe(func(ev session.Event) {
		if ev.Kind == session.EventBackgroundSaved {
			background = append(background, ev.ID)
		}
	})

	close(client.Gate)
	require.NoError(t, d.Complete(sess, waitResult(t, p)))

	assert.Equal(t, other, sess.CurrentID())
	assert.Equal(t, 0, sess.Len(), "active conversation must stay untouched")
	assert.Equal(t, []string{origin}, background)

	rec, err := store.Load(origin)
	require.NoError(t, err)
	require.Len(t, rec.History, 2)
	assert.Equal(t, "Question", rec.History[0].Text())
	assert.Equal(t, "late reply", rec.History[1].Text())
}

func TestComplete_FailureAfterSwitchAway(t *testing.T) {
	sess, _ := newTestSession(t)
	_, err := sess.CreateNew("A")
	require.NoError(t, err)

	client := &api.MockClient{Err: apperrors.NewTransportError(500, true, assert.AnError), Gate: make(chan struct{})}
	d := New(client)

	p, err := d.Send(context.Background(), sess, "Question")
	require.NoError(t, err)

	_, err = sess.CreateNew("B")
	require.NoError(t, err)

	close(client.Gate)
	assert.Error(t, d.Complete(sess, waitResult(t, p)))
	assert.Equal(t, 0, countAnnotations(sess.Transcript()))
}

func TestClose_CancelsPending(t *testing.T) {
	sess, _ := newTestSession(t)
	_, err := sess.CreateNew("Chat")
	require.NoError(t, err)

	client := &api.MockClient{Response: "never", Gate: make(chan struct{})}
	d := New(client)

	p, err := d.Send(context.Background(), sess, "Hello")
	require.NoError(t, err)
	assert.Same(t, p, d.Pending())

	d.Close()
	res := waitResult(t, p)
	assert.ErrorIs(t, res.Err, context.Canceled)

	assert.Error(t, d.Complete(sess, res))
	assert.Nil(t, d.Pending())
	assert.Equal(t, 1, sess.Len())
}

func TestBuildContext(t *testing.T) {
	hist := []models.Turn{
		models.NewTurn(models.RoleUser, "a"),
		models.NewTurn(models.RoleModel, "b"),
	}

	out := BuildContext("  Be brief.  ", hist)
	require.Len(t, out, 4)
	assert.Equal(t, "Be brief.", out[0].Text())
	assert.Equal(t, models.RoleUser, out[0].Role)
	assert.Equal(t, models.SystemPromptAck, out[1].Text())
	assert.Equal(t, models.RoleModel, out[1].Role)

	out = BuildContext("", hist)
	assert.Len(t, out, 2)

	out = BuildContext("prompt", nil)
	assert.Len(t, out, 2)
}
