package natsbridge

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/wagate/internal/engine"
	"github.com/alfredjeanlab/wagate/internal/model"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

const prefix = "test.engine"

func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(5*time.Second), "embedded NATS not ready")
	return srv.ClientURL()
}

// worker is a scripted automation worker answering on the bus.
type worker struct {
	t  *testing.T
	nc *nats.Conn

	mu       sync.Mutex
	requests map[string][]Request
	replies  map[string]Reply
}

func startWorker(t *testing.T, url string) *worker {
	t.Helper()
	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	w := &worker{t: t, nc: nc, requests: make(map[string][]Request), replies: make(map[string]Reply)}
	_, err = nc.Subscribe(prefix+".*.*", func(msg *nats.Msg) {
		op := msg.Subject[strings.LastIndexByte(msg.Subject, '.')+1:]
		if op == "events" {
			return
		}
		var req Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return
		}
		w.mu.Lock()
		w.requests[op] = append(w.requests[op], req)
		rep, ok := w.replies[op]
		w.mu.Unlock()
		if !ok {
			rep = Reply{OK: true}
		}
		data, _ := json.Marshal(rep)
		_ = msg.Respond(data)
	})
	require.NoError(t, err)
	require.NoError(t, nc.Flush())
	return w
}

func (w *worker) reply(op string, rep Reply) {
	w.mu.Lock()
	w.replies[op] = rep
	w.mu.Unlock()
}

func (w *worker) result(op string, v any) {
	data, err := json.Marshal(v)
	require.NoError(w.t, err)
	w.reply(op, Reply{OK: true, Result: data})
}

func (w *worker) got(op string) []Request {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Request(nil), w.requests[op]...)
}

func (w *worker) emit(tenantID string, evt Event) {
	data, err := json.Marshal(evt)
	require.NoError(w.t, err)
	require.NoError(w.t, w.nc.Publish(EventSubject(prefix, tenantID), data))
	require.NoError(w.t, w.nc.Flush())
}

type recordingHandler struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHandler) add(s string) {
	h.mu.Lock()
	h.events = append(h.events, s)
	h.mu.Unlock()
}

func (h *recordingHandler) OnQR(p string) { h.add("qr:" + p) }
func (h *recordingHandler) OnAuthenticated() { h.add("authenticated") }
func (h *recordingHandler) OnReady() { h.add("ready") }
func (h *recordingHandler) OnAuthFailure(r string) { h.add("auth_failure:" + r) }
func (h *recordingHandler) OnDisconnected(r string) { h.add("disconnected:" + r) }

func (h *recordingHandler) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func newConn(t *testing.T) (engine.Connection, *worker) {
	t.Helper()
	url := startTestNATS(t)
	w := startWorker(t, url)
	f, err := Dial(url, prefix, 2*time.Second, nil)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	c, err := f.NewConnection("7", "/data/session-7")
	require.NoError(t, err)
	return c, w
}

func TestConnect_DeliversEventsInOrder(t *testing.T) {
	c, w := newConn(t)
	h := &recordingHandler{}
	c.Subscribe(h)

	require.NoError(t, c.Connect(context.Background()))
	require.True(t, c.Alive())
	reqs := w.got(OpConnect)
	require.Len(t, reqs, 1)
	require.Equal(t, "/data/session-7", reqs[0].DataDir)
	require.Equal(t, "7", reqs[0].TenantID)
	require.True(t, strings.HasPrefix(reqs[0].RequestID, "req-"))

	w.emit("7", Event{Type: EventQR, Payload: "QR-A"})
	w.emit("7", Event{Type: EventAuthenticated})
	w.emit("7", Event{Type: EventReady})
	w.emit("7", Event{Type: "battery_low"})
	w.emit("7", Event{Type: EventDisconnected, Payload: "LOGOUT"})

	require.Eventually(t, func() bool { return len(h.snapshot()) == 4 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"qr:QR-A", "authenticated", "ready", "disconnected:LOGOUT"}, h.snapshot())
}

func TestConnect_WorkerFailure(t *testing.T) {
	c, w := newConn(t)
	w.reply(OpConnect, Reply{OK: false, Error: "Failed to launch the browser process"})

	err := c.Connect(context.Background())
	require.EqualError(t, err, "Failed to launch the browser process")
	require.False(t, c.Alive())
}

func TestConnect_NoWorker(t *testing.T) {
	url := startTestNATS(t)
	f, err := Dial(url, prefix, time.Second, nil)
	require.NoError(t, err)
	defer f.Close()
	c, err := f.NewConnection("7", "")
	require.NoError(t, err)

	err = c.Connect(context.Background())
	require.ErrorIs(t, err, nats.ErrNoResponders)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c, w := newConn(t)
	h := &recordingHandler{}
	unsubscribe := c.Subscribe(h)
	require.NoError(t, c.Connect(context.Background()))

	unsubscribe()
	w.emit("7", Event{Type: EventReady})
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, h.snapshot())
}

func TestDestroy(t *testing.T) {
	c, w := newConn(t)
	h := &recordingHandler{}
	c.Subscribe(h)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Destroy(context.Background()))
	require.NoError(t, c.Destroy(context.Background()))
	require.Len(t, w.got(OpDestroy), 1)
	require.False(t, c.Alive())

	w.emit("7", Event{Type: EventQR, Payload: "late"})
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, h.snapshot())
}

func TestDestroy_FailureIsRetryable(t *testing.T) {
	c, w := newConn(t)
	require.NoError(t, c.Connect(context.Background()))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, c.Destroy(cancelled))
	require.Empty(t, w.got(OpDestroy))

	w.reply(OpDestroy, Reply{OK: false, Error: "browser busy"})
	require.EqualError(t, c.Destroy(context.Background()), "browser busy")

	w.reply(OpDestroy, Reply{OK: true})
	require.NoError(t, c.Destroy(context.Background()))
	require.NoError(t, c.Destroy(context.Background()))
	require.Len(t, w.got(OpDestroy), 2)
	require.False(t, c.Alive())
}

func TestRuntimeExitClearsAlive(t *testing.T) {
	c, w := newConn(t)
	require.NoError(t, c.Connect(context.Background()))
	w.emit("7", Event{Type: EventRuntimeExit})
	require.Eventually(t, func() bool { return !c.Alive() }, 2*time.Second, 10*time.Millisecond)
}

func TestMessaging(t *testing.T) {
	c, w := newConn(t)
	require.NoError(t, c.Connect(context.Background()))
	ctx := context.Background()

	w.result(OpIsRegistered, map[string]bool{"registered": true})
	ok, err := c.IsRegisteredUser(ctx, "1555@c.us")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, engine.Address("1555@c.us"), w.got(OpIsRegistered)[0].To)

	media := &model.Media{MimeType: "application/pdf", Data: []byte("%PDF"), Filename: "Invoice-9"}
	require.NoError(t, c.SendMessage(ctx, "1555@c.us", engine.Content{Media: media}, engine.SendOptions{Caption: "hi"}))
	sent := w.got(OpSend)[0]
	require.Equal(t, media, sent.Content.Media)
	require.Equal(t, "hi", sent.Options.Caption)

	w.reply(OpSend, Reply{Error: "Evaluation failed: invalid wid"})
	err = c.SendMessage(ctx, "x@c.us", engine.Content{Text: "x"}, engine.SendOptions{})
	require.EqualError(t, err, "Evaluation failed: invalid wid")
}

func TestProfileQueries(t *testing.T) {
	c, w := newConn(t)
	require.NoError(t, c.Connect(context.Background()))
	ctx := context.Background()

	w.result(OpMe, map[string]string{"address": "1555@c.us"})
	w.result(OpContact, model.Contact{Number: "1555", PushName: "Shop", IsBusiness: true})
	w.result(OpProfilePic, map[string]string{"url": "https://pps/x.jpg"})
	w.result(OpAbout, map[string]string{"about": "hello"})

	me, err := c.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.Address("1555@c.us"), me)

	contact, err := c.GetContactInfo(ctx, me)
	require.NoError(t, err)
	require.Equal(t, &model.Contact{Number: "1555", PushName: "Shop", IsBusiness: true}, contact)

	pic, err := c.GetProfilePicURL(ctx, me)
	require.NoError(t, err)
	require.Equal(t, "https://pps/x.jpg", pic)

	about, err := c.GetAbout(ctx, me)
	require.NoError(t, err)
	require.Equal(t, "hello", about)

	w.reply(OpContact, Reply{OK: true, Result: json.RawMessage("null")})
	contact, err = c.GetContactInfo(ctx, me)
	require.NoError(t, err)
	require.Nil(t, contact)

	w.reply(OpMe, Reply{OK: true})
	_, err = c.Me(ctx)
	require.ErrorContains(t, err, "not connected")
}

func TestSubjects(t *testing.T) {
	require.Equal(t, "p.7.send", RequestSubject("p", "7", OpSend))
	require.Equal(t, "p.a_b.events", EventSubject("p", "a.b"))
	require.Equal(t, "p._.me", RequestSubject("p", "", OpMe))
}
