//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"syscall/js"
	"time"

	"github.com/coder/websocket"

	"github.com/stargety/oasis-mapeditor/internal/collab"
	"github.com/stargety/oasis-mapeditor/internal/geom"
	"github.com/stargety/oasis-mapeditor/internal/typeid"
	"github.com/stargety/oasis-mapeditor/internal/viewport"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	sendQueue    = 256
)

// socket carries a collab session over a browser WebSocket.
type socket struct {
	conn   *websocket.Conn
	out    chan []*collab.Message
	cancel context.CancelFunc
}

func (s *socket) enqueue(msgs []*collab.Message) {
	if len(msgs) == 0 {
		return
	}
	select {
	case s.out <- msgs:
	default:
		js.Global().Get("console").Call("warn", "collab send queue full, dropping messages")
	}
}

// connect(url, mapId) joins a collaborative map. The server sends the
// document, which replaces the local one. It returns at once; progress is
// reported through the onUpdate callback as "connected", "remote",
// "disconnected" or "error".
func (b *bridge) connect(_ js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return fail("missing url or map id")
	}
	rawURL, mapID := args[0].String(), args[1].String()
	target, err := url.Parse(rawURL)
	if err != nil {
		return fail("invalid url: " + err.Error())
	}

	// Write out offline edits before the server document replaces them.
	b.persist.Flush()

	b.mu.Lock()
	if b.socket != nil {
		b.mu.Unlock()
		return fail("already connected")
	}
	ctx, cancel := context.WithCancel(context.Background())
	sock := &socket{out: make(chan []*collab.Message, sendQueue), cancel: cancel}
	b.socket = sock
	b.session = collab.NewSession(mapID, b.engine, typeid.NewOpID)
	if b.resume != nil && b.resumeMap == mapID {
		b.session.ResumeFrom(*b.resume)
		q := target.Query()
		q.Set("epoch", b.resume.Epoch)
		q.Set("since", strconv.FormatInt(b.resume.Seq, 10))
		target.RawQuery = q.Encode()
	}
	b.resume = nil
	b.mu.Unlock()

	go b.run(ctx, sock, target.String())
	return ok()
}

func (b *bridge) disconnect(_ js.Value, _ []js.Value) interface{} {
	b.mu.Lock()
	sock := b.socket
	b.mu.Unlock()
	if sock != nil {
		sock.cancel()
	}
	return ok()
}

func (b *bridge) isConnected(_ js.Value, _ []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return js.ValueOf(b.socket != nil && b.socket.conn != nil)
}

func (b *bridge) getPeers(_ js.Value, _ []js.Value) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return js.ValueOf("{}")
	}
	return jsonValue(b.session.Peers())
}

func (b *bridge) run(ctx context.Context, sock *socket, wsURL string) {
	defer b.teardown(sock)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	cancel()
	if err != nil {
		b.report("error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	b.mu.Lock()
	sock.conn = conn
	b.notify("connected")
	b.mu.Unlock()

	go b.writeLoop(ctx, sock)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				b.report("error", err)
			}
			return
		}

		var msg collab.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		b.mu.Lock()
		err = b.session.Handle(&msg)
		b.handles.Prune(b.hasShape)
		sock.enqueue(b.session.Outbox())
		b.notify("remote")
		b.mu.Unlock()
		if err != nil {
			b.report("error", err)
		}
	}
}

func (b *bridge) writeLoop(ctx context.Context, sock *socket) {
	for {
		select {
		case <-ctx.Done():
			return
		case msgs := <-sock.out:
			for _, m := range msgs {
				data, err := json.Marshal(m)
				if err != nil {
					continue
				}
				wctx, cancel := context.WithTimeout(ctx, writeTimeout)
				err = sock.conn.Write(wctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					sock.cancel()
					return
				}
			}
		}
	}
}

// teardown drops the session. Operations still pending stay applied
// locally and are persisted like offline edits. A clean session leaves a
// resume point for the next connect to the same map.
func (b *bridge) teardown(sock *socket) {
	sock.cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.socket == sock {
		b.socket = nil
		if b.session != nil {
			if p, ok := b.session.ResumePoint(); ok {
				b.resume, b.resumeMap = &p, b.session.MapID()
			}
			b.session.Close()
			b.session = nil
		}
	}
	b.schedulePersist()
	b.notify("disconnected")
}

func (b *bridge) report(kind string, err error) {
	js.Global().Get("console").Call("warn", "collab: "+err.Error())
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notify(kind)
}

// sharePresence sends the cursor in world space at most every
// presenceInterval. Caller holds mu.
func (b *bridge) sharePresence(screen geom.Point) {
	if b.session == nil || time.Since(b.lastPresence) < presenceInterval {
		return
	}
	b.lastPresence = time.Now()
	w := viewport.ScreenToWorld(screen, b.engine.Viewport().Viewport())
	b.session.UpdatePresence(&collab.CursorPos{X: w.X, Y: w.Y})
}
