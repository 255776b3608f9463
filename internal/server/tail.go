package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Geun-Oh/lxring/internal/buffer"
	"github.com/Geun-Oh/lxring/internal/entry"
	"github.com/Geun-Oh/lxring/internal/sink"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// tailOptions are read from the query string: privileged, uid, version
// and format ("json" text messages or "binary" wire frames).
type tailOptions struct {
	reader buffer.ReaderOptions
	binary bool
}

func (s *Server) parseTail(r *http.Request) (tailOptions, error) {
	q := r.URL.Query()
	opts := tailOptions{reader: buffer.ReaderOptions{Version: s.opts.TailVersion}}
	if v := q.Get("privileged"); v != "" {
		p, err := strconv.ParseBool(v)
		if err != nil {
			return opts, badRequest("privileged: %v", err)
		}
		opts.reader.Privileged = p
	}
	if v := q.Get("uid"); v != "" {
		uid, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return opts, badRequest("uid: %v", err)
		}
		opts.reader.UID = uint32(uid)
	}
	if v := q.Get("version"); v != "" {
		ver, err := entry.ParseVersion(v)
		if err != nil {
			return opts, badRequest("%v", err)
		}
		opts.reader.Version = ver
	}
	switch q.Get("format") {
	case "", "json":
	case "binary":
		opts.binary = true
	default:
		return opts, badRequest("format %q (want json or binary)", q.Get("format"))
	}
	return opts, nil
}

// tail streams one cursor to a WebSocket client until either side goes
// away. The cursor is closed on disconnect.
func (s *Server) tail(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store(w, r)
	if !ok {
		return
	}
	opts, err := s.parseTail(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := st.OpenReader(opts.reader)
	if err != nil {
		writeError(w, err)
		return
	}
	defer c.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "store", st.Name(), "error", err)
		return
	}
	defer conn.Close()

	log := s.log.With("store", st.Name(), "cursor", c.ID().String())
	log.Info("tail attached", "privileged", opts.reader.Privileged, "uid", opts.reader.UID, "version", opts.reader.Version)
	defer log.Info("tail detached")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go readPump(conn, cancel)

	if err := writePump(ctx, conn, c, opts.binary); err != nil && ctx.Err() == nil {
		log.Warn("tail stopped", "error", err)
	}
}

// readPump discards client messages and keeps the read deadline moving
// with pongs. It cancels the tail when the connection fails.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, c *buffer.Cursor, binary bool) error {
	lastPing := time.Now()
	for {
		if time.Since(lastPing) >= pingPeriod {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
			lastPing = time.Now()
		}

		e, err := c.Next(ctx, buffer.ReadOptions{Block: true, Timeout: pingPeriod - time.Since(lastPing)})
		if errors.Is(err, buffer.ErrTimeout) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
			return err
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if binary {
			b := buffer.EncodeWire(e)
			err = conn.WriteMessage(websocket.BinaryMessage, *b)
			buffer.ReleaseWire(b)
		} else {
			err = conn.WriteJSON(sink.LineOf(e))
		}
		if err != nil {
			return err
		}
	}
}
