package httpapi

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/UkralStul/social-feed/internal/client"
	"github.com/UkralStul/social-feed/internal/feed"
	"github.com/UkralStul/social-feed/internal/like"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// Сообщения клиента.
const (
	msgScope   = "scope"
	msgLike    = "like"
	msgSignOut = "signout"
)

type inbound struct {
	Type   string     `json:"type"`
	Scope  feed.Scope `json:"scope,omitempty"`
	PostID string     `json:"postId,omitempty"`
}

type outbound struct {
	Type     string         `json:"type"`
	Snapshot *feed.Snapshot `json:"snapshot,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// feedSocket держит живую ленту пользователя поверх websocket:
// сервер шлёт снимки, клиент переключает охват и лайки.
func (s *Server) feedSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}

	c := client.New(s.svc)
	if _, err := c.Restore(r.Context(), token); err != nil {
		c.Close()
		writeFailure(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.Close()
		log.Printf("httpapi: websocket upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	replies := make(chan outbound, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(ctx, conn, c.Feed().Subscribe(ctx), replies)
	}()

	var commits sync.WaitGroup
	s.readLoop(ctx, conn, c, replies, &commits)

	cancel()
	commits.Wait()
	<-done
	c.Close()
	_ = conn.Close()
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, c *client.Client, replies chan<- outbound, commits *sync.WaitGroup) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("httpapi: feed socket closed: %v", err)
			}
			return
		}

		var err error
		switch msg.Type {
		case msgScope:
			err = c.SetScope(msg.Scope)
		case msgLike:
			// Применение - здесь, в порядке сообщений; коммиты идут независимо
			var commit func(context.Context) error
			if commit, err = c.ApplyLike(msg.PostID); err == nil {
				commits.Add(1)
				go func() {
					defer commits.Done()
					if err := commit(ctx); err != nil {
						reply(replies, like.FailureNotice)
					}
				}()
			}
		case msgSignOut:
			err = c.SignOut(ctx)
		default:
			reply(replies, "unknown message type: "+msg.Type)
			continue
		}
		if err != nil {
			reply(replies, publicMessage(err))
		}
	}
}

// reply не блокирует чтение, если писатель отстал или уже завершился.
func reply(replies chan<- outbound, msg string) {
	select {
	case replies <- outbound{Type: "error", Error: msg}:
	default:
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, snaps <-chan feed.Snapshot, replies <-chan outbound) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	write := func(v outbound) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			log.Printf("httpapi: feed socket write failed: %v", err)
			_ = conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if !write(outbound{Type: "snapshot", Snapshot: &snap}) {
				return
			}
		case reply := <-replies:
			if !write(reply) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
