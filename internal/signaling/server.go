// Package signaling serves the viewer page and the /ws endpoint.
//
// Each websocket connection gets its own WebRTC peer. Messages in both
// directions are JSON objects {"event": ..., "data": ...}:
//
//	offer  (in)   data = JSON session description, answered with "answer"
//	answer (out)  data = JSON session description, ICE candidates included
//	play   (in)   data ignored
//	pause  (in)   data ignored
//	seek   (in)   data = position in seconds
//	ack    (out)  data = JSON control.Response for play/pause/seek
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/e7canasta/stream-playout/internal/control"
)

// Message is one websocket message.
type Message struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// Message events.
const (
	EventOffer  = "offer"
	EventAnswer = "answer"
	EventPlay   = "play"
	EventPause  = "pause"
	EventSeek   = "seek"
	EventAck    = "ack"
)

// Peer answers one viewer's offer.
type Peer interface {
	Answer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	Close() error
}

// PeerFactory creates the peer for a new websocket connection.
type PeerFactory func() (Peer, error)

// answerTimeout bounds ICE gathering for one offer.
const answerTimeout = 10 * time.Second

// Server handles the viewer page and websocket signaling.
type Server struct {
	router   *control.Router
	newPeer  PeerFactory
	upgrader websocket.Upgrader
}

// NewServer creates a signaling server dispatching control events to router.
func NewServer(router *control.Router, newPeer PeerFactory) *Server {
	return &Server{
		router:  router,
		newPeer: newPeer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Register adds "/" and "/ws" to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", s.ServeHome)
	mux.HandleFunc("/ws", s.ServeWS)
}

// ServeHome serves the viewer page.
func (s *Server) ServeHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, homeHTML)
}

// ServeWS upgrades the connection and runs one signaling session until the
// client disconnects or sends a message that is not valid JSON.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		var handshakeErr websocket.HandshakeError
		if !errors.As(err, &handshakeErr) {
			slog.Warn("signaling: websocket upgrade failed", "error", err)
		}
		return
	}
	defer ws.Close()

	session := uuid.NewString()
	logger := slog.With("session", session, "remote", r.RemoteAddr)

	peer, err := s.newPeer()
	if err != nil {
		logger.Error("signaling: failed to create peer", "error", err)
		return
	}
	defer func() {
		if err := peer.Close(); err != nil {
			logger.Warn("signaling: failed to close peer", "error", err)
		}
	}()

	logger.Info("signaling: session opened")
	defer logger.Info("signaling: session closed")

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warn("signaling: invalid message, closing session", "error", err)
			return
		}

		if err := s.handleMessage(r.Context(), ws, peer, &msg); err != nil {
			logger.Warn("signaling: message failed", "event", msg.Event, "error", err)
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, ws *websocket.Conn, peer Peer, msg *Message) error {
	switch msg.Event {
	case EventOffer:
		offer := webrtc.SessionDescription{}
		if err := json.Unmarshal([]byte(msg.Data), &offer); err != nil {
			return fmt.Errorf("decode offer: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, answerTimeout)
		defer cancel()

		answer, err := peer.Answer(ctx, offer)
		if err != nil {
			return err
		}

		answerString, err := json.Marshal(answer)
		if err != nil {
			return err
		}
		return ws.WriteJSON(&Message{Event: EventAnswer, Data: string(answerString)})

	case EventPlay:
		return s.dispatch(ws, control.Command{Command: control.CommandPlay})

	case EventPause:
		return s.dispatch(ws, control.Command{Command: control.CommandPause})

	case EventSeek:
		return s.dispatch(ws, control.Command{
			Command: control.CommandSeek,
			Params:  map[string]interface{}{"position_s": msg.Data},
		})

	default:
		return fmt.Errorf("unknown event %q", msg.Event)
	}
}

func (s *Server) dispatch(ws *websocket.Conn, cmd control.Command) error {
	resp := s.router.Dispatch(cmd)

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return ws.WriteJSON(&Message{Event: EventAck, Data: string(data)})
}
