package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/louisbranch/planning.poker/internal/core/consensus"
	apperrors "github.com/louisbranch/planning.poker/internal/errors"
	"github.com/louisbranch/planning.poker/internal/id"
	"github.com/louisbranch/planning.poker/internal/poker/domain"
	"github.com/louisbranch/planning.poker/internal/poker/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/websocket"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	maxChatMessageRunes = 2000
)

// deckTokens is the fixed estimation deck. Coffee votes are matched
// separately so every accepted spelling passes.
var deckTokens = map[string]struct{}{
	"0": {}, "1/2": {}, "1": {}, "2": {}, "3": {}, "5": {},
	"8": {}, "13": {}, "20": {}, "40": {}, "100": {},
}

// ErrInvalidVote indicates a vote token outside the deck.
var ErrInvalidVote = apperrors.New(apperrors.CodeVoteInvalidToken, "vote is not a deck token")

var errNoGame = apperrors.New(apperrors.CodeGameNotStarted, "join a game first")
var errAlreadyInGame = apperrors.New(apperrors.CodePlayerAlreadyJoined, "connection is already in a game")

func tracer() trace.Tracer {
	return otel.Tracer("github.com/louisbranch/planning.poker/internal/services/game/app")
}

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type ackPayload struct {
	OK    bool      `json:"ok"`
	Code  string    `json:"code,omitempty"`
	Error *ackError `json:"error,omitempty"`
}

type ackError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type createPayload struct {
	MasterName string   `json:"masterName"`
	Title      string   `json:"title"`
	Questions  []string `json:"questions"`
	Mode       string   `json:"mode"`
	Resumed    bool     `json:"resumed,omitempty"`
	// Current is a pointer so a resume snapshot that omits the index is
	// distinguishable from one resuming at task 0.
	Current *int `json:"current,omitempty"`
}

type joinPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type votePayload struct {
	Value string `json:"value"`
}

type chatPayload struct {
	Msg string `json:"msg"`
}

type chatBroadcast struct {
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// wsClient is the per-connection state: one connection maps to at most one
// player in one game.
type wsClient struct {
	playerID string
	peer     *wsPeer
	session  *domain.Session
	room     *gameRoom
}

func handleWSConn(conn *websocket.Conn, hub *roomHub, reg *registry.Registry) {
	defer func() {
		_ = conn.Close()
	}()

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}

	playerID, err := id.NewID()
	if err != nil {
		log.Printf("failed to allocate connection id: %v", err)
		return
	}

	decoder := json.NewDecoder(conn)
	client := &wsClient{
		playerID: playerID,
		peer:     newWSPeer(json.NewEncoder(conn)),
	}
	defer leaveGame(client, hub, reg)

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeAckError(client.peer, "", "INVALID_INPUT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeAckError(client.peer, frame.RequestID, "INVALID_INPUT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeAckError(client.peer, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		dispatchFrame(ctx, client, hub, reg, frame)
	}
}

func dispatchFrame(ctx context.Context, client *wsClient, hub *roomHub, reg *registry.Registry, frame wsFrame) {
	_, span := tracer().Start(ctx, "game.ws."+frame.Type)
	defer span.End()

	switch frame.Type {
	case "create_game":
		handleCreateFrame(client, hub, reg, frame)
	case "join_game":
		handleJoinFrame(client, hub, reg, frame)
	case "start_game":
		handleSessionOp(client, frame, client.sessionOp((*domain.Session).Start))
	case "submit_vote":
		handleVoteFrame(client, frame)
	case "unvote":
		handleSessionOp(client, frame, client.sessionOp((*domain.Session).Unvote))
	case "request_pause":
		handleSessionOp(client, frame, client.sessionOp((*domain.Session).RequestPause))
	case "accept_pause":
		handleSessionOp(client, frame, client.sessionOp((*domain.Session).AcceptPause))
	case "reject_pause":
		handleSessionOp(client, frame, client.sessionOp((*domain.Session).RejectPause))
	case "resume_game":
		handleSessionOp(client, frame, client.sessionOp((*domain.Session).Resume))
	case "revote":
		handleSessionOp(client, frame, client.sessionOp((*domain.Session).Revote))
	case "next_question":
		handleSessionOp(client, frame, client.sessionOp((*domain.Session).NextTask))
	case "send_chat":
		handleChatFrame(client, frame)
	default:
		_ = writeAckError(client.peer, frame.RequestID, "INVALID_INPUT", "unsupported frame type")
	}
}

// sessionOp adapts a player-scoped session method into a closure bound to
// this connection's player id.
func (c *wsClient) sessionOp(op func(*domain.Session, string) error) func() error {
	return func() error {
		return op(c.session, c.playerID)
	}
}

func leaveGame(client *wsClient, hub *roomHub, reg *registry.Registry) {
	if client.session == nil {
		return
	}
	session, room := client.session, client.room
	client.session, client.room = nil, nil

	room.leave(client.peer)
	if session.RemovePlayer(client.playerID) {
		reg.Remove(session.Code())
		hub.drop(session.Code())
		log.Printf("game %s closed: last player disconnected", session.Code())
		return
	}
	broadcastUpdate(session, room)
}

func handleCreateFrame(client *wsClient, hub *roomHub, reg *registry.Registry, frame wsFrame) {
	if client.session != nil {
		writeAckFailure(client.peer, frame.RequestID, errAlreadyInGame)
		return
	}

	var payload createPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeAckError(client.peer, frame.RequestID, "INVALID_INPUT", "invalid create payload")
		return
	}

	current := 0
	if payload.Resumed {
		if payload.Current == nil {
			_ = writeAckError(client.peer, frame.RequestID, "INVALID_INPUT", "current is required when resuming")
			return
		}
		current = *payload.Current
	}

	session, err := reg.Create(registry.CreateInput{
		Title:       payload.Title,
		Tasks:       payload.Questions,
		Mode:        consensus.ModeFromLabel(payload.Mode),
		CurrentTask: current,
	})
	if err != nil {
		writeAckFailure(client.peer, frame.RequestID, err)
		return
	}

	if _, err := session.AddPlayer(client.playerID, payload.MasterName); err != nil {
		reg.Remove(session.Code())
		writeAckFailure(client.peer, frame.RequestID, err)
		return
	}

	room := hub.room(session.Code())
	room.join(client.peer)
	client.session = session
	client.room = room

	log.Printf("game %s created by %q (resumed=%t)", session.Code(), payload.MasterName, payload.Resumed)
	_ = writeAck(client.peer, frame.RequestID, ackPayload{OK: true, Code: session.Code()})
	broadcastUpdate(session, room)
}

func handleJoinFrame(client *wsClient, hub *roomHub, reg *registry.Registry, frame wsFrame) {
	if client.session != nil {
		writeAckFailure(client.peer, frame.RequestID, errAlreadyInGame)
		return
	}

	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeAckError(client.peer, frame.RequestID, "INVALID_INPUT", "invalid join payload")
		return
	}

	session, err := reg.Get(payload.Code)
	if err != nil {
		writeAckFailure(client.peer, frame.RequestID, err)
		return
	}
	if _, err := session.AddPlayer(client.playerID, payload.Name); err != nil {
		writeAckFailure(client.peer, frame.RequestID, err)
		return
	}

	room := hub.room(session.Code())
	room.join(client.peer)
	client.session = session
	client.room = room

	_ = writeAck(client.peer, frame.RequestID, ackPayload{OK: true})
	broadcastUpdate(session, room)
}

func handleVoteFrame(client *wsClient, frame wsFrame) {
	if client.session == nil {
		writeAckFailure(client.peer, frame.RequestID, errNoGame)
		return
	}

	var payload votePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeAckError(client.peer, frame.RequestID, "INVALID_INPUT", "invalid vote payload")
		return
	}

	value := strings.TrimSpace(payload.Value)
	if !validDeckToken(value) {
		writeAckFailure(client.peer, frame.RequestID, ErrInvalidVote)
		return
	}

	if err := client.session.SubmitVote(client.playerID, value); err != nil {
		writeAckFailure(client.peer, frame.RequestID, err)
		return
	}
	_ = writeAck(client.peer, frame.RequestID, ackPayload{OK: true})
	broadcastUpdate(client.session, client.room)
}

// handleSessionOp runs a payload-less session operation, acks the outcome,
// and broadcasts the refreshed view on success.
func handleSessionOp(client *wsClient, frame wsFrame, op func() error) {
	if client.session == nil {
		writeAckFailure(client.peer, frame.RequestID, errNoGame)
		return
	}
	if err := op(); err != nil {
		writeAckFailure(client.peer, frame.RequestID, err)
		return
	}
	_ = writeAck(client.peer, frame.RequestID, ackPayload{OK: true})
	broadcastUpdate(client.session, client.room)
}

func handleChatFrame(client *wsClient, frame wsFrame) {
	if client.session == nil {
		writeAckFailure(client.peer, frame.RequestID, errNoGame)
		return
	}

	var payload chatPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeAckError(client.peer, frame.RequestID, "INVALID_INPUT", "invalid chat payload")
		return
	}

	msg := strings.TrimSpace(payload.Msg)
	if msg == "" {
		_ = writeAckError(client.peer, frame.RequestID, "INVALID_INPUT", "msg is required")
		return
	}
	if utf8.RuneCountInString(msg) > maxChatMessageRunes {
		_ = writeAckError(client.peer, frame.RequestID, "INVALID_INPUT", "msg must be at most 2000 characters")
		return
	}

	entry, err := client.session.PostChat(client.playerID, msg)
	if err != nil {
		writeAckFailure(client.peer, frame.RequestID, err)
		return
	}

	_ = writeAck(client.peer, frame.RequestID, ackPayload{OK: true})
	client.room.broadcast(wsFrame{
		Type:    "chat_message",
		Payload: mustJSON(chatBroadcast{Name: entry.Name, Msg: entry.Msg}),
	})
}

func validDeckToken(value string) bool {
	if _, ok := deckTokens[value]; ok {
		return true
	}
	return consensus.IsCoffee(value)
}

func broadcastUpdate(session *domain.Session, room *gameRoom) {
	room.broadcast(wsFrame{
		Type:    "game_update",
		Payload: mustJSON(session.Snapshot()),
	})
}

func writeAck(peer *wsPeer, requestID string, payload ackPayload) error {
	return peer.writeFrame(wsFrame{
		Type:      "ack",
		RequestID: requestID,
		Payload:   mustJSON(payload),
	})
}

func writeAckFailure(peer *wsPeer, requestID string, err error) {
	code := apperrors.GetCode(err)
	_ = writeAckError(peer, requestID, code.TransportCode(), err.Error())
}

func writeAckError(peer *wsPeer, requestID string, code string, message string) error {
	return writeAck(peer, requestID, ackPayload{
		OK:    false,
		Error: &ackError{Code: code, Message: message},
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
