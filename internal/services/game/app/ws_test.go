package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"
)

type wsTestFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsTestAck struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wsTestPlayer struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	IsMaster bool    `json:"isMaster"`
	Voted    bool    `json:"voted"`
	Vote     *string `json:"vote"`
}

type wsTestResult struct {
	AgreementFound bool    `json:"agreementFound"`
	FinalValue     *string `json:"finalValue"`
	AllCoffee      bool    `json:"allCoffee"`
}

type wsTestView struct {
	Code             string         `json:"code"`
	Title            string         `json:"title"`
	Tasks            []string       `json:"tasks"`
	CurrentTaskIndex int            `json:"currentTaskIndex"`
	Started          bool           `json:"started"`
	Paused           bool           `json:"paused"`
	PauseRequestedBy string         `json:"pauseRequestedBy"`
	Mode             string         `json:"mode"`
	Round            int            `json:"round"`
	Players          []wsTestPlayer `json:"players"`
	Result           *wsTestResult  `json:"result"`
}

func newWSTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler())
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(frame); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) wsTestFrame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got wsTestFrame
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	return got
}

func readFrameOfType(t *testing.T, conn *websocket.Conn, frameType string) wsTestFrame {
	t.Helper()
	for i := 0; i < 20; i++ {
		frame := readFrame(t, conn)
		if frame.Type == frameType {
			return frame
		}
	}
	t.Fatalf("no %q frame within 20 frames", frameType)
	return wsTestFrame{}
}

func decodeAck(t *testing.T, payload json.RawMessage) wsTestAck {
	t.Helper()
	var ack wsTestAck
	if err := json.Unmarshal(payload, &ack); err != nil {
		t.Fatalf("decode ack payload: %v", err)
	}
	return ack
}

// waitForView reads broadcast frames until a game_update satisfies the
// predicate, skipping stale updates already queued on the connection.
func waitForView(t *testing.T, conn *websocket.Conn, match func(wsTestView) bool) wsTestView {
	t.Helper()
	var last wsTestView
	for i := 0; i < 20; i++ {
		frame := readFrame(t, conn)
		if frame.Type != "game_update" {
			continue
		}
		last = wsTestView{}
		if err := json.Unmarshal(frame.Payload, &last); err != nil {
			t.Fatalf("decode view payload: %v", err)
		}
		if match(last) {
			return last
		}
	}
	t.Fatalf("no matching game_update, last view %+v", last)
	return wsTestView{}
}

func createGame(t *testing.T, conn *websocket.Conn, master string, questions []string, mode string) string {
	t.Helper()
	writeFrame(t, conn, map[string]any{
		"type":       "create_game",
		"request_id": "create-1",
		"payload": map[string]any{
			"masterName": master,
			"title":      "Sprint 12",
			"questions":  questions,
			"mode":       mode,
		},
	})
	ack := decodeAck(t, readFrameOfType(t, conn, "ack").Payload)
	if !ack.OK {
		t.Fatalf("expected create to ack ok, got %+v", ack)
	}
	if len(ack.Code) != 6 {
		t.Fatalf("expected a 6-character game code, got %q", ack.Code)
	}
	return ack.Code
}

func joinGame(t *testing.T, conn *websocket.Conn, code string, name string) {
	t.Helper()
	writeFrame(t, conn, map[string]any{
		"type":       "join_game",
		"request_id": "join-1",
		"payload":    map[string]any{"code": code, "name": name},
	})
	ack := decodeAck(t, readFrameOfType(t, conn, "ack").Payload)
	if !ack.OK {
		t.Fatalf("expected join to ack ok, got %+v", ack)
	}
}

func sendOp(t *testing.T, conn *websocket.Conn, opType string) wsTestAck {
	t.Helper()
	writeFrame(t, conn, map[string]any{"type": opType, "request_id": opType + "-1", "payload": map[string]any{}})
	return decodeAck(t, readFrameOfType(t, conn, "ack").Payload)
}

func sendVote(t *testing.T, conn *websocket.Conn, value string) wsTestAck {
	t.Helper()
	writeFrame(t, conn, map[string]any{
		"type":       "submit_vote",
		"request_id": "vote-1",
		"payload":    map[string]any{"value": value},
	})
	return decodeAck(t, readFrameOfType(t, conn, "ack").Payload)
}

func TestCreateGameAcksCodeAndBroadcastsView(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialWS(t, srv)

	code := createGame(t, conn, "Ana", []string{"login page"}, "strict")

	view := waitForView(t, conn, func(v wsTestView) bool { return v.Code == code })
	if len(view.Players) != 1 || view.Players[0].Name != "Ana" || !view.Players[0].IsMaster {
		t.Fatalf("expected Ana as master, got %+v", view.Players)
	}
	if view.Started || view.Round != 1 || view.Mode != "strict" || view.Title != "Sprint 12" {
		t.Fatalf("unexpected initial view %+v", view)
	}
}

func TestCreateGameRejectsEmptyQuestions(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialWS(t, srv)

	writeFrame(t, conn, map[string]any{
		"type":    "create_game",
		"payload": map[string]any{"masterName": "Ana", "questions": []string{}, "mode": "strict"},
	})
	ack := decodeAck(t, readFrameOfType(t, conn, "ack").Payload)
	if ack.OK || ack.Error == nil || ack.Error.Code != "INVALID_INPUT" {
		t.Fatalf("expected INVALID_INPUT, got %+v", ack)
	}
}

func TestCreateGameRejectsUnknownMode(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialWS(t, srv)

	writeFrame(t, conn, map[string]any{
		"type":    "create_game",
		"payload": map[string]any{"masterName": "Ana", "questions": []string{"a"}, "mode": "plurality"},
	})
	ack := decodeAck(t, readFrameOfType(t, conn, "ack").Payload)
	if ack.OK || ack.Error == nil || ack.Error.Code != "INVALID_INPUT" {
		t.Fatalf("expected INVALID_INPUT, got %+v", ack)
	}
}

func TestCreateGameResumedAtIndex(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialWS(t, srv)

	writeFrame(t, conn, map[string]any{
		"type":       "create_game",
		"request_id": "resume-1",
		"payload": map[string]any{
			"masterName": "Ana",
			"title":      "Sprint 12",
			"questions":  []string{"first", "second", "third"},
			"mode":       "mean",
			"resumed":    true,
			"current":    2,
		},
	})
	ack := decodeAck(t, readFrameOfType(t, conn, "ack").Payload)
	if !ack.OK {
		t.Fatalf("expected resume create to ack ok, got %+v", ack)
	}
	waitForView(t, conn, func(v wsTestView) bool { return v.CurrentTaskIndex == 2 })
}

func TestCreateGameResumedRequiresCurrentIndex(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialWS(t, srv)

	writeFrame(t, conn, map[string]any{
		"type": "create_game",
		"payload": map[string]any{
			"masterName": "Ana",
			"questions":  []string{"first", "second", "third"},
			"mode":       "mean",
			"resumed":    true,
		},
	})
	ack := decodeAck(t, readFrameOfType(t, conn, "ack").Payload)
	if ack.OK || ack.Error == nil || ack.Error.Code != "INVALID_INPUT" {
		t.Fatalf("expected snapshot without an index to be rejected, got %+v", ack)
	}

	// The rejection must happen before any session exists.
	if ack.Code != "" {
		t.Fatalf("expected no game code on rejection, got %q", ack.Code)
	}
}

func TestCreateGameResumedRejectsOutOfRangeIndex(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialWS(t, srv)

	writeFrame(t, conn, map[string]any{
		"type": "create_game",
		"payload": map[string]any{
			"masterName": "Ana",
			"questions":  []string{"only"},
			"mode":       "strict",
			"resumed":    true,
			"current":    3,
		},
	})
	ack := decodeAck(t, readFrameOfType(t, conn, "ack").Payload)
	if ack.OK || ack.Error == nil || ack.Error.Code != "INVALID_INPUT" {
		t.Fatalf("expected INVALID_INPUT, got %+v", ack)
	}
}

func TestJoinGameBroadcastsToEveryConnection(t *testing.T) {
	srv := newWSTestServer(t)
	master := dialWS(t, srv)
	joiner := dialWS(t, srv)

	code := createGame(t, master, "Ana", []string{"login page"}, "strict")
	joinGame(t, joiner, strings.ToLower(code), "Bruno")

	for _, conn := range []*websocket.Conn{master, joiner} {
		view := waitForView(t, conn, func(v wsTestView) bool { return len(v.Players) == 2 })
		if view.Players[1].Name != "Bruno" || view.Players[1].IsMaster {
			t.Fatalf("expected Bruno as regular player, got %+v", view.Players)
		}
	}
}

func TestJoinGameUnknownCode(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialWS(t, srv)

	writeFrame(t, conn, map[string]any{
		"type":    "join_game",
		"payload": map[string]any{"code": "NOPE99", "name": "Bruno"},
	})
	ack := decodeAck(t, readFrameOfType(t, conn, "ack").Payload)
	if ack.OK || ack.Error == nil || ack.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %+v", ack)
	}
}

func TestJoinGameRejectsBlankName(t *testing.T) {
	srv := newWSTestServer(t)
	master := dialWS(t, srv)
	joiner := dialWS(t, srv)

	code := createGame(t, master, "Ana", []string{"a"}, "strict")

	writeFrame(t, joiner, map[string]any{
		"type":    "join_game",
		"payload": map[string]any{"code": code, "name": "   "},
	})
	ack := decodeAck(t, readFrameOfType(t, joiner, "ack").Payload)
	if ack.OK || ack.Error == nil || ack.Error.Code != "INVALID_INPUT" {
		t.Fatalf("expected INVALID_INPUT, got %+v", ack)
	}
}

func TestStartGameIsMasterOnly(t *testing.T) {
	srv := newWSTestServer(t)
	master := dialWS(t, srv)
	joiner := dialWS(t, srv)

	code := createGame(t, master, "Ana", []string{"a"}, "strict")
	joinGame(t, joiner, code, "Bruno")

	if ack := sendOp(t, joiner, "start_game"); ack.OK || ack.Error == nil || ack.Error.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN for non-master start, got %+v", ack)
	}
	if ack := sendOp(t, master, "start_game"); !ack.OK {
		t.Fatalf("expected master start to ack ok, got %+v", ack)
	}
	waitForView(t, joiner, func(v wsTestView) bool { return v.Started })
}

func TestSubmitVoteRejectsNonDeckToken(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialWS(t, srv)

	createGame(t, conn, "Ana", []string{"a"}, "strict")
	if ack := sendOp(t, conn, "start_game"); !ack.OK {
		t.Fatalf("start: %+v", ack)
	}
	if ack := sendVote(t, conn, "7"); ack.OK || ack.Error == nil || ack.Error.Code != "INVALID_INPUT" {
		t.Fatalf("expected INVALID_INPUT for off-deck vote, got %+v", ack)
	}
}

func TestSubmitVoteBeforeJoin(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialWS(t, srv)

	if ack := sendVote(t, conn, "5"); ack.OK || ack.Error == nil || ack.Error.Code != "FAILED_PRECONDITION" {
		t.Fatalf("expected FAILED_PRECONDITION before joining, got %+v", ack)
	}
}

func TestFullRoundRevealsVotesAndResult(t *testing.T) {
	srv := newWSTestServer(t)
	master := dialWS(t, srv)
	joiner := dialWS(t, srv)

	code := createGame(t, master, "Ana", []string{"login page"}, "strict")
	joinGame(t, joiner, code, "Bruno")
	if ack := sendOp(t, master, "start_game"); !ack.OK {
		t.Fatalf("start: %+v", ack)
	}

	if ack := sendVote(t, master, "5"); !ack.OK {
		t.Fatalf("master vote: %+v", ack)
	}
	view := waitForView(t, joiner, func(v wsTestView) bool {
		return len(v.Players) == 2 && v.Players[0].Voted
	})
	if view.Players[0].Vote != nil {
		t.Fatalf("expected hidden ballot before full reveal, got %+v", view.Players[0])
	}

	if ack := sendVote(t, joiner, "5"); !ack.OK {
		t.Fatalf("joiner vote: %+v", ack)
	}
	view = waitForView(t, joiner, func(v wsTestView) bool { return v.Result != nil })
	if view.Players[0].Vote == nil || *view.Players[0].Vote != "5" {
		t.Fatalf("expected revealed ballots, got %+v", view.Players)
	}
	if !view.Result.AgreementFound || view.Result.FinalValue == nil || *view.Result.FinalValue != "5" {
		t.Fatalf("expected agreement on 5, got %+v", view.Result)
	}
}

func TestCoffeeVoteAccepted(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialWS(t, srv)

	createGame(t, conn, "Ana", []string{"a"}, "strict")
	if ack := sendOp(t, conn, "start_game"); !ack.OK {
		t.Fatalf("start: %+v", ack)
	}
	if ack := sendVote(t, conn, "Café"); !ack.OK {
		t.Fatalf("expected coffee vote accepted, got %+v", ack)
	}
	view := waitForView(t, conn, func(v wsTestView) bool { return v.Result != nil })
	if !view.Result.AllCoffee || view.Result.FinalValue != nil {
		t.Fatalf("expected unanimous coffee verdict, got %+v", view.Result)
	}
}

func TestSendChatBroadcasts(t *testing.T) {
	srv := newWSTestServer(t)
	master := dialWS(t, srv)
	joiner := dialWS(t, srv)

	code := createGame(t, master, "Ana", []string{"a"}, "strict")
	joinGame(t, joiner, code, "Bruno")

	writeFrame(t, master, map[string]any{
		"type":       "send_chat",
		"request_id": "chat-1",
		"payload":    map[string]any{"msg": "shall we start?"},
	})
	ack := decodeAck(t, readFrameOfType(t, master, "ack").Payload)
	if !ack.OK {
		t.Fatalf("chat ack: %+v", ack)
	}

	frame := readFrameOfType(t, joiner, "chat_message")
	var msg struct {
		Name string `json:"name"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(frame.Payload, &msg); err != nil {
		t.Fatalf("decode chat payload: %v", err)
	}
	if msg.Name != "Ana" || msg.Msg != "shall we start?" {
		t.Fatalf("unexpected chat broadcast %+v", msg)
	}
}

func TestSendChatRejectsEmptyMessage(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialWS(t, srv)

	createGame(t, conn, "Ana", []string{"a"}, "strict")
	writeFrame(t, conn, map[string]any{
		"type":    "send_chat",
		"payload": map[string]any{"msg": "   "},
	})
	ack := decodeAck(t, readFrameOfType(t, conn, "ack").Payload)
	if ack.OK || ack.Error == nil || ack.Error.Code != "INVALID_INPUT" {
		t.Fatalf("expected INVALID_INPUT, got %+v", ack)
	}
}

func TestPauseNegotiationOverWS(t *testing.T) {
	srv := newWSTestServer(t)
	master := dialWS(t, srv)
	joiner := dialWS(t, srv)

	code := createGame(t, master, "Ana", []string{"a"}, "strict")
	joinGame(t, joiner, code, "Bruno")
	if ack := sendOp(t, master, "start_game"); !ack.OK {
		t.Fatalf("start: %+v", ack)
	}

	if ack := sendOp(t, joiner, "request_pause"); !ack.OK {
		t.Fatalf("request pause: %+v", ack)
	}
	waitForView(t, master, func(v wsTestView) bool { return v.PauseRequestedBy == "Bruno" })

	if ack := sendOp(t, master, "accept_pause"); !ack.OK {
		t.Fatalf("accept pause: %+v", ack)
	}
	view := waitForView(t, joiner, func(v wsTestView) bool { return v.Paused })
	if view.PauseRequestedBy != "" {
		t.Fatalf("expected cleared request while paused, got %+v", view)
	}

	if ack := sendVote(t, joiner, "5"); ack.OK || ack.Error == nil || ack.Error.Code != "FAILED_PRECONDITION" {
		t.Fatalf("expected vote rejected while paused, got %+v", ack)
	}

	if ack := sendOp(t, master, "resume_game"); !ack.OK {
		t.Fatalf("resume: %+v", ack)
	}
	waitForView(t, joiner, func(v wsTestView) bool { return v.Started && !v.Paused })
}

func TestNextQuestionAdvancesOverWS(t *testing.T) {
	srv := newWSTestServer(t)
	master := dialWS(t, srv)
	joiner := dialWS(t, srv)

	code := createGame(t, master, "Ana", []string{"first", "second"}, "strict")
	joinGame(t, joiner, code, "Bruno")
	if ack := sendOp(t, master, "start_game"); !ack.OK {
		t.Fatalf("start: %+v", ack)
	}

	if ack := sendVote(t, master, "5"); !ack.OK {
		t.Fatalf("master vote: %+v", ack)
	}
	if ack := sendVote(t, joiner, "8"); !ack.OK {
		t.Fatalf("joiner vote: %+v", ack)
	}
	if ack := sendOp(t, master, "next_question"); ack.OK || ack.Error == nil || ack.Error.Code != "FAILED_PRECONDITION" {
		t.Fatalf("expected next blocked without agreement, got %+v", ack)
	}

	if ack := sendOp(t, master, "revote"); !ack.OK {
		t.Fatalf("revote: %+v", ack)
	}
	waitForView(t, joiner, func(v wsTestView) bool { return v.Round == 2 })

	if ack := sendVote(t, master, "5"); !ack.OK {
		t.Fatalf("master vote: %+v", ack)
	}
	if ack := sendVote(t, joiner, "5"); !ack.OK {
		t.Fatalf("joiner vote: %+v", ack)
	}
	if ack := sendOp(t, master, "next_question"); !ack.OK {
		t.Fatalf("next question: %+v", ack)
	}
	waitForView(t, joiner, func(v wsTestView) bool {
		return v.CurrentTaskIndex == 1 && v.Round == 1 && v.Result == nil
	})
}

func TestDisconnectPromotesNewMaster(t *testing.T) {
	srv := newWSTestServer(t)
	master := dialWS(t, srv)
	joiner := dialWS(t, srv)

	code := createGame(t, master, "Ana", []string{"a"}, "strict")
	joinGame(t, joiner, code, "Bruno")
	waitForView(t, joiner, func(v wsTestView) bool { return len(v.Players) == 2 })

	_ = master.Close()

	view := waitForView(t, joiner, func(v wsTestView) bool { return len(v.Players) == 1 })
	if view.Players[0].Name != "Bruno" || !view.Players[0].IsMaster {
		t.Fatalf("expected Bruno promoted after disconnect, got %+v", view.Players)
	}
}

func TestLastDisconnectEvictsGame(t *testing.T) {
	srv := newWSTestServer(t)
	master := dialWS(t, srv)

	code := createGame(t, master, "Ana", []string{"a"}, "strict")
	_ = master.Close()

	// The eviction races the close; retry the join until the code is gone.
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn := dialWS(t, srv)
		writeFrame(t, conn, map[string]any{
			"type":    "join_game",
			"payload": map[string]any{"code": code, "name": "Late"},
		})
		ack := decodeAck(t, readFrameOfType(t, conn, "ack").Payload)
		_ = conn.Close()
		if !ack.OK && ack.Error != nil && ack.Error.Code == "NOT_FOUND" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected game evicted after last disconnect, got %+v", ack)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestUnsupportedFrameType(t *testing.T) {
	srv := newWSTestServer(t)
	conn := dialWS(t, srv)

	writeFrame(t, conn, map[string]any{"type": "warp_core", "payload": map[string]any{}})
	ack := decodeAck(t, readFrameOfType(t, conn, "ack").Payload)
	if ack.OK || ack.Error == nil || ack.Error.Code != "INVALID_INPUT" {
		t.Fatalf("expected INVALID_INPUT, got %+v", ack)
	}
}
