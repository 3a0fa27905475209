package domain

import (
	"strings"
	"sync"

	"github.com/louisbranch/planning.poker/internal/core/consensus"
	apperrors "github.com/louisbranch/planning.poker/internal/errors"
)

// maxChatMessages bounds the chat log kept for late joiners.
const maxChatMessages = 1000

var (
	// ErrEmptyTaskList indicates a session was configured without tasks.
	ErrEmptyTaskList = apperrors.New(apperrors.CodeGameEmptyTaskList, "at least one task is required")
	// ErrInvalidTaskIndex indicates a resume index outside the task list.
	ErrInvalidTaskIndex = apperrors.New(apperrors.CodeGameInvalidTaskIndex, "task index is out of range")
	// ErrInvalidMode indicates an unknown consensus mode.
	ErrInvalidMode = apperrors.New(apperrors.CodeGameInvalidMode, "consensus mode is invalid")
	// ErrEmptyPlayerName indicates a join without a display name.
	ErrEmptyPlayerName = apperrors.New(apperrors.CodePlayerEmptyName, "player name is required")
	// ErrPlayerAlreadyJoined indicates a duplicate join for one connection.
	ErrPlayerAlreadyJoined = apperrors.New(apperrors.CodePlayerAlreadyJoined, "player already joined this session")
	// ErrPlayerNotFound indicates an operation from an unknown player.
	ErrPlayerNotFound = apperrors.New(apperrors.CodePlayerNotFound, "player is not part of this session")
	// ErrMasterOnly indicates a master-only operation from a regular player.
	ErrMasterOnly = apperrors.New(apperrors.CodePlayerNotMaster, "operation requires the game master")
	// ErrNotStarted indicates a vote before the master started the game.
	ErrNotStarted = apperrors.New(apperrors.CodeGameNotStarted, "game has not started")
	// ErrPaused indicates a vote while the game is paused.
	ErrPaused = apperrors.New(apperrors.CodeGamePaused, "game is paused")
	// ErrPauseAlreadyActive indicates a pause request while already paused.
	ErrPauseAlreadyActive = apperrors.New(apperrors.CodePauseAlreadyActive, "game is already paused")
	// ErrRevoteNotReady indicates a revote before votes are in and disputed.
	ErrRevoteNotReady = apperrors.New(apperrors.CodeRevoteNotReady, "revote requires a revealed round without agreement")
	// ErrNextTaskNotReady indicates a task advance before agreement.
	ErrNextTaskNotReady = apperrors.New(apperrors.CodeNextTaskNotReady, "next task requires agreement on the current round")
)

// Config describes the inputs needed to construct a session. CurrentTask is
// non-zero only when rehydrating from a pause snapshot.
type Config struct {
	Code        string
	Title       string
	Tasks       []string
	Mode        consensus.Mode
	CurrentTask int
}

// Session is the authoritative state of one estimation game.
type Session struct {
	mu sync.Mutex

	code        string
	title       string
	tasks       []string
	currentTask int
	started     bool
	mode        consensus.Mode
	round       int

	// players keeps join order; the first joiner is the master unless a
	// departure promoted someone else.
	players []*Player

	pauseRequestedBy string
	paused           bool

	chat []ChatMessage
}

// New constructs a session from normalized configuration.
func New(cfg Config) (*Session, error) {
	tasks := make([]string, 0, len(cfg.Tasks))
	for _, task := range cfg.Tasks {
		task = strings.TrimSpace(task)
		if task != "" {
			tasks = append(tasks, task)
		}
	}
	if len(tasks) == 0 {
		return nil, ErrEmptyTaskList
	}
	if cfg.Mode == consensus.ModeUnspecified {
		return nil, ErrInvalidMode
	}
	if cfg.CurrentTask < 0 || cfg.CurrentTask >= len(tasks) {
		return nil, ErrInvalidTaskIndex
	}

	return &Session{
		code:        strings.ToUpper(strings.TrimSpace(cfg.Code)),
		title:       strings.TrimSpace(cfg.Title),
		tasks:       tasks,
		currentTask: cfg.CurrentTask,
		mode:        cfg.Mode,
		round:       1,
	}, nil
}

// Code returns the session's registry code.
func (s *Session) Code() string {
	return s.code
}

// AddPlayer registers a new participant. The first player to join becomes
// the master.
func (s *Session) AddPlayer(playerID, name string) (*Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyPlayerName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findPlayer(playerID) != nil {
		return nil, ErrPlayerAlreadyJoined
	}

	player := &Player{
		ID:       playerID,
		Name:     name,
		IsMaster: len(s.players) == 0,
	}
	s.players = append(s.players, player)
	return player, nil
}

// RemovePlayer drops a participant and reports whether the session is now
// empty. When the master leaves, the earliest remaining joiner is promoted.
// A pending pause request from the leaving player is cleared.
func (s *Session) RemovePlayer(playerID string) (empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := -1
	for i, p := range s.players {
		if p.ID == playerID {
			index = i
			break
		}
	}
	if index < 0 {
		return len(s.players) == 0
	}

	leaving := s.players[index]
	s.players = append(s.players[:index], s.players[index+1:]...)

	if s.pauseRequestedBy == leaving.Name {
		s.pauseRequestedBy = ""
	}
	if leaving.IsMaster && len(s.players) > 0 {
		s.players[0].IsMaster = true
	}
	return len(s.players) == 0
}

// Start opens the voting phase. Repeated starts are accepted without effect.
func (s *Session) Start(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireMaster(actorID); err != nil {
		return err
	}
	s.started = true
	return nil
}

// SubmitVote records the player's ballot for the current round.
func (s *Session) SubmitVote(playerID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	player := s.findPlayer(playerID)
	if player == nil {
		return ErrPlayerNotFound
	}
	if !s.started {
		return ErrNotStarted
	}
	if s.paused {
		return ErrPaused
	}
	player.Vote = value
	return nil
}

// Unvote clears the player's ballot so another token can be picked.
func (s *Session) Unvote(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	player := s.findPlayer(playerID)
	if player == nil {
		return ErrPlayerNotFound
	}
	if !s.started {
		return ErrNotStarted
	}
	if s.paused {
		return ErrPaused
	}
	player.Vote = ""
	return nil
}

// RequestPause records that the player wants a break. A later request
// overwrites a pending one.
func (s *Session) RequestPause(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	player := s.findPlayer(playerID)
	if player == nil {
		return ErrPlayerNotFound
	}
	if s.paused {
		return ErrPauseAlreadyActive
	}
	s.pauseRequestedBy = player.Name
	return nil
}

// AcceptPause freezes the game and clears the pending request.
func (s *Session) AcceptPause(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireMaster(actorID); err != nil {
		return err
	}
	s.paused = true
	s.pauseRequestedBy = ""
	return nil
}

// RejectPause declines the pending request and leaves the game running.
func (s *Session) RejectPause(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireMaster(actorID); err != nil {
		return err
	}
	s.pauseRequestedBy = ""
	return nil
}

// Resume unfreezes a paused game.
func (s *Session) Resume(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireMaster(actorID); err != nil {
		return err
	}
	s.paused = false
	return nil
}

// Revote opens a new round on the same task after a disputed reveal. Every
// ballot is cleared and the round counter advances.
func (s *Session) Revote(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireMaster(actorID); err != nil {
		return err
	}
	if !s.started || !s.allVoted() {
		return ErrRevoteNotReady
	}
	if result := s.evaluate(); result.Agreed {
		return ErrRevoteNotReady
	}
	s.round++
	s.clearVotes()
	return nil
}

// NextTask advances to the next task once the current round agreed. Ballots
// are cleared and the round counter resets. On the last task this is a
// no-op: the session stays finished in place.
func (s *Session) NextTask(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireMaster(actorID); err != nil {
		return err
	}
	if !s.started || !s.allVoted() {
		return ErrNextTaskNotReady
	}
	if result := s.evaluate(); !result.Agreed {
		return ErrNextTaskNotReady
	}
	if s.currentTask >= len(s.tasks)-1 {
		return nil
	}
	s.clearVotes()
	s.currentTask++
	s.round = 1
	return nil
}

// PostChat appends a message to the session chat log and returns the entry
// for immediate echo.
func (s *Session) PostChat(playerID, msg string) (ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	player := s.findPlayer(playerID)
	if player == nil {
		return ChatMessage{}, ErrPlayerNotFound
	}
	entry := ChatMessage{Name: player.Name, Msg: msg}
	s.chat = append(s.chat, entry)
	if len(s.chat) > maxChatMessages {
		s.chat = s.chat[len(s.chat)-maxChatMessages:]
	}
	return entry, nil
}

func (s *Session) findPlayer(playerID string) *Player {
	for _, p := range s.players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (s *Session) requireMaster(actorID string) error {
	actor := s.findPlayer(actorID)
	if actor == nil {
		return ErrPlayerNotFound
	}
	if !actor.IsMaster {
		return ErrMasterOnly
	}
	return nil
}

func (s *Session) allVoted() bool {
	if len(s.players) == 0 {
		return false
	}
	for _, p := range s.players {
		if !p.Voted() {
			return false
		}
	}
	return true
}

// evaluate runs the consensus engine over the current ballots. Callers must
// hold the lock and have checked allVoted.
func (s *Session) evaluate() consensus.Result {
	votes := make([]string, 0, len(s.players))
	for _, p := range s.players {
		votes = append(votes, p.Vote)
	}
	return consensus.Evaluate(votes, s.mode, s.round)
}

func (s *Session) clearVotes() {
	for _, p := range s.players {
		p.Vote = ""
	}
}
