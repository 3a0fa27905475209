package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Registry errors
	CodeGameNotFound       Code = "GAME_NOT_FOUND"
	CodeCodeSpaceExhausted Code = "CODE_SPACE_EXHAUSTED"

	// Game setup errors
	CodeGameEmptyTaskList    Code = "GAME_EMPTY_TASK_LIST"
	CodeGameInvalidTaskIndex Code = "GAME_INVALID_TASK_INDEX"
	CodeGameInvalidMode      Code = "GAME_INVALID_CONSENSUS_MODE"

	// Player errors
	CodePlayerEmptyName     Code = "PLAYER_EMPTY_NAME"
	CodePlayerAlreadyJoined Code = "PLAYER_ALREADY_JOINED"
	CodePlayerNotFound      Code = "PLAYER_NOT_FOUND"
	CodePlayerNotMaster     Code = "PLAYER_NOT_MASTER"

	// Round/vote errors
	CodeVoteInvalidToken   Code = "VOTE_INVALID_TOKEN"
	CodeGameNotStarted     Code = "GAME_NOT_STARTED"
	CodeGamePaused         Code = "GAME_PAUSED"
	CodeRevoteNotReady     Code = "REVOTE_NOT_READY"
	CodeNextTaskNotReady   Code = "NEXT_TASK_NOT_READY"
	CodePauseAlreadyActive Code = "PAUSE_ALREADY_ACTIVE"
)

// TransportCode maps domain codes to the wire error codes carried by
// websocket acknowledgements.
func (c Code) TransportCode() string {
	switch c {
	case CodeGameNotFound, CodePlayerNotFound:
		return "NOT_FOUND"
	case CodePlayerNotMaster:
		return "FORBIDDEN"
	case CodeGameEmptyTaskList, CodeGameInvalidTaskIndex, CodeGameInvalidMode,
		CodePlayerEmptyName, CodePlayerAlreadyJoined, CodeVoteInvalidToken:
		return "INVALID_INPUT"
	case CodeGameNotStarted, CodeGamePaused, CodeRevoteNotReady,
		CodeNextTaskNotReady, CodePauseAlreadyActive:
		return "FAILED_PRECONDITION"
	default:
		return "INTERNAL"
	}
}
