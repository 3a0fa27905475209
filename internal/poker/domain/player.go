package domain

// Player is one connected participant of a session.
type Player struct {
	ID       string
	Name     string
	IsMaster bool
	// Vote is the raw submitted token, empty while the player has not
	// voted in the current round.
	Vote string
}

// Voted reports whether the player has a ballot in the current round.
func (p *Player) Voted() bool {
	return p.Vote != ""
}

// ChatMessage is one entry of the session chat log.
type ChatMessage struct {
	Name string `json:"name"`
	Msg  string `json:"msg"`
}
