package domain

// View is the transport projection of a session. Ballot values stay hidden
// until every player has voted; Result is present only at that reveal.
type View struct {
	Code             string        `json:"code"`
	Title            string        `json:"title"`
	Tasks            []string      `json:"tasks"`
	CurrentTaskIndex int           `json:"currentTaskIndex"`
	Started          bool          `json:"started"`
	Paused           bool          `json:"paused"`
	PauseRequestedBy string        `json:"pauseRequestedBy,omitempty"`
	Mode             string        `json:"mode"`
	Round            int           `json:"round"`
	Players          []PlayerView  `json:"players"`
	Chat             []ChatMessage `json:"chat"`
	Result           *ResultView   `json:"result,omitempty"`
}

// PlayerView is the public projection of one participant. Vote is nil until
// the round reveals.
type PlayerView struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	IsMaster bool    `json:"isMaster"`
	Voted    bool    `json:"voted"`
	Vote     *string `json:"vote,omitempty"`
}

// ResultView is the consensus verdict shipped with a revealed round.
// FinalValue is null when no agreement was reached or when the round was a
// unanimous coffee break.
type ResultView struct {
	AgreementFound bool    `json:"agreementFound"`
	FinalValue     *string `json:"finalValue"`
	AllCoffee      bool    `json:"allCoffee"`
}

// Snapshot builds the current view of the session. The returned value shares
// no memory with the session state.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	revealed := s.started && s.allVoted()

	view := View{
		Code:             s.code,
		Title:            s.title,
		Tasks:            append([]string(nil), s.tasks...),
		CurrentTaskIndex: s.currentTask,
		Started:          s.started,
		Paused:           s.paused,
		PauseRequestedBy: s.pauseRequestedBy,
		Mode:             s.mode.Label(),
		Round:            s.round,
		Players:          make([]PlayerView, 0, len(s.players)),
		Chat:             append([]ChatMessage(nil), s.chat...),
	}

	for _, p := range s.players {
		pv := PlayerView{
			ID:       p.ID,
			Name:     p.Name,
			IsMaster: p.IsMaster,
			Voted:    p.Voted(),
		}
		if revealed {
			vote := p.Vote
			pv.Vote = &vote
		}
		view.Players = append(view.Players, pv)
	}

	if revealed {
		result := s.evaluate()
		rv := &ResultView{
			AgreementFound: result.Agreed,
			AllCoffee:      result.AllCoffee,
		}
		if result.Agreed && !result.AllCoffee {
			value := result.Value
			rv.FinalValue = &value
		}
		view.Result = rv
	}

	return view
}
