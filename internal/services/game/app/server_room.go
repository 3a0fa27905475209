package server

import "sync"

// roomHub tracks the broadcast room for each live session code.
type roomHub struct {
	mu    sync.Mutex
	rooms map[string]*gameRoom
}

func newRoomHub() *roomHub {
	return &roomHub{rooms: make(map[string]*gameRoom)}
}

func (h *roomHub) room(code string) *gameRoom {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[code]
	if ok {
		return room
	}

	room = newGameRoom(code)
	h.rooms[code] = room
	return room
}

func (h *roomHub) drop(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.rooms, code)
}

// gameRoom fans frames out to every connection of one session.
type gameRoom struct {
	mu          sync.Mutex
	code        string
	subscribers map[*wsPeer]struct{}
}

func newGameRoom(code string) *gameRoom {
	return &gameRoom{
		code:        code,
		subscribers: make(map[*wsPeer]struct{}),
	}
}

func (r *gameRoom) join(peer *wsPeer) {
	r.mu.Lock()
	r.subscribers[peer] = struct{}{}
	r.mu.Unlock()
}

func (r *gameRoom) leave(peer *wsPeer) bool {
	r.mu.Lock()
	delete(r.subscribers, peer)
	empty := len(r.subscribers) == 0
	r.mu.Unlock()
	return empty
}

func (r *gameRoom) broadcast(frame wsFrame) {
	r.mu.Lock()
	subscribers := make([]*wsPeer, 0, len(r.subscribers))
	for subscriber := range r.subscribers {
		subscribers = append(subscribers, subscriber)
	}
	r.mu.Unlock()

	for _, subscriber := range subscribers {
		_ = subscriber.writeFrame(frame)
	}
}
