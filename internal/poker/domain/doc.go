// Package domain defines the state machine for one estimation game.
//
// A Session owns the players, the ordered task list, the per-task round
// counter, the pause negotiation, and the chat log. All mutations go through
// the operation methods, which serialize on the session's lock so that no
// caller observes a partially applied transition. The derived View is the
// only projection handed to transports.
//
// # Game Lifecycle
//
// A session starts in the lobby (started=false), moves to voting when the
// master starts it, and can detour through pause-requested and paused before
// returning to voting. There is no explicit terminal state: once the last
// task reaches agreement the session simply stays in place.
package domain
