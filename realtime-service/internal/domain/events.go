package domain

// Inbound event names. These are part of the client protocol and must
// not change.
const (
	EventJoinProject    = "join-project"
	EventLeaveProject   = "leave-project"
	EventTaskCreated    = "task-created"
	EventTaskUpdated    = "task-updated"
	EventTaskMoved      = "task-moved"
	EventTaskDeleted    = "task-deleted"
	EventCommentAdded   = "comment-added"
	EventCommentUpdated = "comment-updated"
	EventCommentDeleted = "comment-deleted"
	EventMemberJoined   = "member-joined"
	EventMemberLeft     = "member-left"
	EventTypingStart    = "typing-start"
	EventTypingStop     = "typing-stop"
	EventPing           = "ping"
)

// Outbound-only event names.
const (
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventError             = "error"
	EventPong              = "pong"
)

// SenderFields maps each relayed domain event to the payload field that
// carries the sender's identity on the way out.
var SenderFields = map[string]string{
	EventTaskCreated:    "createdBy",
	EventTaskUpdated:    "updatedBy",
	EventTaskMoved:      "movedBy",
	EventTaskDeleted:    "deletedBy",
	EventCommentAdded:   "addedBy",
	EventCommentUpdated: "updatedBy",
	EventCommentDeleted: "deletedBy",
	EventMemberJoined:   "joinedBy",
	EventMemberLeft:     "leftBy",
}
