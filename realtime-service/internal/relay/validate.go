package relay

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
)

type taskPayload struct {
	ProjectID string          `json:"projectId" validate:"required"`
	Task      json.RawMessage `json:"task" validate:"present"`
}

type taskMovedPayload struct {
	ProjectID  string          `json:"projectId" validate:"required"`
	Task       json.RawMessage `json:"task" validate:"present"`
	FromColumn string          `json:"fromColumn" validate:"required"`
	ToColumn   string          `json:"toColumn" validate:"required"`
}

type taskDeletedPayload struct {
	ProjectID string `json:"projectId" validate:"required"`
	TaskID    string `json:"taskId" validate:"required"`
}

type commentPayload struct {
	ProjectID string          `json:"projectId" validate:"required"`
	Comment   json.RawMessage `json:"comment" validate:"present"`
}

type commentDeletedPayload struct {
	ProjectID string `json:"projectId" validate:"required"`
	CommentID string `json:"commentId" validate:"required"`
}

type memberPayload struct {
	ProjectID string          `json:"projectId" validate:"required"`
	Member    json.RawMessage `json:"member" validate:"present"`
}

type typingPayload struct {
	ProjectID string `json:"projectId" validate:"required"`
}

var payloadShapes = map[string]func() interface{}{
	domain.EventTaskCreated:    func() interface{} { return &taskPayload{} },
	domain.EventTaskUpdated:    func() interface{} { return &taskPayload{} },
	domain.EventTaskMoved:      func() interface{} { return &taskMovedPayload{} },
	domain.EventTaskDeleted:    func() interface{} { return &taskDeletedPayload{} },
	domain.EventCommentAdded:   func() interface{} { return &commentPayload{} },
	domain.EventCommentUpdated: func() interface{} { return &commentPayload{} },
	domain.EventCommentDeleted: func() interface{} { return &commentDeletedPayload{} },
	domain.EventMemberJoined:   func() interface{} { return &memberPayload{} },
	domain.EventMemberLeft:     func() interface{} { return &memberPayload{} },
	domain.EventTypingStart:    func() interface{} { return &typingPayload{} },
	domain.EventTypingStop:     func() interface{} { return &typingPayload{} },
}

type payloadValidator struct {
	validate *validator.Validate
}

func newPayloadValidator() *payloadValidator {
	v := validator.New()
	if err := v.RegisterValidation("present", presentJSON); err != nil {
		panic(fmt.Sprintf("relay: register present validation: %v", err))
	}
	return &payloadValidator{validate: v}
}

// presentJSON passes a raw JSON field that exists and is not null.
func presentJSON(fl validator.FieldLevel) bool {
	raw := bytes.TrimSpace(fl.Field().Bytes())
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func (p *payloadValidator) check(event string, payload json.RawMessage) error {
	shape, ok := payloadShapes[event]
	if !ok {
		return nil
	}

	dst := shape()
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, event, err)
	}
	if err := p.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, event, err)
	}
	return nil
}
