package domain

import "encoding/json"

// Frame is the JSON text frame exchanged in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorData is the payload of an error frame. Codes are the pkg/response
// codes so HTTP and WebSocket clients see one vocabulary.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EncodeFrame serializes an outbound frame.
func EncodeFrame(event string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	switch d := data.(type) {
	case nil:
	case json.RawMessage:
		raw = d
	case []byte:
		raw = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// NewErrorFrame builds an error frame. Marshalling a fixed struct of
// strings cannot fail.
func NewErrorFrame(code, message string) []byte {
	b, _ := EncodeFrame(EventError, ErrorData{Code: code, Message: message})
	return b
}

// ProjectRef decodes the join-project/leave-project payload, which is a
// bare JSON string or an object with projectId.
func ProjectRef(data json.RawMessage) (string, bool) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id, id != ""
	}
	var obj struct {
		ProjectID string `json:"projectId"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj.ProjectID, obj.ProjectID != ""
	}
	return "", false
}
