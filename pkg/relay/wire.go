package relay

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/canopy/pkg/core"
)

// Socket.io event names shared by the relay server and the client transport.
const (
	EventJoin    = "canvas:join"
	EventMessage = "canvas:message"
)

// DefaultPath is where the relay mounts the socket.io endpoint.
const DefaultPath = "/socket.io/"

// JoinRequest is the payload of EventJoin.
type JoinRequest struct {
	Room     string `json:"room"`
	ClientID string `json:"client"`
}

// EncodeMessage renders msg as the JSON text carried by EventMessage.
func EncodeMessage(msg core.Message) (string, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	return string(b), nil
}

// EncodeJoin renders req as the JSON text carried by EventJoin.
func EncodeJoin(req JoinRequest) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode join: %w", err)
	}
	return string(b), nil
}

// DecodeMessage accepts the first argument of a socket.io event callback.
func DecodeMessage(arg any) (core.Message, error) {
	var msg core.Message
	if err := decodeArg(arg, &msg); err != nil {
		return msg, fmt.Errorf("failed to decode message: %w", err)
	}
	return msg, nil
}

// DecodeJoin accepts the first argument of an EventJoin callback.
func DecodeJoin(arg any) (JoinRequest, error) {
	var req JoinRequest
	if err := decodeArg(arg, &req); err != nil {
		return req, fmt.Errorf("failed to decode join: %w", err)
	}
	if req.Room == "" || req.ClientID == "" {
		return req, fmt.Errorf("join needs room and client")
	}
	return req, nil
}

// decodeArg handles the shapes socket.io hands back for a JSON payload:
// the text we sent, raw bytes, or an already decoded object.
func decodeArg(arg any, v any) error {
	switch a := arg.(type) {
	case string:
		return json.Unmarshal([]byte(a), v)
	case []byte:
		return json.Unmarshal(a, v)
	case nil:
		return fmt.Errorf("empty payload")
	default:
		b, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, v)
	}
}
