// Package protocol implements the JSON frame envelope exchanged with
// clients. The envelope shape is a versioned wire contract; changing it
// breaks deployed clients.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nswire/nswire"
)

// Envelope is the server-to-client frame shape.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    any    `json:"code,omitempty"`
}

// Welcome is the payload of the frame completing a handshake.
type Welcome struct {
	Type      string           `json:"type"`
	ClientID  string           `json:"clientId"`
	Namespace string           `json:"namespace"`
	Ctx       nswire.PublicCtx `json:"ctx"`
}

// EncodeSuccess wraps payload in a success envelope.
func EncodeSuccess(payload any) ([]byte, error) {
	out, err := json.Marshal(Envelope{Success: true, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("encode success frame: %w", err)
	}
	return out, nil
}

// EncodeError builds a failure envelope. Marshaling cannot fail for plain
// string fields, so the frame is returned directly.
func EncodeError(message string, code any) []byte {
	out, _ := json.Marshal(Envelope{Success: false, Error: message, Code: code})
	return out
}

// EncodeWelcome builds the handshake completion frame. The context is the
// sanitized public projection; IP and path parameters never appear here.
func EncodeWelcome(clientID, namespace string, ctx nswire.PublicCtx) ([]byte, error) {
	return EncodeSuccess(Welcome{
		Type:      "connected",
		ClientID:  clientID,
		Namespace: namespace,
		Ctx:       ctx,
	})
}

// DecodeMessage parses an inbound client frame. Frames must be JSON objects;
// arrays, scalars and invalid JSON are rejected.
func DecodeMessage(data []byte) (map[string]any, error) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%s: %w", nswire.ErrMalformedMessage, err)
	}
	if msg == nil {
		return nil, errors.New(nswire.ErrMalformedMessage)
	}
	return msg, nil
}
