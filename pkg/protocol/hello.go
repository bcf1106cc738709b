package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Hello is the client handshake payload. The fields mirror what snapclient
// sends; only the identity fields are consumed by the server.
type Hello struct {
	MAC                       string `json:"MAC,omitempty"`
	HostName                  string `json:"HostName,omitempty"`
	Version                   string `json:"Version,omitempty"`
	ClientName                string `json:"ClientName,omitempty"`
	OS                        string `json:"OS,omitempty"`
	Arch                      string `json:"Arch,omitempty"`
	Instance                  int    `json:"Instance,omitempty"`
	ID                        string `json:"ID,omitempty"`
	SnapStreamProtocolVersion int    `json:"SnapStreamProtocolVersion,omitempty"`
}

// Identity returns the best available client identifier.
func (h *Hello) Identity() string {
	switch {
	case h.ID != "":
		return h.ID
	case h.ClientName != "":
		return h.ClientName
	default:
		return h.HostName
	}
}

// ParseHello decodes a Hello payload: a u32 length prefix followed by a
// JSON object. A frame with an empty payload yields an empty Hello rather
// than an error; clients that predate the JSON handshake send one.
func ParseHello(payload []byte) (*Hello, error) {
	if len(payload) == 0 {
		return &Hello{}, nil
	}
	if len(payload) < 4 {
		return nil, fmt.Errorf("protocol: hello payload truncated (%d bytes)", len(payload))
	}

	size := binary.LittleEndian.Uint32(payload)
	body := payload[4:]
	if int(size) > len(body) {
		return nil, fmt.Errorf("protocol: hello length %d exceeds payload %d", size, len(body))
	}

	var h Hello
	if err := json.Unmarshal(body[:size], &h); err != nil {
		return nil, fmt.Errorf("protocol: hello: %w", err)
	}
	return &h, nil
}

// HelloPayload encodes a Hello as a length-prefixed JSON payload. Used by
// client implementations and tests.
func HelloPayload(h *Hello) ([]byte, error) {
	body, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("protocol: hello: %w", err)
	}
	payload := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(payload, uint32(len(body)))
	copy(payload[4:], body)
	return payload, nil
}
