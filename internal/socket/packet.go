package socket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Engine.IO packet types
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
)

// Socket.IO packet types, carried inside Engine.IO messages
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioConnectError = '4'
)

var errMalformed = errors.New("malformed packet")

// handshake is the payload of the Engine.IO open packet
type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

func (h handshake) readTimeout() time.Duration {
	d := time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
	if d <= 0 {
		return 45 * time.Second
	}
	return d
}

// packet is a decoded Socket.IO frame
type packet struct {
	engine byte
	kind   byte
	event  string
	data   json.RawMessage
}

func decodePacket(frame []byte) (packet, error) {
	if len(frame) == 0 {
		return packet{}, errMalformed
	}
	p := packet{engine: frame[0]}
	if p.engine != eioMessage {
		p.data = frame[1:]
		return p, nil
	}
	if len(frame) < 2 {
		return packet{}, errMalformed
	}
	p.kind = frame[1]
	body := frame[2:]

	// Skip namespace ("/ns,") and ack id digits
	if len(body) > 0 && body[0] == '/' {
		if i := strings.IndexByte(string(body), ','); i >= 0 {
			body = body[i+1:]
		} else {
			body = nil
		}
	}
	for len(body) > 0 && body[0] >= '0' && body[0] <= '9' {
		body = body[1:]
	}

	if p.kind != sioEvent {
		p.data = body
		return p, nil
	}

	var args []json.RawMessage
	if err := json.Unmarshal(body, &args); err != nil {
		return packet{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if len(args) == 0 {
		return packet{}, errMalformed
	}
	if err := json.Unmarshal(args[0], &p.event); err != nil {
		return packet{}, fmt.Errorf("%w: event name: %v", errMalformed, err)
	}
	if len(args) > 1 {
		p.data = args[1]
	}
	return p, nil
}

func encodeEvent(event string, payload any) ([]byte, error) {
	args := []any{event}
	if payload != nil {
		args = append(args, payload)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", event, err)
	}
	return append([]byte{eioMessage, sioEvent}, data...), nil
}

func encodeConnect(auth any) ([]byte, error) {
	frame := []byte{eioMessage, sioConnect}
	if auth == nil {
		return frame, nil
	}
	data, err := json.Marshal(auth)
	if err != nil {
		return nil, fmt.Errorf("marshal connect auth: %w", err)
	}
	return append(frame, data...), nil
}
