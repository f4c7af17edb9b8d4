package ingestion

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/Mr-Dark-debug/whiptrail/internal/database"
)

// ============================================================
// Wire Protocol
// ============================================================

// MessageType discriminates the kind of payload in the wire protocol.
type MessageType byte

const (
	MsgSession MessageType = 0x01
	MsgSample  MessageType = 0x02
	MsgEnd     MessageType = 0x03
	MsgBatch   MessageType = 0x04
)

// Acknowledgement bytes written after every message.
const (
	AckOK    byte = 0x00
	AckError byte = 0x01
)

// MaxPayload bounds a single message.
const MaxPayload = 10 * 1024 * 1024

var (
	// ErrMessageTooLarge is returned for payloads above MaxPayload.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrRejected is returned by Client.Send when the daemon NACKs a message.
	ErrRejected = errors.New("message rejected by daemon")
)

// EndMessage closes a session.
type EndMessage struct {
	SessionID string `json:"session_id"`
	EndTime   int64  `json:"end_time,omitempty"`
	Status    string `json:"status,omitempty"`
}

// BatchMessage carries a whole recording, or part of one, in one message.
type BatchMessage struct {
	Sessions []*database.Session       `json:"sessions,omitempty"`
	Samples  []*database.PointerSample `json:"samples,omitempty"`
	Ends     []*EndMessage             `json:"ends,omitempty"`
}

// WriteMessage frames v as [1 byte type][4 bytes length, big-endian][JSON].
func WriteMessage(w io.Writer, t MessageType, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}

	frame := make([]byte, 5+len(payload))
	frame[0] = byte(t)
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(payload)))
	copy(frame[5:], payload)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message. A clean hang-up before the type byte
// returns io.EOF.
func ReadMessage(r io.Reader) (MessageType, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:1]); err != nil {
		return 0, nil, err
	}
	if _, err := io.ReadFull(r, header[1:]); err != nil {
		return 0, nil, fmt.Errorf("reading message length: %w", err)
	}

	n := binary.BigEndian.Uint32(header[1:])
	if n > MaxPayload {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("reading payload: %w", err)
	}
	return MessageType(header[0]), payload, nil
}

// ============================================================
// Client
// ============================================================

// Client speaks the wire protocol to a running daemon. It is safe for
// concurrent use; sends are serialised.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to the daemon at addr, choosing unix or tcp the same way the
// daemon does.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, listenNetwork(addr), addr)
	if err != nil {
		return nil, fmt.Errorf("dialing daemon at %s: %w", addr, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Send writes one message and waits for its acknowledgement.
func (c *Client) Send(t MessageType, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := WriteMessage(c.conn, t, v); err != nil {
		return err
	}
	ack, err := c.r.ReadByte()
	if err != nil {
		return fmt.Errorf("reading ack: %w", err)
	}
	if ack != AckOK {
		return ErrRejected
	}
	return nil
}

// Close hangs up.
func (c *Client) Close() error {
	return c.conn.Close()
}
