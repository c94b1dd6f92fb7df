package protocol

import (
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/valyala/bytebufferpool"
)

// MessageID identifies the 15 id-bearing standard + Fast-Extension (BEP 6)
// message variants; the sixteenth variant, keep-alive, has no id (see
// IsKeepAlive). Ids 0x0A-0x0C are reserved gaps in the table and always
// decode as unknown.
type MessageID uint8

const (
	Choke         MessageID = 0x00
	Unchoke       MessageID = 0x01
	Interested    MessageID = 0x02
	NotInterested MessageID = 0x03
	Have          MessageID = 0x04
	BitfieldMsg   MessageID = 0x05
	Request       MessageID = 0x06
	Piece         MessageID = 0x07
	Cancel        MessageID = 0x08
	Port          MessageID = 0x09
	SuggestPiece  MessageID = 0x0D
	HaveAll       MessageID = 0x0E
	HaveNone      MessageID = 0x0F
	RejectRequest MessageID = 0x10
	AllowedFast   MessageID = 0x11

	// ExtendedBase is BEP 10's message id (20 decimal). It is not part of
	// the base 16-variant table; a channel only accepts it when the
	// negotiated capability set carries CapExtensionProtocol (spec.md §9).
	ExtendedBase MessageID = 0x14

	// MaxFrameSize is the recommended ceiling on a frame's declared
	// length, guarding against memory exhaustion from a hostile sender.
	MaxFrameSize uint32 = 1 << 24 // 16 MiB
)

func (mid MessageID) String() string {
	switch mid {
	case Choke:
		return "Choke"
	case Unchoke:
		return "Unchoke"
	case Interested:
		return "Interested"
	case NotInterested:
		return "NotInterested"
	case Have:
		return "Have"
	case BitfieldMsg:
		return "Bitfield"
	case Request:
		return "Request"
	case Piece:
		return "Piece"
	case Cancel:
		return "Cancel"
	case Port:
		return "Port"
	case SuggestPiece:
		return "SuggestPiece"
	case HaveAll:
		return "HaveAll"
	case HaveNone:
		return "HaveNone"
	case RejectRequest:
		return "RejectRequest"
	case AllowedFast:
		return "AllowedFast"
	default:
		if mid >= ExtendedBase {
			return fmt.Sprintf("Extended(%d)", mid)
		}
		return fmt.Sprintf("Unknown(%d)", mid)
	}
}

// fastExtensionIDs are the messages gated on BEP 6 having been negotiated
// by both ends of a channel (spec.md §9 open question, resolved in
// SPEC_FULL.md in favor of strict enforcement).
var fastExtensionIDs = map[MessageID]bool{
	SuggestPiece:  true,
	HaveAll:       true,
	HaveNone:      true,
	RejectRequest: true,
	AllowedFast:   true,
}

// IsFastExtension reports whether id belongs to the Fast Extension subset
// of the message table.
func IsFastExtension(id MessageID) bool { return fastExtensionIDs[id] }

// Message is a length-prefixed, tagged post-handshake frame. A nil
// *Message denotes a keep-alive (zero-length frame); for all other
// variants, ID selects the wire id and Payload carries the body exactly
// as it appears on the wire (already stripped of the id byte).
//
// Strongly-typed construction and access is via the Message<Name>
// constructors and Parse<Name> methods below; Message itself is the
// tagged-union representation the codec reads and writes, per spec.md
// §9's guidance to branch on id once rather than dispatch through a map
// of parsers.
type Message struct {
	ID      MessageID
	Payload []byte
}

var (
	ErrShortMessage    = errors.New("protocol: short message")
	ErrBadLengthPrefix = errors.New("protocol: invalid length prefix")
	ErrMalformedFrame  = errors.New("protocol: malformed frame")
	ErrFrameTooLarge   = errors.New("protocol: frame exceeds maximum size")
)

// UnknownMessageError is returned when a frame's id is not in the
// message table and not accepted as a negotiated extension. Per BEP 6/10,
// receiving one is fatal: the connection must be closed.
type UnknownMessageError struct{ ID MessageID }

func (e *UnknownMessageError) Error() string {
	return fmt.Sprintf("protocol: unknown message id %d", e.ID)
}

var (
	_ encoding.BinaryMarshaler   = (*Message)(nil)
	_ encoding.BinaryUnmarshaler = (*Message)(nil)
	_ io.WriterTo                = (*Message)(nil)
)

// IsKeepAlive reports whether m denotes a keep-alive frame. By
// convention, a nil *Message is a keep-alive.
func IsKeepAlive(m *Message) bool { return m == nil }

func MessageChoke() *Message         { return &Message{ID: Choke} }
func MessageUnchoke() *Message       { return &Message{ID: Unchoke} }
func MessageInterested() *Message    { return &Message{ID: Interested} }
func MessageNotInterested() *Message { return &Message{ID: NotInterested} }
func MessageHaveAll() *Message       { return &Message{ID: HaveAll} }
func MessageHaveNone() *Message      { return &Message{ID: HaveNone} }

func MessageHave(piece uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, piece)
	return &Message{ID: Have, Payload: payload}
}

func MessageSuggestPiece(piece uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, piece)
	return &Message{ID: SuggestPiece, Payload: payload}
}

func MessageAllowedFast(piece uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, piece)
	return &Message{ID: AllowedFast, Payload: payload}
}

func MessageBitfield(bits []byte) *Message {
	cp := make([]byte, len(bits))
	copy(cp, bits)
	return &Message{ID: BitfieldMsg, Payload: cp}
}

func MessageRequest(ix BlockIndex) *Message {
	return &Message{ID: Request, Payload: encodeTriple(ix)}
}

func MessageCancel(ix BlockIndex) *Message {
	return &Message{ID: Cancel, Payload: encodeTriple(ix)}
}

func MessageRejectRequest(ix BlockIndex) *Message {
	return &Message{ID: RejectRequest, Payload: encodeTriple(ix)}
}

func MessagePiece(b Block) *Message {
	payload := make([]byte, 8+len(b.Data))
	binary.BigEndian.PutUint32(payload[0:4], b.Piece)
	binary.BigEndian.PutUint32(payload[4:8], b.Offset)
	copy(payload[8:], b.Data)
	return &Message{ID: Piece, Payload: payload}
}

func MessagePort(port uint16) *Message {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, port)
	return &Message{ID: Port, Payload: payload}
}

func encodeTriple(ix BlockIndex) []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], ix.Piece)
	binary.BigEndian.PutUint32(payload[4:8], ix.Offset)
	binary.BigEndian.PutUint32(payload[8:12], ix.Length)
	return payload
}

// ParseHave, ParseSuggestPiece and ParseAllowedFast all parse the same
// single-uint32 body shape; ok is false when the id or payload size does
// not match.

func (m *Message) ParseHave() (piece uint32, ok bool)         { return m.parseU32(Have) }
func (m *Message) ParseSuggestPiece() (piece uint32, ok bool) { return m.parseU32(SuggestPiece) }
func (m *Message) ParseAllowedFast() (piece uint32, ok bool)  { return m.parseU32(AllowedFast) }

func (m *Message) parseU32(want MessageID) (uint32, bool) {
	if m == nil || m.ID != want || len(m.Payload) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(m.Payload), true
}

// ParseBitfield returns the raw packed bitfield payload. Length against
// the torrent's piece count is not validated here; see bitfield.Masked.
func (m *Message) ParseBitfield() ([]byte, bool) {
	if m == nil || m.ID != BitfieldMsg {
		return nil, false
	}
	return m.Payload, true
}

func (m *Message) ParseRequest() (BlockIndex, bool)       { return m.parseTriple(Request) }
func (m *Message) ParseCancel() (BlockIndex, bool)        { return m.parseTriple(Cancel) }
func (m *Message) ParseRejectRequest() (BlockIndex, bool) { return m.parseTriple(RejectRequest) }

func (m *Message) parseTriple(want MessageID) (BlockIndex, bool) {
	if m == nil || m.ID != want || len(m.Payload) != 12 {
		return BlockIndex{}, false
	}
	return BlockIndex{
		Piece:  binary.BigEndian.Uint32(m.Payload[0:4]),
		Offset: binary.BigEndian.Uint32(m.Payload[4:8]),
		Length: binary.BigEndian.Uint32(m.Payload[8:12]),
	}, true
}

// ParsePiece parses a PIECE payload into a Block. ok is false if there
// are fewer than 8 header bytes.
func (m *Message) ParsePiece() (Block, bool) {
	if m == nil || m.ID != Piece || len(m.Payload) < 8 {
		return Block{}, false
	}
	return Block{
		Piece:  binary.BigEndian.Uint32(m.Payload[0:4]),
		Offset: binary.BigEndian.Uint32(m.Payload[4:8]),
		Data:   m.Payload[8:],
	}, true
}

func (m *Message) ParsePort() (uint16, bool) {
	if m == nil || m.ID != Port || len(m.Payload) != 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(m.Payload), true
}

// ValidatePayloadSize checks that Payload's length matches what spec.md's
// message table dictates for m.ID. Unknown ids are left to the caller
// (the decoder rejects them before this is reached).
func (m *Message) ValidatePayloadSize() error {
	if m == nil {
		return nil // keep-alive
	}

	switch m.ID {
	case Choke, Unchoke, Interested, NotInterested, HaveAll, HaveNone:
		if len(m.Payload) != 0 {
			return fmt.Errorf("%w: %s takes no payload", ErrMalformedFrame, m.ID)
		}
	case Have, SuggestPiece, AllowedFast:
		if len(m.Payload) != 4 {
			return fmt.Errorf("%w: %s wants a 4-byte payload", ErrMalformedFrame, m.ID)
		}
	case Request, Cancel, RejectRequest:
		if len(m.Payload) != 12 {
			return fmt.Errorf("%w: %s wants a 12-byte payload", ErrMalformedFrame, m.ID)
		}
	case Piece:
		if len(m.Payload) < 8 {
			return fmt.Errorf("%w: piece payload shorter than 8 bytes", ErrMalformedFrame)
		}
	case Port:
		if len(m.Payload) != 2 {
			return fmt.Errorf("%w: port wants a 2-byte payload", ErrMalformedFrame)
		}
	case BitfieldMsg:
		// variable length; validated by the consumer against piece count.
	}
	return nil
}

// MarshalBinary encodes m into its wire representation: a 4-byte
// big-endian length prefix (counting the id byte and payload, excluding
// itself) followed by the id and payload. A nil receiver encodes the
// 4-byte keep-alive frame.
func (m *Message) MarshalBinary() ([]byte, error) {
	if m == nil {
		return []byte{0, 0, 0, 0}, nil
	}

	length := 1 + len(m.Payload)
	if length > int(^uint32(0)) {
		return nil, ErrBadLengthPrefix
	}

	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], uint32(length))
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)

	return buf, nil
}

// UnmarshalBinary decodes a single frame (length prefix included) from
// b. It does not enforce MaxFrameSize or message-table membership; use
// ReadMessage/DecodeFrame for the full validated pipeline.
func (m *Message) UnmarshalBinary(b []byte) error {
	if len(b) < 4 {
		return ErrShortMessage
	}

	length := binary.BigEndian.Uint32(b[0:4])
	if length == 0 {
		*m = Message{}
		return nil
	}
	if len(b) < 4+int(length) {
		return ErrShortMessage
	}

	m.ID = MessageID(b[4])
	m.Payload = append(m.Payload[:0], b[5:4+int(length)]...)

	return nil
}

// WriteTo implements io.WriterTo. It pools its encode buffer via
// bytebufferpool to keep the per-frame write allocation-free on the
// steady-state path (mirroring the teacher's sync.Pool use in its pretty
// log handler for the same allocation-hot reason).
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	if m == nil {
		bb.Write([]byte{0, 0, 0, 0})
	} else {
		length := 1 + len(m.Payload)
		var hdr [5]byte
		binary.BigEndian.PutUint32(hdr[0:4], uint32(length))
		hdr[4] = byte(m.ID)
		bb.Write(hdr[:])
		bb.Write(m.Payload)
	}

	n, err := w.Write(bb.B)
	return int64(n), err
}

// WriteMessage writes m to w, applying no state transition of its own;
// the caller (peer.Channel) is responsible for session bookkeeping.
func WriteMessage(w io.Writer, m *Message) error {
	_, err := m.WriteTo(w)
	return err
}

// ReadMessage reads, validates and decodes one frame from r using
// MaxFrameSize as the frame-size ceiling and rejecting any id outside
// the base message table. It is a convenience wrapper around
// DecodeFrame for callers that never negotiate extensions.
func ReadMessage(r io.Reader) (*Message, error) {
	return DecodeFrame(r, MaxFrameSize, nil)
}

// DecodeFrame reads one frame from r. maxFrameSize bounds the declared
// length (0 disables the check). acceptExtended, if non-nil, is
// consulted for any id outside the base 16-variant table; when it
// returns true the frame decodes into a Message carrying that id and its
// raw payload instead of failing with UnknownMessageError. This is the hook spec.md §9
// reserves for a future BEP 10 extended-message id (0x14).
func DecodeFrame(r io.Reader, maxFrameSize uint32, acceptExtended func(MessageID) bool) (*Message, error) {
	var lp [4]byte
	if _, err := io.ReadFull(r, lp[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lp[:])
	if length == 0 {
		return nil, nil // keep-alive
	}
	if maxFrameSize > 0 && length > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	id := MessageID(body[0])
	m := &Message{ID: id, Payload: body[1:]}

	if !isTableMember(id) {
		if acceptExtended == nil || !acceptExtended(id) {
			return nil, &UnknownMessageError{ID: id}
		}
		return m, nil
	}

	if err := m.ValidatePayloadSize(); err != nil {
		return nil, err
	}

	return m, nil
}

func isTableMember(id MessageID) bool {
	switch id {
	case Choke, Unchoke, Interested, NotInterested, Have, BitfieldMsg,
		Request, Piece, Cancel, Port,
		SuggestPiece, HaveAll, HaveNone, RejectRequest, AllowedFast:
		return true
	default:
		return false
	}
}
