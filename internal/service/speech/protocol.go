package speech

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// 火山引擎 V3 二进制帧：4 字节头 + 可选序号/事件 + 大端 payload 长度 + payload。
const (
	protocolVersion = 0b0001
	headerWords     = 0b0001
)

// MessageType 消息类型
type MessageType uint8

const (
	FullClientRequest       MessageType = 0b0001
	FullServerResponse      MessageType = 0b1001
	AudioOnlyServerResponse MessageType = 0b1011
	ErrorMessage            MessageType = 0b1111
)

// MessageFlags 消息标志
type MessageFlags uint8

const (
	NoSequence       MessageFlags = 0b0000
	PositiveSequence MessageFlags = 0b0001
	LastNoSequence   MessageFlags = 0b0010
	NegativeSequence MessageFlags = 0b0011
	WithEvent        MessageFlags = 0b0100

	sequenceMask MessageFlags = 0b0011
)

// Serialization 序列化方式
type Serialization uint8

const (
	RawSerialization  Serialization = 0b0000
	JSONSerialization Serialization = 0b0001
)

// Event 服务端事件编号
type Event int32

const (
	EventConnectionStarted  Event = 50
	EventConnectionFailed   Event = 51
	EventConnectionFinished Event = 52
	EventSessionStarted     Event = 150
	EventSessionFinished    Event = 152
	EventSessionFailed      Event = 153
	EventTTSResponse        Event = 352
)

var errShortFrame = errors.New("frame truncated")

// Frame is one binary WebSocket message.
type Frame struct {
	Type          MessageType
	Flags         MessageFlags
	Serialization Serialization
	Compression   Compression
	Sequence      int32
	Event         Event
	SessionID     string
	ConnectID     string
	ErrorCode     uint32
	Payload       []byte
}

// Last reports whether the frame closes the response stream.
func (f Frame) Last() bool {
	switch f.Flags & sequenceMask {
	case LastNoSequence, NegativeSequence:
		return true
	}
	return f.Flags&WithEvent != 0 && f.Event == EventSessionFinished
}

// MarshalBinary encodes the frame.
func (f Frame) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4, 12+len(f.Payload))
	buf[0] = protocolVersion<<4 | headerWords
	buf[1] = uint8(f.Type)<<4 | uint8(f.Flags)
	buf[2] = uint8(f.Serialization)<<4 | uint8(f.Compression)

	if seq := f.Flags & sequenceMask; seq == PositiveSequence || seq == NegativeSequence {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Sequence))
	}
	if f.Flags&WithEvent != 0 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Event))
		if carriesSessionID(f.Event) {
			buf = appendString(buf, f.SessionID)
		}
		if carriesConnectID(f.Event) {
			buf = appendString(buf, f.ConnectID)
		}
	}
	if f.Type == ErrorMessage {
		buf = binary.BigEndian.AppendUint32(buf, f.ErrorCode)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Payload)))
	return append(buf, f.Payload...), nil
}

// ParseFrame decodes a frame received from the server.
func ParseFrame(data []byte) (Frame, error) {
	if len(data) < 4 {
		return Frame{}, fmt.Errorf("header: %w", errShortFrame)
	}
	if version := data[0] >> 4; version != protocolVersion {
		return Frame{}, fmt.Errorf("unsupported protocol version: %d", version)
	}
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < 4 || len(data) < headerLen {
		return Frame{}, fmt.Errorf("extended header: %w", errShortFrame)
	}

	f := Frame{
		Type:          MessageType(data[1] >> 4),
		Flags:         MessageFlags(data[1] & 0x0F),
		Serialization: Serialization(data[2] >> 4),
		Compression:   Compression(data[2] & 0x0F),
	}
	r := frameReader{data: data[headerLen:]}

	if seq := f.Flags & sequenceMask; seq == PositiveSequence || seq == NegativeSequence {
		f.Sequence = int32(r.uint32())
	}
	if f.Flags&WithEvent != 0 {
		f.Event = Event(int32(r.uint32()))
		if carriesSessionID(f.Event) {
			f.SessionID = r.string()
		}
		if carriesConnectID(f.Event) {
			f.ConnectID = r.string()
		}
	}
	if f.Type == ErrorMessage {
		f.ErrorCode = r.uint32()
	}
	size := r.uint32()
	f.Payload = r.bytes(int(size))
	if r.err != nil {
		return Frame{}, fmt.Errorf("%s frame: %w", f.Type, r.err)
	}
	return f, nil
}

func (t MessageType) String() string {
	switch t {
	case FullClientRequest:
		return "full-client-request"
	case FullServerResponse:
		return "full-server-response"
	case AudioOnlyServerResponse:
		return "audio-only-response"
	case ErrorMessage:
		return "error"
	default:
		return fmt.Sprintf("message-type(%d)", uint8(t))
	}
}

func carriesSessionID(e Event) bool {
	switch e {
	case EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return false
	}
	return true
}

func carriesConnectID(e Event) bool {
	switch e {
	case EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	}
	return false
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

type frameReader struct {
	data []byte
	err  error
}

func (r *frameReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data) < n {
		r.err = errShortFrame
		return nil
	}
	out := r.data[:n:n]
	r.data = r.data[n:]
	return out
}

func (r *frameReader) uint32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *frameReader) string() string {
	return string(r.bytes(int(r.uint32())))
}
