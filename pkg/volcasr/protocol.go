package volcasr

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ================== 协议常量 ==================

type protocolVersion byte
type messageType byte
type messageTypeFlags byte
type serializationType byte
type compressionType byte

const (
	protocolVersionV1 protocolVersion = 0b0001

	// Message Types
	msgTypeFullClient      messageType = 0b0001
	msgTypeAudioOnlyClient messageType = 0b0010
	msgTypeFullServer      messageType = 0b1001
	msgTypeError           messageType = 0b1111

	// Message Type Specific Flags
	msgFlagNoSequence  messageTypeFlags = 0b0000
	msgFlagPosSequence messageTypeFlags = 0b0001
	msgFlagLastPackage messageTypeFlags = 0b0010
	msgFlagNegWithSeq  messageTypeFlags = 0b0011

	// Serialization Types
	serializationNone serializationType = 0b0000
	serializationJSON serializationType = 0b0001

	// Compression Types
	compressionNone compressionType = 0b0000
	compressionGzip compressionType = 0b0001
)

// ================== 协议结构 ==================

// binaryProtocol 二进制协议处理器
//
// 协议格式:
// - Header (4 bytes):
//   - (4bits) version + (4bits) header_size
//   - (4bits) message_type + (4bits) message_type_flags
//   - (4bits) serialization + (4bits) compression
//   - (8bits) reserved
//
// - Payload:
//   - [optional] sequence (4 bytes, big-endian, signed)
//   - [error responses] error code (4 bytes, big-endian)
//   - payload_size (4 bytes, compressed length) + payload_data
type binaryProtocol struct {
	version       protocolVersion
	headerSize    byte
	serialization serializationType
	compression   compressionType
}

// message 协议消息
type message struct {
	msgType   messageType
	flags     messageTypeFlags
	sequence  int32
	errorCode uint32
	payload   []byte
}

// newBinaryProtocol 创建协议处理器
func newBinaryProtocol() *binaryProtocol {
	return &binaryProtocol{
		version:       protocolVersionV1,
		headerSize:    1, // 4 bytes
		serialization: serializationJSON,
		compression:   compressionGzip,
	}
}

// hasSequence 是否携带 sequence 字段
func (f messageTypeFlags) hasSequence() bool {
	return f&(msgFlagPosSequence|msgFlagLastPackage) != 0
}

// isLast 是否为最后一包
func (f messageTypeFlags) isLast() bool {
	return f&msgFlagLastPackage != 0
}

// marshal 序列化消息
//
// The payload size field always records the compressed byte length, never the
// logical length. Compression failure aborts the message; an uncompressed
// payload is never sent in gzip mode.
func (p *binaryProtocol) marshal(msg *message) ([]byte, error) {
	buf := new(bytes.Buffer)

	// Header (4 bytes)
	buf.WriteByte(byte(p.version<<4) | p.headerSize)
	buf.WriteByte(byte(msg.msgType<<4) | byte(msg.flags))
	buf.WriteByte(byte(p.serialization<<4) | byte(p.compression))
	buf.WriteByte(0x00) // reserved

	// Sequence (if flagged)
	if msg.flags.hasSequence() {
		if err := binary.Write(buf, binary.BigEndian, msg.sequence); err != nil {
			return nil, fmt.Errorf("write sequence: %w", err)
		}
	}

	// Payload
	payload := msg.payload
	if p.compression == compressionGzip {
		compressed, err := gzipCompress(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
		}
		payload = compressed
	}

	if err := binary.Write(buf, binary.BigEndian, uint32(len(payload))); err != nil {
		return nil, fmt.Errorf("write payload size: %w", err)
	}
	buf.Write(payload)

	return buf.Bytes(), nil
}

// unmarshal 反序列化服务端消息
func (p *binaryProtocol) unmarshal(data []byte) (*message, error) {
	if len(data) < 4 {
		return nil, &ProtocolError{Reason: fmt.Sprintf("frame too short: %d bytes", len(data))}
	}

	// Header size is the low nibble of byte 0, in 4-byte units.
	headerSize := int(data[0]&0x0f) * 4
	if headerSize < 4 || len(data) < headerSize {
		return nil, &ProtocolError{Reason: fmt.Sprintf("invalid header size: %d", headerSize)}
	}

	msg := &message{
		msgType: messageType(data[1] >> 4),
		flags:   messageTypeFlags(data[1] & 0x0f),
	}
	compression := compressionType(data[2] & 0x0f)

	switch msg.msgType {
	case msgTypeFullServer, msgTypeError:
	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unexpected message type: 0b%04b", msg.msgType)}
	}

	buf := bytes.NewReader(data[headerSize:])

	if msg.flags.hasSequence() {
		if err := binary.Read(buf, binary.BigEndian, &msg.sequence); err != nil {
			return nil, &ProtocolError{Reason: "truncated sequence", Err: err}
		}
	}

	if msg.msgType == msgTypeError {
		if err := binary.Read(buf, binary.BigEndian, &msg.errorCode); err != nil {
			return nil, &ProtocolError{Reason: "truncated error code", Err: err}
		}
	}

	// The payload size field is not trusted for slicing: the remainder of the
	// frame is the payload.
	var payloadSize uint32
	if err := binary.Read(buf, binary.BigEndian, &payloadSize); err != nil {
		return nil, &ProtocolError{Reason: "truncated payload size", Err: err}
	}

	if buf.Len() > 0 {
		msg.payload = make([]byte, buf.Len())
		if _, err := buf.Read(msg.payload); err != nil {
			return nil, &ProtocolError{Reason: "read payload", Err: err}
		}
		if compression == compressionGzip {
			decompressed, err := gzipDecompress(msg.payload)
			if err != nil {
				return nil, &ProtocolError{Reason: "gzip decompress", Err: err}
			}
			msg.payload = decompressed
		}
	}

	return msg, nil
}
