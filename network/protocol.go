// network/protocol.go
package network

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// 消息类型
const (
	MsgTypeHeartbeat = 1

	// client -> server
	MsgTypeWatch   = 101
	MsgTypeUnwatch = 102

	// server -> client
	MsgTypeScoreboard  = 301
	MsgTypeTurnUpdated = 302
	MsgTypeGameEnded   = 303
	MsgTypeGameDeleted = 304
	MsgTypeError       = 305

	// 玩家列表变化, sent to every connected session
	MsgTypePlayersChanged = 306
)

// HeaderSize 2字节消息ID + 2字节数据长度
const HeaderSize = 4

// ErrPayloadTooLarge is returned when a payload does not fit the 2-byte length.
var ErrPayloadTooLarge = errors.New("payload too large")

type Packet struct {
	MsgID  uint16
	Data   []byte
	Length uint16
}

// WatchRequest is the payload of Watch and Unwatch.
type WatchRequest struct {
	GameID int64 `json:"game_id"`
}

// ErrorMessage is the payload of MsgTypeError.
type ErrorMessage struct {
	GameID int64  `json:"game_id,omitempty"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error"`
}

// Encode 封包
func Encode(msgID uint16, data []byte) ([]byte, error) {
	if len(data) > math.MaxUint16 {
		return nil, ErrPayloadTooLarge
	}
	packet := make([]byte, HeaderSize+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[HeaderSize:], data)
	return packet, nil
}

// Decode 解包; trailing bytes beyond the declared length are ignored.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, io.ErrShortBuffer
	}

	msgID := binary.BigEndian.Uint16(data[0:2])
	length := binary.BigEndian.Uint16(data[2:4])

	if len(data) < HeaderSize+int(length) {
		return nil, io.ErrShortBuffer
	}

	return &Packet{
		MsgID:  msgID,
		Length: length,
		Data:   data[HeaderSize : HeaderSize+int(length)],
	}, nil
}
