package common

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// MessageType is the identifier code for websocket message types
type MessageType uint8

// 1 - 29 create or decorate documents
const (
	MessageInvalid MessageType = iota
	MessageInsertPost
	MessageInsertMessage
	MessageVote

	// Send the ID of a freshly stored document to its author
	MessagePostID
)

// >= 30 are miscellaneous and do not write to documents
const (
	MessageSynchronise MessageType = 30 + iota

	// Full replacement state of a board feed
	MessageBoardUpdate

	// Full replacement state of the chat stream
	MessageChatUpdate

	// Message from the client meant to invoke no operation. Mostly used as a
	// one way ping, because the JS Websocket API does not provide access to
	// pinging.
	MessageNOOP

	// The live feed the client is synced to failed and was closed
	MessageFeedError
)

// EncodeMessage encodes a message for sending through websockets
func EncodeMessage(typ MessageType, msg interface{}) ([]byte, error) {
	var w bytes.Buffer
	if typ < 10 {
		w.WriteByte('0')
	}
	w.WriteString(strconv.Itoa(int(typ)))

	err := json.NewEncoder(&w).Encode(msg)
	if err != nil {
		return nil, err
	}
	w.Truncate(w.Len() - 1)
	return w.Bytes(), nil
}

// PrependMessageType prepends the encoded websocket message type to an already
// encoded message
func PrependMessageType(typ MessageType, data []byte) []byte {
	encoded := make([]byte, len(data)+2)

	// Ensure type string is always 2 chars long
	var i int
	if typ < 10 {
		encoded[0] = '0'
		i = 1
	}
	strconv.AppendUint(encoded[i:i], uint64(typ), 10)

	copy(encoded[2:], data)

	return encoded
}
