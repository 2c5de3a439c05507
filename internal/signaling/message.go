package signaling

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Message is one signaling envelope. Data carries the SDP or ICE JSON,
// gzip+base64 compressed when large.
type Message struct {
	Type string
	From string
	To   string
	Data string
}

// ============================================================
// WIRE FORMAT (PROTOBUF BINARY)
// ============================================================

// Marshal encodes m as a binary protobuf Struct.
func (m Message) Marshal() ([]byte, error) {
	st, err := structpb.NewStruct(map[string]interface{}{
		"type": m.Type,
		"from": m.From,
		"to":   m.To,
		"data": m.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("build envelope: %w", err)
	}

	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal protobuf failed: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a binary protobuf Struct into a Message.
func Unmarshal(data []byte) (Message, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return Message{}, fmt.Errorf("protobuf decode error: %w", err)
	}

	fields := st.GetFields()
	m := Message{
		Type: fields["type"].GetStringValue(),
		From: fields["from"].GetStringValue(),
		To:   fields["to"].GetStringValue(),
		Data: fields["data"].GetStringValue(),
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("envelope without type")
	}
	return m, nil
}
