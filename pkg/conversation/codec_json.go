package conversation

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// JSONCodec stores a conversation as an indented JSON array of messages.
// Decode also accepts an object of the form {"name", "created_at", "messages"}.
type JSONCodec struct{}

func (JSONCodec) Format() string { return FormatJSON }
func (JSONCodec) Ext() string    { return ".json" }

func (JSONCodec) Encode(conv *Conversation) ([]byte, error) {
	msgs := conv.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal conversation")
	}
	return append(data, '\n'), nil
}

func (JSONCodec) Decode(name string, data []byte) (*Conversation, error) {
	conv := &Conversation{Name: name}
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &conv.Messages); err != nil {
			return nil, errors.Wrapf(err, "decode conversation %s", name)
		}
	default:
		if err := json.Unmarshal(trimmed, conv); err != nil {
			return nil, errors.Wrapf(err, "decode conversation %s", name)
		}
		conv.Name = name
	}
	if conv.Messages == nil {
		conv.Messages = []Message{}
	}
	for i := range conv.Messages {
		role := normalizeRole(string(conv.Messages[i].Role))
		if !role.Valid() {
			return nil, errors.Errorf("decode conversation %s: message %d has unknown role %q", name, i, conv.Messages[i].Role)
		}
		conv.Messages[i].Role = role
	}
	if conv.CreatedAt.IsZero() && len(conv.Messages) > 0 {
		conv.CreatedAt = conv.Messages[0].Timestamp
	}
	return conv, nil
}
