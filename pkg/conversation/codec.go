package conversation

import (
	"strings"

	"github.com/minhyannv/airproject/pkg/apperr"
)

// Codec converts a Conversation to and from its on-disk encoding.
type Codec interface {
	// Format is the configuration name of the codec ("text" or "json").
	Format() string
	// Ext is the file extension used for conversations, including the dot.
	Ext() string
	Encode(conv *Conversation) ([]byte, error)
	Decode(name string, data []byte) (*Conversation, error)
}

const (
	FormatText = "text"
	FormatJSON = "json"
)

// CodecFor returns the codec registered for a format name.
func CodecFor(format string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText, "md", "markdown":
		return TextCodec{}, nil
	case FormatJSON:
		return JSONCodec{}, nil
	default:
		return nil, apperr.New(apperr.Config, "unknown conversation format %q (want %s or %s)", format, FormatText, FormatJSON)
	}
}

// normalizeRole maps legacy role names onto the known roles.
func normalizeRole(role string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(role))); r {
	case "function":
		return RoleTool
	default:
		return r
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
