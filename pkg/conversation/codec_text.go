package conversation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TextCodec stores a conversation as a markdown transcript.
//
//	# <name>
//	<!-- conversation {"name":...,"created_at":...} -->
//
//	### user @ 2026-01-02T15:04:05Z
//	<!-- meta {"id":...} -->
//	content
//
// The meta line is present only when the message has an ID, tool calls or a
// tool correlation. When the conversation awaits user input an empty user
// section is written as a prompt; empty user sections are dropped on decode.
type TextCodec struct{}

var (
	headerRe       = regexp.MustCompile(`^### (system|user|assistant|tool) @ (\S+)$`)
	headerLikeRe   = regexp.MustCompile(`^\\*### (system|user|assistant|tool) @ \S+\r?$`)
	metaRe         = regexp.MustCompile(`^<!-- meta (.*) -->$`)
	conversationRe = regexp.MustCompile(`^<!-- conversation (.*) -->$`)
)

type sectionMeta struct {
	ID         string     `json:"id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

func (m sectionMeta) empty() bool {
	return m.ID == "" && len(m.ToolCalls) == 0 && m.ToolCallID == "" && m.Name == "" && !m.IsError
}

type preambleMeta struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (TextCodec) Format() string { return FormatText }
func (TextCodec) Ext() string    { return ".md" }

func (TextCodec) Encode(conv *Conversation) ([]byte, error) {
	var sb strings.Builder

	pre, err := json.Marshal(preambleMeta{Name: conv.Name, CreatedAt: conv.CreatedAt})
	if err != nil {
		return nil, errors.Wrap(err, "marshal conversation header")
	}
	fmt.Fprintf(&sb, "# %s\n<!-- conversation %s -->\n\n", conv.Name, pre)

	for _, msg := range conv.Messages {
		if err := writeSection(&sb, msg); err != nil {
			return nil, err
		}
	}

	if awaitsUser(conv) {
		fmt.Fprintf(&sb, "### %s @ %s\n\n\n", RoleUser, Now().Format(time.RFC3339))
	}
	return []byte(sb.String()), nil
}

func writeSection(sb *strings.Builder, msg Message) error {
	fmt.Fprintf(sb, "### %s @ %s\n", msg.Role, msg.Timestamp.UTC().Format(time.RFC3339))

	meta := sectionMeta{ID: msg.ID, ToolCalls: msg.ToolCalls, ToolCallID: msg.ToolCallID, Name: msg.Name, IsError: msg.IsError}
	firstLine, _, _ := strings.Cut(msg.Content, "\n")
	if !meta.empty() || metaRe.MatchString(trimCR(firstLine)) {
		// json.Marshal escapes '<' and '>' so the payload cannot close the comment.
		data, err := json.Marshal(meta)
		if err != nil {
			return errors.Wrap(err, "marshal message meta")
		}
		fmt.Fprintf(sb, "<!-- meta %s -->\n", data)
	}

	sb.WriteString(escapeContent(msg.Content))
	sb.WriteString("\n\n")
	return nil
}

// awaitsUser reports whether the transcript should end with a prompt section.
func awaitsUser(conv *Conversation) bool {
	last := conv.Last()
	if last == nil {
		return true
	}
	return last.Role == RoleAssistant && !last.HasToolCalls()
}

// escapeContent prefixes one backslash to every content line that looks like
// a section header, escaped or not, so unescapeLine can strip exactly one.
func escapeContent(content string) string {
	if !strings.Contains(content, "### ") {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if headerLikeRe.MatchString(line) {
			lines[i] = `\` + line
		}
	}
	return strings.Join(lines, "\n")
}

func unescapeLine(line string) string {
	if strings.HasPrefix(line, `\`) && headerLikeRe.MatchString(line) {
		return line[1:]
	}
	return line
}

// trimCR drops the carriage return of a CRLF-terminated structural line.
// Content lines are kept byte for byte.
func trimCR(line string) string {
	return strings.TrimSuffix(line, "\r")
}

func (TextCodec) Decode(name string, data []byte) (*Conversation, error) {
	conv := &Conversation{Name: name, Messages: []Message{}}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")

	i := 0
	var preamble []string
	for ; i < len(lines); i++ {
		if _, ok := parseHeader(lines[i]); ok {
			break
		}
		line := trimCR(lines[i])
		if m := conversationRe.FindStringSubmatch(line); m != nil {
			var pm preambleMeta
			if err := json.Unmarshal([]byte(m[1]), &pm); err != nil {
				return nil, errors.Wrapf(err, "decode conversation header of %s", name)
			}
			conv.CreatedAt = pm.CreatedAt
			continue
		}
		if len(preamble) == 0 && strings.HasPrefix(line, "# ") {
			continue
		}
		preamble = append(preamble, line)
	}

	// Text typed under the title, before any section, is the first prompt.
	if prompt := strings.TrimSpace(strings.Join(preamble, "\n")); prompt != "" {
		conv.Messages = append(conv.Messages, Message{Role: RoleUser, Content: prompt, Timestamp: conv.CreatedAt})
	}

	for i < len(lines) {
		msg, _ := parseHeader(lines[i])
		i++

		hasMeta := false
		if i < len(lines) {
			if m := metaRe.FindStringSubmatch(trimCR(lines[i])); m != nil {
				var meta sectionMeta
				if err := json.Unmarshal([]byte(m[1]), &meta); err != nil {
					return nil, errors.Wrapf(err, "decode message meta in %s", name)
				}
				msg.ID, msg.ToolCalls, msg.ToolCallID, msg.Name, msg.IsError = meta.ID, meta.ToolCalls, meta.ToolCallID, meta.Name, meta.IsError
				hasMeta = true
				i++
			}
		}

		var body []string
		for ; i < len(lines); i++ {
			if _, ok := parseHeader(lines[i]); ok {
				break
			}
			body = append(body, unescapeLine(lines[i]))
		}

		content := strings.Join(body, "\n")
		if hasMeta {
			// The encoder ends every section with a blank line.
			content = strings.TrimSuffix(content, "\n")
		} else {
			content = strings.TrimSpace(content)
		}
		msg.Content = content

		if msg.Role == RoleUser && !hasMeta && isBlank(content) {
			continue
		}
		conv.Messages = append(conv.Messages, msg)
	}

	if conv.CreatedAt.IsZero() && len(conv.Messages) > 0 {
		conv.CreatedAt = conv.Messages[0].Timestamp
	}
	return conv, nil
}

func parseHeader(line string) (Message, bool) {
	m := headerRe.FindStringSubmatch(trimCR(line))
	if m == nil {
		return Message{}, false
	}
	ts, err := time.Parse(time.RFC3339, m[2])
	if err != nil {
		return Message{}, false
	}
	return Message{Role: normalizeRole(m[1]), Timestamp: ts.UTC()}, true
}
