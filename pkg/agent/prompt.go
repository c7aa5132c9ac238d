package agent

import (
	"fmt"
	"strings"

	"github.com/minhyannv/airproject/pkg/tools"
)

var promptGuidelines = []string{
	"Always confirm with the user before making significant changes to files.",
	"Use read_file to understand the current state of files before modifying them.",
	"Prefer append_file over write_file unless you're certain the entire file needs to be replaced.",
	"Use delete_file only when explicitly instructed by the user.",
	"When writing or appending code, ensure it's properly formatted and commented.",
	"After performing file operations, summarize what you've done for the user.",
}

// BuildSystemPrompt constructs the system instruction, listing the tools the
// model may call.
func BuildSystemPrompt(specs []tools.Spec) string {
	var sb strings.Builder
	sb.WriteString("You are an AI assistant specialized in software development.")
	if len(specs) > 0 {
		sb.WriteString(" You have access to the following file operation tools:\n\n")
		for i, spec := range specs {
			sb.WriteString(fmt.Sprintf("%d. %s(%s): %s\n", i+1, spec.Name, strings.Join(argumentNames(spec), ", "), sanitizeLine(spec.Description)))
		}
		sb.WriteString("\nGuidelines for using these tools:\n")
		for _, line := range promptGuidelines {
			sb.WriteString("- ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nYour primary role is to assist with software development tasks, answer questions, and provide guidance. ")
	sb.WriteString("Use these tools to help you in this role, but remember that your expertise and advice are the main value you provide.")
	return strings.TrimSpace(sb.String())
}

func argumentNames(spec tools.Spec) []string {
	if spec.Parameters == nil || spec.Parameters.Properties == nil {
		return nil
	}
	names := make([]string, 0, spec.Parameters.Properties.Len())
	for pair := spec.Parameters.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// sanitizeLine keeps descriptions single-line and trimmed.
func sanitizeLine(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	return strings.TrimSpace(value)
}
