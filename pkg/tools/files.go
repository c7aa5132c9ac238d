package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// Tool names advertised to the model.
const (
	ReadFileName   = "read_file"
	WriteFileName  = "write_file"
	AppendFileName = "append_file"
	DeleteFileName = "delete_file"
	ListFilesName  = "list_files"
)

type filenameArgs struct {
	Filename string `json:"filename" jsonschema_description:"File name relative to the conversations directory."`
}

type filenameContentArgs struct {
	Filename string `json:"filename" jsonschema_description:"File name relative to the conversations directory."`
	Content  string `json:"content" jsonschema_description:"Text to write."`
}

type noArgs struct{}

// NewFileRegistry builds a registry with the five file tools bound to ws.
func NewFileRegistry(ws *Workspace, ctx Context) (*Registry, error) {
	reg := New(ctx)
	files := fileTools{ws: ws}

	defs := []struct {
		name        string
		description string
		schema      *jsonschema.Schema
		handler     Handler
	}{
		{ReadFileName, "Read the contents of a file. Use it to inspect code or documentation before changing it.", SchemaFor[filenameArgs](), files.readFile},
		{WriteFileName, "Create a file or replace its entire contents. Prefer append_file when adding to existing data.", SchemaFor[filenameContentArgs](), files.writeFile},
		{AppendFileName, "Append content to the end of a file, creating it if it does not exist.", SchemaFor[filenameContentArgs](), files.appendFile},
		{DeleteFileName, "Delete a file. Use only when explicitly instructed by the user.", SchemaFor[filenameArgs](), files.deleteFile},
		{ListFilesName, "List all files in the project's conversations directory.", SchemaFor[noArgs](), files.listFiles},
	}
	for _, def := range defs {
		if err := reg.Register(def.name, def.description, def.schema, def.handler); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

type fileTools struct {
	ws *Workspace
}

func (f fileTools) readFile(_ context.Context, args Arguments) (string, error) {
	name := args.String("filename")
	content, truncated, err := f.ws.Read(name)
	if err != nil {
		return "", err
	}
	if truncated {
		content += fmt.Sprintf("\n[truncated to %d bytes]", f.ws.maxReadBytes)
	}
	return content, nil
}

func (f fileTools) writeFile(_ context.Context, args Arguments) (string, error) {
	name, content := args.String("filename"), args.String("content")
	if err := f.ws.Write(name, content); err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote %d bytes to %s.", len(content), name), nil
}

func (f fileTools) appendFile(_ context.Context, args Arguments) (string, error) {
	name, content := args.String("filename"), args.String("content")
	if err := f.ws.Append(name, content); err != nil {
		return "", err
	}
	return fmt.Sprintf("Appended %d bytes to %s.", len(content), name), nil
}

func (f fileTools) deleteFile(_ context.Context, args Arguments) (string, error) {
	name := args.String("filename")
	if err := f.ws.Delete(name); err != nil {
		return "", err
	}
	return fmt.Sprintf("Deleted %s.", name), nil
}

func (f fileTools) listFiles(_ context.Context, _ Arguments) (string, error) {
	files, err := f.ws.List()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "No files found.", nil
	}
	return strings.Join(files, "\n"), nil
}
