package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/minhyannv/airproject/pkg/agent"
	"github.com/minhyannv/airproject/pkg/apperr"
	configpkg "github.com/minhyannv/airproject/pkg/config"
	"github.com/minhyannv/airproject/pkg/conversation"
	loggerpkg "github.com/minhyannv/airproject/pkg/logger"
	"github.com/minhyannv/airproject/pkg/project"
	"github.com/minhyannv/airproject/pkg/provider"
	"github.com/minhyannv/airproject/pkg/tools"
	"github.com/spf13/cobra"
)

// session is the per-invocation state shared by the subcommands.
type session struct {
	out    io.Writer
	errOut io.Writer

	cfg     configpkg.Config
	project *project.Project
	logger  loggerpkg.Logger
}

func (s *session) store() (*conversation.Store, error) {
	codec, err := conversation.CodecFor(s.cfg.Format)
	if err != nil {
		return nil, err
	}
	return conversation.NewStore(s.project.StoreDir(), codec), nil
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	s := &session{out: out, errOut: errOut, logger: loggerpkg.NopLogger{}}

	root := &cobra.Command{
		Use:   "airproject",
		Short: "Hold file-based conversations with an LLM that can edit project files",
		Long: `airproject keeps each conversation as a file in the project's conversations
directory. Submitting a conversation sends it to the model, lets the model
read, write, append, delete and list files in that directory, and records
the reply.

Example:
  airproject init
  airproject new design-notes
  airproject submit design-notes -m "Summarize the open questions"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, proj, err := loadCLIConfig(cmd, requiresProject(cmd))
			if err != nil {
				return err
			}
			s.cfg = cfg
			s.project = proj
			s.logger = loggerpkg.NewWriterLogger(s.errOut, cfg.Verbose)
			loggerpkg.Debug(cfg.Verbose, s.logger, "config loaded", map[string]any{
				"dir":        cfg.Dir,
				"provider":   cfg.Provider,
				"model":      cfg.Model,
				"format":     cfg.Format,
				"max_turns":  cfg.MaxTurns,
				"max_tokens": cfg.MaxTokens,
			})
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	addPersistentFlags(root)

	root.AddCommand(
		newInitCmd(s),
		newNewCmd(s),
		newListCmd(s),
		newSubmitCmd(s),
	)
	return root
}

func newInitCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "init [name]",
		Short: "Initialize a project in the current directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			p, err := project.Init(s.cfg.Dir, name)
			if apperr.Is(err, apperr.AlreadyExists) {
				printInfo(s.out, "Project already initialized.")
				return nil
			}
			if err != nil {
				return err
			}
			printSuccess(s.out, "Initialized project %s in %s", p.Name, p.Root())
			return nil
		},
	}
}

func newNewCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "new <name>",
		Short: "Create a new conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.store()
			if err != nil {
				return err
			}
			conv, err := store.Create(args[0])
			if err != nil {
				return err
			}
			path, _ := store.Path(conv.Name)
			printSuccess(s.out, "Created conversation %s (%s)", conv.Name, path)
			return nil
		},
	}
}

func newListCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.store()
			if err != nil {
				return err
			}
			names, err := store.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				printInfo(s.out, "No conversations found.")
				return nil
			}
			for _, name := range names {
				_, _ = fmt.Fprintln(s.out, name)
			}
			return nil
		},
	}
}

func newSubmitCmd(s *session) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "submit <name>",
		Short: "Send a conversation to the model and record the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := provider.New(s.cfg, provider.WithLogger(s.logger))
			if err != nil {
				return err
			}
			store, err := s.store()
			if err != nil {
				return err
			}
			conv, err := store.Load(args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(message) != "" {
				conv.Append(conversation.NewUserMessage(message))
				if err := store.Save(conv); err != nil {
					return err
				}
			}

			registry, err := tools.NewFileRegistry(tools.NewWorkspace(store.Root()), tools.Context{
				Verbose: s.cfg.Verbose,
				Logger:  s.logger,
			})
			if err != nil {
				return err
			}
			driver, err := agent.New(s.cfg, model, registry,
				agent.WithLogger(s.logger),
				agent.WithRecorder(store),
				agent.WithStreamWriter(s.out),
				agent.WithToolObserver(func(call conversation.ToolCall, res conversation.ToolResult) {
					status := "ok"
					if res.IsError {
						status = firstLine(res.Content)
					}
					_, _ = fmt.Fprintln(s.errOut, toolStyle.Render("→ "+call.Name)+" "+mutedStyle.Render(status))
				}),
			)
			if err != nil {
				return err
			}

			result, err := driver.Submit(cmd.Context(), conv)
			if err != nil {
				if result.Streamed {
					printInfo(s.errOut, "Partial reply saved to %s.", conv.Name)
				}
				return err
			}
			if !result.Streamed {
				_, _ = fmt.Fprintln(s.out, strings.TrimRight(result.Final.Content, "\n"))
			}
			printSuccess(s.errOut, "%s: done in %d turn(s), %d tool call(s)", conv.Name, result.Turns, result.ToolCalls)
			return nil
		},
	}
	cmd.Flags().Bool(configpkg.KeyStream, false, "Stream the reply as it is generated")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Append this user message before submitting")
	return cmd
}

// requiresProject reports whether cmd must run inside an initialized project.
func requiresProject(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "init", "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return false
	}
	return !(cmd.HasParent() && cmd.Parent().Name() == "completion")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
