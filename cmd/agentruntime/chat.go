package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/agentruntime/agent"
	"github.com/BaSui01/agentruntime/types"
)

type chatOptions struct {
	character string
	user      string
	room      string
	name      string
	store     storeOptions
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the character on stdin/stdout",
		Long: "Reads one message per line from stdin and prints the agent's replies.\n" +
			"An empty line is ignored; EOF or Ctrl-C ends the session.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), root, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	addCharacterFlags(cmd, &opts.character, &opts.store)
	cmd.Flags().StringVar(&opts.user, "user", "cli-user", "User name for this session")
	cmd.Flags().StringVar(&opts.name, "name", "", "Display name (defaults to --user)")
	cmd.Flags().StringVar(&opts.room, "room", "", "Room id (defaults to a room derived from --user)")
	return cmd
}

// addCharacterFlags 注册需要加载角色的子命令共用的参数
func addCharacterFlags(cmd *cobra.Command, character *string, store *storeOptions) {
	cmd.Flags().StringVar(character, "character", "", "Character file (JSON or YAML)")
	cmd.Flags().BoolVar(&store.inMemory, "in-memory", false, "Keep everything in process memory instead of the configured database")
	cmd.Flags().StringVar(&store.vectorDir, "vector-dir", "", "Persist the in-memory vector index to this directory")
}

func runChat(ctx context.Context, root *rootOptions, opts *chatOptions, in io.Reader, out io.Writer) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, cfg, opts.character, opts.store, logger)
	if err != nil {
		return err
	}
	defer a.close()

	userID := types.StringToUUID(opts.user)
	roomID := opts.room
	if roomID == "" {
		roomID = types.StringToUUID(opts.user + "-" + a.runtime.AgentID())
	}
	name := opts.name
	if name == "" {
		name = opts.user
	}
	msgOpts := agent.MessageOptions{
		ConnectionOptions: agent.ConnectionOptions{UserName: opts.user, ScreenName: name, Source: "cli"},
	}

	fmt.Fprintf(out, "Talking to %s. Ctrl-D to quit.\n", a.character.Name)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		msg := &types.Memory{
			UserID:  userID,
			RoomID:  roomID,
			Content: types.Content{Text: text, Source: "cli"},
		}
		replies, err := a.runtime.HandleMessage(ctx, msg, msgOpts)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("message failed", zap.Error(err))
			fmt.Fprintf(out, "[error] %v\n", err)
			continue
		}
		printReplies(out, a.character.Name, replies)
	}
}

func printReplies(out io.Writer, agentName string, replies []*types.Memory) {
	if len(replies) == 0 {
		fmt.Fprintf(out, "%s: ...\n", agentName)
		return
	}
	for _, reply := range replies {
		if reply == nil || reply.Content.Text == "" {
			continue
		}
		line := fmt.Sprintf("%s: %s", agentName, reply.Content.Text)
		if action := reply.Content.Action; action != "" && !strings.EqualFold(action, "NONE") {
			line += fmt.Sprintf(" (%s)", action)
		}
		fmt.Fprintln(out, line)
	}
}
