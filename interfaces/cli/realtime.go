package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dclass/application/services"
	"dclass/domain/core/valueobjects"
	pkgerrors "dclass/pkg/errors"
	"dclass/pkg/realtime"
)

func participantsCmd(s *session) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "participants <diagram-id>",
		Short: "Show who is editing a diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := s.connect(cmd.Context(), args[0], nil)
			if err != nil {
				return err
			}
			defer closeFn()

			roster, err := awaitRoster(cmd.Context(), client, wait)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(roster))
			for _, p := range roster {
				rows = append(rows, []string{
					p.Initials(),
					p.DisplayName(),
					p.UserID,
					p.JoinedAt.Local().Format("15:04:05"),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  %s %d connected\n\n", brand.Sprint(args[0]), len(roster))
			table(out, []string{"", "NAME", "USER", "JOINED"}, rows)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "how long to wait for the roster")
	return cmd
}

// awaitRoster returns the first non-empty roster the server sends
func awaitRoster(ctx context.Context, client *realtime.Client, wait time.Duration) ([]realtime.Participant, error) {
	updates := make(chan []realtime.Participant, 1)
	remove := client.OnParticipants(func(roster []realtime.Participant) {
		select {
		case updates <- roster:
		default:
		}
	})
	defer remove()

	if roster := client.Participants(); len(roster) > 0 {
		return roster, nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case roster := <-updates:
			if len(roster) > 0 {
				return roster, nil
			}
		case <-timer.C:
			return nil, pkgerrors.NewTransport("no roster received", context.DeadlineExceeded)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func inviteCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "invite <diagram-id>",
		Short: "Create an invitation token for a diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := s.connect(cmd.Context(), args[0], nil)
			if err != nil {
				return err
			}
			defer closeFn()

			invites := client.NewInviteSession()
			defer invites.Close()
			token, err := invites.Generate(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  %s Invitation for %s\n\n", statusIcon(true), brand.Sprint(args[0]))
			fmt.Fprintf(out, "  %s\n\n", token)
			fmt.Fprintln(out, subtle.Sprint("  Share it; they run: dclass join <token>"))
			return nil
		},
	}
}

func uploadImageCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "upload-image <diagram-id> <image.png|jpg>",
		Short: "Replace a diagram with one read from a picture",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openStore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			client, closeFn, err := s.connect(cmd.Context(), args[0], store)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, subtle.Sprint("  Reading diagram from "+args[1]+"..."))
			model, err := client.ProcessImageFile(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  %s Extracted %d nodes and %d relations\n", statusIcon(true), model.NodeCount(), model.EdgeCount())
			return nil
		},
	}
}

func chatCmd(s *session) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "chat <diagram-id>",
		Short: "Talk to the diagram assistant",
		Long: "Messages that ask for a diagram (\"crea un diagrama de ...\") regenerate it for\n" +
			"everyone in the room; anything else gets a text answer.\n" +
			"Type /save to store the current diagram, /who for the roster, /quit to leave.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openStore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			client, closeFn, err := s.connect(cmd.Context(), args[0], store)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			if message != "" {
				return chatOnce(cmd.Context(), out, client, message)
			}
			return chatLoop(cmd.Context(), cmd.InOrStdin(), out, client, store)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "send one message and exit")
	return cmd
}

func chatLoop(ctx context.Context, in io.Reader, out io.Writer, client *realtime.Client, store *services.DiagramStore) error {
	fmt.Fprintf(out, "  %s connected to %s\n", brand.Sprint("dclass"), client.DiagramID())
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, subtle.Sprint("> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/save":
			if err := saveStore(ctx, out, store); err != nil {
				fmt.Fprintln(out, bad.Sprint("  "+err.Error()))
			}
			continue
		case "/who":
			roster, err := awaitRoster(ctx, client, 2*time.Second)
			if err != nil {
				fmt.Fprintln(out, bad.Sprint("  "+err.Error()))
				continue
			}
			for _, p := range roster {
				fmt.Fprintf(out, "  %s %s\n", brand.Sprint(p.Initials()), p.DisplayName())
			}
			continue
		}
		if err := chatOnce(ctx, out, client, line); err != nil {
			fmt.Fprintln(out, bad.Sprint("  "+err.Error()))
		}
	}
}

func chatOnce(ctx context.Context, out io.Writer, client *realtime.Client, text string) error {
	reply, err := client.SendChat(ctx, text)
	if err != nil {
		return err
	}
	if reply.Diagram != nil {
		fmt.Fprintf(out, "  %s Diagram updated: %d nodes, %d relations\n",
			statusIcon(true), reply.Diagram.NodeCount(), reply.Diagram.EdgeCount())
		if reply.Text != "" {
			fmt.Fprintln(out, subtle.Sprint("  "+reply.Text))
		}
		return nil
	}
	fmt.Fprintln(out, "  "+reply.Text)
	return nil
}

// openStore loads the diagram so remote replacements have a session to land in
func (s *session) openStore(ctx context.Context, rawID string) (*services.DiagramStore, error) {
	id, err := valueobjects.ParseDiagramID(rawID)
	if err != nil {
		return nil, err
	}
	client, err := s.apiClient()
	if err != nil {
		return nil, err
	}
	store := services.NewDiagramStore(client, s.logger)
	if err := store.Load(ctx, id); err != nil {
		return nil, err
	}
	return store, nil
}

func saveStore(ctx context.Context, out io.Writer, store *services.DiagramStore) error {
	if !store.IsDirty() {
		fmt.Fprintln(out, warn.Sprint("  Nothing to save"))
		return nil
	}
	if err := store.SaveDiagramToAPI(ctx, store.DiagramID()); err != nil {
		return err
	}
	fmt.Fprintf(out, "  %s Saved\n", statusIcon(true))
	return nil
}
