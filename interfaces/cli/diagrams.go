package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"dclass/application/ports"
	"dclass/application/services"
	"dclass/domain/core/aggregates"
	"dclass/domain/core/valueobjects"
	pkgerrors "dclass/pkg/errors"
)

func listCmd(s *session) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your diagrams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				owner = s.cfg.UserID
			}
			if owner == "" {
				return pkgerrors.NewValidation("set user_id in the config or pass --owner")
			}
			client, err := s.apiClient()
			if err != nil {
				return err
			}
			diagrams, err := client.LoadDiagramsByOwner(cmd.Context(), owner)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(diagrams) == 0 {
				fmt.Fprintln(out, "  No diagrams yet.")
				fmt.Fprintln(out, subtle.Sprint("  Create one: dclass create \"My diagram\""))
				return nil
			}
			rows := make([][]string, 0, len(diagrams))
			for _, d := range diagrams {
				rows = append(rows, []string{
					d.ID.String(),
					d.Name,
					strconv.Itoa(d.Model.NodeCount()),
					strconv.Itoa(d.Model.EdgeCount()),
					d.UpdatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			table(out, []string{"ID", "NAME", "NODES", "EDGES", "UPDATED"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id (default user_id)")
	return cmd
}

func createCmd(s *session) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.cfg.UserID == "" {
				return pkgerrors.NewValidation("set user_id in the config or pass --user-id")
			}
			client, err := s.apiClient()
			if err != nil {
				return err
			}
			d, err := client.CreateDiagram(cmd.Context(), ports.CreateDiagramRequest{
				Name:        args[0],
				Description: description,
				OwnerID:     s.cfg.UserID,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s Created %s %s\n", statusIcon(true), brand.Sprint(d.Name), subtle.Sprint(d.ID.String()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "diagram description")
	return cmd
}

func saveCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "save <diagram-id> <model.json>",
		Short: "Overwrite a diagram with a model file",
		Long: "Reads {\"nodes\": [...], \"edges\": [...]} from a file and saves it as the diagram's\n" +
			"content. Edges whose endpoints are missing are dropped.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := valueobjects.ParseDiagramID(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return pkgerrors.NewValidationCause("read model file", err)
			}
			var model aggregates.Model
			if err := json.Unmarshal(data, &model); err != nil {
				return pkgerrors.NewValidationCause("model file is not a diagram", err)
			}

			client, err := s.apiClient()
			if err != nil {
				return err
			}
			store := services.NewDiagramStore(client, s.logger)
			store.Open(id)
			store.ApplyDiagram(model)
			if err := store.SaveDiagramToAPI(cmd.Context(), id); err != nil {
				return err
			}

			snap := store.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "  %s Saved %d nodes and %d edges to %s\n",
				statusIcon(true), snap.Model.NodeCount(), snap.Model.EdgeCount(), id)
			return nil
		},
	}
}

func joinCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "join <token>",
		Short: "Accept an invitation to a diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := s.apiClient()
			if err != nil {
				return err
			}
			access, err := services.NewInvitationService(client, s.logger).Join(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			name := access.Name
			if name == "" {
				name = access.DiagramID.String()
			}
			fmt.Fprintf(out, "  %s You can now edit %s %s\n", statusIcon(true), brand.Sprint(name), subtle.Sprint(access.DiagramID.String()))
			fmt.Fprintln(out, subtle.Sprint("  Start collaborating: dclass chat "+access.DiagramID.String()))
			return nil
		},
	}
}

func exportCmd(s *session) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:       "export <spring|postman|flutter> <diagram-id>",
		Short:     "Download generated code for a diagram",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(ports.ExportSpringBoot), string(ports.ExportPostman), string(ports.ExportFlutter)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := ports.ParseExportKind(args[0])
			if err != nil {
				return pkgerrors.NewValidation(err.Error())
			}
			id, err := valueobjects.ParseDiagramID(args[1])
			if err != nil {
				return err
			}
			client, err := s.apiClient()
			if err != nil {
				return err
			}
			path, err := services.NewExportService(client, s.logger).Download(cmd.Context(), kind, id, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s Wrote %s\n", statusIcon(true), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "directory to write the file into")
	return cmd
}

func configCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or write the client configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				out := cmd.OutOrStdout()
				table(out, []string{"KEY", "VALUE"}, [][]string{
					{"server_url", s.cfg.ServerURL},
					{"api_url", s.cfg.APIURL},
					{"export_url", s.cfg.ExportURL},
					{"username", s.cfg.Username},
					{"user_id", s.cfg.UserID},
				})
				return nil
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write the effective configuration to the config file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path := s.configPath
				if path == "" {
					path = DefaultConfigPath()
				}
				if err := SaveConfig(path, s.cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s Wrote %s\n", statusIcon(true), path)
				return nil
			},
		},
	)
	return cmd
}
