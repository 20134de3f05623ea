// Package cli implements the dclass terminal client.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dclass/infrastructure/api"
	pkgerrors "dclass/pkg/errors"
	"dclass/pkg/realtime"
)

// Version is reported by --version
var Version = "dev"

const connectTimeout = 10 * time.Second

// session carries what every command needs once flags are parsed
type session struct {
	configPath string
	verbose    bool
	flags      Config

	cfg    *Config
	logger *zap.Logger
}

// NewRootCommand builds the dclass command tree
func NewRootCommand() *cobra.Command {
	s := &session{}

	root := &cobra.Command{
		Use:   "dclass",
		Short: "dclass, collaborative UML class diagrams",
		Long: brand.Sprint("dclass") + " edits UML class diagrams together with other people\n" +
			subtle.Sprint("Generate from prompts or images, invite collaborators and export code"),
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.init(cmd)
		},
	}
	root.SetVersionTemplate("dclass {{ .Version }}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&s.configPath, "config", "", "config file (default "+DefaultConfigPath()+")")
	pf.StringVar(&s.flags.ServerURL, "server", "", "collaboration websocket URL")
	pf.StringVar(&s.flags.APIURL, "api", "", "REST API URL")
	pf.StringVar(&s.flags.ExportURL, "export-url", "", "export service URL")
	pf.StringVar(&s.flags.Username, "username", "", "name shown to collaborators")
	pf.StringVar(&s.flags.UserID, "user-id", "", "your user id")
	pf.BoolVarP(&s.verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(
		listCmd(s),
		createCmd(s),
		saveCmd(s),
		joinCmd(s),
		participantsCmd(s),
		inviteCmd(s),
		chatCmd(s),
		uploadImageCmd(s),
		exportCmd(s),
		configCmd(s),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	root := NewRootCommand()
	err := root.Execute()
	if err != nil {
		root.PrintErrln(bad.Sprint("dclass: ") + describe(err))
	}
	return err
}

func (s *session) init(cmd *cobra.Command) error {
	cfg, err := LoadConfig(s.configPath)
	if err != nil {
		return err
	}
	pf := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if pf.Changed(name) {
			*dst = v
		}
	}
	override("server", &cfg.ServerURL, s.flags.ServerURL)
	override("api", &cfg.APIURL, s.flags.APIURL)
	override("export-url", &cfg.ExportURL, s.flags.ExportURL)
	override("username", &cfg.Username, s.flags.Username)
	override("user-id", &cfg.UserID, s.flags.UserID)
	s.cfg = cfg

	level := zapcore.WarnLevel
	if s.verbose {
		level = zapcore.DebugLevel
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.DisableStacktrace = true
	if s.logger, err = zcfg.Build(); err != nil {
		return err
	}
	return nil
}

func (s *session) apiClient() (*api.Client, error) {
	opts := []api.Option{api.WithLogger(s.logger)}
	if s.cfg.ExportURL != "" {
		opts = append(opts, api.WithExportBaseURL(s.cfg.ExportURL))
	}
	return api.NewClient(s.cfg.APIURL, opts...)
}

// connect opens the realtime channel for diagramID; the returned func closes it
func (s *session) connect(ctx context.Context, diagramID string, store realtime.DiagramApplier) (*realtime.Client, func(), error) {
	client := realtime.NewClient(realtime.NewWSDialer(s.cfg.ServerURL), store, realtime.Config{
		Identity: realtime.Identity{
			DiagramID: diagramID,
			UserID:    s.cfg.UserID,
			Username:  s.cfg.Username,
		},
	}, s.logger)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		client.Run(runCtx)
	}()
	closeFn := func() {
		cancel()
		<-done
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, connectTimeout)
	defer waitCancel()
	if err := client.WaitConnected(waitCtx); err != nil {
		closeFn()
		return nil, nil, pkgerrors.NewTransport("cannot reach collaboration server at "+s.cfg.ServerURL, err)
	}
	return client, closeFn, nil
}

// describe is the one-line text shown for a failed command
func describe(err error) string {
	msg := err.Error()
	switch pkgerrors.TypeOf(err) {
	case pkgerrors.ErrorTypeTransport, pkgerrors.ErrorTypeRemote:
		return msg + subtle.Sprint(" (check --api and --server)")
	default:
		return msg
	}
}
