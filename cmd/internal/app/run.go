package app

import (
	"context"
	"fmt"
	"os"

	"arcweb/cmd/internal/services"

	"github.com/urfave/cli/v3"
)

type flags struct {
	logLevel    string
	logFormat   string
	preferences string
	username    string
	email       string
	password    string
}

// Run is the CLI entrypoint used by cmd/arcweb.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(ctx context.Context, args []string) error {
	f := &flags{}
	var cfg Config

	cmd := &cli.Command{
		Name:  "arcweb",
		Usage: "Arc web shell: edge route guard and client session runtime",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Destination: &f.logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log format (json, text)",
				Destination: &f.logFormat,
			},
		},
		Before: func(ctx context.Context, _ *cli.Command) (context.Context, error) {
			loaded, err := LoadConfig()
			if err != nil {
				return ctx, err
			}
			if f.logLevel != "" {
				loaded.Log.Level = f.logLevel
			}
			if f.logFormat != "" {
				loaded.Log.Format = f.logFormat
			}
			cfg = loaded
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the edge server in front of the UI",
				Action: func(ctx context.Context, _ *cli.Command) error {
					log := NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)
					a, err := New(cfg, log)
					if err != nil {
						return err
					}
					return a.Run(ctx)
				},
			},
			{
				Name:  "session",
				Usage: "Restore the session, load the current user and hold the realtime socket",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "preferences",
						Usage:       "path to the JSON preferences file",
						Sources:     cli.EnvVars(EnvPrefix + "PREFERENCES_FILE"),
						Destination: &f.preferences,
					},
					&cli.StringFlag{
						Name:        "username",
						Usage:       "sign in as this user when no session can be restored",
						Destination: &f.username,
					},
					&cli.StringFlag{
						Name:        "email",
						Usage:       "sign in with this email when no session can be restored",
						Destination: &f.email,
					},
					&cli.StringFlag{
						Name:        "password",
						Usage:       "password for --username or --email",
						Sources:     cli.EnvVars(EnvPrefix + "PASSWORD"),
						Destination: &f.password,
					},
				},
				Action: func(ctx context.Context, _ *cli.Command) error {
					if f.preferences != "" {
						cfg.I18n.PreferencesFile = f.preferences
					}
					log := NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)

					var opts []SessionOption
					if req, ok := f.loginRequest(); ok {
						opts = append(opts, WithCredentials(req))
					}
					s, err := NewSession(cfg, log, opts...)
					if err != nil {
						return err
					}
					return s.Run(ctx)
				},
			},
		},
	}

	if err := cmd.Run(ctx, args); err != nil {
		return fmt.Errorf("arcweb: %w", err)
	}
	return nil
}

func (f *flags) loginRequest() (services.LoginRequest, bool) {
	if f.password == "" || (f.username == "" && f.email == "") {
		return services.LoginRequest{}, false
	}
	req := services.LoginRequest{Password: f.password}
	if f.username != "" {
		req.Username = &f.username
	}
	if f.email != "" {
		req.Email = &f.email
	}
	return req, true
}
