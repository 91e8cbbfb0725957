package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/calldesk/internal/api"
	"github.com/vovakirdan/calldesk/internal/app"
	"github.com/vovakirdan/calldesk/internal/config"
)

// runDevServer runs the development backend until SIGINT/SIGTERM.
func runDevServer(cmd *cobra.Command, flags *rootFlags, addr string) error {
	cfg, path, logger, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.DevServer.Addr = addr
	}

	server, err := app.NewDevServer(&cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Str("addr", server.Addr()).
		Str("config", path).
		Str("livekit_url", cfg.DevServer.LiveKitURL).
		Msg("starting calldesk devserver")
	if err := server.Run(cmd.Context()); err != nil {
		return fmt.Errorf("devserver exited with error: %w", err)
	}
	logger.Info().Msg("devserver stopped")
	return nil
}

// runLogin opens a backend session for identity and prints or saves the cookie.
func runLogin(cmd *cobra.Command, flags *rootFlags, identity string, save bool) error {
	cfg, path, logger, err := loadConfig(flags)
	if err != nil {
		return err
	}

	client, err := api.New(api.Options{BaseURL: cfg.BaseURL, Timeout: cfg.RequestTimeout}, logger)
	if err != nil {
		return err
	}
	if err := client.CreateSession(cmd.Context(), identity); err != nil {
		return err
	}

	var cookie string
	for _, c := range client.Cookies() {
		if c.Name == api.DefaultSessionCookie {
			cookie = c.Value
		}
	}
	if cookie == "" {
		return fmt.Errorf("backend did not set the %s cookie", api.DefaultSessionCookie)
	}

	if !save {
		fmt.Fprintf(cmd.OutOrStdout(), "CALLDESK_IDENTITY=%s\nCALLDESK_SESSION_COOKIE=%s\n", identity, cookie)
		return nil
	}

	cfg.Identity = identity
	cfg.SessionCookie = cookie
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s, session saved to %s\n", identity, path)
	return nil
}

// runConfigShow prints the resolved configuration with secrets masked.
func runConfigShow(cmd *cobra.Command, flags *rootFlags) error {
	cfg, path, _, err := loadConfig(flags)
	if err != nil {
		return err
	}

	cfg.SessionCookie = mask(cfg.SessionCookie)
	cfg.DevServer.JWTSecret = mask(cfg.DevServer.JWTSecret)
	cfg.DevServer.LiveKitAPISecret = mask(cfg.DevServer.LiveKitAPISecret)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, data)
	return nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
