// Command viewer opens one dashboard session against a running portal sync
// server and logs what the operator would see: alerts, the unread badge and
// the assignment toggle state. Commands on stdin drive the user actions:
//
//	toggle <sector_id> <sector name>
//	dismiss <message_id>
//	read-all
//	open
//	status
package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/pkg/config"
	"github.com/atelier-portal/portal-sync/internal/viewer"
	"github.com/atelier-portal/portal-sync/pkg/logger"
	"github.com/atelier-portal/portal-sync/pkg/portalclient"
)

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "portal-viewer",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg.Viewer, log); err != nil {
		log.Fatal().Err(err).Msg("viewer stopped")
	}
}

func run(ctx context.Context, cfg config.ViewerConfig, log zerolog.Logger) error {
	api := portalclient.New(cfg.BaseURL, portalclient.WithLogger(log))
	user, err := api.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		return err
	}

	clientID := cfg.ClientID
	if user.Role == domain.RoleClient {
		clientID = user.ClientID
	}

	s := viewer.NewSession(viewer.Config{
		ViewerID:          uuid.NewString(),
		Role:              user.Role,
		Actor:             user.Username,
		ClientID:          clientID,
		PollInterval:      cfg.PollInterval,
		RefreshInterval:   cfg.RefreshInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		RequestTimeout:    cfg.RequestTimeout,
	}, viewer.Deps{
		Assignments: api.Assignments(),
		Messages:    api.Messages(),
		Clients:     api,
		Presence:    api,
		Alerter: viewer.AlerterFunc(func(n domain.Notification) {
			log.Info().
				Str("message_id", n.MessageID).
				Str("label", n.Label).
				Str("preview", n.BodyPreview).
				Msg("new message")
		}),
		Log: log,
	})
	if err := s.Mount(ctx); err != nil {
		return err
	}
	defer s.Close()

	status(s, log)

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return nil
			}
			if err := command(ctx, s, line); err != nil {
				log.Error().Err(err).Str("command", line).Msg("command failed")
			}
			status(s, log)
		}
	}
}

func command(ctx context.Context, s *viewer.Session, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "toggle":
		if len(fields) < 2 {
			return nil
		}
		return s.Toggle(ctx, fields[1], strings.Join(fields[2:], " "))
	case "dismiss":
		if len(fields) < 2 {
			return nil
		}
		return s.Dismiss(ctx, fields[1])
	case "read-all":
		return s.DismissAll(ctx)
	case "open":
		return s.OpenPanel(ctx)
	}
	return nil
}

func status(s *viewer.Session, log zerolog.Logger) {
	ev := log.Info().
		Int("unread", s.UnreadCount()).
		Str("sync", s.SyncState().String()).
		Bool("push", s.PushConnected())
	if a := s.Assignment(); a != nil {
		ev = ev.Str("sector", a.TypeDiagnostic())
	}
	if c := s.Client(); c != nil {
		ev = ev.Str("type_diagnostic", c.TypeDiagnostic)
	}
	ev.Msg("dashboard")
}
