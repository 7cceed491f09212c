package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/village-chat/internal/auth"
	"github.com/vovakirdan/village-chat/internal/client/natsbus"
	"github.com/vovakirdan/village-chat/internal/client/redisbus"
	"github.com/vovakirdan/village-chat/internal/client/ws"
	"github.com/vovakirdan/village-chat/internal/config"
	"github.com/vovakirdan/village-chat/internal/core"
	"github.com/vovakirdan/village-chat/internal/terminal"
)

var (
	chatRoom   string
	chatDriver string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open a room and chat interactively",
	Long: `Open a room: print its history, then follow live messages.

Type a line and press Enter to send it. Commands:
  /reload - re-enter the room (after a failure)
  /quit   - leave the room and exit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatRoom, "room", "", "room id")
	chatCmd.Flags().StringVar(&chatDriver, "driver", "", "live driver: ws, nats or redis (default from config)")
	_ = chatCmd.MarkFlagRequired("room")
}

// liveDriver is a live message source that also carries outgoing messages.
type liveDriver interface {
	core.LiveSource
	core.Transport
	Close() error
}

func selfFromToken(token string) (string, error) {
	self, err := auth.SubjectFromToken(token)
	if err != nil {
		return "", fmt.Errorf("read token subject: %w", err)
	}
	return self, nil
}

func openDriver(ctx context.Context, cfg config.ClientConfig, logger *zerolog.Logger) (liveDriver, error) {
	switch cfg.LiveDriver {
	case config.LiveDriverWS:
		return ws.Dial(ctx, cfg.WSURL, cfg.Token, ws.WithLogger(logger))
	case config.LiveDriverNATS:
		return natsbus.Connect(cfg.NATSURL, cfg.SubjectPrefix, logger)
	case config.LiveDriverRedis:
		return redisbus.Connect(ctx, cfg.RedisAddr, cfg.SubjectPrefix, logger)
	default:
		return nil, fmt.Errorf("unknown live driver %q", cfg.LiveDriver)
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if chatDriver != "" {
		cfg.Client.LiveDriver = chatDriver
	}
	repo, err := restClient(cfg)
	if err != nil {
		return err
	}
	self, err := selfFromToken(cfg.Client.Token)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	dialCtx, cancelDial := context.WithTimeout(ctx, cfg.Client.FetchTimeout)
	driver, err := openDriver(dialCtx, cfg.Client, logger)
	cancelDial()
	if err != nil {
		return fmt.Errorf("connect %s: %w", cfg.Client.LiveDriver, err)
	}
	defer driver.Close()

	renderCtx, stopRender := context.WithCancel(ctx)
	defer stopRender()
	sink := core.NewChannelSink(16)
	go terminal.NewPrinter(cmd.OutOrStdout(), self).Run(renderCtx, sink.Views())

	session := core.NewSession(core.SessionConfig{
		Self:       self,
		Repository: repo,
		Live:       driver,
		Transport:  driver,
		Sink:       sink,
		Logger:     logger,
	})
	defer func() {
		if err := session.Leave(); err != nil {
			logger.Warn().Err(err).Msg("leave room")
		}
	}()

	enter := func() error {
		enterCtx, cancel := context.WithTimeout(ctx, cfg.Client.FetchTimeout)
		defer cancel()
		return session.Enter(enterCtx, chatRoom)
	}
	if err := enter(); err != nil {
		return err
	}

	lines := readLines(cmd.InOrStdin())
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.TrimSpace(line) {
			case "":
				continue
			case "/quit":
				return nil
			case "/reload":
				if err := enter(); err != nil {
					logger.Warn().Err(err).Str("room", chatRoom).Msg("re-enter failed")
				}
				continue
			}

			sendCtx, cancel := context.WithTimeout(ctx, cfg.Client.SendTimeout)
			_, err := session.Send(sendCtx, line)
			cancel()
			if err != nil && !errors.Is(err, core.ErrDeliveryFailed) {
				logger.Warn().Err(err).Msg("send rejected")
			}
		}
	}
}

// readLines scans r on its own goroutine. The goroutine exits at EOF.
func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			out <- scanner.Text()
		}
	}()
	return out
}
