package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fourfury/go/internal/api"
	"github.com/mcdev12/fourfury/go/internal/apperr"
	"github.com/mcdev12/fourfury/go/internal/channel"
	"github.com/mcdev12/fourfury/go/internal/identity"
	"github.com/mcdev12/fourfury/go/internal/match"
	"github.com/mcdev12/fourfury/go/internal/matchmaking"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config file")
	playerName := flag.String("name", "", "display name (2-30 chars)")
	mode := flag.String("mode", "online", "game mode: online, human, or ai")
	difficulty := flag.Int("difficulty", 2, "ai difficulty (1-3), ai mode only")
	joinID := flag.String("join", "", "join an existing match by id")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if err := match.ValidatePlayerName(*playerName); err != nil {
		exitOnAppError(apperr.Validation(err.Error()), "invalid player name")
	}
	gameMode := match.Mode(*mode)
	switch gameMode {
	case match.ModeOnline, match.ModeLocal, match.ModeAI:
	default:
		exitOnAppError(apperr.Validation(fmt.Sprintf("unknown game mode %q", *mode)), "unknown game mode")
	}

	ctx := context.Background()

	apiClient := api.NewClient(cfg.Server.APIBaseURL)
	sess, err := apiClient.CreateSession(ctx)
	if err != nil {
		exitOnAppError(err, "failed to create session")
	}
	log.Info().Str("username", sess.Username).Msg("session established")

	store := identity.NewFileStore(cfg.Client.IdentityFile)
	dialer := &channel.WSDialer{Config: channelConfig(cfg, sess)}

	term := newTerminal(apiClient, dialer, store, sess.Username)

	var firstMatch string
	switch gameMode {
	case match.ModeOnline:
		firstMatch, err = runMatchmaking(ctx, dialer, store, term, *playerName, sess)
	default:
		firstMatch, err = createOrJoin(ctx, apiClient, store, *joinID, *playerName, gameMode, *difficulty, sess.Username)
	}
	if err != nil {
		exitOnAppError(err, "could not enter a match")
	}

	term.playFrom(ctx, firstMatch)
}

func channelConfig(cfg *Config, sess *api.Session) channel.Config {
	ch := channel.DefaultConfig(cfg.Server.ChannelURL)
	ch.Username = sess.Username
	ch.SessionID = sess.SessionID
	if cfg.Client.MaxReconnectAttempts > 0 {
		ch.MaxReconnectAttempts = cfg.Client.MaxReconnectAttempts
	}
	if cfg.Client.ReconnectWaitMS > 0 {
		ch.ReconnectWait = time.Duration(cfg.Client.ReconnectWaitMS) * time.Millisecond
	}
	return ch
}

// runMatchmaking queues the local player and blocks until a match is found or
// the handshake fails.
func runMatchmaking(ctx context.Context, dialer channel.Dialer, store identity.Store, term *terminal, name string, sess *api.Session) (string, error) {
	matched := make(chan string, 1)
	neg := matchmaking.NewNegotiator(matchmaking.Config{
		Dialer:   dialer,
		Identity: store,
		Nav:      navigatorFunc(func(matchID string) { matched <- matchID }),
		OnUpdate: func(t matchmaking.Ticket) {
			fmt.Println(t.Message)
			if t.Status == matchmaking.StatusError {
				term.fail(t.Message)
			}
		},
	})

	profile := matchmaking.Profile{
		Username:    sess.Username,
		DisplayName: name,
		SessionID:   sess.SessionID,
	}
	if err := neg.Start(ctx, profile); err != nil {
		return "", err
	}

	select {
	case matchID := <-matched:
		return matchID, nil
	case <-term.failed:
		return "", errors.New("matchmaking failed")
	case <-ctx.Done():
		neg.Cancel()
		return "", ctx.Err()
	}
}

// createOrJoin covers the share-a-link and vs-AI flows: the creator takes
// seat 1, a joiner seat 2.
func createOrJoin(ctx context.Context, apiClient *api.Client, store identity.Store, joinID, name string, mode match.Mode, difficulty int, username string) (string, error) {
	if joinID != "" {
		snap, err := apiClient.JoinMatch(ctx, joinID, name)
		if err != nil {
			return "", err
		}
		if err := store.Bind(snap.ID, username, 2); err != nil {
			return "", err
		}
		return snap.ID, nil
	}

	snap, err := apiClient.CreateMatch(ctx, name, mode, difficulty)
	if err != nil {
		return "", err
	}
	if err := store.Bind(snap.ID, username, 1); err != nil {
		return "", err
	}
	if mode == match.ModeLocal {
		fmt.Printf("Share this match id with your opponent: %s\n", snap.ID)
	}
	return snap.ID, nil
}

// navigatorFunc adapts a func to the matchmaking Navigator interface.
type navigatorFunc func(matchID string)

func (f navigatorFunc) ToMatch(matchID string) { f(matchID) }

func exitOnAppError(err error, msg string) {
	// Transport failures become the same fatal error the web UI renders.
	var connErr *channel.ConnError
	if errors.As(err, &connErr) {
		err = apperr.Fatal("Connection to the game server lost", connErr)
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		log.Fatal().Str("kind", string(appErr.Kind)).Msg(appErr.Message)
	}
	log.Fatal().Err(err).Msg(msg)
}
