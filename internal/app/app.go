// Package app wires the process-scoped collaborators of geminichat: paths,
// config, credential, store, preprompt library, session and dispatcher.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/diogo/geminichat/internal/api"
	"github.com/diogo/geminichat/internal/config"
	"github.com/diogo/geminichat/internal/dispatch"
	apperrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/history"
	"github.com/diogo/geminichat/internal/models"
	"github.com/diogo/geminichat/internal/session"
)

// BaseURLEnv points the Gemini client at another endpoint, e.g. a proxy
const BaseURLEnv = "GEMINICHAT_BASE_URL"

// Options control how the application context is built
type Options struct {
	// DataDir overrides the data directory (~/.geminichat or GEMINICHAT_HOME)
	DataDir string
	// LogLevel overrides log_level from the config
	LogLevel string
	// Model overrides the model from the config
	Model string
	// Client replaces the Gemini client built from the API key
	Client api.ChatClient
}

// App is the explicit context object shared by the CLI and the TUI
type App struct {
	Dir        string
	Config     *config.Config
	Store      *history.Store
	Preprompts *config.PrepromptLibrary
	Resolver   *history.Resolver
	Session    *session.Session
	Dispatcher *dispatch.Dispatcher
	ModelName  string

	logCloser io.Closer
}

// New resolves the data directory, loads config and credential and wires the
// collaborators. A missing API key is not an error: the dispatcher is built
// without a client and every send reports the model as unavailable.
func New(ctx context.Context, opts Options) (*App, error) {
	dir := opts.DataDir
	if dir == "" {
		var err error
		if dir, err = config.GetConfigDir(); err != nil {
			return nil, err
		}
	}
	if err := config.EnsureDir(dir); err != nil {
		return nil, err
	}

	cfg, cfgErr := config.LoadConfig(dir)
	if cfg.LogFile == "" {
		cfg.LogFile = config.DefaultLogFile(dir)
	}
	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logCloser := InitLogger(LogConfig{Level: level, File: cfg.LogFile})
	if cfgErr != nil {
		log.Warn().Err(cfgErr).Msg("Using default configuration")
	}
	if opts.Model != "" {
		cfg.Model = opts.Model
	}

	store, err := history.NewStore(dir)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	client := opts.Client
	if client == nil {
		client = newClient(ctx, dir, cfg.Model)
	}

	modelName := models.ModelFromName(cfg.Model).Name
	if client != nil {
		modelName = client.ModelName()
	}

	a := &App{
		Dir:        dir,
		Config:     &cfg,
		Store:      store,
		Preprompts: config.LoadPrepromptLibrary(dir),
		Resolver:   history.NewResolver(store),
		Session:    session.New(store),
		Dispatcher: dispatch.New(client, dispatch.WithMaxTokens(cfg.MaxOutputTokens)),
		ModelName:  modelName,
		logCloser:  logCloser,
	}

	log.Info().
		Str("dir", dir).
		Str("model", modelName).
		Bool("api_key", client != nil).
		Msg("Application started")

	return a, nil
}

// newClient builds the Gemini client, or returns nil when no key is
// configured or the client cannot be created.
func newClient(ctx context.Context, dir, model string) api.ChatClient {
	key, err := config.LoadAPIKey(dir)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read API key")
		return nil
	}

	opts := []api.ClientOption{api.WithModel(models.ModelFromName(model))}
	if baseURL := os.Getenv(BaseURLEnv); baseURL != "" {
		opts = append(opts, api.WithBaseURL(baseURL))
	}

	client, err := api.NewClient(ctx, key, opts...)
	switch {
	case errors.Is(err, apperrors.ErrModelUnavailable):
		log.Info().Msg("No API key configured")
		return nil
	case err != nil:
		log.Error().Err(err).Msg("Failed to create Gemini client")
		return nil
	}
	return client
}

// Resume activates the conversation that was active when the program last
// exited. When it is gone, the first listed conversation is used, and with
// no conversations at all a default one is created.
func (a *App) Resume() error {
	if id := a.Store.LastActive(); id != "" && a.Store.Exists(id) {
		err := a.Session.SwitchTo(id, nil)
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Str("conversation_id", id).Msg("Failed to resume last conversation")
		if a.Session.CurrentID() == id {
			a.Session.AddErrorAnnotation(apperrors.FormatForTranscript(err))
			return nil
		}
	}
	return a.Session.EnsureActive()
}

// Open activates the conversation named by ref
func (a *App) Open(ref string) error {
	id, err := a.Resolver.Resolve(ref)
	if err != nil {
		return err
	}
	return a.Session.SwitchTo(id, nil)
}

// SaveConfig persists the current configuration
func (a *App) SaveConfig() error {
	return config.SaveConfig(a.Dir, *a.Config)
}

// Close cancels any request in flight, flushes unsaved session changes and
// closes the log file.
func (a *App) Close() error {
	a.Dispatcher.Close()

	var saveErr error
	if a.Session.Dirty() {
		if err := a.Session.Save(); err != nil {
			saveErr = fmt.Errorf("failed to save '%s': %w", a.Session.Name(), err)
			log.Error().Err(err).Str("conversation_id", a.Session.CurrentID()).Msg("Failed to flush session")
		}
	}

	log.Info().Msg("Application stopped")
	if err := a.logCloser.Close(); err != nil && saveErr == nil {
		return err
	}
	return saveErr
}
