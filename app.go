package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/maastricht-university/transcript-pipeline/clients"
	cfg "github.com/maastricht-university/transcript-pipeline/config"
	"github.com/maastricht-university/transcript-pipeline/orchestrator"
	"github.com/maastricht-university/transcript-pipeline/progress"
	"github.com/maastricht-university/transcript-pipeline/store"
	"github.com/maastricht-university/transcript-pipeline/translate"
)

// app owns everything one command needs and releases it in Close.
type app struct {
	log      *logrus.Logger
	store    store.Store
	hub      *progress.Hub
	srv      *http.Server
	pipeline *orchestrator.Pipeline
}

func newApp(ctx context.Context, c *cfg.Root) (*app, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(c.LogLevel())

	st, err := newStore(ctx, c)
	if err != nil {
		return nil, err
	}
	a := &app{log: log, store: st}

	var sink progress.Sink = progress.LogSink{Log: log}
	if addr := strings.TrimSpace(c.Progress.ListenAddr); addr != "" {
		a.hub = progress.NewHub(log)
		mux := http.NewServeMux()
		mux.Handle("/ws", a.hub)
		a.srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("progress server stopped")
			}
		}()
		log.WithField("addr", addr).Info("serving progress events on /ws")
		sink = progress.Multi(sink, a.hub)
	}

	gen, err := newGenerator(c)
	if err != nil {
		a.Close()
		return nil, err
	}
	rec := clients.NewASR(clients.NewHTTP(), c.Services.Recognizer.URL)

	a.pipeline = orchestrator.NewPipeline(c, orchestrator.Deps{
		Recognizer: rec,
		Generator:  gen,
		Store:      st,
		Sink:       sink,
		Log:        log,
	})
	log.WithFields(logrus.Fields{
		"name":    c.Pipeline.Name,
		"version": c.Pipeline.Version,
		"store":   c.Store.Driver,
		"llm":     c.Services.LLM,
	}).Debug("pipeline ready")
	return a, nil
}

func (a *app) Close() {
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(ctx)
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func newStore(ctx context.Context, c *cfg.Root) (store.Store, error) {
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", "file":
		return store.NewFile(c.Paths.Data)
	case "postgres":
		if c.Store.DSN == "" {
			return nil, fmt.Errorf("store.dsn is required for the postgres store")
		}
		return store.NewPostgres(ctx, c.Store.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
}

func newGenerator(c *cfg.Root) (translate.Generator, error) {
	s := c.Services
	switch strings.ToLower(strings.TrimSpace(s.LLM)) {
	case "", "openai":
		return clients.NewOpenAI(clients.NewStreamingHTTP(), clients.OpenAIConfig{
			BaseURL:     s.OpenAI.BaseURL,
			APIKey:      s.OpenAI.APIKey,
			Model:       s.OpenAI.Model,
			System:      s.OpenAI.System,
			Temperature: s.OpenAI.Temperature,
			IdleTimeout: cfg.DurSeconds(s.OpenAI.IdleTimeoutSec),
		}), nil
	case "gemini":
		return clients.NewGemini(clients.NewHTTP(), clients.GeminiConfig{
			BaseURL:     s.Gemini.BaseURL,
			APIKey:      s.Gemini.APIKey,
			Model:       s.Gemini.Model,
			Temperature: s.Gemini.Temperature,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", s.LLM)
	}
}

func bind(v *viper.Viper, f *pflag.Flag, key string) {
	if f == nil {
		return
	}
	_ = v.BindPFlag(key, f)
}
