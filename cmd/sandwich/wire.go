package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"sandwich/internal/assembler"
	"sandwich/internal/config"
	"sandwich/internal/corpus"
	"sandwich/internal/corpus/memory"
	"sandwich/internal/corpus/sqlstore"
	"sandwich/internal/domain"
	"sandwich/internal/embedding"
	"sandwich/internal/embedding/gemini"
	"sandwich/internal/embedding/hashing"
	"sandwich/internal/embedding/openai"
	"sandwich/internal/events"
	"sandwich/internal/extractor"
	"sandwich/internal/judge"
	"sandwich/internal/llm"
	"sandwich/internal/logging"
	"sandwich/internal/metrics"
	"sandwich/internal/preprocess"
	"sandwich/internal/service"
	"sandwich/internal/source"
	"sandwich/internal/validator"
)

// app holds the loaded config and everything that must be closed on exit.
type app struct {
	cfg     *config.AppConfig
	cfgPath string
	log     *logrus.Logger
	closers []io.Closer
}

func setup(g *globalFlags) (*app, error) {
	var (
		cfg  *config.AppConfig
		path = g.configPath
		err  error
	)
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	log, closer, err := logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}
	log.WithField("config", path).Debug("config loaded")
	return &app{cfg: cfg, cfgPath: path, log: log, closers: []io.Closer{closer}}, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.WithError(err).Warn("close failed")
		}
	}
	a.closers = nil
}

func (a *app) openStore(ctx context.Context) (domain.Repository, error) {
	opts := corpus.Options{EdgeThreshold: a.cfg.Corpus.EdgeThreshold}
	var (
		repo domain.Repository
		err  error
	)
	switch a.cfg.Store.Type {
	case "memory":
		repo = memory.NewStore(opts)
	case "sqlite", "":
		repo, err = sqlstore.OpenSQLite(ctx, a.cfg.Store.SQLite.Path, opts)
	case "postgres":
		dsn := a.cfg.Store.Postgres.PostgresDSN()
		if dsn == "" {
			return nil, fmt.Errorf("postgres store: no DSN (set %s)", a.cfg.Store.Postgres.DSNEnv)
		}
		repo, err = sqlstore.OpenPostgres(ctx, dsn, opts)
	default:
		return nil, fmt.Errorf("unknown store: %s", a.cfg.Store.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Store.Type, err)
	}
	a.closers = append(a.closers, repo)
	return repo, nil
}

func (a *app) newEmbedder(ctx context.Context) (domain.Embedder, error) {
	ec := a.cfg.Embedder
	var emb domain.Embedder
	switch ec.Type {
	case "hashing", "":
		emb = hashing.NewEmbedder(ec.Hashing.Dimension)
	case "openai":
		client, err := openai.NewClient(openai.Config{
			BaseURL:    ec.OpenAI.BaseURL,
			APIKeyEnv:  ec.OpenAI.APIKeyEnv,
			Model:      ec.OpenAI.Model,
			Timeout:    time.Duration(ec.OpenAI.TimeoutSecs) * time.Second,
			AllowNoKey: ec.OpenAI.AllowNoKey,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		emb = client
	case "gemini":
		g, err := gemini.New(ctx, gemini.Config{
			APIKeyEnv: ec.Gemini.APIKeyEnv,
			Model:     ec.Gemini.Model,
			Dimension: ec.Gemini.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embedder: %w", err)
		}
		emb = g
	default:
		return nil, fmt.Errorf("unknown embedder: %s", ec.Type)
	}
	if ec.CacheSize > 0 {
		cached, err := embedding.NewCached(emb, ec.CacheSize)
		if err != nil {
			return nil, err
		}
		emb = cached
	}
	return emb, nil
}

func (a *app) newLLM(ctx context.Context) (llm.Client, error) {
	lc := a.cfg.LLM
	var client llm.Client
	switch lc.Provider {
	case "gemini", "":
		c, err := llm.NewGeminiClient(ctx, lc.Gemini.APIKeyEnv, lc.Gemini.Model, lc.Temperature)
		if err != nil {
			return nil, fmt.Errorf("gemini llm: %w", err)
		}
		client = c
	case "openai":
		c, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL:     lc.OpenAI.BaseURL,
			APIKeyEnv:   lc.OpenAI.APIKeyEnv,
			Model:       lc.OpenAI.Model,
			Temperature: lc.Temperature,
			Timeout:     time.Duration(lc.OpenAI.TimeoutSecs) * time.Second,
			AllowNoKey:  lc.OpenAI.AllowNoKey,
		})
		if err != nil {
			return nil, fmt.Errorf("openai llm: %w", err)
		}
		client = c
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", lc.Provider)
	}
	rc := llm.DefaultRetryConfig()
	rc.MaxAttempts = lc.MaxRetries
	return llm.WithRetry(client, rc, a.log), nil
}

func (a *app) newSource() (domain.ContentSource, error) {
	if len(a.cfg.Sources) == 0 {
		return nil, errors.New("no sources configured")
	}
	var all []domain.ContentSource
	for i, sc := range a.cfg.Sources {
		timeout := time.Duration(sc.TimeoutSecs) * time.Second
		switch sc.Type {
		case "files":
			name := sc.Name
			if name == "" {
				name = fmt.Sprintf("files-%d", i)
			}
			f, err := source.NewFiles(name, sc.Patterns)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", name, err)
			}
			all = append(all, f)
		case "wikipedia":
			all = append(all, source.NewWikipedia(source.WikipediaConfig{
				Name:     sc.Name,
				Language: sc.Language,
				Limit:    sc.Limit,
				Timeout:  timeout,
			}))
		case "web":
			name := sc.Name
			if name == "" {
				name = fmt.Sprintf("web-%d", i)
			}
			w, err := source.NewWeb(name, sc.URLs, timeout)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", name, err)
			}
			all = append(all, w)
		default:
			return nil, fmt.Errorf("unknown source type: %s", sc.Type)
		}
	}
	var src domain.ContentSource = all[0]
	if len(all) > 1 {
		src = source.NewRoundRobin(all...)
	}
	return source.NewDedup(src), nil
}

// newEvents returns the publisher for run events and the in-process bus
// that keeps their history. The bus is nil when events are disabled.
func (a *app) newEvents() (events.Publisher, *events.Bus, error) {
	ec := a.cfg.Events
	switch ec.Type {
	case "none":
		return events.Nop{}, nil, nil
	case "memory", "":
		bus := events.NewBus(ec.HistorySize, a.log)
		return bus, bus, nil
	case "nats":
		bus := events.NewBus(ec.HistorySize, a.log)
		nc, err := events.ConnectNATS(ec.NATS.URL, ec.NATS.SubjectPrefix, a.log)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, nc)
		return events.Fanout{bus, nc}, bus, nil
	default:
		return nil, nil, fmt.Errorf("unknown events type: %s", ec.Type)
	}
}

// newForager wires the full pipeline around repo.
func (a *app) newForager(ctx context.Context, repo domain.Repository, pub events.Publisher, m *metrics.Metrics) (*service.Forager, error) {
	callTimeout := time.Duration(a.cfg.Forager.CallTimeoutSecs) * time.Second

	src, err := a.newSource()
	if err != nil {
		return nil, err
	}
	pre, err := preprocess.New(preprocess.Config{
		MinLength:        a.cfg.Preprocess.MinLength,
		MaxLength:        a.cfg.Preprocess.MaxLength,
		QualityThreshold: a.cfg.Preprocess.QualityThreshold,
	})
	if err != nil {
		return nil, err
	}
	emb, err := a.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	client, err := a.newLLM(ctx)
	if err != nil {
		return nil, err
	}

	ext := extractor.New(client, extractor.Options{MaxCandidates: a.cfg.Forager.MaxCandidates}, a.log)
	asm := assembler.New(repo,
		metrics.Writer(assembler.NewWriter(client), m),
		metrics.Embedder(emb, m),
		assembler.Options{ReuseLimit: a.cfg.Corpus.ReuseLimit, CallTimeout: callTimeout},
		a.log)

	vcfg := validator.DefaultConfig()
	vcfg.AcceptThreshold = a.cfg.Validator.AcceptThreshold
	vcfg.MarginalFloor = a.cfg.Validator.MarginalFloor
	vcfg.Weights = a.cfg.Validator.Weights
	vcfg.CallTimeout = callTimeout
	val, err := validator.New(vcfg, metrics.Judge(judge.New(client, 0), m), repo)
	if err != nil {
		return nil, err
	}

	pipe, err := service.NewPipeline(service.Deps{
		Source:       metrics.Source(src, m),
		Preprocessor: pre,
		Extractor:    metrics.Extractor(ext, m),
		Assembler:    asm,
		Validator:    val,
		Repository:   repo,
		Metrics:      m,
		Logger:       a.log,
		CallTimeout:  callTimeout,
	})
	if err != nil {
		return nil, err
	}
	a.log.WithFields(logrus.Fields{
		"source":   src.Name(),
		"embedder": emb.Name(),
		"llm":      client.Name(),
		"store":    a.cfg.Store.Type,
	}).Info("pipeline ready")
	return service.NewForager(pipe, repo, pub, m, a.log), nil
}

func (a *app) limits() service.Limits {
	fc := a.cfg.Forager
	return service.Limits{
		Patience:               fc.Patience,
		MaxArtifacts:           fc.MaxArtifacts,
		MaxDuration:            time.Duration(fc.MaxDurationSecs) * time.Second,
		MaxConsecutiveFailures: fc.MaxConsecutiveFailures,
	}
}
