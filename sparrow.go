// Package sparrow provides a high-level façade over the turn runner and its
// collaborators (agent transport, message store, artifact store & logging).
// Most applications interact with this package by:
//  1. Creating a Sparrow via New() from a config.Config (optionally overriding
//     the agent, stores or logger)
//  2. Sending messages with Send, which steers around a turn in flight
//  3. Reading Runner().Snapshot() or subscribing for panel and transcript
//     updates
//
// All defaults are safe for local development and testing; production
// deployments select a streaming transport and a durable store through the
// configuration.
package sparrow

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"

	"github.com/moonshubh/Agent-Sparrow-sub001/artifact"
	"github.com/moonshubh/Agent-Sparrow-sub001/config"
	"github.com/moonshubh/Agent-Sparrow-sub001/core"
	"github.com/moonshubh/Agent-Sparrow-sub001/logging"
	"github.com/moonshubh/Agent-Sparrow-sub001/model"
	"github.com/moonshubh/Agent-Sparrow-sub001/model/anthropic"
	"github.com/moonshubh/Agent-Sparrow-sub001/model/openai"
	"github.com/moonshubh/Agent-Sparrow-sub001/protocol"
	"github.com/moonshubh/Agent-Sparrow-sub001/protocol/sse"
	"github.com/moonshubh/Agent-Sparrow-sub001/protocol/ws"
	"github.com/moonshubh/Agent-Sparrow-sub001/runner"
	"github.com/moonshubh/Agent-Sparrow-sub001/session"
	"github.com/moonshubh/Agent-Sparrow-sub001/session/httpapi"
	"github.com/moonshubh/Agent-Sparrow-sub001/session/sqlite"
)

// Options configures the Sparrow instance.
type Options struct {
	// Config selects transport, store and runtime tuning. Defaults to
	// config.DefaultConfig().
	Config *config.Config

	// SessionID resumes an existing conversation when set.
	SessionID string

	// Agent overrides the transport selected by Config.
	Agent protocol.Agent

	// Stores (default to the configured driver and an in-memory artifact store)
	Store     core.MessageStore
	Artifacts core.ArtifactStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// RunnerOptions are applied after the configuration.
	RunnerOptions []func(o *runner.Options)
}

// Sparrow is the high-level façade aggregating the runner and its services.
type Sparrow struct {
	runner  *runner.Runner
	store   core.MessageStore
	logger  logging.Logger
	closers []func() error
}

// New creates a Sparrow. Any unset service is built from the configuration.
func New(ctx context.Context, optFns ...func(o *Options)) (*Sparrow, error) {
	opts := Options{
		Config:    config.DefaultConfig(),
		Artifacts: artifact.NewInMemoryStore(),
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	logger := logging.OrNoOp(opts.Logger)

	s := &Sparrow{logger: logger}
	if opts.Store == nil {
		store, closeFn, err := NewStore(opts.Config, logger)
		if err != nil {
			return nil, err
		}
		opts.Store = store
		if closeFn != nil {
			s.closers = append(s.closers, closeFn)
		}
	}
	if opts.Agent == nil {
		agent, err := NewAgent(opts.Config, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		opts.Agent = agent
	}
	s.store = opts.Store

	fns := append([]func(o *runner.Options){
		opts.Config.RunnerOptions(),
		func(o *runner.Options) {
			o.SessionID = opts.SessionID
			o.Store = opts.Store
			o.Artifacts = opts.Artifacts
			o.Logger = logger
		},
	}, opts.RunnerOptions...)
	s.runner = runner.New(opts.Agent, fns...)

	var err error
	if opts.SessionID != "" {
		err = s.runner.LoadSession(ctx, opts.SessionID)
	} else {
		_, err = s.runner.NewSession()
	}
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Runner returns the underlying turn runner.
func (s *Sparrow) Runner() *runner.Runner { return s.runner }

// Store returns the message store.
func (s *Sparrow) Store() core.MessageStore { return s.store }

// Send submits a user message. A message typed while a turn is in flight
// steers that turn.
func (s *Sparrow) Send(ctx context.Context, content string, attachments ...core.Attachment) (*runner.TurnResult, error) {
	return s.runner.Submit(ctx, runner.Input{Content: content, Attachments: attachments})
}

// History returns the persisted messages of a session.
func (s *Sparrow) History(ctx context.Context, sessionID string) ([]core.StoredMessage, error) {
	if l, ok := s.store.(interface {
		ListAll(ctx context.Context, sessionID string) ([]core.StoredMessage, error)
	}); ok {
		return l.ListAll(ctx, sessionID)
	}
	return s.store.ListMessages(ctx, sessionID, 0, 0)
}

// Close stops the runner and releases the store.
func (s *Sparrow) Close() error {
	if s.runner != nil {
		s.runner.Close()
	}
	var errs []error
	for _, fn := range s.closers {
		errs = append(errs, fn())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// NewStore builds the configured message store. The returned close function
// may be nil.
func NewStore(cfg *config.Config, logger logging.Logger) (core.MessageStore, func() error, error) {
	switch cfg.Store.Driver {
	case "", "memory":
		return session.NewInMemoryStore(), nil, nil
	case "sqlite":
		st, err := sqlite.Open(cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, st.Close, nil
	case "http":
		return httpapi.New(cfg.Backend.APIURL, func(o *httpapi.Options) {
			o.HTTPClient = &http.Client{Timeout: cfg.GetRequestTimeout()}
			o.Header = headers(cfg)
			o.Logger = logger
		}), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// NewAgent builds the configured agent transport.
func NewAgent(cfg *config.Config, logger logging.Logger) (protocol.Agent, error) {
	b := cfg.Backend
	agentOpts := func(o *model.AgentOptions) {
		if b.Instructions != "" {
			o.Instructions = b.Instructions
		}
		o.Logger = logger
	}

	switch b.Transport {
	case "sse":
		return sse.New(b.AgentURL, func(o *sse.Options) {
			o.HTTPClient = &http.Client{Timeout: cfg.GetRequestTimeout()}
			o.Header = headers(cfg)
			o.Logger = logger
		}), nil
	case "ws":
		return ws.New(b.AgentURL, func(o *ws.Options) {
			o.Header = headers(cfg)
			o.Logger = logger
		}), nil
	case "openai":
		m := openai.NewModel(func(o *openai.Options) {
			if b.Model != "" {
				o.Model = b.Model
			}
			if b.APIKey != "" {
				o.ClientOptions = append(o.ClientOptions, openaiopt.WithAPIKey(b.APIKey))
			}
			if b.BaseURL != "" {
				o.ClientOptions = append(o.ClientOptions, openaiopt.WithBaseURL(b.BaseURL))
			}
		})
		return model.NewAgent(m, agentOpts), nil
	case "anthropic":
		m := anthropic.NewModel(func(o *anthropic.Options) {
			if b.Model != "" {
				o.Model = anthropicsdk.Model(b.Model)
			}
			o.APIKey = b.APIKey
			if b.BaseURL != "" {
				o.ClientOptions = append(o.ClientOptions, anthropicopt.WithBaseURL(b.BaseURL))
			}
		})
		return model.NewAgent(m, agentOpts), nil
	case "echo":
		return model.NewEchoAgent(agentOpts), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", b.Transport)
	}
}

func headers(cfg *config.Config) http.Header {
	h := http.Header{}
	for k, v := range cfg.Backend.Headers {
		h.Set(k, v)
	}
	if cfg.Backend.APIKey != "" && h.Get("Authorization") == "" {
		h.Set("Authorization", "Bearer "+cfg.Backend.APIKey)
	}
	return h
}
