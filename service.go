package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/neovim/go-client/nvim"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"codeassist/editor"
	"codeassist/editor/nvimhost"
	"codeassist/fixup"
	"codeassist/logger"
	"codeassist/retrieval"
	"codeassist/retrieval/embeddings"
	"codeassist/retrieval/graph"
	"codeassist/retrieval/jaccard"
	"codeassist/retrieval/remote"
	"codeassist/utils"
)

// service wires one editor connection: an nvim host, the fixup controller,
// and a retrieval strategy over that host.
type service struct {
	config Config

	host       *nvimhost.Host
	controller *fixup.Controller
	mixer      *retrieval.Mixer
	strategies *retrieval.StrategyFactory
	jaccard    *jaccard.Retriever

	cancel context.CancelFunc
}

func newService(config Config, gen fixup.Generator, weaviateClient *weaviate.Client, n *nvim.Nvim) (*service, error) {
	host := nvimhost.New(n, nvimhost.Config{})

	jac := jaccard.New()
	additional := []retrieval.Retriever{
		graph.New(host, nil, graph.Config{}),
	}
	if config.RemoteURL != "" {
		additional = append(additional, remote.New(remote.Config{
			URL:    config.RemoteURL,
			APIKey: config.RemoteAPIKey,
		}))
	}
	if weaviateClient != nil {
		additional = append(additional, embeddings.New(weaviateClient, embeddings.Config{
			Workspace: config.Workspace,
		}))
	}

	s := &service{
		config:  config,
		host:    host,
		jaccard: jac,
		mixer: retrieval.NewMixer(retrieval.MixerConfig{
			MaxChars: utils.EstimateCharsFromTokens(config.MaxContextTokens),
		}),
		strategies: retrieval.NewStrategyFactory(
			retrieval.StrategyConfig{Name: config.Strategy}, jac, additional...),
		controller: fixup.NewController(host, gen, fixup.ControllerConfig{
			MaxRespins:   config.MaxRespins,
			IdleInterval: time.Duration(config.IdleInterval) * time.Millisecond,
		}),
	}
	if err := s.register(n); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *service) start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	if err := s.host.Start(); err != nil {
		return err
	}
	s.controller.Start(ctx)
	return nil
}

func (s *service) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.controller.Stop()
	s.strategies.Dispose()
	s.host.Close()
}

func (s *service) register(n *nvim.Nvim) error {
	handlers := map[string]any{
		"codeassist_fixup":        s.handleFixup,
		"codeassist_fixup_action": s.handleFixupAction,
		"codeassist_tasks":        s.handleTasks,
		"codeassist_context":      s.handleContext,
	}
	for method, fn := range handlers {
		if err := n.RegisterHandler(method, fn); err != nil {
			return fmt.Errorf("register %s: %w", method, err)
		}
	}
	return nil
}

// handleFixup starts a task over a line selection and returns its ID.
func (s *service) handleFixup(path, instruction string, startLine, endLine int, insertMode bool, source string) (string, error) {
	sel := editor.Range{
		Start: editor.Position{Line: startLine},
		End:   editor.Position{Line: endLine},
	}
	snap, err := s.controller.CreateTask(path, instruction, sel, insertMode, source)
	if err != nil {
		return "", err
	}
	return snap.ID, nil
}

func (s *service) handleFixupAction(action, id string) error {
	switch action {
	case "accept":
		return s.controller.Accept(id)
	case "undo":
		return s.controller.Undo(id)
	case "cancel":
		return s.controller.Cancel(id)
	case "retry":
		return s.controller.Retry(id)
	default:
		return fmt.Errorf("unknown fixup action %q", action)
	}
}

func (s *service) handleTasks() (string, error) {
	data, err := json.Marshal(s.controller.Tasks())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// handleContext gathers mixed retrieval context around the cursor. Row is
// 1-indexed, col 0-indexed, matching nvim cursor coordinates.
func (s *service) handleContext(path string, row, col int) (string, error) {
	defer logger.Trace("service.handleContext")()

	doc, err := s.host.Document(path)
	if err != nil {
		return "", err
	}
	lines := doc.Lines()
	s.jaccard.Observe(path, lines)

	maxChars := utils.EstimateCharsFromTokens(s.config.MaxContextTokens)
	prefix, suffix := utils.PrefixSuffix(lines, row-1, col, maxChars)

	opts := retrieval.Options{
		FilePath:   path,
		Position:   editor.Position{Line: row - 1, Character: col},
		Prefix:     prefix,
		Suffix:     suffix,
		Query:      strings.Join(utils.LastLines(prefix, 20), "\n"),
		LanguageID: doc.LanguageID(),
		MaxChars:   maxChars,
		MaxMs:      time.Duration(s.config.RetrieveTimeout) * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*opts.Timeout())
	defer cancel()

	mixed := s.mixer.Mix(ctx, s.strategies.For(opts.LanguageID), opts)
	data, err := json.Marshal(mixed)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
