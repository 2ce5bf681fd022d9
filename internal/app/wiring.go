package service

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/aiclient"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/ledger"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/repository"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/config"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/analysis"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/catalog"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
)

//go:embed engines.default.yaml
var defaultEngines []byte

func (s *Service) buildBackends(ctx context.Context) error {
	if s.store == nil {
		switch s.cfg.StoreDriver {
		case config.StoreSQLite:
			st, err := repository.NewSQLiteStore(s.cfg.SQLitePath)
			if err != nil {
				return fmt.Errorf("opening sqlite store: %w", err)
			}
			s.store = st
		default:
			s.store = repository.NewMemoryStore(ctx)
		}
		s.ownsStore = true
	}

	if s.ledger == nil {
		switch s.cfg.LedgerDriver {
		case config.LedgerPostgres:
			l, err := ledger.OpenPostgres(ctx, s.cfg.PostgresDSN)
			if err != nil {
				return err
			}
			s.ledger = l
		case config.LedgerRedis:
			l, err := ledger.DialRedis(ctx, s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB)
			if err != nil {
				return err
			}
			s.ledger = l
		default:
			s.ledger = ledger.NewMemory()
		}
		s.ownsLedger = true
	}
	return nil
}

func (s *Service) buildPipeline(ctx context.Context) error {
	completer := s.completer
	if completer == nil {
		if s.cfg.AIEndpointURL == "" {
			s.logger.Warn(ctx, "no ai_endpoint_url configured; engines answer with offline estimates")
			completer = aiclient.Offline{}
		} else {
			c, err := aiclient.New(s.cfg.AIEndpointURL,
				aiclient.WithAPIKey(s.cfg.AIAPIKey),
				aiclient.WithModel(s.cfg.AIModel),
				aiclient.WithRateLimit(s.cfg.AIRateLimitRPS, s.cfg.AIRateBurst),
				aiclient.WithLogger(s.logger.Named("aiclient")))
			if err != nil {
				return err
			}
			completer = c
		}
	}

	cat, err := loadCatalog(s.cfg.EnginesFile, completer, s.cfg.AIModel, s.logger.Named("catalog"))
	if err != nil {
		return err
	}
	s.catalog = cat

	retry := pipeline.DefaultRetryPolicy()
	retry.MaxRetries = s.cfg.ExecutionMaxRetries
	retry.BaseDelay = s.cfg.RetryBaseDelay()

	orch, err := pipeline.New(cat, s.ledger, s.store,
		pipeline.WithLogger(s.logger.Named("pipeline")),
		pipeline.WithRetryPolicy(retry),
		pipeline.WithExecutionTimeout(s.cfg.ExecutionTimeout()),
		pipeline.WithLanguage(s.cfg.AnalysisLanguage),
		pipeline.WithDepth(s.cfg.AnalysisDepth),
	)
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}
	s.orchestrator = orch
	return nil
}

// loadCatalog registers every engine of path, or the embedded defaults when
// path is empty, as prompt engines over completer.
func loadCatalog(path string, completer analysis.Completer, modelName string, log logger.Logger) (*catalog.Catalog, error) {
	src := defaultEngines
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading engines file: %w", err)
		}
		src = b
	}
	defs, err := catalog.LoadDescriptors(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}

	cat := catalog.New(catalog.WithLogger(log))
	for _, es := range defs {
		prompts, err := analysis.NewPrompts(es.Prompt.System, es.Prompt.User)
		if err != nil {
			return nil, fmt.Errorf("engine %s: %w", es.ID, err)
		}
		exec, err := analysis.NewPromptEngine(es.EngineDescriptor, completer,
			analysis.WithPrompts(prompts), analysis.WithModel(modelName))
		if err != nil {
			return nil, fmt.Errorf("engine %s: %w", es.ID, err)
		}
		if err := cat.Register(es.EngineDescriptor, exec); err != nil {
			return nil, err
		}
	}
	return cat, nil
}
