package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/gordon8018/ai-devops/pkg/engine"
)

// StarlarkClassifier lets operators override the builtin request
// classification with a Starlark script. The script sees a `request` dict
// (repo, title, objective, filesHint) and exports:
//
//	classified    bool, true to override the builtin heuristics
//	docs_only     bool
//	analysis_only bool
//
// A script that sets classified to False (or not at all) defers to the
// builtin classification.
type StarlarkClassifier struct {
	script    string
	evaluator *StarlarkEvaluator
	logger    zerolog.Logger
}

// NewStarlarkClassifier loads the classifier script from path.
func NewStarlarkClassifier(path string, timeout time.Duration, logger zerolog.Logger) (*StarlarkClassifier, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read classifier script: %w", err)
	}
	return &StarlarkClassifier{
		script:    string(script),
		evaluator: NewStarlarkEvaluator(timeout),
		logger:    logger.With().Str("component", "classifier").Logger(),
	}, nil
}

var _ engine.Classifier = (*StarlarkClassifier)(nil)

// Classify runs the script against the request. Script failures are
// reported but never block planning; the caller falls back to the builtin
// heuristics.
func (sc *StarlarkClassifier) Classify(ctx context.Context, req *engine.TaskRequest) (engine.Classification, bool, error) {
	input := map[string]interface{}{
		"request": map[string]interface{}{
			"repo":      req.Repo,
			"title":     req.Title,
			"objective": req.Objective,
			"filesHint": req.FilesHint,
		},
	}

	result, err := sc.evaluator.Evaluate(ctx, sc.script, input)
	if err != nil {
		sc.logger.Warn().Err(err).Msg("classifier script failed, using builtin classification")
		return engine.Classification{}, false, err
	}

	classified, _ := result.Output["classified"].(bool)
	if !classified {
		return engine.Classification{}, false, nil
	}

	c := engine.Classification{}
	c.DocsOnly, _ = result.Output["docs_only"].(bool)
	c.AnalysisOnly, _ = result.Output["analysis_only"].(bool)
	return c, true, nil
}
