package gate

import (
	"context"
	"fmt"
	"time"

	celgo "github.com/google/cel-go/cel"

	"weld/internal/config"
	"weld/internal/constants"
	"weld/internal/logger"
	"weld/pkg/cel"
	"weld/pkg/metrics"
	"weld/pkg/models"
	"weld/pkg/tracing"
)

type rule struct {
	name       string
	expression string
	program    celgo.Program
}

// Gate decides whether a notification is admitted into dispatch. Rules
// come from configuration and are compiled once at startup; an empty rule
// set admits everything.
type Gate struct {
	rules     []rule
	fallback  string
	evaluator *cel.Evaluator
	logger    logger.Logger
}

func New(cfg config.GateConfig, log logger.Logger) (*Gate, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	rules := make([]rule, 0, len(cfg.Expressions))
	for i, expr := range cfg.Expressions {
		program, err := evaluator.CompileFilter(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile gate rule %d: %w", i, err)
		}
		rules = append(rules, rule{
			name:       fmt.Sprintf("rule-%d", i),
			expression: expr,
			program:    program,
		})
	}

	fallback := cfg.Fallback.OnError
	if fallback == "" {
		fallback = constants.FallbackDeny
	}

	return &Gate{
		rules:     rules,
		fallback:  fallback,
		evaluator: evaluator,
		logger:    log,
	}, nil
}

// Admit evaluates every rule against the notification. All rules must
// pass. Evaluation errors fall back to the configured strategy.
func (g *Gate) Admit(ctx context.Context, msg models.Notification) (bool, []string, error) {
	ctx, span := tracing.GetTracer("gate").Start(ctx, "gate.admit")
	defer span.End()

	passed := make([]string, 0, len(g.rules))

	for _, r := range g.rules {
		if err := ctx.Err(); err != nil {
			return false, nil, err
		}

		ok, err := g.evaluator.EvaluateProgram(ctx, r.program, msg)
		if err != nil {
			g.logger.ErrorwCtx(ctx, "Gate rule evaluation error",
				"rule", r.name,
				"expression", r.expression,
				"error", err,
			)
			metrics.GateEvaluationsTotal.WithLabelValues("error").Inc()

			if g.fallback == constants.FallbackAllow {
				metrics.FallbackUsageTotal.WithLabelValues("gate", "allow_on_error", "evaluation_error").Inc()
				g.logger.WarnwCtx(ctx, "Evaluation error, admitting notification (fallback: allow)",
					"rule", r.name,
				)
				continue
			}

			metrics.FallbackUsageTotal.WithLabelValues("gate", "deny_on_error", "evaluation_error").Inc()
			return false, passed, nil
		}

		if !ok {
			g.logger.DebugwCtx(ctx, "Gate rule rejected notification",
				"rule", r.name,
			)
			metrics.GateEvaluationsTotal.WithLabelValues("rejected").Inc()
			return false, passed, nil
		}

		metrics.GateEvaluationsTotal.WithLabelValues("passed").Inc()
		passed = append(passed, r.name)
	}

	return true, passed, nil
}

// Stamp records the gate outcome on the notification metadata.
func Stamp(msg *models.Notification, rules []string) {
	msg.Metadata.Gate = &models.GateInfo{
		PassedAt: time.Now(),
		Rules:    rules,
	}
}
