package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"weld/pkg/models"
)

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("timestamp", cel.TimestampType),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

func (e *Evaluator) CompileFilter(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

func (e *Evaluator) EvaluateFilter(ctx context.Context, expression string, msg models.Notification) (bool, error) {
	program, err := e.CompileFilter(expression)
	if err != nil {
		return false, err
	}

	return e.EvaluateProgram(ctx, program, msg)
}

func (e *Evaluator) EvaluateProgram(ctx context.Context, program cel.Program, msg models.Notification) (bool, error) {
	vars := map[string]interface{}{
		"id":        msg.ID,
		"source":    msg.Source,
		"timestamp": msg.Timestamp,
		"payload":   msg.Payload,
		"metadata":  e.metadataToMap(msg.Metadata),
	}

	result, _, err := program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func (e *Evaluator) metadataToMap(metadata models.Metadata) map[string]interface{} {
	result := make(map[string]interface{})

	if metadata.TraceID != "" {
		result["trace_id"] = metadata.TraceID
	}

	if metadata.Gate != nil {
		result["gate"] = map[string]interface{}{
			"passed_at": metadata.Gate.PassedAt,
			"rules":     metadata.Gate.Rules,
		}
	}

	if metadata.Dispatch != nil {
		result["dispatch"] = map[string]interface{}{
			"batch_id":    metadata.Dispatch.BatchID,
			"item_name":   metadata.Dispatch.ItemName,
			"valid":       metadata.Dispatch.Valid,
			"received_at": metadata.Dispatch.ReceivedAt,
		}
	}

	if metadata.Extra != nil {
		result["extra"] = metadata.Extra
	}

	return result
}
