// Package engine implements the workflow DAG engine: validation,
// scheduling, parameter resolution, and sequential node execution.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"mcpflow/backend/internal/capability"
	"mcpflow/backend/pkg/models"
)

var (
	tracer = otel.Tracer("mcpflow.engine")
	meter  = otel.Meter("mcpflow.engine")
)

// Logger defines the logging interface compatible with the application
// logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// LedgerSink receives ledger entries as each node finishes, so an observer
// can poll a run's record mid-flight. The execution repository satisfies
// this interface.
type LedgerSink interface {
	AppendNodeLog(ctx context.Context, executionID string, entry models.NodeExecutionLog) error
}

// Engine executes workflow definitions. It holds explicit references to the
// tool-invocation and text-generation capabilities; there is no global
// registry and no hidden initialization order.
//
// Nodes run strictly sequentially in scheduler order. Independent nodes are
// never fanned out; determinism is worth more here than latency.
type Engine struct {
	tools  capability.ToolCaller
	llm    capability.TextGenerator
	logger Logger

	metricsOnce  sync.Once
	nodeLatency  metric.Float64Histogram
	nodeFailures metric.Int64Counter
	runLatency   metric.Float64Histogram
}

// New creates an Engine with its capabilities injected.
func New(tools capability.ToolCaller, llm capability.TextGenerator, logger Logger) *Engine {
	return &Engine{tools: tools, llm: llm, logger: logger}
}

// initMetrics lazily creates instruments. Failures degrade observability,
// never execution.
func (e *Engine) initMetrics() {
	e.metricsOnce.Do(func() {
		var err error
		e.nodeLatency, err = meter.Float64Histogram("workflow_node_duration_seconds",
			metric.WithDescription("Time spent executing each workflow node"),
			metric.WithUnit("s"),
		)
		if err != nil {
			e.logger.Error("failed to create node latency metric", "error", err)
		}
		e.nodeFailures, err = meter.Int64Counter("workflow_node_failure_total",
			metric.WithDescription("Number of failed node executions"),
		)
		if err != nil {
			e.logger.Error("failed to create node failure metric", "error", err)
		}
		e.runLatency, err = meter.Float64Histogram("workflow_run_duration_seconds",
			metric.WithDescription("Total workflow run time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			e.logger.Error("failed to create run latency metric", "error", err)
		}
	})
}

// Run executes the definition and fills in the record: ledger entries in
// execution order, terminal status, timestamps, and the final result. The
// first node failure aborts the run; completed nodes keep their logged
// output and the record is annotated with the failing node and message.
//
// Cancellation is honored at node boundaries only; the outbound tool and
// completion calls are not assumed cancelable mid-flight.
func (e *Engine) Run(ctx context.Context, def *models.WorkflowDefinition, rec *models.ExecutionRecord, sink LedgerSink) error {
	e.initMetrics()

	ctx, span := tracer.Start(ctx, "workflow.Run",
		trace.WithAttributes(
			attribute.String("workflow.id", def.ID),
			attribute.String("execution.id", rec.ID),
			attribute.Int("workflow.node_count", len(def.Nodes)),
		),
	)
	defer span.End()

	start := time.Now()

	order, err := Schedule(def.Nodes)
	if err != nil {
		// Fatal before any node executes; never a partial run.
		e.failRun(rec, "", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	e.logger.Info("run started",
		"workflow_id", def.ID,
		"execution_id", rec.ID,
		"nodes", len(order),
	)

	outputs := make(map[string]any, len(order))
	for _, id := range order {
		select {
		case <-ctx.Done():
			e.failRun(rec, "", ctx.Err())
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, "context canceled")
			return ctx.Err()
		default:
		}

		node := def.Node(id)
		entry := models.NodeExecutionLog{
			NodeID:    id,
			Status:    models.NodeStatusRunning,
			StartedAt: time.Now(),
		}

		inputs, err := resolveInputs(node, outputs)
		if err == nil {
			var output any
			output, err = e.executeNode(ctx, node, inputs)
			if err == nil {
				entry.Output = output
				outputs[id] = output
			}
		}

		done := time.Now()
		entry.CompletedAt = &done

		if err != nil {
			entry.Status = models.NodeStatusFailed
			entry.Error = err.Error()
			rec.Logs = append(rec.Logs, entry)
			e.flush(ctx, rec.ID, entry, sink)
			e.failRun(rec, id, err)

			if e.nodeFailures != nil {
				e.nodeFailures.Add(ctx, 1, metric.WithAttributes(
					attribute.String("node_type", string(node.Type)),
				))
			}
			nodeErr := &NodeExecutionError{NodeID: id, Err: err}
			span.RecordError(nodeErr)
			span.SetStatus(codes.Error, nodeErr.Error())
			e.logger.Error("run failed",
				"workflow_id", def.ID,
				"execution_id", rec.ID,
				"node_id", id,
				"error", err,
			)
			return nodeErr
		}

		entry.Status = models.NodeStatusCompleted
		rec.Logs = append(rec.Logs, entry)
		e.flush(ctx, rec.ID, entry, sink)
	}

	rec.Result = outputs[order[len(order)-1]]
	rec.Status = models.ExecutionStatusCompleted
	now := time.Now()
	rec.CompletedAt = &now

	duration := time.Since(start)
	if e.runLatency != nil {
		e.runLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.String("workflow.id", def.ID),
		))
	}
	span.SetStatus(codes.Ok, "")
	e.logger.Info("run completed",
		"workflow_id", def.ID,
		"execution_id", rec.ID,
		"duration", duration,
	)
	return nil
}

// executeNode dispatches a node to its type-specific handler under a child
// span.
func (e *Engine) executeNode(ctx context.Context, node *models.Node, inputs []any) (any, error) {
	ctx, span := tracer.Start(ctx, "workflow.node",
		trace.WithAttributes(
			attribute.String("node.id", node.ID),
			attribute.String("node.type", string(node.Type)),
			attribute.StringSlice("node.inputs", node.Inputs),
		),
	)
	defer span.End()

	start := time.Now()
	output, err := e.dispatch(ctx, node, inputs)

	if e.nodeLatency != nil {
		e.nodeLatency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("node_type", string(node.Type)),
		))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return output, nil
}

func (e *Engine) dispatch(ctx context.Context, node *models.Node, inputs []any) (any, error) {
	switch cfg := node.Config.(type) {
	case models.FetchConfig:
		return e.execFetch(ctx, cfg, inputs)
	case models.TransformConfig:
		return e.execTransform(ctx, cfg, inputs)
	case models.FilterConfig:
		return execFilter(cfg, inputs)
	case models.MergeConfig:
		return execMerge(cfg, inputs)
	case models.ActionConfig:
		return e.execAction(cfg, inputs)
	case models.ConditionalConfig:
		return execConditional(cfg, inputs)
	case nil:
		return nil, fmt.Errorf("node has no configuration")
	default:
		return nil, fmt.Errorf("unhandled node config type %T", cfg)
	}
}

// resolveInputs selects prior outputs in the node's declared input order.
// A missing output for a declared input should be unreachable given a
// correct scheduler; it is treated as a fatal internal-consistency error.
func resolveInputs(node *models.Node, outputs map[string]any) ([]any, error) {
	inputs := make([]any, 0, len(node.Inputs))
	for _, id := range node.Inputs {
		output, ok := outputs[id]
		if !ok {
			return nil, fmt.Errorf("internal: no recorded output for declared input %q", id)
		}
		inputs = append(inputs, output)
	}
	return inputs, nil
}

func (e *Engine) failRun(rec *models.ExecutionRecord, nodeID string, err error) {
	rec.Status = models.ExecutionStatusFailed
	rec.FailedNodeID = nodeID
	rec.Error = err.Error()
	now := time.Now()
	rec.CompletedAt = &now
}

// flush writes a ledger entry through the sink. A flush failure degrades
// mid-run observability but does not fail the run; the terminal flush is
// the service layer's responsibility.
func (e *Engine) flush(ctx context.Context, executionID string, entry models.NodeExecutionLog, sink LedgerSink) {
	if sink == nil {
		return
	}
	if err := sink.AppendNodeLog(ctx, executionID, entry); err != nil {
		e.logger.Error("failed to flush ledger entry",
			"execution_id", executionID,
			"node_id", entry.NodeID,
			"error", err,
		)
	}
}
