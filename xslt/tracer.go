package xslt

import (
	"log/slog"
)

// Tracer is notified around the execution of every XSLT instruction.
type Tracer interface {
	Enter(*Context)
	Leave(*Context)
	Error(*Context, error)
}

func NoopTracer() Tracer {
	return discardTracer{}
}

type discardTracer struct{}

func (_ discardTracer) Enter(_ *Context) {}

func (_ discardTracer) Leave(_ *Context) {}

func (_ discardTracer) Error(_ *Context, _ error) {}

type logTracer struct {
	logger *slog.Logger
}

// LogTracer reports instructions at debug level and failures at error
// level on logger.
func LogTracer(logger *slog.Logger) Tracer {
	return logTracer{
		logger: logger,
	}
}

func (t logTracer) Enter(ctx *Context) {
	t.logger.Debug("start instruction", traceArgs(ctx)...)
}

func (t logTracer) Leave(ctx *Context) {
	t.logger.Debug("done instruction", traceArgs(ctx)...)
}

func (t logTracer) Error(ctx *Context, err error) {
	args := append(traceArgs(ctx), "err", err.Error())
	t.logger.Error("error while processing instruction", args...)
}

func traceArgs(ctx *Context) []any {
	var node, instr string
	if ctx.ContextNode != nil {
		node = ctx.ContextNode.QualifiedName()
	}
	if ctx.XslNode != nil {
		instr = ctx.XslNode.QualifiedName()
	}
	return []any{
		"instruction", instr,
		"node", node,
		"mode", ctx.Mode,
		"depth", ctx.Depth,
	}
}
