package restyutil

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// InstrumentOutput receives rendered http exchanges keyed by a per-client
// message id.
type InstrumentOutput interface {
	Write(id string, contents string)
}

type dumpCtx struct {
	output    InstrumentOutput
	idcounter *uint64
}

type messageIdKey struct{}

// DumpClient writes every request/response pair the client sends to
// `output` when debug logging is enabled. `output` can be nil, in which
// case the function is a no-op. Tracing spans are a separate concern,
// see telemetry.InstrumentResty.
func DumpClient(client *resty.Client, output InstrumentOutput) {
	if output == nil {
		return
	}

	var idcounter uint64
	d := dumpCtx{output: output, idcounter: &idcounter}
	client.OnBeforeRequest(d.onBeforeRequest)
	client.OnAfterResponse(d.onAfterResponse)
	client.OnError(d.onError)
}

func (d dumpCtx) onBeforeRequest(cli *resty.Client, req *resty.Request) error {
	ctx := req.Context()
	if !slog.Default().Enabled(ctx, slog.LevelDebug) {
		return nil
	}

	messageId := strconv.FormatUint(atomic.AddUint64(d.idcounter, 1), 10)
	slog.DebugContext(
		ctx, "start request",
		"method", req.Method,
		"url", req.URL,
		"message_id", messageId,
	)
	req.SetContext(context.WithValue(ctx, messageIdKey{}, messageId))
	return nil
}

func (d dumpCtx) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	ctx := res.Request.Context()
	messageId, ok := ctx.Value(messageIdKey{}).(string)
	if !ok {
		return nil
	}

	d.output.Write(messageId, formatHttpMessage(res))
	slog.DebugContext(
		ctx, "request succeeded",
		"method", res.Request.Method,
		"url", res.Request.URL,
		"message_id", messageId,
	)
	return nil
}

func (d dumpCtx) onError(req *resty.Request, err error) {
	ctx := req.Context()
	messageId, _ := ctx.Value(messageIdKey{}).(string)
	slog.ErrorContext(
		ctx, "request failed",
		"method", req.Method,
		"url", req.URL,
		"err", err,
		"message_id", messageId,
	)
}
