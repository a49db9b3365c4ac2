package appwrite

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yusufsyaifudin/ylog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/multierr"
)

const redacted = "[REDACTED]"

// RoundTripper access-logs every outgoing call and propagates the trace context
// of the request into its headers. The API key header is never logged.
type RoundTripper struct {
	Base http.RoundTripper

	// Propagator defaults to the global otel propagator.
	Propagator propagation.TextMapPropagator

	// SkipBody disables request and response body logging.
	SkipBody bool
}

var _ http.RoundTripper = (*RoundTripper)(nil)

func (r *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	t0 := time.Now()

	var (
		ctx  = req.Context() // request context
		resp *http.Response  // final response
		err  error           // final error
	)

	base := r.Base
	if base == nil {
		base = http.DefaultTransport
	}

	propagator := r.Propagator
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}

	// RoundTrip must not modify the caller's request
	req = req.Clone(ctx)
	propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	var (
		reqBody    []byte
		reqBodyErr error
	)
	if req.Body != nil {
		reqBody, reqBodyErr = io.ReadAll(req.Body)
		if reqBodyErr != nil {
			err = multierr.Append(err, fmt.Errorf("error read request body: %w", reqBodyErr))
			reqBody = []byte("")
		}

		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	resp, rtErr := base.RoundTrip(req)
	if rtErr != nil {
		err = multierr.Append(err, fmt.Errorf("error doing actual request: %w", rtErr))
	}

	logResp := resp
	if logResp == nil {
		logResp = &http.Response{}
	}

	var (
		respBody    []byte
		respErrBody error
	)
	if logResp.Body != nil {
		respBody, respErrBody = io.ReadAll(logResp.Body)
		if respErrBody != nil {
			err = multierr.Append(err, fmt.Errorf("error read response body: %w", respErrBody))
			respBody = []byte{}
		}

		logResp.Body = io.NopCloser(bytes.NewBuffer(respBody))
	}

	errStr := ""
	if err != nil {
		errStr = err.Error()
	}

	reqData := ylog.HTTPData{Header: toSimpleMap(req.Header)}
	respData := ylog.HTTPData{Header: toSimpleMap(logResp.Header)}
	if !r.SkipBody {
		reqData.DataString = string(reqBody)
		respData.DataString = string(respBody)
	}

	// log outgoing request
	ylog.Access(ctx, ylog.AccessLogData{
		Path:        req.Method + " " + req.URL.String(),
		Request:     reqData,
		Response:    respData,
		Error:       errStr,
		ElapsedTime: time.Since(t0).Milliseconds(),
	})

	if rtErr != nil {
		return nil, err
	}

	return resp, err
}

func toSimpleMap(h http.Header) map[string]string {
	out := map[string]string{}
	for k, v := range h {
		if strings.EqualFold(k, headerKey) {
			out[k] = redacted
			continue
		}

		out[k] = strings.Join(v, " ")
	}

	return out
}
