// Package llmclient is cmd/agentrund's concrete providerauth.RawProvider:
// the per-provider HTTP streaming client that internal/providerauth and
// internal/session both deliberately stop short of (their own doc comments
// say so — no chat-model framework is imported anywhere in this module
// tree). That boundary is about internal/session and internal/providerauth
// staying reusable without pulling in an LLM SDK; the binary still needs
// something real to run. HTTPProvider speaks the two wire shapes the
// built-in provider catalog actually declares (api_format = "anthropic" or
// "openai"; "google" is close enough to the OpenAI chat-completions shape
// for providers that front it with an OpenAI-compatible endpoint, so it
// reuses that path) well enough to stream a turn's assistant text.
//
// No SSE client library appears anywhere in the retrieved corpus (the one
// hit, gin-contrib/sse, is an HTTP framework's outbound helper, not a
// client), so parsing is hand-rolled over bufio.Scanner the same way the
// teacher's own internal/server/sse.go hand-rolls the server side.
package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/opencode-ai/agentrund/internal/effect"
	"github.com/opencode-ai/agentrund/internal/logging"
	"github.com/opencode-ai/agentrund/internal/providerauth"
	"github.com/opencode-ai/agentrund/internal/session"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// errStreamDone signals an early, successful stream stop (anthropic's
// message_stop event) to scanSSE's caller without being surfaced as a
// ProviderEvent error.
var errStreamDone = errors.New("llmclient: stream complete")

// HTTPProvider implements providerauth.RawProvider against a real provider
// catalog, so the api_format recorded for a provider decides how a request
// is shaped and how its stream is decoded.
type HTTPProvider struct {
	catalog providerauth.Catalog
	client  *http.Client
}

// New constructs an HTTPProvider. catalog is typically the same
// internal/config.Catalog the Resolver was built against.
func New(catalog providerauth.Catalog) *HTTPProvider {
	return &HTTPProvider{
		catalog: catalog,
		client:  &http.Client{Timeout: 0}, // streaming: caller's context bounds the call
	}
}

// Stream implements providerauth.RawProvider.
func (p *HTTPProvider) Stream(ctx context.Context, directive providerauth.AuthDirective, req effect.CallLlm) (<-chan session.ProviderEvent, error) {
	info, ok := p.catalog.Lookup(req.Model.ProviderID)
	if !ok {
		return nil, types.NewDomainError(types.ErrorProvider, fmt.Sprintf("unknown provider %q", req.Model.ProviderID), nil)
	}

	switch info.APIFormat {
	case "anthropic":
		return p.streamAnthropic(ctx, directive, req)
	default:
		// "openai" and "google" (fronted OpenAI-compatible) both speak the
		// chat-completions shape.
		return p.streamOpenAI(ctx, directive, req)
	}
}

func (p *HTTPProvider) do(ctx context.Context, directive providerauth.AuthDirective, path string, body any) (*http.Response, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewDomainError(types.ErrorInternal, "marshal provider request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(directive.BaseURL, "/")+path, bytes.NewReader(buf))
	if err != nil {
		return nil, types.NewDomainError(types.ErrorInternal, "build provider request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range directive.Headers {
		httpReq.Header.Set(k, v)
	}

	logging.Debug().Str("path", path).Str("authSource", directive.AuthSource).Msg("starting provider stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewDomainError(types.ErrorProvider, "provider request failed", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		respBody := readAndClose(resp)
		return nil, &providerauth.AuthHTTPError{Status: resp.StatusCode, Body: respBody, Err: fmt.Errorf("provider returned %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		respBody := readAndClose(resp)
		return nil, types.NewDomainError(types.ErrorProvider, fmt.Sprintf("provider returned %d: %s", resp.StatusCode, truncate(respBody, 500)), nil)
	}
	return resp, nil
}

func readAndClose(resp *http.Response) []byte {
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return buf.Bytes()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// scanSSE walks resp.Body's `data: ...` lines, handing each payload to
// onData until the stream ends or the provider's own terminator line
// arrives.
func scanSSE(resp *http.Response, terminator string, onData func(data string) error) error {
	defer resp.Body.Close()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if terminator != "" && data == terminator {
			return nil
		}
		if err := onData(data); err != nil {
			return err
		}
	}
	return scanner.Err()
}
