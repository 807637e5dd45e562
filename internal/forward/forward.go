// Package forward implements the stateless proxy forwarders that relay
// browser requests to the wrapped third-party services. A forwarder
// authenticates the caller, resolves the service secret (probe header, stored
// credential, then configured fallback), rewrites the target URL, and relays
// the downstream status, headers and body. The secret never reaches the
// caller.
package forward

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/serpdesk/serpdesk/internal/apperr"
	"github.com/serpdesk/serpdesk/internal/auth"
	"github.com/serpdesk/serpdesk/internal/metrics"
	"github.com/serpdesk/serpdesk/internal/storage"
	"github.com/serpdesk/serpdesk/pkg/httpclient"
)

// KeyMode selects how the resolved secret is injected into the outbound call.
type KeyMode int

const (
	// KeyModeQuery appends the secret as a query parameter.
	KeyModeQuery KeyMode = iota
	// KeyModeBody merges the secret into the outbound JSON body.
	KeyModeBody
	// KeyModeHeader sends the secret in the Authorization header.
	KeyModeHeader
)

// Service describes one wrapped third-party API.
type Service struct {
	// Name is the credential-store service name, e.g. "scrapeproxy".
	Name string
	// BaseURL is the downstream host the sub-path is rewritten onto.
	BaseURL string
	// AllowedMethods is the method allow-list. Anything else is rejected
	// before any downstream call.
	AllowedMethods []string
	// KeyTestHeader names the key-under-test header for validation probes.
	// A key arriving there is used directly and never persisted.
	KeyTestHeader string
	// KeyMode and KeyField control secret injection. KeyField is the query
	// parameter or JSON field name; unused for KeyModeHeader.
	KeyMode  KeyMode
	KeyField string
	// FallbackKey is the process-wide secret from configuration, empty when
	// the service permits none.
	FallbackKey string
}

func (s Service) methodAllowed(method string) bool {
	for _, m := range s.AllowedMethods {
		if m == method {
			return true
		}
	}
	return false
}

// Forwarder relays requests for a single Service. It holds no per-request
// state; every invocation is independent.
type Forwarder struct {
	svc    Service
	store  storage.Store
	client *httpclient.Client
	logger *slog.Logger
}

// New builds a Forwarder for svc. store may be nil for services that only use
// probe headers and fallback keys.
func New(svc Service, store storage.Store, client *httpclient.Client, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = httpclient.New(httpclient.Config{})
	}
	return &Forwarder{svc: svc, store: store, client: client, logger: logger}
}

// ServeHTTP implements http.Handler. Mount under a prefix with
// http.StripPrefix so r.URL.Path carries only the downstream sub-path.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")

	if !f.svc.methodAllowed(r.Method) {
		f.writeError(w, apperr.ErrMethodNotAllowed)
		return
	}

	userID, ok := auth.UserID(r.Context())
	if !ok {
		f.writeError(w, apperr.ErrAuthMissing)
		return
	}

	key, err := f.resolveKey(r, userID)
	if err != nil {
		f.writeError(w, err)
		return
	}

	outReq, err := f.buildRequest(r, key)
	if err != nil {
		f.writeError(w, err)
		return
	}

	start := time.Now()
	resp, err := f.client.Do(r.Context(), outReq)
	if err != nil {
		metrics.DownstreamErrorsTotal.WithLabelValues(f.svc.Name, "transport").Inc()
		f.logger.Error("downstream call failed", "service", f.svc.Name, "err", err)
		f.writeError(w, &apperr.TransportError{Op: "call " + f.svc.Name, Err: err})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.DownstreamErrorsTotal.WithLabelValues(f.svc.Name, "transport").Inc()
		f.writeError(w, &apperr.TransportError{Op: "read " + f.svc.Name + " response", Err: err})
		return
	}

	metrics.RecordForward(f.svc.Name, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.DownstreamErrorsTotal.WithLabelValues(f.svc.Name, "status").Inc()
		f.relayError(w, resp.StatusCode, body)
		return
	}

	f.relaySuccess(w, resp, body)
}

// resolveKey applies the secret resolution order: probe header, stored
// credential, configured fallback.
func (f *Forwarder) resolveKey(r *http.Request, userID string) (string, error) {
	if f.svc.KeyTestHeader != "" {
		if probe := r.Header.Get(f.svc.KeyTestHeader); probe != "" {
			return probe, nil
		}
	}

	if f.store != nil {
		cred, err := f.store.GetCredential(r.Context(), userID, f.svc.Name)
		if err == nil {
			return cred.APIKey, nil
		}
		if !errors.Is(err, apperr.ErrCredentialNotFound) {
			return "", &apperr.TransportError{Op: "credential lookup", Err: err}
		}
	}

	if f.svc.FallbackKey != "" {
		return f.svc.FallbackKey, nil
	}

	return "", fmt.Errorf("%w for service %s", apperr.ErrCredentialNotFound, f.svc.Name)
}

func (f *Forwarder) buildRequest(r *http.Request, key string) (*http.Request, error) {
	target, err := url.Parse(f.svc.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	subPath := r.URL.Path
	if subPath != "" && !strings.HasPrefix(subPath, "/") {
		subPath = "/" + subPath
	}
	target.Path = strings.TrimSuffix(target.Path, "/") + subPath

	query := r.URL.Query()
	if f.svc.KeyMode == KeyModeQuery {
		query.Set(f.svc.KeyField, key)
	}
	target.RawQuery = query.Encode()

	var body io.Reader
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		inbound, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, &apperr.TransportError{Op: "read request body", Err: err}
		}

		if f.svc.KeyMode == KeyModeBody {
			merged := map[string]any{}
			if len(inbound) > 0 {
				if err := json.Unmarshal(inbound, &merged); err != nil {
					return nil, apperr.Validation("request body is not valid JSON")
				}
			}
			merged[f.svc.KeyField] = key
			encoded, err := json.Marshal(merged)
			if err != nil {
				return nil, fmt.Errorf("encode merged body: %w", err)
			}
			body = bytes.NewReader(encoded)
		} else if len(inbound) > 0 {
			body = bytes.NewReader(inbound)
		}
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build downstream request: %w", err)
	}

	outReq.Header.Set("Accept", "application/json")
	if ct := r.Header.Get("Content-Type"); ct != "" {
		outReq.Header.Set("Content-Type", ct)
	} else if body != nil {
		outReq.Header.Set("Content-Type", "application/json")
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		outReq.Header.Set("User-Agent", ua)
	}
	if f.svc.KeyMode == KeyModeHeader {
		outReq.Header.Set("Authorization", key)
	}

	return outReq, nil
}

// relayError forwards a downstream failure with its original status. The body
// is relayed as JSON when it parses, raw text otherwise.
func (f *Forwarder) relayError(w http.ResponseWriter, status int, body []byte) {
	var parsed json.RawMessage
	if json.Unmarshal(body, &parsed) == nil && len(bytes.TrimSpace(body)) > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// skipHeaders are never relayed: the body is already decoded and re-emitted,
// so the transport framing of the downstream response no longer applies.
var skipHeaders = map[string]struct{}{
	"Content-Encoding":  {},
	"Content-Length":    {},
	"Transfer-Encoding": {},
	"Connection":        {},
}

func (f *Forwarder) relaySuccess(w http.ResponseWriter, resp *http.Response, body []byte) {
	for name, values := range resp.Header {
		if _, skip := skipHeaders[http.CanonicalHeaderKey(name)]; skip {
			continue
		}
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

func (f *Forwarder) writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)

	var de *apperr.DownstreamError
	if errors.As(err, &de) {
		f.relayError(w, de.Status, de.Body)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  apperr.Code(err),
	})
}
