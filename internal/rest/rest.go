package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	fberrors "github.com/jrsteele09/firestore-auth/errors"
	"github.com/rs/zerolog/log"
)

// Request describes one round-trip to a Google REST endpoint. At most one of
// JSON and Form is set.
type Request struct {
	Method  string
	URL     string
	Bearer  string
	JSON    interface{}
	Form    url.Values
	Context string
}

// Do sends req and decodes a 2xx JSON reply into out (when out is non-nil).
// Transport failures match ErrNetwork, non-2xx replies are *APIError and
// undecodable replies match ErrDeserialize.
func Do(ctx context.Context, client *http.Client, req Request, out interface{}) error {
	var body io.Reader
	contentType := ""
	switch {
	case req.JSON != nil:
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return fberrors.Wrapf(err, "failed to encode request body")
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return fberrors.Wrapf(err, "failed to build request")
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Bearer)
	}

	log.Debug().Str("method", req.Method).Str("url", redact(req.URL)).Msg("Google API request")

	res, err := client.Do(httpReq)
	if err != nil {
		return fberrors.Network(err, req.Context)
	}
	defer res.Body.Close()

	if err := fberrors.CheckResponse(res, req.Context); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fberrors.Network(err, req.Context)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %w", fberrors.ErrDeserialize, req.Context, err)
	}
	return nil
}

// WithKey appends the web API key query parameter
func WithKey(endpoint, apiKey string) string {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + "key=" + url.QueryEscape(apiKey)
}

// redact drops the query string so API keys stay out of the logs
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
