package documents

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jrsteele09/firestore-auth/dto"
	"github.com/jrsteele09/firestore-auth/internal/rest"
	"github.com/jrsteele09/firestore-auth/sessions"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
)

type listSettings struct {
	pageSize int
}

type ListOption func(*listSettings)

// WithPageSize sets how many documents each page request asks for. Zero lets
// the server decide.
func WithPageSize(n int) ListOption {
	return func(s *listSettings) {
		s.pageSize = n
	}
}

// List walks all documents of a collection, fetching pages lazily. It is a
// point in time walk that cannot be restarted; create a new List to start
// over. A List is not safe for concurrent use.
type List[T any] struct {
	client     *Client
	auth       sessions.Bearer
	collection string
	pageSize   int

	pageToken string
	exhausted bool
	buffer    []dto.Document
}

func NewList[T any](c *Client, auth sessions.Bearer, collection string, options ...ListOption) *List[T] {
	s := listSettings{}
	for _, opt := range options {
		opt(&s)
	}
	return &List[T]{
		client:     c,
		auth:       auth,
		collection: collection,
		pageSize:   s.pageSize,
	}
}

// Next returns the next document decoded into T together with the raw
// document. It returns iterator.Done once every document was returned, and
// keeps doing so on later calls.
//
// A failed page request leaves the list unchanged, so calling Next again
// retries it. A document that cannot be decoded into T fails only that call.
func (l *List[T]) Next(ctx context.Context) (T, dto.Document, error) {
	var zero T

	for len(l.buffer) == 0 {
		if l.exhausted {
			return zero, dto.Document{}, iterator.Done
		}

		page, err := l.fetch(ctx)
		if err != nil {
			return zero, dto.Document{}, err
		}

		l.buffer = page.Documents
		l.pageToken = page.NextPageToken
		l.exhausted = page.NextPageToken == ""
	}

	doc := l.buffer[0]
	l.buffer = l.buffer[1:]

	var v T
	if err := DocumentToPOD(doc, &v); err != nil {
		return zero, doc, err
	}
	return v, doc, nil
}

func (l *List[T]) fetch(ctx context.Context) (*dto.ListDocumentsResponse, error) {
	q := url.Values{}
	if l.pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(l.pageSize))
	}
	if l.pageToken != "" {
		q.Set("pageToken", l.pageToken)
	}

	target := l.client.collectionURL(l.auth.ProjectID(), l.collection)
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var page dto.ListDocumentsResponse
	err := l.client.do(ctx, l.auth, rest.Request{
		Method:  http.MethodGet,
		URL:     target,
		Context: l.collection,
	}, &page)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("collection", l.collection).Int("documents", len(page.Documents)).Bool("last", page.NextPageToken == "").Msg("Fetched document page")
	return &page, nil
}
