package documents

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/firestore-auth/dto"
	"github.com/jrsteele09/firestore-auth/internal/rest"
	"github.com/jrsteele09/firestore-auth/sessions"
)

// Read fetches the document id of the collection at path and decodes it into T
func Read[T any](ctx context.Context, c *Client, auth sessions.Bearer, path, id string) (*T, error) {
	return ReadByName[T](ctx, c, auth, DocumentName(auth.ProjectID(), path, id))
}

// ReadByName fetches a document by its absolute resource name
func ReadByName[T any](ctx context.Context, c *Client, auth sessions.Bearer, name string) (*T, error) {
	doc, err := c.Get(ctx, auth, name)
	if err != nil {
		return nil, err
	}
	return Decode[T](*doc)
}

// Get fetches a document without decoding its fields
func (c *Client) Get(ctx context.Context, auth sessions.Bearer, name string) (*dto.Document, error) {
	var doc dto.Document
	err := c.do(ctx, auth, rest.Request{
		Method:  http.MethodGet,
		URL:     c.nameURL(name),
		Context: name,
	}, &doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Contents returns the document exactly as the REST API sent it
func Contents(ctx context.Context, c *Client, auth sessions.Bearer, path, id string) (string, error) {
	name := DocumentName(auth.ProjectID(), path, id)

	var raw json.RawMessage
	err := c.do(ctx, auth, rest.Request{
		Method:  http.MethodGet,
		URL:     c.nameURL(name),
		Context: name,
	}, &raw)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
