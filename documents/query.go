package documents

import (
	"context"
	"net/http"

	"github.com/jrsteele09/firestore-auth/dto"
	"github.com/jrsteele09/firestore-auth/internal/rest"
	"github.com/jrsteele09/firestore-auth/sessions"
)

// Query runs a single field filter against collectionID and returns the
// matching documents. Use Decode to turn them into values.
func Query(ctx context.Context, c *Client, auth sessions.Bearer, collectionID string, value interface{}, op dto.FieldOperator, field string) ([]dto.Document, error) {
	req := dto.RunQueryRequest{
		StructuredQuery: dto.StructuredQuery{
			From: []dto.CollectionSelector{{CollectionID: collectionID}},
			Where: &dto.Filter{
				FieldFilter: &dto.FieldFilter{
					Field: dto.FieldReference{FieldPath: field},
					Op:    op,
					Value: InterfaceToValue(value),
				},
			},
		},
	}

	var resp []dto.RunQueryResponse
	err := c.do(ctx, auth, rest.Request{
		Method:  http.MethodPost,
		URL:     c.baseURL + "/" + DocumentsRoot(auth.ProjectID()) + ":runQuery",
		JSON:    req,
		Context: collectionID,
	}, &resp)
	if err != nil {
		return nil, err
	}

	docs := make([]dto.Document, 0, len(resp))
	for _, r := range resp {
		if r.Document != nil {
			docs = append(docs, *r.Document)
		}
	}
	return docs, nil
}
