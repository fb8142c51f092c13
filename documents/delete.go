package documents

import (
	"context"
	"net/http"

	"github.com/jrsteele09/firestore-auth/internal/rest"
	"github.com/jrsteele09/firestore-auth/sessions"
)

// Delete removes the document at documentPath, for example "users/42". With
// failIfNotExisting a missing document is an *APIError (404) whose Context is
// documentPath; otherwise deleting a missing document succeeds.
func Delete(ctx context.Context, c *Client, auth sessions.Bearer, documentPath string, failIfNotExisting bool) error {
	target := c.collectionURL(auth.ProjectID(), documentPath)
	if failIfNotExisting {
		target += "?currentDocument.exists=true"
	}

	return c.do(ctx, auth, rest.Request{
		Method:  http.MethodDelete,
		URL:     target,
		Context: documentPath,
	}, nil)
}
