package documents

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/firestore-auth/internal/config"
	"github.com/jrsteele09/firestore-auth/internal/rest"
	"github.com/jrsteele09/firestore-auth/sessions"
)

const defaultDatabase = "(default)"

// Client addresses the Firestore REST API. The project and the token come
// from the session passed to each call, so one Client serves any number of
// sessions.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBaseURL points the client at an emulator or a test server
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

func NewClient(options ...ClientOption) *Client {
	cfg := config.New()
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.GetHTTPTimeout()},
		baseURL:    strings.TrimRight(cfg.GetFirestoreURL(), "/"),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// DocumentsRoot is the resource name all documents of a project live under
func DocumentsRoot(projectID string) string {
	return fmt.Sprintf("projects/%s/databases/%s/documents", projectID, defaultDatabase)
}

// DocumentName is the absolute resource name of the document id in the
// collection at path.
func DocumentName(projectID, path, id string) string {
	return DocumentsRoot(projectID) + "/" + strings.Trim(path, "/") + "/" + id
}

// AbsToRel turns an absolute document name into a path relative to the
// documents root, for example "projects/p/databases/(default)/documents/users/1"
// becomes "users/1". Names that are already relative are returned as is.
func AbsToRel(name string) string {
	const marker = "/documents/"
	if !strings.HasPrefix(name, "projects/") {
		return name
	}
	if i := strings.Index(name, marker); i >= 0 {
		return name[i+len(marker):]
	}
	return name
}

func (c *Client) nameURL(name string) string {
	return c.baseURL + "/" + name
}

func (c *Client) collectionURL(projectID, path string) string {
	return c.baseURL + "/" + DocumentsRoot(projectID) + "/" + strings.Trim(path, "/")
}

// do fetches the session's token first, so token failures surface as the
// session's error rather than as a transport error.
func (c *Client) do(ctx context.Context, auth sessions.Bearer, req rest.Request, out interface{}) error {
	token, err := auth.Bearer(ctx)
	if err != nil {
		return err
	}
	req.Bearer = token
	return rest.Do(ctx, c.httpClient, req, out)
}
