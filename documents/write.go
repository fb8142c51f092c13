package documents

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jrsteele09/firestore-auth/dto"
	"github.com/jrsteele09/firestore-auth/internal/rest"
	"github.com/jrsteele09/firestore-auth/sessions"
)

type WriteOptions struct {
	// Merge only updates the given fields of an existing document. The
	// write fails when the document does not exist.
	Merge bool
}

type WriteResult struct {
	DocumentID string
	CreateTime time.Time
	UpdateTime time.Time
}

// Write stores doc in the collection at collectionPath. With an empty id the
// server picks a document id, otherwise the document id is created or
// replaced.
func Write(ctx context.Context, c *Client, auth sessions.Bearer, collectionPath, id string, doc interface{}, options WriteOptions) (*WriteResult, error) {
	firestoreDoc, err := PODToDocument(doc)
	if err != nil {
		return nil, err
	}

	method := http.MethodPost
	target := c.collectionURL(auth.ProjectID(), collectionPath)
	errContext := collectionPath
	if id != "" {
		method = http.MethodPatch
		target += "/" + id
		errContext = collectionPath + "/" + id
	}

	if options.Merge && len(firestoreDoc.Fields) > 0 {
		fieldPaths := make([]string, 0, len(firestoreDoc.Fields))
		for k := range firestoreDoc.Fields {
			fieldPaths = append(fieldPaths, k)
		}
		sort.Strings(fieldPaths)

		q := url.Values{}
		q.Set("currentDocument.exists", "true")
		for _, fp := range fieldPaths {
			q.Add("updateMask.fieldPaths", QuoteFieldPath(fp))
		}
		target += "?" + q.Encode()
	}

	var written dto.Document
	err = c.do(ctx, auth, rest.Request{
		Method:  method,
		URL:     target,
		JSON:    firestoreDoc,
		Context: errContext,
	}, &written)
	if err != nil {
		return nil, err
	}

	if written.Name == "" {
		return nil, fmt.Errorf("write of %s returned no document name", errContext)
	}

	result := &WriteResult{DocumentID: path.Base(written.Name)}
	if result.CreateTime, err = parseTime(written.CreateTime); err != nil {
		return nil, fmt.Errorf("invalid createTime %q: %w", written.CreateTime, err)
	}
	if result.UpdateTime, err = parseTime(written.UpdateTime); err != nil {
		return nil, fmt.Errorf("invalid updateTime %q: %w", written.UpdateTime, err)
	}
	return result, nil
}

var simpleFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z_0-9]*$`)

// QuoteFieldPath turns a top level field name into a field path segment.
// Names other than simple identifiers are wrapped in backticks, with
// backticks and backslashes inside escaped.
func QuoteFieldPath(name string) string {
	if simpleFieldName.MatchString(name) {
		return name
	}
	escaped := strings.NewReplacer(`\`, `\\`, "`", "\\`").Replace(name)
	return "`" + escaped + "`"
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
