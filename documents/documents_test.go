package documents_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/firestore-auth/credentials"
	"github.com/jrsteele09/firestore-auth/documents"
	"github.com/jrsteele09/firestore-auth/dto"
	fberrors "github.com/jrsteele09/firestore-auth/errors"
	"github.com/jrsteele09/firestore-auth/internal/googlefake"
	"github.com/jrsteele09/firestore-auth/sessions"
	"github.com/jrsteele09/firestore-auth/token/exchange"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

type person struct {
	Name string   `json:"name"`
	Age  int      `json:"age"`
	Tags []string `json:"tags,omitempty"`
}

type fixture struct {
	fake    *googlefake.Server
	creds   *credentials.Credentials
	session sessions.Bearer
	client  *documents.Client
}

func setup(t *testing.T) *fixture {
	t.Helper()

	fake := googlefake.New(t)
	creds, err := credentials.Load(fake.ServiceAccountJSON(), fake.SystemKeySet())
	require.NoError(t, err)

	session, err := sessions.NewServiceAccountSession(creds)
	require.NoError(t, err)

	return &fixture{
		fake:    fake,
		creds:   creds,
		session: sessions.Synchronized(session),
		client: documents.NewClient(
			documents.WithHTTPClient(fake.Client()),
			documents.WithBaseURL(fake.Endpoints().GetFirestoreURL()),
		),
	}
}

func stringValue(s string) dto.Value {
	return dto.Value{StringValue: &s}
}

func integerValue(n int) dto.Value {
	s := fmt.Sprint(n)
	return dto.Value{IntegerValue: &s}
}

func requireAPIError(t *testing.T, err error, code int) *fberrors.APIError {
	t.Helper()
	var apiErr *fberrors.APIError
	require.True(t, errors.As(err, &apiErr), "expected *APIError, got %v", err)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}

func TestWriteAndRead(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("generated id", func(t *testing.T) {
		res, err := documents.Write(ctx, f.client, f.session, "people", "", person{Name: "Ada", Age: 36}, documents.WriteOptions{})
		require.NoError(t, err)
		require.NotEmpty(t, res.DocumentID)
		require.False(t, res.CreateTime.IsZero())

		got, err := documents.Read[person](ctx, f.client, f.session, "people", res.DocumentID)
		require.NoError(t, err)
		require.Equal(t, person{Name: "Ada", Age: 36}, *got)
	})

	t.Run("given id", func(t *testing.T) {
		res, err := documents.Write(ctx, f.client, f.session, "people", "grace", person{Name: "Grace", Age: 45, Tags: []string{"navy"}}, documents.WriteOptions{})
		require.NoError(t, err)
		require.Equal(t, "grace", res.DocumentID)

		stored, ok := f.fake.Document("people/grace")
		require.True(t, ok)
		require.Equal(t, "45", *stored.Fields["age"].IntegerValue)

		got, err := documents.ReadByName[person](ctx, f.client, f.session, documents.DocumentName(f.creds.ProjectID, "people", "grace"))
		require.NoError(t, err)
		require.Equal(t, []string{"navy"}, got.Tags)
	})

	t.Run("missing document", func(t *testing.T) {
		_, err := documents.Read[person](ctx, f.client, f.session, "people", "nobody")
		apiErr := requireAPIError(t, err, http.StatusNotFound)
		require.Equal(t, documents.DocumentName(f.creds.ProjectID, "people", "nobody"), apiErr.Context)
	})
}

func TestWriteMerge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fake.PutDocument("people/ada", map[string]dto.Value{
		"name": stringValue("Ada"),
		"age":  integerValue(36),
		"city": stringValue("London"),
	})

	_, err := documents.Write(ctx, f.client, f.session, "people", "ada", map[string]interface{}{"age": 37}, documents.WriteOptions{Merge: true})
	require.NoError(t, err)

	stored, _ := f.fake.Document("people/ada")
	require.Equal(t, "37", *stored.Fields["age"].IntegerValue)
	require.Equal(t, "London", *stored.Fields["city"].StringValue)

	t.Run("replace drops other fields", func(t *testing.T) {
		_, err := documents.Write(ctx, f.client, f.session, "people", "ada", map[string]interface{}{"age": 38}, documents.WriteOptions{})
		require.NoError(t, err)

		stored, _ := f.fake.Document("people/ada")
		require.NotContains(t, stored.Fields, "city")
	})

	t.Run("merge into a missing document", func(t *testing.T) {
		_, err := documents.Write(ctx, f.client, f.session, "people", "nobody", map[string]interface{}{"age": 1}, documents.WriteOptions{Merge: true})
		apiErr := requireAPIError(t, err, http.StatusNotFound)
		require.Equal(t, "people/nobody", apiErr.Context)

		_, ok := f.fake.Document("people/nobody")
		require.False(t, ok)
	})

	t.Run("field names that need quoting", func(t *testing.T) {
		f.fake.PutDocument("people/grace", map[string]dto.Value{
			"first-name": stringValue("Grace"),
			"a.b":        stringValue("dotted"),
			"keep":       stringValue("yes"),
		})

		update := map[string]interface{}{"first-name": "G", "a.b": "still dotted", "back`tick": "q"}
		_, err := documents.Write(ctx, f.client, f.session, "people", "grace", update, documents.WriteOptions{Merge: true})
		require.NoError(t, err)

		stored, _ := f.fake.Document("people/grace")
		require.Equal(t, "G", *stored.Fields["first-name"].StringValue)
		require.Equal(t, "still dotted", *stored.Fields["a.b"].StringValue)
		require.Equal(t, "q", *stored.Fields["back`tick"].StringValue)
		require.Equal(t, "yes", *stored.Fields["keep"].StringValue)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := documents.Write(ctx, f.client, f.session, "people", "x", []int{1, 2}, documents.WriteOptions{})
		require.Error(t, err)
	})
}

func TestContents(t *testing.T) {
	f := setup(t)
	f.fake.PutDocument("people/ada", map[string]dto.Value{"name": stringValue("Ada")})

	raw, err := documents.Contents(context.Background(), f.client, f.session, "people", "ada")
	require.NoError(t, err)
	require.Contains(t, raw, `"stringValue":"Ada"`)
	require.Contains(t, raw, `"name":"projects/demo-project/databases/(default)/documents/people/ada"`)
}

func TestDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fake.PutDocument("people/ada", map[string]dto.Value{"name": stringValue("Ada")})

	require.NoError(t, documents.Delete(ctx, f.client, f.session, "people/ada", true))
	_, ok := f.fake.Document("people/ada")
	require.False(t, ok)

	err := documents.Delete(ctx, f.client, f.session, "people/ada", true)
	apiErr := requireAPIError(t, err, http.StatusNotFound)
	require.Equal(t, "people/ada", apiErr.Context)
	require.Contains(t, apiErr.Message, "No document to update")

	require.NoError(t, documents.Delete(ctx, f.client, f.session, "people/ada", false))
}

func TestQuery(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for i, name := range []string{"ada", "bob", "cy"} {
		f.fake.PutDocument("people/"+name, map[string]dto.Value{
			"name": stringValue(name),
			"age":  integerValue(30 + i*10),
		})
	}
	f.fake.PutDocument("pets/rex", map[string]dto.Value{"name": stringValue("rex"), "age": integerValue(40)})

	docs, err := documents.Query(ctx, f.client, f.session, "people", 40, dto.OperatorGreaterThanOrEqual, "age")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		p, err := documents.Decode[person](doc)
		require.NoError(t, err)
		names = append(names, p.Name)
	}
	require.ElementsMatch(t, []string{"bob", "cy"}, names)

	docs, err = documents.Query(ctx, f.client, f.session, "people", "nobody", dto.OperatorEqual, "name")
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestList(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.fake.PutDocument(fmt.Sprintf("people/p%d", i), map[string]dto.Value{
			"name": stringValue(fmt.Sprintf("person %d", i)),
			"age":  integerValue(i),
		})
	}
	// nested documents are not part of the listing
	f.fake.PutDocument("people/p0/pets/rex", map[string]dto.Value{"name": stringValue("rex")})

	list := documents.NewList[person](f.client, f.session, "people", documents.WithPageSize(2))

	var got []person
	for {
		p, doc, err := list.Next(ctx)
		if errors.Is(err, iterator.Done) {
			break
		}
		require.NoError(t, err)
		require.True(t, strings.HasSuffix(doc.Name, fmt.Sprintf("/people/p%d", len(got))))
		got = append(got, p)
	}

	require.Len(t, got, 5)
	require.Equal(t, 3, f.fake.Calls(googlefake.EndpointList))

	_, _, err := list.Next(ctx)
	require.ErrorIs(t, err, iterator.Done)
	require.Equal(t, 3, f.fake.Calls(googlefake.EndpointList))
}

func TestListRetriesFailedPage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fake.PutDocument("people/ada", map[string]dto.Value{"name": stringValue("Ada")})

	list := documents.NewList[person](f.client, f.session, "people")

	f.fake.FailNext(googlefake.EndpointList, http.StatusInternalServerError, "backend error")
	_, _, err := list.Next(ctx)
	apiErr := requireAPIError(t, err, http.StatusInternalServerError)
	require.Equal(t, "people", apiErr.Context)

	p, _, err := list.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "Ada", p.Name)

	_, _, err = list.Next(ctx)
	require.ErrorIs(t, err, iterator.Done)
}

func TestListDecodeErrorFailsOneItem(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fake.PutDocument("people/a", map[string]dto.Value{"age": stringValue("not a number")})
	f.fake.PutDocument("people/b", map[string]dto.Value{"age": integerValue(3)})

	list := documents.NewList[person](f.client, f.session, "people")

	_, doc, err := list.Next(ctx)
	require.ErrorIs(t, err, fberrors.ErrDeserialize)
	require.True(t, strings.HasSuffix(doc.Name, "/people/a"))

	p, _, err := list.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, p.Age)
}

func TestListSkipsEmptyPages(t *testing.T) {
	f := setup(t)

	pages := []string{
		`{"nextPageToken":"1"}`,
		`{"documents":[],"nextPageToken":"2"}`,
		`{"documents":[{"name":"projects/demo-project/databases/(default)/documents/people/ada","fields":{"name":{"stringValue":"Ada"}}}]}`,
	}
	var pageTokens []string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := len(pageTokens)
		pageTokens = append(pageTokens, r.URL.Query().Get("pageToken"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pages[n]))
	}))
	defer api.Close()

	client := documents.NewClient(documents.WithBaseURL(api.URL))
	list := documents.NewList[person](client, f.session, "people")

	p, _, err := list.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Ada", p.Name)
	require.Equal(t, []string{"", "1", "2"}, pageTokens)

	_, _, err = list.Next(context.Background())
	require.ErrorIs(t, err, iterator.Done)
	require.Len(t, pageTokens, 3)
}

func TestExpiredSessionIsNotANetworkError(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	clock := time.Now()
	client := exchange.NewClient(exchange.WithHTTPClient(f.fake.Client()), exchange.WithEndpoints(f.fake.Endpoints()))
	user, err := sessions.UserSessionByUserID(ctx, f.creds, "user-1", false,
		sessions.WithExchangeClient(client),
		sessions.WithNowFunc(func() time.Time { return clock }),
	)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Hour)
	calls := f.fake.Calls(googlefake.EndpointGet)

	_, err = documents.Read[person](ctx, f.client, user, "people", "ada")
	require.ErrorIs(t, err, fberrors.ErrTokenExpiredNoRefresh)
	require.NotErrorIs(t, err, fberrors.ErrNetwork)
	require.Equal(t, calls, f.fake.Calls(googlefake.EndpointGet))
}

func TestUserSessionReadsDocuments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fake.PutDocument("people/ada", map[string]dto.Value{"name": stringValue("Ada")})

	client := exchange.NewClient(exchange.WithHTTPClient(f.fake.Client()), exchange.WithEndpoints(f.fake.Endpoints()))
	user, err := sessions.UserSessionByUserID(ctx, f.creds, "user-1", true, sessions.WithExchangeClient(client))
	require.NoError(t, err)

	got, err := documents.Read[person](ctx, f.client, user, "people", "ada")
	require.NoError(t, err)
	require.Equal(t, "Ada", got.Name)
}
