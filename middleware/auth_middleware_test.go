package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/firestore-auth/credentials"
	"github.com/jrsteele09/firestore-auth/internal/googlefake"
	"github.com/jrsteele09/firestore-auth/middleware"
	"github.com/jrsteele09/firestore-auth/sessions"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, options ...middleware.GuardOption) (*googlefake.Server, *middleware.Guard, http.HandlerFunc) {
	t.Helper()

	fake := googlefake.New(t)
	creds, err := credentials.Load(fake.ServiceAccountJSON(), fake.SystemKeySet())
	require.NoError(t, err)

	guard := middleware.NewGuard(creds, options...)
	handler := guard.RequireUserSession()(func(w http.ResponseWriter, r *http.Request) {
		session, ok := middleware.SessionFromContext(r.Context())
		if !ok {
			http.Error(w, "no session", http.StatusInternalServerError)
			return
		}
		userID, _ := r.Context().Value(middleware.ContextKeyUserID).(string)
		if userID != session.UserID {
			http.Error(w, "user mismatch", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(userID))
	})
	return fake, guard, handler
}

func serve(handler http.HandlerFunc, target, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestRequireUserSession(t *testing.T) {
	fake, guard, handler := setup(t)
	idToken := fake.IssueIDToken("user-1")

	tests := []struct {
		name          string
		target        string
		authorization string
		wantStatus    int
	}{
		{name: "missing header", target: "/", wantStatus: http.StatusBadRequest},
		{name: "wrong scheme", target: "/", authorization: "Basic dXNlcjpwYXNz", wantStatus: http.StatusBadRequest},
		{name: "empty token", target: "/", authorization: "Bearer ", wantStatus: http.StatusBadRequest},
		{name: "invalid token", target: "/", authorization: "Bearer garbage", wantStatus: http.StatusUnauthorized},
		{name: "valid token", target: "/", authorization: "Bearer " + idToken, wantStatus: http.StatusOK},
		{name: "query parameter", target: "/?auth=" + idToken, wantStatus: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(handler, tc.target, tc.authorization)
			require.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			if tc.wantStatus == http.StatusOK {
				require.Equal(t, "user-1", rec.Body.String())
			}
			if tc.wantStatus == http.StatusUnauthorized {
				require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
			}
		})
	}

	require.Equal(t, 1, guard.CachedSessions())
	require.Zero(t, fake.TotalCalls())
}

func TestGuardCachesSessions(t *testing.T) {
	fake, guard, _ := setup(t)
	idToken := fake.IssueIDToken("user-1")

	first, err := guard.Session(idToken)
	require.NoError(t, err)
	second, err := guard.Session(idToken)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, guard.CachedSessions())

	_, err = guard.Session(fake.IssueIDToken("user-2"))
	require.NoError(t, err)
	require.Equal(t, 2, guard.CachedSessions())
}

func TestGuardRejectsExpiredTokens(t *testing.T) {
	now := time.Now().Add(2 * time.Hour)
	fake, _, handler := setup(t,
		middleware.WithNowFunc(func() time.Time { return now }),
		middleware.WithSessionOptions(sessions.WithMargin(0)),
	)

	rec := serve(handler, "/", "Bearer "+fake.IssueIDToken("user-1"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
