package googlefake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/firestore-auth/dto"
	"github.com/jrsteele09/firestore-auth/internal/config"
	"github.com/jrsteele09/firestore-auth/token/jwt"
	"github.com/jrsteele09/firestore-auth/token/keys"
)

// Endpoint names used by Calls and FailNext
const (
	EndpointJWK               = "jwk"
	EndpointDiscovery         = "discovery"
	EndpointVerifyCustomToken = "verifyCustomToken"
	EndpointRefresh           = "refresh"
	EndpointSignInWithIdp     = "signInWithIdp"
	EndpointGetAccountInfo    = "getAccountInfo"
	EndpointDeleteAccount     = "deleteAccount"
	EndpointOAuth2Token       = "oauth2Token"
	EndpointSessionCookie     = "createSessionCookie"
	EndpointGet               = "get"
	EndpointList              = "list"
	EndpointWrite             = "write"
	EndpointDelete            = "delete"
	EndpointRunQuery          = "runQuery"
)

const systemSigner = "securetoken@system.gserviceaccount.com"

type failure struct {
	status  int
	message string
	stall   time.Duration
}

// Server emulates the Google endpoints used by this module on an httptest
// server: JWK sets, OpenID discovery, Identity Toolkit, Secure Token, the
// OAuth2 token endpoint and the Firestore document API.
type Server struct {
	*httptest.Server

	ProjectID   string
	APIKey      string
	ClientEmail string
	IDTokenTTL  time.Duration

	systemKey  *keys.KeyPair
	accountKey *keys.KeyPair

	lock          sync.RWMutex
	now           func() time.Time
	calls         map[string]int
	failures      map[string][]failure
	users         map[string]*dto.UserInfo
	refreshTokens map[string]string
	idpTokens     map[string]string
	oauthTokens   map[string]struct{}
	documents     map[string]dto.Document
	omitRefresh   bool
}

type Option func(*Server)

func WithProjectID(projectID string) Option {
	return func(s *Server) {
		s.ProjectID = projectID
	}
}

// WithClock sets the clock used to stamp and check tokens
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New starts a fake with a fresh system signer key and one service account.
// The server is closed when the test ends.
func New(t testing.TB, options ...Option) *Server {
	t.Helper()

	systemKey, err := keys.GenerateRSAKeyPair("system-"+uuid.New().String()[:8], 2048)
	if err != nil {
		t.Fatalf("generate system key: %v", err)
	}
	accountKey, err := keys.GenerateRSAKeyPair("sa-"+uuid.New().String()[:8], 2048)
	if err != nil {
		t.Fatalf("generate service account key: %v", err)
	}

	s := &Server{
		ProjectID:     "demo-project",
		APIKey:        "test-api-key",
		ClientEmail:   "firebase-adminsdk@demo-project.iam.gserviceaccount.com",
		IDTokenTTL:    time.Hour,
		systemKey:     systemKey,
		accountKey:    accountKey,
		now:           time.Now,
		calls:         make(map[string]int),
		failures:      make(map[string][]failure),
		users:         make(map[string]*dto.UserInfo),
		refreshTokens: make(map[string]string),
		idpTokens:     make(map[string]string),
		oauthTokens:   make(map[string]struct{}),
		documents:     make(map[string]dto.Document),
	}
	for _, opt := range options {
		opt(s)
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.route))
	t.Cleanup(s.Close)
	return s
}

// ServiceAccountJSON is a key file for the fake's service account
func (s *Server) ServiceAccountJSON() []byte {
	pemKey, err := s.accountKey.ExportPrivateKeyPEM()
	if err != nil {
		panic(err)
	}
	data, _ := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     s.ProjectID,
		"private_key_id": s.accountKey.KeyID,
		"private_key":    pemKey,
		"client_email":   s.ClientEmail,
		"client_id":      "1234567890",
		"api_key":        s.APIKey,
		"token_uri":      s.URL + "/oauth2/token",
	})
	return data
}

// SystemKeySet is the JWK set document of the system signer
func (s *Server) SystemKeySet() []byte {
	data, err := s.systemKey.MarshalJWKS()
	if err != nil {
		panic(err)
	}
	return data
}

// Endpoints points every service root at the fake
func (s *Server) Endpoints() config.EndpointConfig {
	return endpoints{base: s.URL}
}

// Issuer is the OpenID issuer whose discovery document the fake serves
func (s *Server) Issuer() string {
	return s.URL + "/securetoken/" + s.ProjectID
}

// Calls returns how often endpoint was hit
func (s *Server) Calls(endpoint string) int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.calls[endpoint]
}

func (s *Server) TotalCalls() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// FailNext makes the next call to endpoint fail with status and message
func (s *Server) FailNext(endpoint string, status int, message string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failures[endpoint] = append(s.failures[endpoint], failure{status: status, message: message})
}

// StallNext makes the next call to endpoint hang for d, or until the caller
// gives up, before failing with 503
func (s *Server) StallNext(endpoint string, d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failures[endpoint] = append(s.failures[endpoint], failure{status: http.StatusServiceUnavailable, message: "stalled", stall: d})
}

// OmitRefreshTokenInReplies makes the refresh endpoint leave out refresh_token
func (s *Server) OmitRefreshTokenInReplies(omit bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.omitRefresh = omit
}

// SetClock replaces the fake's clock
func (s *Server) SetClock(now func() time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.now = now
}

// IssueIDToken signs a Firebase ID token for uid with the system key
func (s *Server) IssueIDToken(uid string) string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.issueIDTokenLocked(uid)
}

// SignWithSystemKey signs arbitrary claims with the system signer key
func (s *Server) SignWithSystemKey(claims jwt.Claims) string {
	token, err := jwt.Sign(claims, keys.NewKeyPairSigner(s.systemKey))
	if err != nil {
		panic(err)
	}
	return token
}

func (s *Server) issueIDTokenLocked(uid string) string {
	now := s.now()
	claims := jwt.Claims{UID: uid}
	claims.Issuer = "https://securetoken.google.com/" + s.ProjectID
	claims.Subject = uid
	claims.Audience = []string{s.ProjectID}
	claims.IssuedAt = jwtNumericDate(now)
	claims.ExpiresAt = jwtNumericDate(now.Add(s.IDTokenTTL))
	claims.ID = uuid.New().String()

	if _, ok := s.users[uid]; !ok {
		s.users[uid] = &dto.UserInfo{LocalID: uid, CreatedAt: fmt.Sprint(now.UnixMilli()), CustomAuth: true}
	}
	s.users[uid].LastLoginAt = fmt.Sprint(now.UnixMilli())

	return s.SignWithSystemKey(claims)
}

// RegisterIdpToken makes SignInWithIdp accept token from provider for uid
func (s *Server) RegisterIdpToken(provider, token, uid string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.idpTokens[provider+"|"+token] = uid
}

// User returns the account uid, if it exists
func (s *Server) User(uid string) (*dto.UserInfo, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	u, ok := s.users[uid]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

// PutDocument stores doc under the relative path, for example "users/42"
func (s *Server) PutDocument(path string, fields map[string]dto.Value) {
	s.lock.Lock()
	defer s.lock.Unlock()
	now := s.now().UTC().Format(time.RFC3339Nano)
	s.documents[path] = dto.Document{
		Name:       s.documentName(path),
		Fields:     fields,
		CreateTime: now,
		UpdateTime: now,
	}
}

// Document returns the stored document at the relative path
func (s *Server) Document(path string) (dto.Document, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	doc, ok := s.documents[path]
	return doc, ok
}

func (s *Server) documentName(path string) string {
	return fmt.Sprintf("projects/%s/databases/(default)/documents/%s", s.ProjectID, path)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	switch {
	case strings.HasPrefix(p, "/jwk/"):
		s.handleJWK(w, r, strings.TrimPrefix(p, "/jwk/"))
	case strings.HasPrefix(p, "/securetoken/") && strings.HasSuffix(p, "/.well-known/openid-configuration"):
		s.handleDiscovery(w, r)
	case p == "/securetoken/v1/token":
		s.handleRefresh(w, r)
	case p == "/identitytoolkit/v3/relyingparty/verifyCustomToken":
		s.handleVerifyCustomToken(w, r)
	case p == "/identitytoolkit/v3/relyingparty/getAccountInfo":
		s.handleGetAccountInfo(w, r)
	case p == "/identitytoolkit/v3/relyingparty/deleteAccount":
		s.handleDeleteAccount(w, r)
	case p == "/identitytoolkit/v1/accounts:signInWithIdp":
		s.handleSignInWithIdp(w, r)
	case strings.HasPrefix(p, "/identitytoolkit/v1/projects/") && strings.HasSuffix(p, ":createSessionCookie"):
		s.handleCreateSessionCookie(w, r)
	case p == "/oauth2/token":
		s.handleOAuth2Token(w, r)
	case strings.HasPrefix(p, "/v1/projects/"):
		s.handleFirestore(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown endpoint "+p)
	}
}

// begin counts the call and reports whether an injected failure was written
func (s *Server) begin(w http.ResponseWriter, r *http.Request, endpoint string) bool {
	s.lock.Lock()
	s.calls[endpoint]++
	var f *failure
	if queue := s.failures[endpoint]; len(queue) > 0 {
		f = &queue[0]
		s.failures[endpoint] = queue[1:]
	}
	s.lock.Unlock()

	if f != nil {
		if f.stall > 0 {
			select {
			case <-time.After(f.stall):
			case <-r.Context().Done():
			}
		}
		writeError(w, f.status, http.StatusText(f.status), f.message)
		return true
	}
	return false
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func writeError(w http.ResponseWriter, code int, status, message string) {
	writeJSON(w, code, errorEnvelope{Error: errorBody{Code: code, Message: message, Status: status}})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type endpoints struct {
	base string
}

var _ config.EndpointConfig = endpoints{}

func (e endpoints) GetFirestoreURL() string         { return e.base + "/v1" }
func (e endpoints) GetIdentityToolkitURL() string   { return e.base + "/identitytoolkit/v3/relyingparty" }
func (e endpoints) GetIdentityToolkitV1URL() string { return e.base + "/identitytoolkit/v1" }
func (e endpoints) GetSecureTokenURL() string       { return e.base + "/securetoken/v1/token" }
func (e endpoints) GetJWKBaseURL() string           { return e.base + "/jwk" }
func (e endpoints) GetGoogleTokenURL() string       { return e.base + "/oauth2/token" }
func (e endpoints) GetSystemSignerAccount() string  { return systemSigner }
