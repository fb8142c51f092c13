package googlefake

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/firestore-auth/dto"
	"github.com/jrsteele09/firestore-auth/token/jwt"
	"github.com/jrsteele09/firestore-auth/token/keys"
)

func jwtNumericDate(t time.Time) *jwtlib.NumericDate {
	return jwtlib.NewNumericDate(t)
}

func (s *Server) handleJWK(w http.ResponseWriter, r *http.Request, account string) {
	if s.begin(w, r, EndpointJWK) {
		return
	}

	var kp *keys.KeyPair
	switch account {
	case systemSigner:
		kp = s.systemKey
	case s.ClientEmail:
		kp = s.accountKey
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown service account "+account)
		return
	}

	data, err := kp.MarshalJWKS()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	if s.begin(w, r, EndpointDiscovery) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"issuer":                                s.Issuer(),
		"jwks_uri":                              s.URL + "/jwk/" + systemSigner,
		"response_types_supported":              []string{"id_token"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

// verifyIDToken checks a token signed by the system key and returns its uid
func (s *Server) verifyIDToken(token string) (string, bool) {
	claims, err := jwt.Verify(token, s.systemKey.KeySet(), jwt.WithNow(s.clock()))
	if err != nil || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// verifyAccountToken checks a token signed by the service account
func (s *Server) verifyAccountToken(token string) (*jwt.Claims, bool) {
	claims, err := jwt.Verify(token, s.accountKey.KeySet(), jwt.WithNow(s.clock()))
	if err != nil || claims.Issuer != s.ClientEmail {
		return nil, false
	}
	return claims, true
}

func (s *Server) clock() func() time.Time {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.now
}

func (s *Server) checkAPIKey(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Query().Get("key") != s.APIKey {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "API key not valid. Please pass a valid API key.")
		return false
	}
	return true
}

func (s *Server) handleVerifyCustomToken(w http.ResponseWriter, r *http.Request) {
	if s.begin(w, r, EndpointVerifyCustomToken) || !s.checkAPIKey(w, r) {
		return
	}

	var req struct {
		Token             string `json:"token"`
		ReturnSecureToken bool   `json:"returnSecureToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	claims, ok := s.verifyAccountToken(req.Token)
	if !ok || claims.UID == "" || !slices.Contains(claims.Audience, jwt.AudienceIdentity) {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "INVALID_CUSTOM_TOKEN")
		return
	}

	s.lock.Lock()
	idToken := s.issueIDTokenLocked(claims.UID)
	refreshToken := ""
	if req.ReturnSecureToken {
		refreshToken = "rt-" + uuid.New().String()
		s.refreshTokens[refreshToken] = claims.UID
	}
	ttl := s.IDTokenTTL
	s.lock.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"kind":         "identitytoolkit#VerifyCustomTokenResponse",
		"idToken":      idToken,
		"refreshToken": refreshToken,
		"expiresIn":    strconv.Itoa(int(ttl / time.Second)),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.begin(w, r, EndpointRefresh) || !s.checkAPIKey(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	if r.PostForm.Get("grant_type") != "refresh_token" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "INVALID_GRANT_TYPE")
		return
	}

	refreshToken := r.PostForm.Get("refresh_token")

	s.lock.Lock()
	uid, ok := s.refreshTokens[refreshToken]
	if !ok {
		s.lock.Unlock()
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "INVALID_REFRESH_TOKEN")
		return
	}
	idToken := s.issueIDTokenLocked(uid)
	ttl := s.IDTokenTTL
	omit := s.omitRefresh
	s.lock.Unlock()

	resp := map[string]string{
		"expires_in":    strconv.Itoa(int(ttl / time.Second)),
		"token_type":    "Bearer",
		"refresh_token": refreshToken,
		"id_token":      idToken,
		"user_id":       uid,
		"project_id":    s.ProjectID,
	}
	if omit {
		delete(resp, "refresh_token")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSignInWithIdp(w http.ResponseWriter, r *http.Request) {
	if s.begin(w, r, EndpointSignInWithIdp) || !s.checkAPIKey(w, r) {
		return
	}

	var req struct {
		PostBody            string `json:"postBody"`
		RequestURI          string `json:"requestUri"`
		ReturnIdpCredential bool   `json:"returnIdpCredential"`
		ReturnSecureToken   bool   `json:"returnSecureToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	body, err := url.ParseQuery(req.PostBody)
	if err != nil || req.RequestURI == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "INVALID_IDP_RESPONSE")
		return
	}

	provider := body.Get("providerId")
	s.lock.Lock()
	uid, ok := s.idpTokens[provider+"|"+body.Get("access_token")]
	if !ok {
		s.lock.Unlock()
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "INVALID_IDP_RESPONSE")
		return
	}
	_, existed := s.users[uid]
	idToken := s.issueIDTokenLocked(uid)
	s.users[uid].ProviderUserInfo = []dto.ProviderUserInfo{{ProviderID: provider, FederatedID: provider + "/" + uid}}
	s.lock.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providerId":  provider,
		"localId":     uid,
		"federatedId": provider + "/" + uid,
		"idToken":     idToken,
		"isNewUser":   !existed,
	})
}

func (s *Server) handleGetAccountInfo(w http.ResponseWriter, r *http.Request) {
	if s.begin(w, r, EndpointGetAccountInfo) || !s.checkAPIKey(w, r) {
		return
	}

	var req dto.IDTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	uid, ok := s.verifyIDToken(req.IDToken)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "INVALID_ID_TOKEN")
		return
	}

	resp := dto.UserInfoResponse{Kind: "identitytoolkit#GetAccountInfoResponse", Users: []dto.UserInfo{}}
	if u, ok := s.User(uid); ok {
		resp.Users = append(resp.Users, *u)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if s.begin(w, r, EndpointDeleteAccount) || !s.checkAPIKey(w, r) {
		return
	}

	var req dto.IDTokenRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	token := req.IDToken
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	uid, ok := s.verifyIDToken(token)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "INVALID_ID_TOKEN")
		return
	}

	s.lock.Lock()
	delete(s.users, uid)
	for rt, owner := range s.refreshTokens {
		if owner == uid {
			delete(s.refreshTokens, rt)
		}
	}
	s.lock.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"kind": "identitytoolkit#DeleteAccountResponse"})
}

func (s *Server) handleOAuth2Token(w http.ResponseWriter, r *http.Request) {
	if s.begin(w, r, EndpointOAuth2Token) {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if r.PostForm.Get("grant_type") != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	if _, ok := s.verifyAccountToken(r.PostForm.Get("assertion")); !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Invalid JWT Signature."})
		return
	}

	accessToken := "ya29." + uuid.New().String()
	s.lock.Lock()
	s.oauthTokens[accessToken] = struct{}{}
	s.lock.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (s *Server) handleCreateSessionCookie(w http.ResponseWriter, r *http.Request) {
	if s.begin(w, r, EndpointSessionCookie) {
		return
	}

	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.lock.RLock()
	_, authorized := s.oauthTokens[bearer]
	s.lock.RUnlock()
	if !authorized {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Request had invalid authentication credentials.")
		return
	}

	var req struct {
		IDToken       string `json:"idToken"`
		ValidDuration int64  `json:"validDuration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	uid, ok := s.verifyIDToken(req.IDToken)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "INVALID_ID_TOKEN")
		return
	}

	now := s.clock()()
	claims := jwt.Claims{UID: uid}
	claims.Issuer = "https://session.firebase.google.com/" + s.ProjectID
	claims.Subject = uid
	claims.Audience = []string{s.ProjectID}
	claims.IssuedAt = jwtNumericDate(now)
	claims.ExpiresAt = jwtNumericDate(now.Add(time.Duration(req.ValidDuration) * time.Second))

	writeJSON(w, http.StatusOK, map[string]string{"sessionCookie": s.SignWithSystemKey(claims)})
}
