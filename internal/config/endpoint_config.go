package config

// EndpointConfig holds the base URLs of the Google services. Every getter can
// be overridden by an environment variable, which is how tests and emulators
// redirect traffic.
type EndpointConfig interface {
	GetFirestoreURL() string
	GetIdentityToolkitURL() string
	GetIdentityToolkitV1URL() string
	GetSecureTokenURL() string
	GetJWKBaseURL() string
	GetGoogleTokenURL() string
	GetSystemSignerAccount() string
}

type Endpoints struct{}

var _ EndpointConfig = Endpoints{}

// GetFirestoreURL is the Firestore REST root, documents live under /v1/projects/...
func (Endpoints) GetFirestoreURL() string {
	return GetEnv("FIRESTORE_URL", "https://firestore.googleapis.com/v1")
}

// GetIdentityToolkitURL is the v3 relying party API (verifyCustomToken, getAccountInfo, deleteAccount)
func (Endpoints) GetIdentityToolkitURL() string {
	return GetEnv("IDENTITY_TOOLKIT_URL", "https://www.googleapis.com/identitytoolkit/v3/relyingparty")
}

// GetIdentityToolkitV1URL is the v1 API (accounts:signInWithIdp, projects/*:createSessionCookie)
func (Endpoints) GetIdentityToolkitV1URL() string {
	return GetEnv("IDENTITY_TOOLKIT_V1_URL", "https://identitytoolkit.googleapis.com/v1")
}

func (Endpoints) GetSecureTokenURL() string {
	return GetEnv("SECURE_TOKEN_URL", "https://securetoken.googleapis.com/v1/token")
}

// GetJWKBaseURL is suffixed with a service account email to get its JWK set
func (Endpoints) GetJWKBaseURL() string {
	return GetEnv("JWK_BASE_URL", "https://www.googleapis.com/service_accounts/v1/jwk")
}

func (Endpoints) GetGoogleTokenURL() string {
	return GetEnv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token")
}

// GetSystemSignerAccount is the account that signs Firebase ID tokens
func (Endpoints) GetSystemSignerAccount() string {
	return "securetoken@system.gserviceaccount.com"
}
