package dto

// ProviderUserInfo is a federated identity linked to a Firebase account
type ProviderUserInfo struct {
	ProviderID  string `json:"providerId"`
	FederatedID string `json:"federatedId"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}

// UserInfo is one Firebase Auth account
type UserInfo struct {
	LocalID          string             `json:"localId,omitempty"`
	Email            string             `json:"email,omitempty"`
	EmailVerified    bool               `json:"emailVerified,omitempty"`
	DisplayName      string             `json:"displayName,omitempty"`
	ProviderUserInfo []ProviderUserInfo `json:"providerUserInfo,omitempty"`
	PhotoURL         string             `json:"photoUrl,omitempty"`
	Disabled         bool               `json:"disabled,omitempty"`
	LastLoginAt      string             `json:"lastLoginAt,omitempty"`
	CreatedAt        string             `json:"createdAt,omitempty"`
	CustomAuth       bool               `json:"customAuth,omitempty"`
}

// UserInfoResponse may hold zero, one or more accounts
type UserInfoResponse struct {
	Kind  string     `json:"kind"`
	Users []UserInfo `json:"users"`
}

type IDTokenRequest struct {
	IDToken string `json:"idToken"`
}
