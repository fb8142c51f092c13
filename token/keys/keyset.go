package keys

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/golang-jwt/jwt/v5"
	fberrors "github.com/jrsteele09/firestore-auth/errors"
	"github.com/lestrrat-go/jwx/jwk"
)

// KeySet maps key ids to verification keys. A KeySet is never modified after
// it is built; merging returns a new set, so a *KeySet can be shared freely.
type KeySet struct {
	keys map[string]crypto.PublicKey
}

// Lookup returns the key registered for kid
func (s *KeySet) Lookup(kid string) (crypto.PublicKey, bool) {
	if s == nil || kid == "" {
		return nil, false
	}
	key, ok := s.keys[kid]
	return key, ok
}

// GetVerificationKey is a jwt.Keyfunc selecting the key named by the token's
// kid header
func (s *KeySet) GetVerificationKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, _ := token.Header["kid"].(string)
	key, ok := s.Lookup(kid)
	if !ok {
		return nil, fmt.Errorf("%w: %q", fberrors.ErrUnknownKeyID, kid)
	}
	return key, nil
}

func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// KeyIDs returns the sorted key ids of the set
func (s *KeySet) KeyIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		ids = append(ids, kid)
	}
	sort.Strings(ids)
	return ids
}

// Merge returns a new set holding the keys of all given sets. Later sets win
// on duplicate key ids.
func Merge(sets ...*KeySet) *KeySet {
	merged := make(map[string]crypto.PublicKey)
	for _, set := range sets {
		if set == nil {
			continue
		}
		for kid, key := range set.keys {
			merged[kid] = key
		}
	}
	return &KeySet{keys: merged}
}

// KeySet returns a single-key set holding the public half of the pair
func (kp *KeyPair) KeySet() *KeySet {
	return &KeySet{keys: map[string]crypto.PublicKey{kp.KeyID: kp.PublicKey}}
}

// ParseJWKS parses a JSON Web Key Set document
func ParseJWKS(data []byte) (*KeySet, error) {
	set, err := jwk.Parse(data)
	if err != nil {
		return nil, fberrors.Wrapf(err, "failed to parse JWK set")
	}
	return fromJWKSet(set)
}

// FetchJWKS downloads and parses the JWK set published at url. Any status
// other than 200 is an error.
func FetchJWKS(ctx context.Context, client *http.Client, url string) (*KeySet, error) {
	set, err := jwk.Fetch(ctx, url, jwk.WithHTTPClient(client))
	if err != nil {
		return nil, fberrors.Wrapf(err, "failed to fetch %s", url)
	}
	return fromJWKSet(set)
}

// fromJWKSet extracts the raw public keys. Entries without a key id are
// skipped since no token header can select them.
func fromJWKSet(set jwk.Set) (*KeySet, error) {
	keys := make(map[string]crypto.PublicKey, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Get(i)
		if !ok || key.KeyID() == "" {
			continue
		}

		var raw interface{}
		if err := key.Raw(&raw); err != nil {
			return nil, fberrors.Wrapf(err, "failed to extract key %s", key.KeyID())
		}
		keys[key.KeyID()] = raw
	}

	return &KeySet{keys: keys}, nil
}

// MarshalJWKS encodes the key pair's public key as a JWK set document
func (kp *KeyPair) MarshalJWKS() ([]byte, error) {
	key, err := kp.ToJWK()
	if err != nil {
		return nil, fberrors.Wrapf(err, "failed to convert key to JWK")
	}

	set := jwk.NewSet()
	set.Add(key)
	return json.Marshal(set)
}
