package keys_test

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	fberrors "github.com/jrsteele09/firestore-auth/errors"
	"github.com/jrsteele09/firestore-auth/token/keys"
	"github.com/lestrrat-go/jwx/jwk"
	"github.com/stretchr/testify/require"
)

func TestLoadKeyPairFromPEM(t *testing.T) {
	kp, err := keys.GenerateRSAKeyPair("kid-1", 2048)
	require.NoError(t, err)

	pemData, err := kp.ExportPrivateKeyPEM()
	require.NoError(t, err)
	require.Contains(t, pemData, "BEGIN PRIVATE KEY")

	loaded, err := keys.LoadKeyPairFromPEM("kid-1", pemData)
	require.NoError(t, err)
	require.Equal(t, "kid-1", loaded.KeyID)
	require.True(t, kp.PrivateKey.(*rsa.PrivateKey).Equal(loaded.PrivateKey))

	t.Run("garbage", func(t *testing.T) {
		_, err := keys.LoadKeyPairFromPEM("kid", "not a pem")
		require.Error(t, err)
	})
}

func TestParseJWKS(t *testing.T) {
	kp, err := keys.GenerateRSAKeyPair("kid-a", 2048)
	require.NoError(t, err)

	data, err := kp.MarshalJWKS()
	require.NoError(t, err)

	set, err := keys.ParseJWKS(data)
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())

	key, ok := set.Lookup("kid-a")
	require.True(t, ok)
	pub, ok := key.(*rsa.PublicKey)
	require.True(t, ok)
	require.True(t, pub.Equal(kp.PublicKey))

	_, ok = set.Lookup("kid-b")
	require.False(t, ok)

	t.Run("entries without kid are skipped", func(t *testing.T) {
		key, err := kp.ToJWK()
		require.NoError(t, err)
		require.NoError(t, key.Remove(jwk.KeyIDKey))
		unnamed := jwk.NewSet()
		unnamed.Add(key)
		raw, err := json.Marshal(unnamed)
		require.NoError(t, err)

		set, err := keys.ParseJWKS(raw)
		require.NoError(t, err)
		require.Equal(t, 0, set.Len())
	})

	t.Run("invalid document", func(t *testing.T) {
		_, err := keys.ParseJWKS([]byte("{"))
		require.Error(t, err)
	})
}

func TestMerge(t *testing.T) {
	a, err := keys.GenerateRSAKeyPair("a", 2048)
	require.NoError(t, err)
	b, err := keys.GenerateRSAKeyPair("b", 2048)
	require.NoError(t, err)

	first := a.KeySet()
	merged := keys.Merge(first, b.KeySet(), nil)

	require.Equal(t, []string{"a", "b"}, merged.KeyIDs())
	require.Equal(t, 1, first.Len(), "inputs must not be modified")
}

func TestFetchJWKS(t *testing.T) {
	kp, err := keys.GenerateRSAKeyPair("remote", 2048)
	require.NoError(t, err)
	data, err := kp.MarshalJWKS()
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jwk/ok" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	set, err := keys.FetchJWKS(ctx, srv.Client(), srv.URL+"/jwk/ok")
	require.NoError(t, err)
	require.Equal(t, []string{"remote"}, set.KeyIDs())

	_, err = keys.FetchJWKS(ctx, srv.Client(), srv.URL+"/jwk/missing")
	require.ErrorContains(t, err, "status = 404")
}

func TestToJWK(t *testing.T) {
	kp, err := keys.GenerateRSAKeyPair("kid-a", 2048)
	require.NoError(t, err)

	key, err := kp.ToJWK()
	require.NoError(t, err)
	require.Equal(t, "kid-a", key.KeyID())
	require.Equal(t, "RS256", key.Algorithm())
	require.Equal(t, "sig", key.KeyUsage())

	var pub rsa.PublicKey
	require.NoError(t, key.Raw(&pub))
	require.True(t, pub.Equal(kp.PublicKey))
}

func TestGetVerificationKey(t *testing.T) {
	kp, err := keys.GenerateRSAKeyPair("kid-a", 2048)
	require.NoError(t, err)
	set := kp.KeySet()

	token := &jwt.Token{Method: jwt.SigningMethodRS256, Header: map[string]interface{}{"kid": "kid-a"}}
	key, err := set.GetVerificationKey(token)
	require.NoError(t, err)
	require.Equal(t, kp.PublicKey, key)

	token.Header["kid"] = "kid-b"
	_, err = set.GetVerificationKey(token)
	require.ErrorIs(t, err, fberrors.ErrUnknownKeyID)

	hmac := &jwt.Token{Method: jwt.SigningMethodHS256, Header: map[string]interface{}{"kid": "kid-a"}}
	_, err = set.GetVerificationKey(hmac)
	require.Error(t, err)
}
