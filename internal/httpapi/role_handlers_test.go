package httpapi

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kinoauth.org/internal/oauth"
)

const (
	adminAudience = "https://api.kinoauth.example"
	adminIssuer   = "https://issuer.kinoauth.example/"
	adminKid      = "admin-key-1"
)

type adminTokenFixture struct {
	key       *rsa.PrivateKey
	validator *oauth.Validator
}

func newAdminTokenFixture(t *testing.T) *adminTokenFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	jwksSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		pub := key.Public().(*rsa.PublicKey)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": adminKid,
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(jwksSrv.Close)

	jwks, err := oauth.NewJWKSClient(jwksSrv.URL, jwksSrv.Client(), 0)
	if err != nil {
		t.Fatalf("NewJWKSClient: %v", err)
	}
	validator, err := oauth.NewValidator(jwks, adminAudience, adminIssuer)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return &adminTokenFixture{key: key, validator: validator}
}

func (f *adminTokenFixture) token(t *testing.T, scope string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"aud":   adminAudience,
		"iss":   adminIssuer,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": scope,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = adminKid
	signed, err := tok.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign admin token: %v", err)
	}
	return signed
}

func TestRoleCRUDWithDelegatedTokens(t *testing.T) {
	admin := newAdminTokenFixture(t)
	f := newAPIFixture(t, Options{Validator: admin.validator})

	writer := admin.token(t, "roles:read roles:write users:roles")
	reader := admin.token(t, "roles:read")

	resp, payload := f.do(t, http.MethodPost, "/v1/roles", writer, map[string]string{
		"name": "moderators", "description": "can hide content",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create role = %d %v", resp.StatusCode, payload)
	}
	role, _ := payload["role"].(map[string]any)
	roleID, _ := role["id"].(string)
	if roleID == "" {
		t.Fatalf("create role payload = %v", payload)
	}

	resp, payload = f.do(t, http.MethodGet, "/v1/roles", reader, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list roles = %d %v", resp.StatusCode, payload)
	}

	// A read-scoped token cannot mutate.
	resp, payload = f.do(t, http.MethodPost, "/v1/roles", reader, map[string]string{"name": "x"})
	if resp.StatusCode != http.StatusForbidden || errorCode(payload) != "oauth_unauthorized" {
		t.Fatalf("write with read scope = %d %v, want 403 oauth_unauthorized", resp.StatusCode, payload)
	}

	// First-party access tokens are not delegated tokens: HS256 is rejected.
	f.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": "alice@example.com", "password": "pw",
	})
	_, loginPayload := f.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "pw",
	})
	access, _ := tokensOf(t, loginPayload)
	resp, payload = f.do(t, http.MethodGet, "/v1/roles", access, nil)
	if resp.StatusCode != http.StatusUnauthorized || errorCode(payload) != "invalid_header" {
		t.Fatalf("session token on admin surface = %d %v, want 401 invalid_header", resp.StatusCode, payload)
	}

	// Assign the new role to the registered user.
	user, err := f.stores.FindActiveByEmail(t.Context(), "alice@example.com")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	resp, payload = f.do(t, http.MethodPost, "/v1/users/"+user.ID+"/roles", writer, map[string]string{
		"role_id": roleID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign role = %d %v", resp.StatusCode, payload)
	}
	resp, _ = f.do(t, http.MethodDelete, "/v1/users/"+user.ID+"/roles/"+roleID, writer, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke role = %d", resp.StatusCode)
	}

	resp, payload = f.do(t, http.MethodPatch, "/v1/roles/"+roleID, writer, map[string]string{
		"name": "stewards",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update role = %d %v", resp.StatusCode, payload)
	}
	resp, _ = f.do(t, http.MethodDelete, "/v1/roles/"+roleID, writer, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete role = %d", resp.StatusCode)
	}
	resp, payload = f.do(t, http.MethodGet, "/v1/roles/"+roleID, reader, nil)
	if resp.StatusCode != http.StatusNotFound || errorCode(payload) != "not_found" {
		t.Fatalf("get deleted role = %d %v, want 404 not_found", resp.StatusCode, payload)
	}
}
