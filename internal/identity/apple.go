package identity

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	appleAuthURL  = "https://appleid.apple.com/auth/authorize"
	appleTokenURL = "https://appleid.apple.com/auth/token"
	appleKeysURL  = "https://appleid.apple.com/auth/keys"
	appleIssuer   = "https://appleid.apple.com"
)

// PromptFunc presents the authorization URL to the person signing in and
// returns the authorization code from the callback. Returning an empty code
// with a nil error means the person backed out.
type PromptFunc func(ctx context.Context, authURL string) (code string, err error)

// AppleProvider implements Provider with Sign in with Apple. The client
// secret is a short-lived ES256 JWT signed with the developer key, minted
// fresh for every sign-in.
type AppleProvider struct {
	clientID    string
	teamID      string
	keyID       string
	privateKey  *ecdsa.PrivateKey
	redirectURL string
	prompt      PromptFunc
	client      *http.Client
}

// NewAppleProvider creates a Sign in with Apple provider. prompt is invoked
// with the authorization URL while SignIn suspends.
func NewAppleProvider(clientID, teamID, keyID string, privateKey *ecdsa.PrivateKey, redirectURL string, prompt PromptFunc) *AppleProvider {
	return &AppleProvider{
		clientID:    clientID,
		teamID:      teamID,
		keyID:       keyID,
		privateKey:  privateKey,
		redirectURL: redirectURL,
		prompt:      prompt,
		client:      http.DefaultClient,
	}
}

// LoadApplePrivateKey reads the PKCS#8 PEM key Apple issues for Sign in with
// Apple from path.
func LoadApplePrivateKey(path string) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read Apple private key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("failed to decode Apple private key PEM")
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Apple private key: %w", err)
	}

	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("Apple private key is not an ECDSA key")
	}

	return key, nil
}

// SignIn runs the authorization flow: prompt, code exchange, id_token
// verification. Exactly one request is outstanding at a time; the caller is
// responsible for not invoking SignIn concurrently.
func (p *AppleProvider) SignIn(ctx context.Context) (*Identity, error) {
	if p.clientID == "" || p.teamID == "" || p.keyID == "" || p.privateKey == nil {
		return nil, NewAuthError(AuthInvalidCredentials, errors.New("apple provider not configured"))
	}

	clientSecret, err := p.clientSecret()
	if err != nil {
		return nil, NewAuthError(AuthAuthorizationFailed, err)
	}

	config := &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: clientSecret,
		RedirectURL:  p.redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  appleAuthURL,
			TokenURL: appleTokenURL,
		},
		Scopes: []string{"name", "email"},
	}

	state := uuid.New().String()
	nonce := uuid.New().String()

	authURL := config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_mode", "query"),
		oauth2.SetAuthURLParam("nonce", nonce),
	)

	code, err := p.prompt(ctx, authURL)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, NewAuthError(AuthCancelled, err)
		}
		return nil, NewAuthError(AuthAuthorizationFailed, err)
	}
	if code == "" {
		return nil, NewAuthError(AuthCancelled, errors.New("authorization dismissed"))
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, NewAuthError(AuthAuthorizationFailed, fmt.Errorf("code exchange failed: %w", err))
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, NewAuthError(AuthAuthorizationFailed, errors.New("missing id_token"))
	}

	claims, err := p.verifyIDToken(ctx, idToken, nonce)
	if err != nil {
		return nil, NewAuthError(AuthInvalidCredentials, err)
	}

	// Email is present only on first authorization; name arrives out of band
	// on the first authorization and is not part of the id_token at all.
	return &Identity{
		UserID:   claims.Subject,
		Email:    claims.Email,
		FullName: "",
	}, nil
}

// clientSecret mints the ES256 JWT Apple requires in place of a static secret.
func (p *AppleProvider) clientSecret() (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    p.teamID,
		Subject:   p.clientID,
		Audience:  jwt.ClaimStrings{appleIssuer},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	})
	token.Header["kid"] = p.keyID

	signed, err := token.SignedString(p.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign client secret: %w", err)
	}
	return signed, nil
}

type appleTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Nonce         string `json:"nonce"`
}

func (p *AppleProvider) verifyIDToken(ctx context.Context, idToken, nonce string) (*appleTokenClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	claims := &appleTokenClaims{}

	parsedToken, err := parser.ParseWithClaims(idToken, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing key id")
		}
		return p.fetchPublicKey(ctx, kid)
	})
	if err != nil || !parsedToken.Valid {
		return nil, errors.New("invalid Apple token")
	}

	if claims.Issuer != appleIssuer {
		return nil, errors.New("invalid Apple issuer")
	}
	if !audienceContains(claims.Audience, p.clientID) {
		return nil, errors.New("invalid Apple audience")
	}
	if nonce != "" && claims.Nonce != "" && claims.Nonce != nonce {
		return nil, errors.New("invalid Apple nonce")
	}
	if claims.Subject == "" {
		return nil, errors.New("Apple token has no subject")
	}

	return claims, nil
}

func audienceContains(audience jwt.ClaimStrings, value string) bool {
	for _, entry := range audience {
		if entry == value {
			return true
		}
	}
	return false
}

type appleJWK struct {
	Keys []appleJWKKey `json:"keys"`
}

type appleJWKKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (p *AppleProvider) fetchPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, appleKeysURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("failed to fetch Apple public keys")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var jwk appleJWK
	if err := json.Unmarshal(body, &jwk); err != nil {
		return nil, err
	}

	for _, key := range jwk.Keys {
		if key.Kid != kid {
			continue
		}
		if key.Kty != "RSA" {
			return nil, errors.New("unexpected key type")
		}
		modulusBytes, err := base64.RawURLEncoding.DecodeString(key.N)
		if err != nil {
			return nil, err
		}
		exponentBytes, err := base64.RawURLEncoding.DecodeString(key.E)
		if err != nil {
			return nil, err
		}
		exponent := 0
		for _, b := range exponentBytes {
			exponent = exponent*256 + int(b)
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(modulusBytes),
			E: exponent,
		}, nil
	}

	return nil, errors.New("Apple public key not found")
}
