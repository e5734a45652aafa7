package publish

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTokenEndpoint trades a developer token for upload credentials.
const DefaultTokenEndpoint = "https://api.roamjs.com/publish"

// Credentials are the short-lived storage keys issued per publish. They are
// held in memory only.
type Credentials struct {
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	SessionToken    string `json:"SessionToken"`
}

// Grant is the token endpoint's response.
type Grant struct {
	Credentials    Credentials `json:"credentials"`
	DistributionID string      `json:"distributionId"`
}

// CredentialSource issues credentials scoped to a destination path.
type CredentialSource interface {
	Exchange(ctx context.Context, path, authorization string) (Grant, error)
}

// TokenExchanger calls the RoamJS publish endpoint.
type TokenExchanger struct {
	Endpoint   string
	HTTPClient *http.Client
}

var _ CredentialSource = (*TokenExchanger)(nil)

// Authorization renders the header value: Bearer base64(email:token) when
// an email is known, else the bare token.
func Authorization(email, token string) string {
	if email == "" {
		return token
	}
	return "Bearer " + base64.StdEncoding.EncodeToString([]byte(email+":"+token))
}

// Exchange posts {"path": path} and decodes the issued grant.
func (t *TokenExchanger) Exchange(ctx context.Context, path, authorization string) (Grant, error) {
	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = DefaultTokenEndpoint
	}
	client := t.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	body, err := json.Marshal(map[string]string{"path": path})
	if err != nil {
		return Grant{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Grant{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authorization)

	resp, err := client.Do(req)
	if err != nil {
		return Grant{}, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Grant{}, fmt.Errorf("read token exchange response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Grant{}, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
	}

	var grant Grant
	if err := json.Unmarshal(payload, &grant); err != nil {
		return Grant{}, fmt.Errorf("decode token exchange response: %w", err)
	}
	if grant.Credentials.AccessKeyID == "" || grant.Credentials.SecretAccessKey == "" {
		return Grant{}, fmt.Errorf("token exchange returned no credentials")
	}
	return grant, nil
}
