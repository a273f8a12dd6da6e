// Package cloud drives the hosting service's control plane: it exchanges the
// API key for a short-lived bearer token, resolves account and resource-group
// context and submits the provisioning request for a hosted instance.
package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fhelab/hpvs-deployer/interfaces"
)

// callTimeout bounds every control plane call. The design has no
// user-specified timeouts; expiry surfaces as a transient error.
const callTimeout = 30 * time.Second

// Client implements interfaces.CloudAPI over the hosting service's HTTPS
// control plane.
type Client struct {
	// IAMEndpoint issues bearer tokens and serves API key details.
	IAMEndpoint string

	// ResourceEndpoint serves resource-group and provisioning requests.
	ResourceEndpoint string

	// HTTPClient is used for all calls. Nil means a client with the
	// default per-call timeout.
	HTTPClient *http.Client

	Log *slog.Logger
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: callTimeout}
}

// ExchangeToken trades the API key for a bearer token.
func (c *Client) ExchangeToken(ctx context.Context, apiKey string) (string, time.Time, error) {
	form := url.Values{
		"grant_type": {"urn:ibm:params:oauth:grant-type:apikey"},
		"apikey":     {apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.IAMEndpoint+"/identity/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: could not build token request: %v", interfaces.ErrTransient, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: token endpoint unreachable: %v", interfaces.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Any rejection of the API key itself is an authentication
		// failure, not a request shape problem.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", time.Time{}, fmt.Errorf("%w: token endpoint rejected the API key: %s", interfaces.ErrAuth, readError(resp))
		}
		return "", time.Time{}, fmt.Errorf("%w: token endpoint returned %d: %s", interfaces.ErrTransient, resp.StatusCode, readError(resp))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: could not parse token response: %v", interfaces.ErrTransient, err)
	}
	if parsed.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("%w: token endpoint returned an empty token", interfaces.ErrAuth)
	}

	expiry := time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	return parsed.AccessToken, expiry, nil
}

// LookupAccount resolves the account identifier owning the API key.
func (c *Client) LookupAccount(ctx context.Context, token, apiKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.IAMEndpoint+"/v1/apikeys/details", nil)
	if err != nil {
		return "", fmt.Errorf("%w: could not build account lookup request: %v", interfaces.ErrTransient, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("IAM-Apikey", apiKey)

	var parsed struct {
		AccountID string `json:"account_id"`
	}
	if err := c.doJSON(req, "account lookup", &parsed); err != nil {
		return "", err
	}
	if parsed.AccountID == "" {
		return "", fmt.Errorf("%w: account lookup returned no account id", interfaces.ErrRequestRejected)
	}
	return parsed.AccountID, nil
}

// DefaultResourceGroup returns the account's default resource group. An
// account without any resource group is a configuration error: there is no
// sensible fallback.
func (c *Client) DefaultResourceGroup(ctx context.Context, token, accountID string) (string, error) {
	query := url.Values{
		"account_id": {accountID},
		"default":    {"true"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ResourceEndpoint+"/v2/resource_groups?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: could not build resource group request: %v", interfaces.ErrTransient, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var parsed struct {
		Resources []struct {
			ID string `json:"id"`
		} `json:"resources"`
	}
	if err := c.doJSON(req, "resource group lookup", &parsed); err != nil {
		return "", err
	}
	if len(parsed.Resources) == 0 || parsed.Resources[0].ID == "" {
		return "", fmt.Errorf("%w: account %s has no default resource group", interfaces.ErrConfiguration, accountID)
	}
	return parsed.Resources[0].ID, nil
}

// CreateInstance submits the provisioning request. A returned identifier
// means the request was accepted, not that the instance is ready.
func (c *Client) CreateInstance(ctx context.Context, token string, preq interfaces.ProvisionRequest) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"name":             preq.Name,
		"target":           preq.Location,
		"resource_group":   preq.ResourceGroupID,
		"resource_plan_id": preq.ResourcePlanID,
		"parameters": map[string]string{
			"registration_definition": string(preq.Registration),
			"tag":                     preq.Tag,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: could not encode provisioning request: %v", interfaces.ErrRequestRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ResourceEndpoint+"/v2/resource_instances", strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("%w: could not build provisioning request: %v", interfaces.ErrTransient, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var parsed struct {
		GUID string `json:"guid"`
		ID   string `json:"id"`
	}
	if err := c.doJSON(req, "provisioning", &parsed); err != nil {
		return "", err
	}

	instanceID := parsed.GUID
	if instanceID == "" {
		instanceID = parsed.ID
	}
	if instanceID == "" {
		return "", fmt.Errorf("%w: provisioning response carried no instance id", interfaces.ErrRequestRejected)
	}
	return instanceID, nil
}

// doJSON performs the request and decodes a 2xx response body into out.
// Failures are classified by response class: transport and 5xx failures are
// transient, 4xx means the request itself was rejected.
func (c *Client) doJSON(req *http.Request, op string, out interface{}) error {
	start := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s unreachable: %v", interfaces.ErrTransient, op, err)
	}
	defer resp.Body.Close()

	if c.Log != nil {
		c.Log.Debug("control plane call", "op", op, "status", resp.StatusCode, "duration", time.Since(start))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: could not parse %s response: %v", interfaces.ErrTransient, op, err)
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: %s returned %d: %s", interfaces.ErrRequestRejected, op, resp.StatusCode, readError(resp))
	default:
		return fmt.Errorf("%w: %s returned %d: %s", interfaces.ErrTransient, op, resp.StatusCode, readError(resp))
	}
}

func readError(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(body) == 0 {
		return resp.Status
	}
	return strings.TrimSpace(string(body))
}
