package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// deviceFlowScope is requested during device authorization. "repo" covers
// reading pull requests in private repositories; "read:user" resolves the
// login for search qualifiers.
const deviceFlowScope = "repo read:user"

// deviceCodeResponse is GitHub's reply to a device code request.
type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// accessTokenResponse is GitHub's reply while polling for the access token.
type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

func (p *Provider) requestDeviceCode(ctx context.Context) (*deviceCodeResponse, error) {
	data := url.Values{}
	data.Set("client_id", p.clientID)
	data.Set("scope", deviceFlowScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.oauthBaseURL+"/login/device/code", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var code deviceCodeResponse
	if err := json.Unmarshal(body, &code); err != nil {
		return nil, fmt.Errorf("parse device code response: %w", err)
	}
	if code.DeviceCode == "" {
		return nil, fmt.Errorf("no device code in response: %s", string(body))
	}

	return &code, nil
}

// pollForAccessToken polls the token endpoint until the user authorizes the
// device, the code expires, or ctx is canceled. GitHub's slow_down error
// stretches the interval each time it appears.
func (p *Provider) pollForAccessToken(ctx context.Context, code *deviceCodeResponse) (string, error) {
	interval := time.Duration(code.Interval) * time.Second
	if interval < p.pollFloor {
		interval = p.pollFloor
	}

	expiresAt := time.Now().Add(time.Duration(code.ExpiresIn) * time.Second)

	for time.Now().Before(expiresAt) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}

		data := url.Values{}
		data.Set("client_id", p.clientID)
		data.Set("device_code", code.DeviceCode)
		data.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			p.oauthBaseURL+"/login/oauth/access_token", strings.NewReader(data.Encode()))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		resp, err := p.httpc.Do(req)
		if err != nil {
			continue // Retry on network errors
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			continue
		}

		var tokenResp accessTokenResponse
		if err := json.Unmarshal(body, &tokenResp); err != nil {
			continue
		}

		switch tokenResp.Error {
		case "":
			if tokenResp.AccessToken != "" {
				return tokenResp.AccessToken, nil
			}
		case "authorization_pending":
			continue
		case "slow_down":
			interval += p.slowDownStep
			continue
		case "expired_token":
			return "", fmt.Errorf("device code expired, please try again")
		case "access_denied":
			return "", fmt.Errorf("access denied by user")
		default:
			return "", fmt.Errorf("%s: %s", tokenResp.Error, tokenResp.ErrorDesc)
		}
	}

	return "", fmt.Errorf("timeout waiting for authorization")
}
