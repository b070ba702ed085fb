// Package clients provides typed HTTP clients for the gateway's device API,
// for use by device firmware simulators, operator tooling, and tests.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/oneedge/gateway/api"
	"github.com/oneedge/gateway/cryptoutils"
)

// APIError is returned when the gateway answers with a non-2xx status. Kind
// carries the protocol error kind when the body included one.
type APIError struct {
	StatusCode int
	Message    string
	Kind       string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("gateway returned %d (%s): %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// DeviceClient talks to the open device registration endpoint and, when
// operator credentials are set, to the provisioning and lifecycle endpoints.
type DeviceClient struct {
	// ServerAddr is the base URL of the gateway, e.g. http://127.0.0.1:8080.
	ServerAddr string

	// OperatorUsername and OperatorPassword authenticate provisioning and
	// lifecycle calls. Registration needs no credentials.
	OperatorUsername string
	OperatorPassword string

	// HTTPClient overrides http.DefaultClient when set.
	HTTPClient *http.Client
}

// Provision creates or updates a device record.
func (c *DeviceClient) Provision(ctx context.Context, req *api.ProvisionRequest) (*api.ProvisionResponse, error) {
	var resp api.ProvisionResponse
	if err := c.post(ctx, "/api/devices", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register performs one round of the registration protocol: a challenge
// request or a challenge response, depending on the payload.
func (c *DeviceClient) Register(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	if err := c.post(ctx, "/api/devices/register", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Authenticate runs the full handshake for a device holding staticSecret:
// it requests a challenge, computes the response, and submits it. An empty
// authID defaults to the device id.
func (c *DeviceClient) Authenticate(ctx context.Context, deviceID, authID, staticSecret string, attributes map[string]any) (*api.RegisterResponse, error) {
	if authID == "" {
		authID = deviceID
	}
	challenge, err := c.Register(ctx, &api.RegisterRequest{
		DeviceID:         deviceID,
		AuthID:           authID,
		AuthSecret:       staticSecret,
		RequestChallenge: true,
	})
	if err != nil {
		return nil, fmt.Errorf("challenge request failed: %w", err)
	}
	if challenge.Challenge == "" {
		return nil, fmt.Errorf("gateway did not issue a challenge, status %q", challenge.Status)
	}

	response := cryptoutils.ChallengeResponse(cryptoutils.HashSecret(staticSecret), challenge.Challenge)
	result, err := c.Register(ctx, &api.RegisterRequest{
		DeviceID:          deviceID,
		AuthID:            authID,
		ChallengeResponse: response,
		Attributes:        attributes,
	})
	if err != nil {
		return nil, fmt.Errorf("challenge verification failed: %w", err)
	}
	return result, nil
}

// Rotate forces a session secret rotation.
func (c *DeviceClient) Rotate(ctx context.Context, deviceID string) (*api.RotateResponse, error) {
	var resp api.RotateResponse
	if err := c.post(ctx, "/api/devices/"+deviceID+"/rotate", nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Quarantine latches a device out of authentication.
func (c *DeviceClient) Quarantine(ctx context.Context, deviceID, reason string) (*api.LifecycleResponse, error) {
	var resp api.LifecycleResponse
	if err := c.post(ctx, "/api/devices/"+deviceID+"/quarantine", &api.LifecycleRequest{Reason: reason}, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Authorize releases a device from quarantine.
func (c *DeviceClient) Authorize(ctx context.Context, deviceID, note string) (*api.LifecycleResponse, error) {
	var resp api.LifecycleResponse
	if err := c.post(ctx, "/api/devices/"+deviceID+"/authorize", &api.LifecycleRequest{Reason: note}, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete removes a device record.
func (c *DeviceClient) Delete(ctx context.Context, deviceID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.ServerAddr+"/api/devices/"+deviceID, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	return c.do(req, &api.StatusResponse{})
}

// List fetches all device records with their derived health signals.
func (c *DeviceClient) List(ctx context.Context) ([]api.DeviceSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ServerAddr+"/api/devices", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	var devices []api.DeviceSummary
	if err := c.do(req, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (c *DeviceClient) post(ctx context.Context, path string, payload, result any, operator bool) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ServerAddr+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if operator {
		c.authorize(req)
	}
	return c.do(req, result)
}

func (c *DeviceClient) authorize(req *http.Request) {
	if c.OperatorUsername != "" {
		req.SetBasicAuth(c.OperatorUsername, c.OperatorPassword)
	}
}

func (c *DeviceClient) do(req *http.Request, result any) error {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil {
			apiErr.Message = errBody.Error
			apiErr.Kind = errBody.Kind
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("could not parse gateway response: %w", err)
	}
	return nil
}
