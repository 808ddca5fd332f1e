package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rpaflow/fleetcore/pkg/models"
)

// Client is the robot-side API client: it registers the robot with the
// orchestrator and pushes heartbeat snapshots.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client

	robotID string
	token   string // heartbeat token issued at registration
}

// NewClient creates a client against the orchestrator base URL. apiKey
// may be empty when the server runs in open mode.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: serverURL,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RegisterResponse is the registration result.
type RegisterResponse struct {
	RobotID string `json:"robot_id"`
	Token   string `json:"token"`
}

// Register announces the robot and stores the issued heartbeat token.
func (c *Client) Register(info *models.RobotInfo, tokenDuration time.Duration) error {
	payload := map[string]interface{}{"robot": info}
	if tokenDuration > 0 {
		payload["token_duration"] = tokenDuration.String()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal registration: %w", err)
	}

	resp, err := c.do(http.MethodPost, "/robots/register", data, http.StatusCreated)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result RegisterResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode registration response: %w", err)
	}
	c.robotID = result.RobotID
	c.token = result.Token
	return nil
}

// SendHeartbeat pushes a fresh RobotInfo snapshot.
func (c *Client) SendHeartbeat(info *models.RobotInfo) error {
	if c.robotID == "" {
		return fmt.Errorf("robot not registered")
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}

	resp, err := c.do(http.MethodPost, "/robots/"+c.robotID+"/heartbeat", data, http.StatusOK)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Deregister removes the robot from the registry.
func (c *Client) Deregister() error {
	if c.robotID == "" {
		return fmt.Errorf("robot not registered")
	}
	resp, err := c.do(http.MethodDelete, "/robots/"+c.robotID, nil, http.StatusOK)
	if err != nil {
		return err
	}
	resp.Body.Close()
	c.robotID = ""
	c.token = ""
	return nil
}

// RobotID returns the registered robot id.
func (c *Client) RobotID() string {
	return c.robotID
}

func (c *Client) do(method, path string, body []byte, wantStatus int) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.serverURL+"/api/v1"+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.token != "" {
		req.Header.Set("X-Robot-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	if resp.StatusCode != wantStatus {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s returned status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	return resp, nil
}
