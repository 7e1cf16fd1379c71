// Package toollist fetches the roster of externally available workflow
// tools the assistant may reference in its prompt.
package toollist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const webhookNodeType = "n8n-nodes-base.webhook"

// Tool is one named workflow with its webhook invocation path.
type Tool struct {
	Name        string
	WebhookPath string
}

type workflowNode struct {
	Type       string `json:"type"`
	Parameters struct {
		HTTPMethod string `json:"httpMethod,omitempty"`
		Path       string `json:"path,omitempty"`
	} `json:"parameters"`
}

type workflow struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Active bool           `json:"active"`
	Nodes  []workflowNode `json:"nodes"`
}

type workflowResponse struct {
	Data []workflow `json:"data"`
}

type Client struct {
	http    *http.Client
	baseURL string
}

func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimSpace(strings.TrimRight(baseURL, "/")),
	}
}

// Fetch lists active workflows and returns one Tool per webhook node
// carrying both an HTTP method and a path.
func (c *Client) Fetch(ctx context.Context) ([]Tool, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("tool list endpoint is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/workflows?active=true", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tool list: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch tool list: http %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var parsed workflowResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode tool list: %w", err)
	}

	var tools []Tool
	for _, wf := range parsed.Data {
		for _, node := range wf.Nodes {
			if node.Type != webhookNodeType {
				continue
			}
			if strings.TrimSpace(node.Parameters.HTTPMethod) == "" || strings.TrimSpace(node.Parameters.Path) == "" {
				continue
			}
			tools = append(tools, Tool{
				Name:        strings.TrimSpace(wf.Name),
				WebhookPath: strings.TrimSpace(node.Parameters.Path),
			})
		}
	}
	return tools, nil
}
