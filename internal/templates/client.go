package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Template is a hosted email template as the orchestrator sees it.
type Template struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Versions []Version `json:"versions,omitempty"`
}

// Version is one stored revision of a template. The orchestrator only ever
// reads these fields; it never mutates the remote template.
type Version struct {
	ID          string `json:"id"`
	TemplateID  string `json:"template_id"`
	Active      int    `json:"active"`
	Name        string `json:"name"`
	HTMLContent string `json:"html_content"`
	Subject     string `json:"subject"`
	UpdatedAt   string `json:"updated_at"`
	Editor      string `json:"editor"`
	TestData    string `json:"test_data"`
}

// Client is a read-only client for the template hosting API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListTemplates returns all dynamic templates known to the host.
func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	var response struct {
		Templates []Template `json:"templates"`
	}
	if err := c.get(ctx, "/v3/templates?generations=dynamic&page_size=200", &response); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return response.Templates, nil
}

// GetTemplateVersions returns the stored versions of one template.
func (c *Client) GetTemplateVersions(ctx context.Context, templateID string) ([]Version, error) {
	if templateID == "" {
		return nil, fmt.Errorf("template id is required")
	}
	var response struct {
		Versions []Version `json:"versions"`
	}
	if err := c.get(ctx, "/v3/templates/"+templateID, &response); err != nil {
		return nil, fmt.Errorf("get template %s versions: %w", templateID, err)
	}
	return response.Versions, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
