// Package jira fetches the recent stories of a Jira project so they can be
// listed beside the assessment.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hardgate/internal/config"
	"github.com/hardgate/internal/logging"
	"github.com/hardgate/internal/retry"
)

// AttachmentsDir is the output sub-directory holding downloaded images.
const AttachmentsDir = "jira_attachments"

var imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp"}

// Comment is a story comment.
type Comment struct {
	Author  string `json:"author"`
	Body    string `json:"body"`
	Created string `json:"created"`
}

// Attachment describes a story attachment. LocalPath is set, relative to the
// output directory, once an image has been downloaded.
type Attachment struct {
	Filename    string `json:"filename"`
	Created     string `json:"created"`
	IsImage     bool   `json:"is_image"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	LocalPath   string `json:"local_path,omitempty"`
}

// Story is a Jira issue as shown in the report.
type Story struct {
	Key         string       `json:"key"`
	Summary     string       `json:"summary"`
	Status      string       `json:"status"`
	Description string       `json:"description"`
	Created     string       `json:"created"`
	Updated     string       `json:"updated"`
	Comments    []Comment    `json:"comments"`
	Attachments []Attachment `json:"attachments"`
}

// Client talks to the Jira REST v2 API with basic authentication.
type Client struct {
	baseURL    string
	username   string
	apiToken   string
	projectKey string
	maxResults int
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Config
}

// New returns a client for cfg, or nil when the credentials are incomplete.
func New(cfg config.JiraConfig) *Client {
	if !cfg.Configured() {
		return nil
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		username:   cfg.Username,
		apiToken:   cfg.APIToken,
		projectKey: cfg.ProjectKey,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		retry:      retry.Default(),
	}
}

// ServerInfo is the subset of /serverInfo used to verify the connection.
type ServerInfo struct {
	Version        string `json:"version"`
	ServerTitle    string `json:"serverTitle"`
	DeploymentType string `json:"deploymentType"`
}

type searchResponse struct {
	Issues []struct {
		Key    string `json:"key"`
		Fields struct {
			Summary     string `json:"summary"`
			Description string `json:"description"`
			Created     string `json:"created"`
			Updated     string `json:"updated"`
			Status      struct {
				Name string `json:"name"`
			} `json:"status"`
			Comment struct {
				Comments []struct {
					Author struct {
						DisplayName string `json:"displayName"`
					} `json:"author"`
					Body    string `json:"body"`
					Created string `json:"created"`
				} `json:"comments"`
			} `json:"comment"`
			Attachment []struct {
				ID       string `json:"id"`
				Filename string `json:"filename"`
				Created  string `json:"created"`
				MimeType string `json:"mimeType"`
				Size     int64  `json:"size"`
				Content  string `json:"content"`
			} `json:"attachment"`
		} `json:"fields"`
	} `json:"issues"`
}

// ServerInfo verifies the connection.
func (c *Client) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	var info ServerInfo
	if err := c.getJSON(ctx, c.baseURL+"/rest/api/2/serverInfo", &info); err != nil {
		return nil, fmt.Errorf("jira server info: %w", err)
	}
	return &info, nil
}

// SearchJQL returns the JQL used to list the project's stories.
func SearchJQL(projectKey string) string {
	return fmt.Sprintf(`project = "%s" ORDER BY updated DESC`, projectKey)
}

// Stories returns the most recently updated stories of the project. Image
// attachments are saved under <outputDir>/jira_attachments.
func (c *Client) Stories(ctx context.Context, outputDir string) ([]Story, error) {
	info, err := c.ServerInfo(ctx)
	if err != nil {
		return nil, err
	}
	log.Info().Str("url", c.baseURL).Str("version", info.Version).Msg("Connected to Jira")

	q := url.Values{}
	q.Set("jql", SearchJQL(c.projectKey))
	q.Set("maxResults", fmt.Sprint(c.maxResults))
	q.Set("fields", "summary,status,description,created,updated,comment,attachment")

	var resp searchResponse
	if err := c.getJSON(ctx, c.baseURL+"/rest/api/2/search?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("jira search: %w", err)
	}

	stories := make([]Story, 0, len(resp.Issues))
	for _, issue := range resp.Issues {
		f := issue.Fields
		s := Story{
			Key:         issue.Key,
			Summary:     f.Summary,
			Status:      f.Status.Name,
			Description: f.Description,
			Created:     f.Created,
			Updated:     f.Updated,
			Comments:    []Comment{},
			Attachments: []Attachment{},
		}
		for _, cm := range f.Comment.Comments {
			s.Comments = append(s.Comments, Comment{Author: cm.Author.DisplayName, Body: cm.Body, Created: cm.Created})
		}
		for _, a := range f.Attachment {
			att := Attachment{
				Filename:    a.Filename,
				Created:     a.Created,
				IsImage:     IsImage(a.Filename),
				ContentType: a.MimeType,
				Size:        a.Size,
			}
			if att.IsImage && a.Content != "" && outputDir != "" {
				rel, err := c.download(ctx, a.Content, outputDir, a.Filename)
				if err != nil {
					log.Warn().Err(err).Str("attachment", a.Filename).Msg("Could not download Jira attachment")
				} else {
					att.LocalPath = rel
				}
			}
			s.Attachments = append(s.Attachments, att)
		}
		stories = append(stories, s)
	}
	log.Info().Str("project", c.projectKey).Int("stories", len(stories)).Msg("Fetched Jira stories")
	return stories, nil
}

// IsImage reports whether a filename has an image extension.
func IsImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range imageExts {
		if ext == e {
			return true
		}
	}
	return false
}

func (c *Client) download(ctx context.Context, contentURL, outputDir, filename string) (string, error) {
	body, err := c.get(ctx, contentURL)
	if err != nil {
		return "", err
	}
	name := path.Base(filepath.ToSlash(filename))
	dir := filepath.Join(outputDir, AttachmentsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, name), body, 0644); err != nil {
		return "", err
	}
	return AttachmentsDir + "/" + name, nil
}

func (c *Client) getJSON(ctx context.Context, apiURL string, v any) error {
	body, err := c.get(ctx, apiURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", apiURL, err)
	}
	return nil
}

// get performs a paced, retried GET with basic auth.
func (c *Client) get(ctx context.Context, apiURL string) ([]byte, error) {
	var body []byte
	res := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.SetBasicAuth(c.username, c.apiToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return &retry.StatusError{Code: resp.StatusCode, Body: string(data)}
		}
		body = data
		return nil
	}, logging.GetCurrentLogger())
	if !res.Success {
		return nil, res.LastError
	}
	return body, nil
}
