// Package ticketlink implements the Ticket-Link Document Adapters
// (component P): Jira- and GitLab-shaped attached-document URLs are
// resolved through their REST APIs instead of the Context Pipeline's
// generic HTTP+HTML-strip fetch.
package ticketlink

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	v3 "github.com/ctreminiom/go-atlassian/v2/jira/v3"
	gogitlab "gitlab.com/gitlab-org/api/client-go"
)

var jiraURLRe = regexp.MustCompile(`(?i)^https?://([^/]+)/(?:browse|jira/[^/]+)/([A-Z][A-Z0-9]*-\d+)`)

var gitlabURLRe = regexp.MustCompile(`(?i)^https?://([^/]+)/(.+)/-/(issues|merge_requests)/(\d+)`)

// Resolver dispatches attached-document URLs to a Jira or GitLab adapter
// by shape, falling through (handled=false) for anything else.
type Resolver struct {
	jiraToken   string
	gitlabToken string

	mu         sync.Mutex
	jiraByHost map[string]*v3.Client
	gitlabByHost map[string]*gogitlab.Client
}

// New builds a Resolver. Either token may be empty; adapters for the
// matching URL shape then fail closed with an auth-missing error instead
// of being skipped, which the caller turns into the usual
// placeholder-section-never-fatal document failure.
func New(jiraToken, gitlabToken string) *Resolver {
	return &Resolver{
		jiraToken:    jiraToken,
		gitlabToken:  gitlabToken,
		jiraByHost:   map[string]*v3.Client{},
		gitlabByHost: map[string]*gogitlab.Client{},
	}
}

// Resolve dispatches rawURL by shape. handled is false when rawURL matches
// neither a Jira nor a GitLab issue/MR link, so the caller should fall
// back to its generic fetch.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (content string, handled bool, err error) {
	if m := jiraURLRe.FindStringSubmatch(rawURL); m != nil {
		content, err := r.resolveJira(ctx, m[1], m[2])
		return content, true, err
	}
	if m := gitlabURLRe.FindStringSubmatch(rawURL); m != nil {
		iid, convErr := strconv.Atoi(m[4])
		if convErr != nil {
			return "", true, fmt.Errorf("ticketlink: invalid iid in %s: %w", rawURL, convErr)
		}
		content, err := r.resolveGitLab(ctx, m[1], m[2], m[3], iid)
		return content, true, err
	}
	return "", false, nil
}

var jiraFields = []string{"summary", "description"}

func (r *Resolver) resolveJira(ctx context.Context, host, key string) (string, error) {
	if r.jiraToken == "" {
		return "", fmt.Errorf("ticketlink: jira token not configured")
	}
	client, err := r.jiraClient(host)
	if err != nil {
		return "", err
	}

	issue, resp, err := client.Issue.Get(ctx, key, jiraFields, nil)
	if err != nil {
		if resp != nil {
			return "", fmt.Errorf("jira get %s (status %d): %w", key, resp.StatusCode, err)
		}
		return "", fmt.Errorf("jira get %s: %w", key, err)
	}
	if issue == nil || issue.Fields == nil {
		return "", fmt.Errorf("jira get %s: empty response", key)
	}

	commentCount := 0
	if comments, _, err := client.Issue.Comment.Gets(ctx, key, "", nil, 0, 1); err == nil && comments != nil {
		commentCount = comments.Total
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Jira %s: %s\n\n", key, issue.Fields.Summary)
	b.WriteString(adfToText(issue.Fields.Description))
	fmt.Fprintf(&b, "\n\n(%d comments)", commentCount)
	return b.String(), nil
}

func (r *Resolver) jiraClient(host string) (*v3.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.jiraByHost[host]; ok {
		return c, nil
	}

	client, err := v3.New(&http.Client{Timeout: 15 * time.Second}, "https://"+host)
	if err != nil {
		return nil, fmt.Errorf("create jira client for %s: %w", host, err)
	}
	client.Auth.SetBasicAuth("", r.jiraToken)
	client.Auth.SetUserAgent("agentboard-ticketlink/1.0")

	r.jiraByHost[host] = client
	return client, nil
}

func (r *Resolver) resolveGitLab(ctx context.Context, host, projectPath, kind string, iid int) (string, error) {
	if r.gitlabToken == "" {
		return "", fmt.Errorf("ticketlink: gitlab token not configured")
	}
	client, err := r.gitlabClient(host)
	if err != nil {
		return "", err
	}

	projectID, err := url.QueryUnescape(projectPath)
	if err != nil {
		projectID = projectPath
	}

	switch kind {
	case "merge_requests":
		mr, _, err := client.MergeRequests.GetMergeRequest(projectID, int64(iid), nil, gogitlab.WithContext(ctx))
		if err != nil {
			return "", fmt.Errorf("gitlab get merge request %s!%d: %w", projectID, iid, err)
		}
		return fmt.Sprintf("GitLab MR %s!%d: %s\n\n%s", projectID, iid, mr.Title, mr.Description), nil
	default:
		issue, _, err := client.Issues.GetIssue(projectID, int64(iid), gogitlab.WithContext(ctx))
		if err != nil {
			return "", fmt.Errorf("gitlab get issue %s#%d: %w", projectID, iid, err)
		}
		return fmt.Sprintf("GitLab issue %s#%d: %s\n\n%s", projectID, iid, issue.Title, issue.Description), nil
	}
}

func (r *Resolver) gitlabClient(host string) (*gogitlab.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.gitlabByHost[host]; ok {
		return c, nil
	}

	var client *gogitlab.Client
	var err error
	if host == "" || host == "gitlab.com" {
		client, err = gogitlab.NewClient(r.gitlabToken)
	} else {
		client, err = gogitlab.NewClient(r.gitlabToken, gogitlab.WithBaseURL("https://"+host+"/api/v4"))
	}
	if err != nil {
		return nil, fmt.Errorf("create gitlab client for %s: %w", host, err)
	}

	r.gitlabByHost[host] = client
	return client, nil
}
