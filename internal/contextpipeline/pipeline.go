// Package contextpipeline implements the Context Pipeline (component C):
// it turns a BacklogProject into a bounded, prompt-ready context string by
// concurrently fetching repository metadata and attached documents.
package contextpipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v82/github"
	"golang.org/x/sync/errgroup"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agentboard/agentboard/internal/boardmodel"
)

const (
	readmeMaxChars     = 2500
	fileTreeMaxEntries = 40
	documentMaxChars   = 3000
	maxDocuments       = 5
	documentTimeout    = 15 * time.Second
	userAgent          = "agentboard-context-pipeline"
)

// ignoredTreePatterns are directories whose entries are noise in a
// package-manifest-style context summary.
var ignoredTreePatterns = []string{".git/**", "node_modules/**", "vendor/**", "dist/**", "build/**"}

var ownerRepoRe = regexp.MustCompile(`github\.com[/:]([^/]+)/([^/.]+)(?:\.git)?`)

// RepoSummary is the reduced context gathered from a GitHub repository.
type RepoSummary struct {
	README   string
	FileTree []string
	Manifest ManifestSummary
	Branch   string
}

// ManifestSummary is a package manifest reduced to its identifying fields.
type ManifestSummary struct {
	Name            string
	Version         string
	Dependencies    []string
	DevDependencies []string
}

// DocumentSummary is one attached document after fetch/strip/truncate.
type DocumentSummary struct {
	Name    string
	Content string
	Error   string
}

// GitHubClient is the subset of go-github's surface the pipeline needs;
// satisfied by *gogithub.Client and fakeable in tests.
type GitHubClient interface {
	GetReadme(ctx context.Context, owner, repo, branch string) (string, error)
	GetTree(ctx context.Context, owner, repo, branch string) ([]string, error)
	GetManifest(ctx context.Context, owner, repo, branch string) (ManifestSummary, error)
}

// TicketResolver resolves a Jira- or GitLab-shaped attached-document URL
// directly through its REST API. handled is false for any URL that does
// not match one of those shapes, signaling the caller to fall back to the
// generic HTTP+HTML-strip fetch.
type TicketResolver interface {
	Resolve(ctx context.Context, rawURL string) (content string, handled bool, err error)
}

// HTTPGitHubClient adapts gogithub.Client to GitHubClient.
type HTTPGitHubClient struct {
	Client *gogithub.Client
}

func (c *HTTPGitHubClient) GetReadme(ctx context.Context, owner, repo, branch string) (string, error) {
	readme, _, err := c.Client.Repositories.GetReadme(ctx, owner, repo, &gogithub.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		return "", err
	}
	return readme.GetContent()
}

func (c *HTTPGitHubClient) GetTree(ctx context.Context, owner, repo, branch string) ([]string, error) {
	tree, _, err := c.Client.Git.GetTree(ctx, owner, repo, branch, true)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		paths = append(paths, e.GetPath())
	}
	return paths, nil
}

func (c *HTTPGitHubClient) GetManifest(ctx context.Context, owner, repo, branch string) (ManifestSummary, error) {
	content, _, _, err := c.Client.Repositories.GetContents(ctx, owner, repo, "package.json", &gogithub.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		return ManifestSummary{}, err
	}
	raw, err := content.GetContent()
	if err != nil {
		return ManifestSummary{}, err
	}
	return parseManifest(raw), nil
}

// ParseOwnerRepo extracts owner/repo from a githubLink of the form
// github.com/owner/repo[.git][/...]. Returns ("", "") on no match.
func ParseOwnerRepo(link string) (owner, repo string) {
	m := ownerRepoRe.FindStringSubmatch(link)
	if m == nil {
		return "", ""
	}
	return m[1], strings.TrimSuffix(m[2], ".git")
}

// FetchRepo tries branches in order, stopping at the first that yields a
// readme, tree, and manifest (missing manifest is tolerated).
func FetchRepo(ctx context.Context, client GitHubClient, owner, repo string) (RepoSummary, error) {
	var lastErr error
	for _, branch := range []string{"main", "master"} {
		readme, err := client.GetReadme(ctx, owner, repo, branch)
		if err != nil {
			lastErr = err
			continue
		}
		tree, err := client.GetTree(ctx, owner, repo, branch)
		if err != nil {
			lastErr = err
			continue
		}
		manifest, _ := client.GetManifest(ctx, owner, repo, branch)
		return RepoSummary{
			README:   truncate(readme, readmeMaxChars),
			FileTree: capFileTree(tree),
			Manifest: manifest,
			Branch:   branch,
		}, nil
	}
	return RepoSummary{}, fmt.Errorf("fetch repo %s/%s: %w", owner, repo, lastErr)
}

func capFileTree(paths []string) []string {
	var filtered []string
	for _, p := range paths {
		if isIgnored(p) {
			continue
		}
		filtered = append(filtered, p)
	}
	if len(filtered) <= fileTreeMaxEntries {
		return filtered
	}
	kept := filtered[:fileTreeMaxEntries]
	kept = append(kept, fmt.Sprintf("... and %d more files", len(filtered)-fileTreeMaxEntries))
	return kept
}

func isIgnored(path string) bool {
	for _, pattern := range ignoredTreePatterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

func parseManifest(raw string) ManifestSummary {
	// A light-touch extraction rather than a full package.json decode: the
	// context only needs identifying fields, not a build graph.
	get := func(key string) string {
		re := regexp.MustCompile(`"` + key + `"\s*:\s*"([^"]*)"`)
		m := re.FindStringSubmatch(raw)
		if m == nil {
			return ""
		}
		return m[1]
	}
	return ManifestSummary{
		Name:            get("name"),
		Version:         get("version"),
		Dependencies:    objectKeys(raw, "dependencies"),
		DevDependencies: objectKeys(raw, "devDependencies"),
	}
}

func objectKeys(raw, section string) []string {
	re := regexp.MustCompile(`"` + section + `"\s*:\s*\{([^}]*)\}`)
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	keyRe := regexp.MustCompile(`"([^"]+)"\s*:`)
	matches := keyRe.FindAllStringSubmatch(m[1], -1)
	keys := make([]string, 0, len(matches))
	for _, km := range matches {
		keys = append(keys, km[1])
	}
	return keys
}

// FetchDocuments resolves up to maxDocuments attached documents
// concurrently. Per-document failures become placeholder sections.
// resolver may be nil, in which case every document goes through the
// generic fetch path.
func FetchDocuments(ctx context.Context, httpClient *http.Client, resolver TicketResolver, docs []boardmodel.Document) []DocumentSummary {
	if len(docs) > maxDocuments {
		docs = docs[:maxDocuments]
	}
	summaries := make([]DocumentSummary, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range docs {
		i, d := i, d
		g.Go(func() error {
			summaries[i] = fetchOneDocument(gctx, httpClient, resolver, d)
			return nil
		})
	}
	_ = g.Wait()
	return summaries
}

func fetchOneDocument(ctx context.Context, httpClient *http.Client, resolver TicketResolver, doc boardmodel.Document) DocumentSummary {
	// Documents are cut at documentMaxChars with no ellipsis appended.
	cut := func(s string) string {
		if len(s) > documentMaxChars {
			return s[:documentMaxChars]
		}
		return s
	}

	if doc.Content != "" {
		return DocumentSummary{Name: doc.Name, Content: cut(stripHTML(doc.Content))}
	}
	if doc.URL == "" {
		return DocumentSummary{Name: doc.Name, Error: "no content or url"}
	}

	if resolver != nil {
		if content, handled, err := resolver.Resolve(ctx, doc.URL); handled {
			if err != nil {
				return DocumentSummary{Name: doc.Name, Error: err.Error()}
			}
			return DocumentSummary{Name: doc.Name, Content: cut(content)}
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, documentTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, doc.URL, nil)
	if err != nil {
		return DocumentSummary{Name: doc.Name, Error: err.Error()}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return DocumentSummary{Name: doc.Name, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return DocumentSummary{Name: doc.Name, Error: fmt.Sprintf("fetch failed: status %d", resp.StatusCode)}
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "pdf") {
		return DocumentSummary{Name: doc.Name, Content: fmt.Sprintf("[PDF document, see %s]", doc.URL)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, documentMaxChars*4))
	if err != nil && len(body) == 0 {
		return DocumentSummary{Name: doc.Name, Error: err.Error()}
	}

	return DocumentSummary{Name: doc.Name, Content: cut(stripHTML(string(body)))}
}

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

func stripHTML(s string) string {
	s = scriptStyleRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// promptTemplate frames the role and contract in German, per the agreed
// spec-generation convention.
const promptTemplate = `Du bist ein erfahrener Produktmanager und Solutions-Architekt. Analysiere das folgende Projekt und erstelle eine strukturierte Spezifikation mit Aufgabenliste.

Projekt: %s
Beschreibung: %s
Link: %s

%s

Antworte ausschliesslich mit einem einzigen JSON-Objekt der Form {"spec": "markdown-string", "tasks": [{"title": "...", "details": "..."}]} ohne Code-Fences.`

// BuildPrompt composes the final prompt-ready string from the project,
// repo summary (optional), and document summaries.
func BuildPrompt(project boardmodel.BacklogProject, repo *RepoSummary, docs []DocumentSummary) string {
	var enrichment strings.Builder

	if repo != nil {
		enrichment.WriteString("README:\n")
		enrichment.WriteString(repo.README)
		enrichment.WriteString("\n\nDateistruktur:\n")
		for _, p := range repo.FileTree {
			enrichment.WriteString("- ")
			enrichment.WriteString(p)
			enrichment.WriteString("\n")
		}
		if repo.Manifest.Name != "" {
			enrichment.WriteString(fmt.Sprintf("\nManifest: %s@%s\nAbhaengigkeiten: %s\nDev-Abhaengigkeiten: %s\n",
				repo.Manifest.Name, repo.Manifest.Version,
				strings.Join(repo.Manifest.Dependencies, ", "),
				strings.Join(repo.Manifest.DevDependencies, ", ")))
		}
	}

	for _, d := range docs {
		enrichment.WriteString("\nDokument: ")
		enrichment.WriteString(d.Name)
		enrichment.WriteString("\n")
		if d.Error != "" {
			enrichment.WriteString("[nicht verfuegbar: ")
			enrichment.WriteString(d.Error)
			enrichment.WriteString("]\n")
			continue
		}
		enrichment.WriteString(d.Content)
		enrichment.WriteString("\n")
	}

	return fmt.Sprintf(promptTemplate, project.Title, project.Description, project.GithubLink, enrichment.String())
}

// Run gathers repo and document context for project and returns the
// composed prompt. A missing or unparsable githubLink simply skips the
// repo enrichment section rather than failing the whole pipeline. resolver
// may be nil to skip ticket-link-aware document fetching entirely.
func Run(ctx context.Context, client GitHubClient, httpClient *http.Client, resolver TicketResolver, project boardmodel.BacklogProject) string {
	var repo *RepoSummary
	var docs []DocumentSummary

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		owner, repoName := ParseOwnerRepo(project.GithubLink)
		if owner == "" || repoName == "" {
			return nil
		}
		summary, err := FetchRepo(gctx, client, owner, repoName)
		if err != nil {
			return nil
		}
		repo = &summary
		return nil
	})
	g.Go(func() error {
		docs = FetchDocuments(gctx, httpClient, resolver, project.Documents)
		return nil
	})
	_ = g.Wait()

	return BuildPrompt(project, repo, docs)
}
