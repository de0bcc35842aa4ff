// Package github polls repository activity with the owning user's OAuth token.
//
// First-run policy: FireOnFirstRun. Items are compared against the AREA
// watermark; with no watermark every item in the newest page counts as new.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/connector"
)

const Name = "GitHub"

const (
	NewStar        = "new_star"
	NewStarAlias   = "github_new_star"
	NewStarsAlias  = "github_new_stars"
	NewIssue       = "new_issue"
	NewIssueAlias  = "github_new_issue"
	PRMerged       = "pr_merged"
	PRMergedAlias  = "github_pr_merged"
	NewRepository  = "new_repository"
	NewRepoAlias   = "github_new_repository"
	DefaultBaseURL = "https://api.github.com"
)

// Connector is the GitHub service.
type Connector struct {
	connector.NoEffects
	deps    connector.Deps
	http    *connector.HTTP
	baseURL string
	log     zerolog.Logger
}

// New builds the GitHub connector; an empty baseURL targets api.github.com.
func New(deps connector.Deps, baseURL string) *Connector {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Connector{
		NoEffects: connector.NoEffects{Service: Name},
		deps:      deps,
		http:      connector.NewHTTP(Name, deps.HTTP, deps.Log),
		baseURL:   baseURL,
		log:       deps.Logger(Name),
	}
}

func (c *Connector) Describe() connector.Descriptor {
	return connector.Descriptor{
		Name:        Name,
		AuthType:    "oauth2",
		Description: "Repository stars, issues, merged pull requests and new repositories",
		FirstRun:    connector.FireOnFirstRun,
		Triggers: []string{NewStar, NewStarAlias, NewStarsAlias, NewIssue, NewIssueAlias,
			PRMerged, PRMergedAlias, NewRepository, NewRepoAlias},
	}
}

func (c *Connector) CheckTrigger(ctx context.Context, req connector.TriggerRequest) connector.TriggerResult {
	log := c.log.With().Str("trigger", req.Trigger).Str("user_id", req.UserID).Logger()

	if c.deps.Users == nil {
		log.Error().Msg("no credential store configured")
		return connector.NotTriggered()
	}
	token, ok := c.deps.Users.AccessToken(ctx, req.UserID, Name)
	if !ok {
		log.Warn().Msg("user has no GitHub token")
		return connector.NotTriggered()
	}

	repo := req.Params.String("repo", "repo_name", "repository")
	switch req.Trigger {
	case NewStar, NewStarAlias, NewStarsAlias:
		if repo == "" {
			log.Warn().Msg("missing repo parameter")
			return connector.NotTriggered()
		}
		return c.newStars(ctx, log, token, repo, req.LastExecutedAt)
	case NewIssue, NewIssueAlias:
		if repo == "" {
			log.Warn().Msg("missing repo parameter")
			return connector.NotTriggered()
		}
		return c.newIssues(ctx, log, token, repo, req.LastExecutedAt)
	case PRMerged, PRMergedAlias:
		if repo == "" {
			log.Warn().Msg("missing repo parameter")
			return connector.NotTriggered()
		}
		return c.mergedPRs(ctx, log, token, repo, req.LastExecutedAt, req.Params.Int("hours_threshold", 24))
	case NewRepository, NewRepoAlias:
		return c.newRepositories(ctx, log, token, req.LastExecutedAt)
	default:
		log.Warn().Msg("unsupported trigger")
		return connector.NotTriggered()
	}
}

func (c *Connector) get(ctx context.Context, log zerolog.Logger, token, path string, query map[string]string, accept string, out any) bool {
	_, ok := c.fetch(ctx, log, token, path, query, accept, out)
	return ok
}

// fetch is get that also hands back the response headers for pagination.
func (c *Connector) fetch(ctx context.Context, log zerolog.Logger, token, path string, query map[string]string, accept string, out any) (http.Header, bool) {
	if accept == "" {
		accept = "application/vnd.github+json"
	}
	res := c.http.Do(ctx, connector.Request{
		Method:  http.MethodGet,
		URL:     c.baseURL + path,
		Query:   query,
		Headers: map[string]string{"Accept": accept},
		Bearer:  token,
		Retry:   true,
	})
	if f := res.Decode(out); f != nil {
		log.Warn().Err(f).Str("path", path).Msg("github request failed")
		return nil, false
	}
	return res.Header, true
}

// lastPage reads the page number of the rel="last" entry of a Link header,
// or 0 when the listing fits on one page.
func lastPage(h http.Header) int {
	for _, part := range strings.Split(h.Get("Link"), ",") {
		target, params, ok := strings.Cut(strings.TrimSpace(part), ";")
		if !ok || !strings.Contains(params, `rel="last"`) {
			continue
		}
		u, err := url.Parse(strings.Trim(strings.TrimSpace(target), "<>"))
		if err != nil {
			return 0
		}
		n, _ := strconv.Atoi(u.Query().Get("page"))
		return n
	}
	return 0
}

type user struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

type stargazer struct {
	StarredAt string `json:"starred_at"`
	User      user   `json:"user"`
}

const (
	starsPerPage = 100
	maxStarPages = 5
	starAccept   = "application/vnd.github.v3.star+json"
)

// stargazerPages returns the newest pages of the stargazer listing, newest
// first. GitHub lists stars oldest first, so the walk starts at the last page
// and moves back while a whole page is newer than the watermark.
func (c *Connector) stargazerPages(ctx context.Context, log zerolog.Logger, token, repo string, last *time.Time) ([][]stargazer, bool) {
	path := "/repos/" + repo + "/stargazers"
	query := func(page int) map[string]string {
		return map[string]string{"per_page": strconv.Itoa(starsPerPage), "page": strconv.Itoa(page)}
	}
	var first []stargazer
	hdr, ok := c.fetch(ctx, log, token, path, query(1), starAccept, &first)
	if !ok {
		return nil, false
	}
	final := lastPage(hdr)
	if final <= 1 {
		return [][]stargazer{first}, true
	}

	var pages [][]stargazer
	for n := final; n >= 1 && final-n < maxStarPages; n-- {
		page := first
		if n > 1 {
			page = nil
			if _, ok := c.fetch(ctx, log, token, path, query(n), starAccept, &page); !ok {
				return pages, len(pages) > 0
			}
		}
		pages = append(pages, page)
		if last == nil || !allStarredAfter(page, last) {
			break
		}
	}
	return pages, true
}

func allStarredAfter(page []stargazer, last *time.Time) bool {
	for _, s := range page {
		at, ok := connector.ParseTime(s.StarredAt)
		if !ok || !connector.After(at, last) {
			return false
		}
	}
	return true
}

func (c *Connector) newStars(ctx context.Context, log zerolog.Logger, token, repo string, last *time.Time) connector.TriggerResult {
	pages, ok := c.stargazerPages(ctx, log, token, repo, last)
	if !ok {
		return connector.NotTriggered()
	}

	type star struct {
		at   time.Time
		item map[string]any
	}
	var fresh []star
	for _, page := range pages {
		for _, s := range page {
			at, ok := connector.ParseTime(s.StarredAt)
			if !ok || !connector.After(at, last) {
				continue
			}
			fresh = append(fresh, star{at: at, item: map[string]any{
				"user":       s.User.Login,
				"login":      s.User.Login,
				"avatar":     s.User.AvatarURL,
				"starred_at": at.UTC().Format(time.RFC3339),
			}})
		}
	}
	if len(fresh) == 0 {
		return connector.NotTriggered()
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].at.After(fresh[j].at) })

	stars := make([]any, len(fresh))
	for i, s := range fresh {
		stars[i] = s.item
	}
	latest := fresh[0].item
	return connector.Fire(Name, connector.Payload{
		"count":          len(fresh),
		"stars":          stars,
		"repo":           repo,
		"repo_name":      repo,
		"last_star_user": latest["user"],
		"last_star_time": latest["starred_at"],
		"starred_at":     latest["starred_at"],
		"message":        fmt.Sprintf("%d nouvelle(s) étoile(s) sur %s", len(fresh), repo),
		"trigger_reason": "Nouvelles étoiles détectées",
	})
}

type issue struct {
	Number      int            `json:"number"`
	Title       string         `json:"title"`
	HTMLURL     string         `json:"html_url"`
	State       string         `json:"state"`
	Body        string         `json:"body"`
	CreatedAt   string         `json:"created_at"`
	User        user           `json:"user"`
	PullRequest map[string]any `json:"pull_request"`
}

func (c *Connector) newIssues(ctx context.Context, log zerolog.Logger, token, repo string, last *time.Time) connector.TriggerResult {
	query := map[string]string{"state": "open", "sort": "created", "direction": "desc", "per_page": "10"}
	if last != nil {
		query["since"] = last.UTC().Format(time.RFC3339)
	}
	var page []issue
	if !c.get(ctx, log, token, "/repos/"+repo+"/issues", query, "", &page) {
		return connector.NotTriggered()
	}

	var issues []any
	var first *issue
	for i := range page {
		is := &page[i]
		if is.PullRequest != nil {
			continue
		}
		// "since" filters on update time; only creations after the watermark count
		at, ok := connector.ParseTime(is.CreatedAt)
		if !ok || !connector.After(at, last) {
			continue
		}
		if first == nil {
			first = is
		}
		issues = append(issues, map[string]any{
			"title":      is.Title,
			"number":     is.Number,
			"url":        is.HTMLURL,
			"user":       is.User.Login,
			"login":      is.User.Login,
			"created_at": is.CreatedAt,
			"state":      is.State,
			"body":       truncate(is.Body, 280),
		})
	}
	if first == nil {
		return connector.NotTriggered()
	}
	return connector.Fire(Name, connector.Payload{
		"count":          len(issues),
		"issues":         issues,
		"repo":           repo,
		"repo_name":      repo,
		"issue_title":    first.Title,
		"issue_number":   first.Number,
		"issue_url":      first.HTMLURL,
		"message":        fmt.Sprintf("Nouvelle issue #%d sur %s : %s", first.Number, repo, first.Title),
		"trigger_reason": "Nouvelle issue ouverte",
	})
}

type pull struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	HTMLURL  string `json:"html_url"`
	MergedAt string `json:"merged_at"`
	User     user   `json:"user"`
	Base     struct {
		Ref string `json:"ref"`
	} `json:"base"`
	Head struct {
		Ref string `json:"ref"`
	} `json:"head"`
}

func (c *Connector) mergedPRs(ctx context.Context, log zerolog.Logger, token, repo string, last *time.Time, hours int) connector.TriggerResult {
	query := map[string]string{"state": "closed", "sort": "updated", "direction": "desc", "per_page": "20"}
	var page []pull
	if !c.get(ctx, log, token, "/repos/"+repo+"/pulls", query, "", &page) {
		return connector.NotTriggered()
	}

	now := c.deps.Clock()
	horizon := now.Add(-time.Duration(hours) * time.Hour)
	var prs []any
	var latest *pull
	var latestAt time.Time
	for i := range page {
		p := &page[i]
		at, ok := connector.ParseTime(p.MergedAt)
		if !ok || at.Before(horizon) || !connector.After(at, last) {
			continue
		}
		if latest == nil || at.After(latestAt) {
			latest, latestAt = p, at
		}
		prs = append(prs, map[string]any{
			"title":           p.Title,
			"number":          p.Number,
			"url":             p.HTMLURL,
			"user":            p.User.Login,
			"merged_at":       p.MergedAt,
			"merged_at_human": fmt.Sprintf("%dh", int(now.Sub(at).Hours())),
			"base_branch":     p.Base.Ref,
			"branch":          p.Head.Ref,
		})
	}
	if latest == nil {
		return connector.NotTriggered()
	}
	return connector.Fire(Name, connector.Payload{
		"count":     len(prs),
		"pr_count":  len(prs),
		"prs":       prs,
		"repo":      repo,
		"repo_name": repo,
		"latest_pr": map[string]any{
			"number":      latest.Number,
			"title":       latest.Title,
			"url":         latest.HTMLURL,
			"user":        latest.User.Login,
			"branch":      latest.Head.Ref,
			"base_branch": latest.Base.Ref,
		},
		"pr_number":      latest.Number,
		"pr_title":       latest.Title,
		"message":        fmt.Sprintf("PR #%d mergée sur %s : %s", latest.Number, repo, latest.Title),
		"trigger_reason": "Nouveau PR mergé détecté",
	})
}

type repository struct {
	FullName    string `json:"full_name"`
	HTMLURL     string `json:"html_url"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
	CreatedAt   string `json:"created_at"`
}

func (c *Connector) newRepositories(ctx context.Context, log zerolog.Logger, token string, last *time.Time) connector.TriggerResult {
	var page []repository
	query := map[string]string{"sort": "created", "direction": "desc", "per_page": "10", "affiliation": "owner"}
	if !c.get(ctx, log, token, "/user/repos", query, "", &page) {
		return connector.NotTriggered()
	}
	var repos []any
	var first *repository
	for i := range page {
		r := &page[i]
		at, ok := connector.ParseTime(r.CreatedAt)
		if !ok || !connector.After(at, last) {
			continue
		}
		if first == nil {
			first = r
		}
		repos = append(repos, map[string]any{
			"name":        r.FullName,
			"url":         r.HTMLURL,
			"description": r.Description,
			"private":     r.Private,
			"created_at":  r.CreatedAt,
		})
	}
	if first == nil {
		return connector.NotTriggered()
	}
	return connector.Fire(Name, connector.Payload{
		"count":        len(repos),
		"repositories": repos,
		"repo":         first.FullName,
		"repo_url":     first.HTMLURL,
		"message":      "Nouveau dépôt : " + first.FullName + " (" + strconv.Itoa(len(repos)) + ")",
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
