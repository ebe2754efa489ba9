package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Sami9889/grook/internal/websearch"
	"github.com/Sami9889/grook/tools"
)

const searchResultLimit = 3

// Searcher is the search backend the search_web tool calls.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]websearch.Result, error)
}

type SearchWebTool struct {
	api      API
	searcher Searcher
	log      *slog.Logger
}

func NewSearchWebTool(api API, searcher Searcher, log *slog.Logger) *SearchWebTool {
	if log == nil {
		log = slog.Default()
	}
	return &SearchWebTool{api: api, searcher: searcher, log: log}
}

type searchWebParams struct {
	Query string `json:"query" jsonschema_description:"The web search query."`
}

func (t *SearchWebTool) Name() string { return "search_web" }

func (t *SearchWebTool) Description() string {
	return "Search the web and return up to 3 ranked results with titles, URLs and snippets."
}

func (t *SearchWebTool) ParameterSchema() string {
	return tools.SchemaFor(searchWebParams{})
}

// Execute posts a transient status message into the thread while the search
// runs and deletes it afterwards. A failed delete only logs; the results
// still come back.
func (t *SearchWebTool) Execute(ctx context.Context, params map[string]any, scope tools.Scope) tools.Outcome {
	if t == nil || t.api == nil || t.searcher == nil {
		return tools.Failuref("search_web is disabled")
	}
	var in searchWebParams
	if err := tools.DecodeParams(params, &in); err != nil {
		return tools.Failuref("invalid params: %v", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return tools.Failuref("missing required param: query")
	}

	statusTS, err := t.api.PostMessage(ctx, scope.ChannelID, "Searching the web...", scope.ThreadTS, false)
	if err != nil {
		t.log.Warn("search_status_post_failed", "error", err)
	}

	results, searchErr := t.searcher.Search(ctx, in.Query, searchResultLimit)

	if statusTS != "" {
		if err := t.api.DeleteMessage(ctx, scope.ChannelID, statusTS); err != nil {
			t.log.Warn("search_status_delete_failed", "error", err)
		}
	}
	if searchErr != nil {
		return tools.Failuref("search failed: %v", searchErr)
	}
	if len(results) == 0 {
		return tools.Success{Value: "no results"}
	}

	lines := make([]string, 0, len(results))
	for _, r := range results {
		line := fmt.Sprintf("%s (%s, score %.2f): %s", r.Title, r.URL, r.Score, r.Description)
		if len(r.Snippets) > 0 {
			line += " | " + strings.Join(r.Snippets, " | ")
		}
		lines = append(lines, line)
	}
	return tools.Success{Value: lines}
}
