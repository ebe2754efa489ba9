package slack

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/Sami9889/grook/tools"
)

const maxPeekBytes = 1 << 20

type LinkPeekTool struct {
	http *http.Client
}

func NewLinkPeekTool(httpClient *http.Client) *LinkPeekTool {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &LinkPeekTool{http: httpClient}
}

type linkPeekParams struct {
	URL string `json:"url" jsonschema_description:"The http(s) URL to look at."`
}

func (t *LinkPeekTool) Name() string { return "link_peek" }

func (t *LinkPeekTool) Description() string {
	return "Fetch a web page and return its title and description, for links shared in the thread."
}

func (t *LinkPeekTool) ParameterSchema() string {
	return tools.SchemaFor(linkPeekParams{})
}

func (t *LinkPeekTool) Execute(ctx context.Context, params map[string]any, _ tools.Scope) tools.Outcome {
	if t == nil || t.http == nil {
		return tools.Failuref("link_peek is disabled")
	}
	var in linkPeekParams
	if err := tools.DecodeParams(params, &in); err != nil {
		return tools.Failuref("invalid params: %v", err)
	}
	target, err := url.Parse(strings.TrimSpace(in.URL))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return tools.Failuref("url must be http or https")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return tools.Failuref("bad request: %v", err)
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return tools.Failuref("fetch failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return tools.Failuref("fetch failed: status %d", resp.StatusCode)
	}

	title, description := extractPageMeta(io.LimitReader(resp.Body, maxPeekBytes))
	if title == "" && description == "" {
		return tools.Failuref("no title or description found at %s", target)
	}
	out := fmt.Sprintf("Title: %s", title)
	if description != "" {
		out += "\nDescription: " + description
	}
	return tools.Success{Value: out}
}

// extractPageMeta pulls <title> and the description meta tag out of an HTML
// stream, stopping at the end of <head>.
func extractPageMeta(r io.Reader) (title, description string) {
	tokenizer := html.NewTokenizer(r)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return title, description
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			switch token.Data {
			case "title":
				if tokenizer.Next() == html.TextToken {
					title = strings.TrimSpace(tokenizer.Token().Data)
				}
			case "meta":
				var name, content string
				for _, attr := range token.Attr {
					switch attr.Key {
					case "name", "property":
						name = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				if (name == "description" || name == "og:description") && description == "" {
					description = strings.TrimSpace(content)
				}
			}
		case html.EndTagToken:
			if tokenizer.Token().Data == "head" {
				return title, description
			}
		}
	}
}
