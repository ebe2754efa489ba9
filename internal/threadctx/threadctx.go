// Package threadctx turns a fetched Slack thread into a model-ready
// conversation and resolves every user/channel id mentioned in it into a
// display label the model can use.
package threadctx

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Sami9889/grook/internal/slackapi"
	"github.com/Sami9889/grook/llm"
)

// idPattern matches Slack user (U), channel (C) and DM (D) ids: a kind
// prefix plus ten alphanumerics.
var idPattern = regexp.MustCompile(`(?i)\b[ucd][a-z0-9]{10}\b`)

const (
	lookupLimit   = 8
	maxImageBytes = 4 << 20
)

// Directory is the subset of the Slack client the builder needs to resolve
// mentioned entities.
type Directory interface {
	UserInfo(ctx context.Context, userID string) (slackapi.UserInfo, error)
	ChannelInfo(ctx context.Context, channelID string) (slackapi.ChannelInfo, error)
}

// Context is one turn's model input: the converted thread plus a system note
// listing every id the thread mentions.
type Context struct {
	Conversation  []llm.Message
	DirectoryNote string
}

type Builder struct {
	dir      Directory
	http     *http.Client
	botToken string
	botID    string
	log      *slog.Logger
}

func NewBuilder(dir Directory, httpClient *http.Client, botToken, botID string, log *slog.Logger) (*Builder, error) {
	if dir == nil {
		return nil, fmt.Errorf("directory client is required")
	}
	if botID == "" {
		return nil, fmt.Errorf("bot id is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Builder{dir: dir, http: httpClient, botToken: botToken, botID: botID, log: log}, nil
}

// Build converts the thread's replies into conversation messages and renders
// the entity directory for channelID. Image attachments are fetched
// concurrently; a failed fetch drops the image, not the turn.
func (b *Builder) Build(ctx context.Context, replies []slackapi.ThreadMessage, channelID string) (Context, error) {
	conversation := make([]llm.Message, len(replies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupLimit)
	for i, reply := range replies {
		g.Go(func() error {
			conversation[i] = b.convert(gctx, reply)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Context{}, err
	}

	note, err := b.directoryNote(ctx, conversation, channelID)
	if err != nil {
		return Context{}, err
	}
	return Context{Conversation: conversation, DirectoryNote: note}, nil
}

func (b *Builder) convert(ctx context.Context, reply slackapi.ThreadMessage) llm.Message {
	if reply.BotID != "" || reply.User == b.botID {
		return llm.Message{Role: llm.RoleAssistant, Content: reply.Text}
	}
	text := fmt.Sprintf("User ID %s: %s", reply.User, reply.Text)
	var images []llm.ContentBlock
	for _, file := range reply.Files {
		if !strings.HasPrefix(file.Mimetype, "image/") {
			continue
		}
		block, err := b.fetchImage(ctx, file)
		if err != nil {
			b.log.Warn("image_fetch_failed", "mimetype", file.Mimetype, "error", err)
			continue
		}
		images = append(images, block)
	}
	if len(images) == 0 {
		return llm.Message{Role: llm.RoleUser, Content: text}
	}
	blocks := append([]llm.ContentBlock{{Type: llm.BlockText, Text: text}}, images...)
	return llm.Message{Role: llm.RoleUser, Blocks: blocks}
}

func (b *Builder) fetchImage(ctx context.Context, file slackapi.File) (llm.ContentBlock, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URLPrivateDownload, nil)
	if err != nil {
		return llm.ContentBlock{}, err
	}
	if b.botToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.botToken)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return llm.ContentBlock{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return llm.ContentBlock{}, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return llm.ContentBlock{}, err
	}
	if len(data) > maxImageBytes {
		return llm.ContentBlock{}, fmt.Errorf("fetch image: larger than %d bytes", maxImageBytes)
	}
	return llm.ContentBlock{
		Type:      llm.BlockImage,
		MediaType: file.Mimetype,
		Data:      base64.StdEncoding.EncodeToString(data),
	}, nil
}

// directoryNote scans the conversation for entity ids, resolves each distinct
// id once and renders the result as one system note. channelID is always
// included even when no message mentions it.
func (b *Builder) directoryNote(ctx context.Context, conversation []llm.Message, channelID string) (string, error) {
	channelID = strings.ToUpper(channelID)

	var ids []string
	seen := map[string]bool{}
	add := func(id string) {
		id = strings.ToUpper(id)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, msg := range conversation {
		for _, match := range idPattern.FindAllString(msg.TextOf(), -1) {
			add(match)
		}
	}
	if channelID != "" {
		add(channelID)
	}

	entries := make([]dirEntry, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupLimit)
	for i, id := range ids {
		g.Go(func() error {
			entries[i] = b.resolve(gctx, id, channelID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Relevant IDs (U = User, C/D = Channel):\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s: %s\n", e.key, e.label)
	}
	return sb.String(), nil
}

type dirEntry struct {
	key   string
	label string
}

func (b *Builder) resolve(ctx context.Context, id, channelID string) dirEntry {
	e := dirEntry{key: id}
	if strings.HasPrefix(id, "C") || strings.HasPrefix(id, "D") {
		info, err := b.dir.ChannelInfo(ctx, id)
		if err != nil {
			b.log.Warn("entity_lookup_failed", "id", id, "error", err)
			e.label = "unknown/nonexistent/private"
			return e
		}
		if id == channelID {
			e.key += " (current channel)"
		}
		if info.Name == "" {
			e.label = "direct message"
		} else {
			e.label = info.Name
		}
		return e
	}
	info, err := b.dir.UserInfo(ctx, id)
	if err != nil {
		b.log.Warn("entity_lookup_failed", "id", id, "error", err)
		e.label = "unknown/nonexistent"
		return e
	}
	e.label = profileName(info)
	return e
}

func profileName(info slackapi.UserInfo) string {
	for _, key := range []string{"display_name", "real_name"} {
		if v, ok := info.Profile[key].(string); ok && v != "" {
			return v
		}
	}
	return info.Name
}
