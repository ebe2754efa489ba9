package slackapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type AuthIdentity struct {
	TeamID string
	UserID string
	BotID  string
	Team   string
	User   string
}

type authTestResponse struct {
	TeamID string `json:"team_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	BotID  string `json:"bot_id,omitempty"`
	Team   string `json:"team,omitempty"`
	User   string `json:"user,omitempty"`
}

func (c *Client) AuthTest(ctx context.Context) (AuthIdentity, error) {
	var out authTestResponse
	if err := c.callJSON(ctx, http.MethodPost, "/auth.test", nil, nil, &out); err != nil {
		return AuthIdentity{}, err
	}
	id := AuthIdentity{
		TeamID: strings.TrimSpace(out.TeamID),
		UserID: strings.TrimSpace(out.UserID),
		BotID:  strings.TrimSpace(out.BotID),
		Team:   strings.TrimSpace(out.Team),
		User:   strings.TrimSpace(out.User),
	}
	if id.UserID == "" {
		return AuthIdentity{}, fmt.Errorf("slack auth.test returned empty user_id")
	}
	return id, nil
}

type postMessageRequest struct {
	Channel        string `json:"channel"`
	Text           string `json:"text"`
	ThreadTS       string `json:"thread_ts,omitempty"`
	ReplyBroadcast bool   `json:"reply_broadcast,omitempty"`
}

type postMessageResponse struct {
	TS string `json:"ts,omitempty"`
}

// PostMessage sends text into a channel, optionally threaded and optionally
// broadcast back to the channel. Returns the new message timestamp.
func (c *Client) PostMessage(ctx context.Context, channelID, text, threadTS string, broadcast bool) (string, error) {
	channelID = strings.TrimSpace(channelID)
	text = strings.TrimSpace(text)
	if channelID == "" {
		return "", fmt.Errorf("channel_id is required")
	}
	if text == "" {
		return "", fmt.Errorf("text is required")
	}
	var out postMessageResponse
	err := c.callJSON(ctx, http.MethodPost, "/chat.postMessage", nil, postMessageRequest{
		Channel:        channelID,
		Text:           text,
		ThreadTS:       strings.TrimSpace(threadTS),
		ReplyBroadcast: broadcast,
	}, &out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.TS), nil
}

type postEphemeralRequest struct {
	Channel string `json:"channel"`
	User    string `json:"user"`
	Text    string `json:"text"`
}

func (c *Client) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	channelID = strings.TrimSpace(channelID)
	userID = strings.TrimSpace(userID)
	text = strings.TrimSpace(text)
	if channelID == "" || userID == "" {
		return fmt.Errorf("channel_id and user are required")
	}
	if text == "" {
		return fmt.Errorf("text is required")
	}
	return c.callJSON(ctx, http.MethodPost, "/chat.postEphemeral", nil, postEphemeralRequest{
		Channel: channelID,
		User:    userID,
		Text:    text,
	}, nil)
}

type deleteMessageRequest struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, ts string) error {
	channelID = strings.TrimSpace(channelID)
	ts = strings.TrimSpace(ts)
	if channelID == "" || ts == "" {
		return fmt.Errorf("channel_id and ts are required")
	}
	return c.callJSON(ctx, http.MethodPost, "/chat.delete", nil, deleteMessageRequest{
		Channel: channelID,
		TS:      ts,
	}, nil)
}

type leaveChannelRequest struct {
	Channel string `json:"channel"`
}

func (c *Client) LeaveChannel(ctx context.Context, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return fmt.Errorf("channel_id is required")
	}
	return c.callJSON(ctx, http.MethodPost, "/conversations.leave", nil, leaveChannelRequest{Channel: channelID}, nil)
}

// File is an attachment on a thread message. Only image metadata is used.
type File struct {
	Mimetype           string `json:"mimetype,omitempty"`
	URLPrivateDownload string `json:"url_private_download,omitempty"`
}

// ThreadMessage is one message in a conversations.replies page.
type ThreadMessage struct {
	TS       string `json:"ts,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
	User     string `json:"user,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
	Subtype  string `json:"subtype,omitempty"`
	Text     string `json:"text,omitempty"`
	Files    []File `json:"files,omitempty"`
}

type threadRepliesResponse struct {
	Messages []ThreadMessage `json:"messages,omitempty"`
}

// ThreadReplies fetches the full reply chain rooted at ts, oldest first.
func (c *Client) ThreadReplies(ctx context.Context, channelID, ts string) ([]ThreadMessage, error) {
	channelID = strings.TrimSpace(channelID)
	ts = strings.TrimSpace(ts)
	if channelID == "" || ts == "" {
		return nil, fmt.Errorf("channel_id and ts are required")
	}
	query := url.Values{}
	query.Set("channel", channelID)
	query.Set("ts", ts)
	var out threadRepliesResponse
	if err := c.callJSON(ctx, http.MethodGet, "/conversations.replies", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Reaction is one reaction entry on a message.
type Reaction struct {
	Name  string   `json:"name,omitempty"`
	Users []string `json:"users,omitempty"`
}

type reactionsGetResponse struct {
	Message struct {
		Reactions []Reaction `json:"reactions,omitempty"`
	} `json:"message,omitempty"`
}

func (c *Client) MessageReactions(ctx context.Context, channelID, ts string) ([]Reaction, error) {
	channelID = strings.TrimSpace(channelID)
	ts = strings.TrimSpace(ts)
	if channelID == "" || ts == "" {
		return nil, fmt.Errorf("channel_id and ts are required")
	}
	query := url.Values{}
	query.Set("channel", channelID)
	query.Set("timestamp", ts)
	query.Set("full", "true")
	var out reactionsGetResponse
	if err := c.callJSON(ctx, http.MethodGet, "/reactions.get", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Message.Reactions, nil
}

type addReactionRequest struct {
	Channel   string `json:"channel"`
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
}

func (c *Client) AddReaction(ctx context.Context, channelID, ts, name string) error {
	channelID = strings.TrimSpace(channelID)
	ts = strings.TrimSpace(ts)
	name = strings.TrimSpace(name)
	if channelID == "" || ts == "" || name == "" {
		return fmt.Errorf("channel_id, ts and name are required")
	}
	return c.callJSON(ctx, http.MethodPost, "/reactions.add", nil, addReactionRequest{
		Channel:   channelID,
		Timestamp: ts,
		Name:      name,
	}, nil)
}

type openDMRequest struct {
	Users string `json:"users"`
}

type openDMResponse struct {
	Channel struct {
		ID string `json:"id,omitempty"`
	} `json:"channel,omitempty"`
}

// OpenDM opens (or resumes) a direct-message conversation with one or more
// comma-separated user ids and returns its channel id.
func (c *Client) OpenDM(ctx context.Context, userIDs string) (string, error) {
	userIDs = strings.TrimSpace(userIDs)
	if userIDs == "" {
		return "", fmt.Errorf("users is required")
	}
	var out openDMResponse
	if err := c.callJSON(ctx, http.MethodPost, "/conversations.open", nil, openDMRequest{Users: userIDs}, &out); err != nil {
		return "", err
	}
	channelID := strings.TrimSpace(out.Channel.ID)
	if channelID == "" {
		return "", fmt.Errorf("slack conversations.open returned empty channel id")
	}
	return channelID, nil
}

// UserInfo is a users.info result. Profile is kept as a raw map so callers
// can filter fields (get_profile strips image_* keys before the model sees
// them).
type UserInfo struct {
	ID      string         `json:"id,omitempty"`
	Name    string         `json:"name,omitempty"`
	IsBot   bool           `json:"is_bot,omitempty"`
	Profile map[string]any `json:"profile,omitempty"`
}

type userInfoResponse struct {
	User UserInfo `json:"user,omitempty"`
}

func (c *Client) UserInfo(ctx context.Context, userID string) (UserInfo, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserInfo{}, fmt.Errorf("user is required")
	}
	query := url.Values{}
	query.Set("user", userID)
	var out userInfoResponse
	if err := c.callJSON(ctx, http.MethodGet, "/users.info", query, nil, &out); err != nil {
		return UserInfo{}, err
	}
	return out.User, nil
}

// ChannelInfo is a conversations.info result.
type ChannelInfo struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	IsIM bool   `json:"is_im,omitempty"`
}

type channelInfoResponse struct {
	Channel ChannelInfo `json:"channel,omitempty"`
}

func (c *Client) ChannelInfo(ctx context.Context, channelID string) (ChannelInfo, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return ChannelInfo{}, fmt.Errorf("channel is required")
	}
	query := url.Values{}
	query.Set("channel", channelID)
	var out channelInfoResponse
	if err := c.callJSON(ctx, http.MethodGet, "/conversations.info", query, nil, &out); err != nil {
		return ChannelInfo{}, err
	}
	return out.Channel, nil
}
