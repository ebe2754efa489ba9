package slack

import (
	"context"
	"strings"

	"github.com/Sami9889/grook/tools"
)

type GetProfileTool struct {
	api API
}

func NewGetProfileTool(api API) *GetProfileTool {
	return &GetProfileTool{api: api}
}

type getProfileParams struct {
	UserID string `json:"user_id" jsonschema_description:"The user's member ID, or a comma-separated list of them. Example: U12345ABCDE,U67890FGHIJ"`
}

func (t *GetProfileTool) Name() string { return "get_profile" }

func (t *GetProfileTool) Description() string {
	return "Get information about a user such as their name."
}

func (t *GetProfileTool) ParameterSchema() string {
	return tools.SchemaFor(getProfileParams{})
}

func (t *GetProfileTool) Execute(ctx context.Context, params map[string]any, _ tools.Scope) tools.Outcome {
	if t == nil || t.api == nil {
		return tools.Failuref("get_profile is disabled")
	}
	var in getProfileParams
	if err := tools.DecodeParams(params, &in); err != nil {
		return tools.Failuref("invalid params: %v", err)
	}
	ids := splitUserIDs(in.UserID)
	if len(ids) == 0 {
		return tools.Failuref("missing required param: user_id")
	}

	profiles := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		info, err := t.api.UserInfo(ctx, id)
		if err != nil {
			return tools.Failuref("Slack API error looking up %s: %v", id, err)
		}
		if len(info.Profile) == 0 {
			return tools.Failuref("no profile received for %s", id)
		}
		profiles[id] = stripImageFields(info.Profile)
	}
	if len(profiles) == 1 {
		for _, profile := range profiles {
			return tools.Success{Value: profile}
		}
	}
	return tools.Success{Value: profiles}
}

// stripImageFields drops avatar URL fields. They are of no use to a text
// model and would leak long noise into the transcript.
func stripImageFields(profile map[string]any) map[string]any {
	out := make(map[string]any, len(profile))
	for key, value := range profile {
		if strings.HasPrefix(key, "image_") {
			continue
		}
		out[key] = value
	}
	return out
}
