package twitchapi

import "fmt"

// useLiveHash is the sha256 of the persisted UseLive query the web player ships.
const useLiveHash = "639d5f11bfb8bf3053b424d9ef650d04c4ebb7d94711d644afb08fe9a0fad5d9"

type gqlQuery struct {
	OperationName string         `json:"operationName,omitempty"`
	Query         string         `json:"query,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

type useLiveQuery = gqlQuery

func playbackQuery(channel string, backup bool) gqlQuery {
	platform, playerType := "web", "site"
	if backup {
		platform, playerType = "ios", "autoplay"
	}
	return gqlQuery{
		OperationName: "PlaybackAccessToken",
		Query: `query PlaybackAccessToken($login: String!, $isLive: Boolean!, $vodID: ID!, $isVod: Boolean!, $playerType: String!, $platform: String!) {
  streamPlaybackAccessToken(channelName: $login, params: {platform: $platform, playerBackend: "mediaplayer", playerType: $playerType}) @include(if: $isLive) {
    value
    signature
  }
  videoPlaybackAccessToken(id: $vodID, params: {platform: $platform, playerBackend: "mediaplayer", playerType: $playerType}) @include(if: $isVod) {
    value
    signature
  }
}`,
		Variables: map[string]any{
			"login":      channel,
			"isLive":     true,
			"vodID":      "",
			"isVod":      false,
			"playerType": playerType,
			"platform":   platform,
		},
	}
}

func newUseLiveQuery(login string) useLiveQuery {
	return useLiveQuery{
		OperationName: "UseLive",
		Variables:     map[string]any{"channelLogin": login},
		Extensions: map[string]any{
			"persistedQuery": map[string]any{
				"version":    1,
				"sha256Hash": useLiveHash,
			},
		},
	}
}

func fullUserQuery(login string) gqlQuery {
	return gqlQuery{
		Query: fmt.Sprintf(`{
  user(login: %q) {
    id
    profileImageURL(width: 50)
    subscriptionProducts {
      emotes {
        id
        token
      }
    }
  }
}`, login),
	}
}
