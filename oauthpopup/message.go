package oauthpopup

import "encoding/json"

const (
	DefaultChannelName = "oauth-login"
	DefaultMessageType = "OAUTH_LOGIN_SUCCESS"
)

// Message is the completion signal sent by the popup page.
type Message struct {
	Type         string `json:"type"`
	Attempt      string `json:"attempt,omitempty"`
	Provider     string `json:"provider,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// parseMessage accepts raw only when it is a completion message carrying
// attemptID. The id is the unguessable oauth2 state the provider echoed back.
func parseMessage(raw []byte, messageType, attemptID string) (Message, bool) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, false
	}
	if msg.Type != messageType {
		return Message{}, false
	}
	if attemptID == "" || msg.Attempt != attemptID {
		return Message{}, false
	}
	return msg, true
}
