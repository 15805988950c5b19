package outlook

import (
	"encoding/base64"
	"encoding/hex"
)

// DecodeOrderingToken converts a base64 ConversationIndex into the hex
// ordering token the thread reconstructor consumes: a 22-byte root header
// (44 hex chars) plus one 5-byte block (10 hex chars) per reply hop. An
// undecodable index yields "" and the message simply never thread-links.
func DecodeOrderingToken(conversationIndex string) string {
	if conversationIndex == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(conversationIndex)
	if err != nil {
		return ""
	}
	return hex.EncodeToString(raw)
}
