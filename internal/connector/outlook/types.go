package outlook

// Message is a Graph API mail message, trimmed to the fields the sync engine
// consumes.
type Message struct {
	ID                   string       `json:"id"`
	Subject              string       `json:"subject"`
	ChangeKey            string       `json:"changeKey"`
	ConversationIndex    string       `json:"conversationIndex"` // base64
	ReceivedDateTime     string       `json:"receivedDateTime"`
	LastModifiedDateTime string       `json:"lastModifiedDateTime"`
	WebLink              string       `json:"webLink"`
	From                 *Recipient   `json:"from,omitempty"`
	ToRecipients         []Recipient  `json:"toRecipients,omitempty"`
	CcRecipients         []Recipient  `json:"ccRecipients,omitempty"`
	Removed              *RemovedInfo `json:"@removed,omitempty"`
}

// Recipient wraps a Graph email address.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// EmailAddress is a Graph address pair.
type EmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// RemovedInfo marks a deleted item in delta responses.
type RemovedInfo struct {
	Reason string `json:"reason"`
}

// ListResponse is a paged Graph messages response.
type ListResponse struct {
	Value     []Message `json:"value"`
	NextLink  string    `json:"@odata.nextLink"`
	DeltaLink string    `json:"@odata.deltaLink"`
}

// TokenResponse is the OAuth token response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}
