package message

// Message is one chat line from any source (Twitch, Kick, NATS bridge).
type Message struct {
	Platform  string `json:"platform"`            // Source name: "twitch", "kick", "nats"
	Timestamp string `json:"timestamp,omitempty"` // RFC3339, UTC
	Channel   string `json:"channel"`             // Channel label written to the CSV
	Sender    string `json:"sender"`              // Raw sender, "Name" or "Name@Realm"
	Body      string `json:"body"`                // Message text as received
}
