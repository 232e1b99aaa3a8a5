// Package notification implements the push fan-out pipeline: the
// preference filter, the per-subscriber delivery engine and the
// broadcast coordinator that joins the two.
package notification

import (
	"encoding/json"
	"time"
)

// Preference categories a subscriber can opt out of.
const (
	CategoryContainerDown = "container_down"
	CategoryPerformance   = "performance"
	CategorySecurity      = "security"
	CategoryBackups       = "backups"
	CategoryDeployments   = "deployments"
	CategoryAlerts        = "alerts"
	CategoryUpdates       = "updates"
)

const defaultIcon = "/icon-192x192.png"

// Notification is one transient alert. It is constructed per broadcast
// and has no identity beyond its delivery attempts.
type Notification struct {
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Type     string         `json:"type"`
	Category string         `json:"-"`
	Tag      string         `json:"tag,omitempty"`
	Icon     string         `json:"icon"`
	Badge    string         `json:"badge"`
	Data     map[string]any `json:"data,omitempty"`
}

// Payload marshals the client-facing JSON. The notification type and a
// timestamp are folded into the data object for click handling.
func (n *Notification) Payload() ([]byte, error) {
	out := *n
	if out.Icon == "" {
		out.Icon = defaultIcon
	}
	if out.Badge == "" {
		out.Badge = defaultIcon
	}

	data := make(map[string]any, len(n.Data)+2)
	for k, v := range n.Data {
		data[k] = v
	}
	if _, ok := data["type"]; !ok && n.Type != "" {
		data["type"] = n.Type
	}
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	out.Data = data

	return json.Marshal(&out)
}
