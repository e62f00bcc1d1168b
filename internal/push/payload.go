package push

const (
	DefaultTitle = "Notification"
	DefaultIcon  = "/icons/icon-192x192.png"
	DefaultBadge = "/icons/badge-72x72.png"
)

type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Payload is what callers want to show. Zero values mean "use the default"
// for the required fields and "leave out" for the optional ones.
type Payload struct {
	Title              string
	Body               string
	Icon               string
	Badge              string
	Data               map[string]any
	Tag                string
	Actions            []Action
	RequireInteraction *bool
	Silent             *bool
}

// WirePayload is the JSON document the service worker receives.
type WirePayload struct {
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Icon               string         `json:"icon"`
	Badge              string         `json:"badge"`
	Data               map[string]any `json:"data"`
	Tag                string         `json:"tag,omitempty"`
	Actions            []Action       `json:"actions,omitempty"`
	RequireInteraction *bool          `json:"requireInteraction,omitempty"`
	Silent             *bool          `json:"silent,omitempty"`
}

// FormatPayload fills in defaults for title, body, icon, badge and data and
// copies optional fields only when they are set.
func FormatPayload(p Payload) WirePayload {
	w := WirePayload{
		Title: p.Title,
		Body:  p.Body,
		Icon:  p.Icon,
		Badge: p.Badge,
		Data:  p.Data,
	}
	if w.Title == "" {
		w.Title = DefaultTitle
	}
	if w.Icon == "" {
		w.Icon = DefaultIcon
	}
	if w.Badge == "" {
		w.Badge = DefaultBadge
	}
	if w.Data == nil {
		w.Data = map[string]any{}
	}
	if p.Tag != "" {
		w.Tag = p.Tag
	}
	if len(p.Actions) > 0 {
		w.Actions = p.Actions
	}
	if p.RequireInteraction != nil {
		w.RequireInteraction = p.RequireInteraction
	}
	if p.Silent != nil {
		w.Silent = p.Silent
	}
	return w
}
