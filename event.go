package hub

import "time"

// Level describes the severity of an event or breadcrumb.
type Level string

const (
	LevelFatal   Level = "fatal"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
)

// ParseLevel converts a string into a Level. Unknown values map to LevelError.
func ParseLevel(value string) Level {
	switch value {
	case "fatal", "FATAL", "critical":
		return LevelFatal
	case "warning", "WARNING", "warn", "WARN":
		return LevelWarning
	case "info", "INFO", "log":
		return LevelInfo
	case "debug", "DEBUG":
		return LevelDebug
	default:
		return LevelError
	}
}

// User describes the principal active when an event is captured.
type User struct {
	ID        string         `json:"id,omitempty" yaml:"id,omitempty"`
	Email     string         `json:"email,omitempty" yaml:"email,omitempty"`
	Username  string         `json:"username,omitempty" yaml:"username,omitempty"`
	IPAddress string         `json:"ip_address,omitempty" yaml:"ip_address,omitempty"`
	Data      map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// IsEmpty reports whether no user field is populated.
func (u User) IsEmpty() bool {
	return u.ID == "" && u.Email == "" && u.Username == "" && u.IPAddress == "" && len(u.Data) == 0
}

func (u User) clone() User {
	out := u
	out.Data = cloneAnyMap(u.Data)
	return out
}

// Breadcrumb records an action that happened before an event was captured.
type Breadcrumb struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type,omitempty"`
	Category  string         `json:"category,omitempty"`
	Message   string         `json:"message,omitempty"`
	Level     Level          `json:"level,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

func (b Breadcrumb) clone() Breadcrumb {
	out := b
	out.Data = cloneAnyMap(b.Data)
	return out
}

// Exception describes one error in an event's exception chain.
type Exception struct {
	Type   string `json:"type,omitempty"`
	Value  string `json:"value,omitempty"`
	Module string `json:"module,omitempty"`
}

// Event is the structured payload a Backend transmits.
type Event struct {
	EventID     string            `json:"event_id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Level       Level             `json:"level,omitempty"`
	Message     string            `json:"message,omitempty"`
	Exception   []Exception       `json:"exception,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Extra       map[string]any    `json:"extra,omitempty"`
	User        User              `json:"user,omitempty"`
	Fingerprint []string          `json:"fingerprint,omitempty"`
	Breadcrumbs []Breadcrumb      `json:"breadcrumbs,omitempty"`
	Release     string            `json:"release,omitempty"`
	Environment string            `json:"environment,omitempty"`
	ServerName  string            `json:"server_name,omitempty"`
	Platform    string            `json:"platform,omitempty"`
}

// Clone returns a copy of e whose maps and slices are detached from the original.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	out.Exception = append([]Exception(nil), e.Exception...)
	out.Tags = cloneStringMap(e.Tags)
	out.Extra = cloneAnyMap(e.Extra)
	out.User = e.User.clone()
	out.Fingerprint = append([]string(nil), e.Fingerprint...)
	out.Breadcrumbs = cloneBreadcrumbs(e.Breadcrumbs)
	return &out
}

func cloneStringMap(origin map[string]string) map[string]string {
	if len(origin) == 0 {
		return nil
	}
	out := make(map[string]string, len(origin))
	for key, value := range origin {
		out[key] = value
	}
	return out
}

func cloneAnyMap(origin map[string]any) map[string]any {
	if len(origin) == 0 {
		return nil
	}
	out := make(map[string]any, len(origin))
	for key, value := range origin {
		out[key] = value
	}
	return out
}

func cloneBreadcrumbs(origin []Breadcrumb) []Breadcrumb {
	if len(origin) == 0 {
		return nil
	}
	out := make([]Breadcrumb, len(origin))
	for i := range origin {
		out[i] = origin[i].clone()
	}
	return out
}
