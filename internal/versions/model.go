package versions

import "time"

// Type tags how a version came to be: an explicit save or an optimizer run.
type Type string

const (
	TypeSave     Type = "save"
	TypeOptimize Type = "optimize"
)

// Version is an immutable snapshot of prompt content plus metadata.
// Only ID, UserID, Content, Type and CreatedAt are always present.
type Version struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Content       string    `json:"content"`
	Type          Type      `json:"type"`
	CreatedAt     time.Time `json:"created_at"`
	VersionNumber string    `json:"version_number"`
	Description   string    `json:"description,omitempty"`
	Topic         string    `json:"topic,omitempty"`
	FrameworkID   string    `json:"framework_id,omitempty"`
	FrameworkName string    `json:"framework_name,omitempty"`
	OriginalInput string    `json:"original_input,omitempty"`
}

// FormattedTitle renders the human-readable history label, e.g.
// "2025-03-10 20:00:00 · 保存" for saves and "… · 优化" for optimizer runs.
func (v Version) FormattedTitle() string {
	label := "保存"
	if v.Type == TypeOptimize {
		label = "优化"
	}
	return v.CreatedAt.UTC().Format("2006-01-02 15:04:05") + " · " + label
}
