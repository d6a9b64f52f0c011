package models

// ApplyRun is the history record of one document rewrite.
type ApplyRun struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"` // apply or render
	At       Timestamp `json:"at"`
	Applied  int       `json:"applied"`
	Skipped  int       `json:"skipped"`
	Backup   string    `json:"backup"`
	Sections int       `json:"sections"`
}
