package corpus

import "time"

// Record is one tokenized text ready to be written to its partition.
type Record struct {
	Hash       string
	Domain     string
	Title      string // publication display title
	URI        string
	Year       int
	CapturedAt time.Time
	Serial     int64 // meaningful only when serial assignment is on
	Tokens     []string
}
