package rating

import "time"

// Rating is a 0-5 star score a student submits for the tutor of a completed
// lesson. Append-only; the per-session at-most-once guard lives in the
// session controller, and the (student, tutor, lesson) key makes duplicates
// detectable in storage as well.
type Rating struct {
	ID        string    `json:"id" db:"id"`
	StudentID string    `json:"student_id" db:"student_id"`
	TutorID   string    `json:"tutor_id" db:"tutor_id"`
	LessonID  string    `json:"lesson_id" db:"lesson_id"`
	Stars     int       `json:"stars" db:"stars"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
