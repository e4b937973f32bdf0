package model

type AIJobStatus string

const (
	AIJobStatusPending   AIJobStatus = "pending"
	AIJobStatusCompleted AIJobStatus = "completed"
	AIJobStatusFailed    AIJobStatus = "failed"
)

// AIJob is a remote extraction task. It is identified by the pair
// (ID, ConversationID); neither is meaningful alone.
type AIJob struct {
	ID             string
	ConversationID string
	Status         AIJobStatus
}

// Extraction is the outcome of one submit/poll/fetch round.
type Extraction struct {
	Job    AIJob
	Answer string
	Polls  int
}
