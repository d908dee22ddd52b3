package enum

// CheckpointStatus records the run state of a single source's checkpoint so a
// later run can detect an in-progress or crashed source.
type CheckpointStatus string

const (
	CheckpointStatusIdle    CheckpointStatus = "idle"
	CheckpointStatusRunning CheckpointStatus = "running"
	CheckpointStatusFailed  CheckpointStatus = "failed"
)

func (s CheckpointStatus) IsAvailable() bool {
	switch s {
	case CheckpointStatusIdle, CheckpointStatusRunning, CheckpointStatusFailed:
		return true
	default:
		return false
	}
}
