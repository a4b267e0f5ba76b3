package inference

// Stage is the progress of one analysis request.
type Stage int

const (
	StageReceived Stage = iota
	StageDecoded
	StageRendered
	StageClassified
	StageResponded
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageDecoded:
		return "decoded"
	case StageRendered:
		return "rendered"
	case StageClassified:
		return "classified"
	case StageResponded:
		return "responded"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}
