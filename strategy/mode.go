package strategy

// Mode is the session-level quoting mode.
type Mode int

const (
	// ModeStopped means no quoting; the terminal state after shutdown.
	ModeStopped Mode = iota
	// ModeQuoting is normal two-sided operation.
	ModeQuoting
	// ModeSkewedYes and ModeSkewedNo are reserved single-side modes.
	// No transition currently produces them; the symmetric skew formula
	// covers imbalance instead.
	ModeSkewedYes
	ModeSkewedNo
)

func (m Mode) String() string {
	switch m {
	case ModeStopped:
		return "STOPPED"
	case ModeQuoting:
		return "QUOTING"
	case ModeSkewedYes:
		return "SKEWED_YES"
	case ModeSkewedNo:
		return "SKEWED_NO"
	default:
		return "UNKNOWN"
	}
}
