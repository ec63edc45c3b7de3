// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package router

// State is a step of the per-request routing machine:
//
//	Init → PatternPass → BackupPass? → EnhancementPass? → Merged
type State int

const (
	Init State = iota
	PatternPass
	BackupPass
	EnhancementPass
	Merged
)

var stateNames = [...]string{"init", "pattern_pass", "backup_pass", "enhancement_pass", "merged"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Signals are the facts a transition depends on, computed from the field
// ledger after each pass.
type Signals struct {
	// NeedBackup is set when start is still unresolved and the backup
	// tier can run.
	NeedBackup bool

	// NeedEnhancement is set when some requested field is still
	// unresolved and an enhancement call is worthwhile.
	NeedEnhancement bool
}

// Next returns the state after s. Merged is terminal.
func Next(s State, sig Signals) State {
	switch s {
	case Init:
		return PatternPass
	case PatternPass:
		if sig.NeedBackup {
			return BackupPass
		}
		if sig.NeedEnhancement {
			return EnhancementPass
		}
		return Merged
	case BackupPass:
		if sig.NeedEnhancement {
			return EnhancementPass
		}
		return Merged
	default:
		return Merged
	}
}
