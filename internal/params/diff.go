package params

// Change classifies the difference between two parameter sets from the
// capture graph's point of view.
type Change int

const (
	// ChangeNone means the graph can keep running untouched. Fields read
	// per frame (thresholds, timings, leveling, band limits) take effect
	// through the pointer swap alone.
	ChangeNone Change = iota

	// ChangeLive means continuously adjustable node settings differ (filter
	// cutoffs, analyser resolution) and can be applied without stopping
	// capture.
	ChangeLive

	// ChangeStructural means the graph topology differs (prefilter or
	// spectral analyser enabled or disabled) and the graph must be rebuilt.
	ChangeStructural
)

// String returns the lowercase name of the change.
func (c Change) String() string {
	switch c {
	case ChangeNone:
		return "none"
	case ChangeLive:
		return "live"
	case ChangeStructural:
		return "structural"
	default:
		return "unknown"
	}
}

// Diff compares old and next and reports the strongest change required to
// move the capture graph from old to next. A nil old set is always
// structural. Diff is pure and never inspects anything but the two sets.
func Diff(old, next *Set) Change {
	if old == nil || next == nil {
		return ChangeStructural
	}
	if old.EnablePrefilter != next.EnablePrefilter || old.EnableSpectral != next.EnableSpectral {
		return ChangeStructural
	}
	if next.EnablePrefilter && (old.HighPassHz != next.HighPassHz || old.LowPassHz != next.LowPassHz) {
		return ChangeLive
	}
	if next.EnableSpectral && old.FFTSize != next.FFTSize {
		return ChangeLive
	}
	return ChangeNone
}
