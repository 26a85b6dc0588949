package state

import "whsync/internal/capability"

// Reconcile merges a successfully loaded device snapshot into the local view.
//
// Capabilities without a pending local edit adopt the device's value, or the
// default state when the device does not report them, and become synced.
// Capabilities with a pending edit keep their local value; polling can only
// clear their synced flag (when the device moved away from the local value),
// never set it. Only an acknowledged commit marks a pending edit synced.
func Reconcile(
	current map[capability.DataType]Entry,
	pending map[capability.DataType]struct{},
	snapshot map[capability.DataType]capability.State,
) map[capability.DataType]Entry {
	next := make(map[capability.DataType]Entry, len(current))

	for dataType, entry := range current {
		reported, ok := snapshot[dataType]
		if !ok {
			reported = capability.DefaultState()
		}

		if _, isPending := pending[dataType]; isPending {
			next[dataType] = Entry{
				State:  entry.State,
				Synced: entry.Synced && entry.State.Equal(reported),
			}
			continue
		}

		next[dataType] = Entry{
			State:  reported.WithOverride(reported.OverrideValue),
			Synced: true,
		}
	}

	return next
}
