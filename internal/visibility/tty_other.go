//go:build !darwin && !linux

package visibility

func ttyState() (State, bool) {
	return "", false
}
