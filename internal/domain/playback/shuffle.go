package playback

import "math/rand"

// newShuffleOrder returns a random permutation of playlist indices.
func newShuffleOrder(n int) []int {
	return rand.Perm(n)
}

// cursorFor returns the position of the playlist index within the shuffle
// order, or 0 when the index does not appear.
func cursorFor(order []int, playlistIndex int) int {
	for i, idx := range order {
		if idx == playlistIndex {
			return i
		}
	}
	return 0
}
