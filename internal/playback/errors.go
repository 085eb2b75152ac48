package playback

import "errors"

var (
	// ErrRenditionUnavailable is returned by SwitchVersion when the current
	// track has no file for the requested rendition. Playback is unchanged.
	ErrRenditionUnavailable = errors.New("playback: rendition not available for this track")
	// ErrMissingFile means a track has no file for the rendition it would play in.
	ErrMissingFile = errors.New("playback: track has no audio file")
	ErrEmptyQueue      = errors.New("playback: queue is empty")
	ErrIndexOutOfRange = errors.New("playback: start index out of range")
	// ErrSuperseded is returned to a caller whose request was overtaken by a
	// newer one before it finished loading.
	ErrSuperseded     = errors.New("playback: superseded by a newer request")
	ErrNothingPlaying = errors.New("playback: nothing is playing")
	ErrClosed         = errors.New("playback: controller closed")
)
