package ffmpeg

import "errors"

// ErrNotFound indicates no usable ffmpeg binary could be located.
var ErrNotFound = errors.New("ffmpeg not found")

// ErrProbeFailed indicates ffmpeg output contained no parseable duration.
var ErrProbeFailed = errors.New("could not read duration from ffmpeg output")

// ErrTranscodeFailed indicates an encode invocation exited with an error.
var ErrTranscodeFailed = errors.New("ffmpeg transcode failed")
