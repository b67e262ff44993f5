package storage

import (
	"errors"
	"fmt"
	"io"
	"path"
	"time"
)

var (
	ErrNotFound = errors.New("blob not found")
	ErrBadKey   = errors.New("invalid blob key")
)

type Info struct {
	Size    int64
	ModTime time.Time
}

type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	// Open returns a seekable reader so segments can be served with ranges.
	Open(key string) (io.ReadSeekCloser, Info, error)
	// DeletePrefix removes every blob under prefix. A missing prefix is not an error.
	DeletePrefix(prefix string) error
}

// LessonPrefix holds all media rendered for a lesson.
func LessonPrefix(lessonID string) string {
	return path.Join("lessons", lessonID)
}

// SegmentKey is where the rendered media for segment n of a list lives.
func SegmentKey(lessonID, listKey string, n int) string {
	return path.Join(LessonPrefix(lessonID), listKey, fmt.Sprintf("segment_%d.mp4", n))
}
