package worker

import (
	"os"
	"path/filepath"
)

const (
	voiceFileName    = "voice.mp3"
	portraitFileName = "portrait.png"
	defaultAssetDir  = "default"
)

// AssetResolver maps a course to its reference voice sample and avatar
// portrait. Courses without their own assets fall back to the default set.
type AssetResolver struct {
	root string
}

func NewAssetResolver(root string) *AssetResolver {
	return &AssetResolver{root: root}
}

// Voice returns the reference voice sample for the course.
func (r *AssetResolver) Voice(courseID string) string {
	return r.resolve(courseID, voiceFileName)
}

// Portrait returns the avatar source image for the course.
func (r *AssetResolver) Portrait(courseID string) string {
	return r.resolve(courseID, portraitFileName)
}

func (r *AssetResolver) resolve(courseID, name string) string {
	if courseID != "" {
		scoped := filepath.Join(r.root, courseID, name)
		if _, err := os.Stat(scoped); err == nil {
			return scoped
		}
	}
	return filepath.Join(r.root, defaultAssetDir, name)
}
