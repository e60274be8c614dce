package checkpointer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// EpisodeFilename returns path with the episode number inserted before
// its extension, e.g. EpisodeFilename("model.gob", 3) returns
// "model-3.gob"
func EpisodeFilename(path string, episode int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%v-%d%v", strings.TrimSuffix(path, ext), episode, ext)
}

// FilenameEnumerator returns a function which will return filenames
// keyed by episode number. The path parameter is the full filename
// with its path and extension.
func FilenameEnumerator(path string) func(episode int) string {
	return func(episode int) string {
		return EpisodeFilename(path, episode)
	}
}
