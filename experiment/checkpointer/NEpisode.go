package checkpointer

// Saver is an object which can save itself to a file
type Saver interface {
	Save(path string) error
}

// Checkpointer checkpoints/saves objects based on the number of
// completed episodes
type Checkpointer interface {
	Checkpoint(episode int) error
}

// nEpisode implements checkpointing every N episodes
type nEpisode struct {
	interval int
	object   Saver // Object to save

	// filename returns the name of the file to save the object in after
	// a given episode.
	//
	// If each checkpoint should be saved in a separate file keyed by
	// episode (e.g. file-10.gob, file-20.gob, ...), then simply use the
	// static function FilenameEnumerator.
	filename func(episode int) string
}

// NewNEpisode returns a checkpointer that checkpoints every n episodes.
// If n <= 0, the returned Checkpointer never saves.
func NewNEpisode(n int, object Saver,
	filename func(episode int) string) Checkpointer {
	return &nEpisode{
		interval: n,
		object:   object,
		filename: filename,
	}
}

// Checkpoint checkpoints the Checkpointer's tracked object by calling
// its Save() method, if episode is a multiple of the interval
func (n *nEpisode) Checkpoint(episode int) error {
	if n.interval > 0 && episode > 0 && episode%n.interval == 0 {
		return n.object.Save(n.filename(episode))
	}
	return nil
}
