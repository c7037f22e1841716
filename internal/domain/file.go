package domain

import "time"

// RemoteFile is the metadata for one file discovered in a remote origin.
// Path is the full path reconstructed during enumeration (parent path +
// name), rooted at the knowledge source's SourceURL.
type RemoteFile struct {
	ID           string
	Name         string
	Path         string
	Size         int64
	MimeType     string
	LastModified time.Time
}
