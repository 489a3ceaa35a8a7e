package entity

import "github.com/google/uuid"

// FileRecord is one known file of the catalog.
type FileRecord struct {
	ID   uuid.UUID // Assigned by the catalog when the record is registered
	Name string    // Lookup key, never changed after creation
	Path string    // Absolute path under the artifacts root
	Size int64     // Size in bytes, taken from disk
}

// Info returns the public view of the record.
func (r FileRecord) Info() FileInfo {
	return FileInfo{Name: r.Name, Size: r.Size}
}

type FileRequest struct {
	Name string `json:"name"`
}

type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// UploadResult describes the outcome of a single uploaded part.
type UploadResult struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Error string `json:"error,omitempty"`
}
