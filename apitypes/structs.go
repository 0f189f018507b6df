package apitypes

import (
	"fmt"
	"time"
)

// ApiError represents an RFC 7807 (problem+json) error response.
type ApiError struct {
	// Status is the HTTP-style status code (e.g., 400, 404, 500)
	Status int `json:"status"`
	// Title is a short, human-readable summary of the problem type
	Title string `json:"title"`
	// Detail is a human-readable explanation specific to this occurrence
	Detail string `json:"detail"`
}

func (e ApiError) Error() string {
	if e.Status == 0 && e.Title == "" {
		return "unknown error"
	}
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
}

// --

type PingResponse struct {
	Server  string `json:"server"`
	Version string `json:"version"`
}

// FileEntry describes one installable file served by the catalog.
type FileEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Version is nil when the file name carries no version tag.
	Version *uint32 `json:"version"`
	Size    int64   `json:"size"`
	// ModTime is seconds since the Unix epoch.
	ModTime int64 `json:"mtime"`
}

// ProgressRecord is one open tracker in a progress report.
type ProgressRecord struct {
	Description string `json:"description"`
	Progress    int64  `json:"progress"`
	Size        int64  `json:"size"`
	// Elapsed is CPU seconds since the tracker opened.
	Elapsed float64 `json:"elapsed"`
	// Speed is units per CPU second over the last sampling interval.
	Speed float64 `json:"speed"`
	ID    string  `json:"id"`
	Slot  int     `json:"slot"`
}

type StatusResponse struct {
	Server    string           `json:"server"`
	Version   string           `json:"version"`
	Link      string           `json:"link"`
	Transfers []ProgressRecord `json:"transfers"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
