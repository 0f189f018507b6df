// Package handler implements the routes served over the USB tunnel.
package handler

import (
	"github.com/Alia5/usbridge/internal/catalog"
	"github.com/Alia5/usbridge/internal/progress"
	"github.com/Alia5/usbridge/internal/router"
)

// Register wires every tunnelled route into r. maxRange bounds a single
// download reply (see Download).
func Register(r *router.Router, version string, c *catalog.Catalog, reg *progress.Registry, link func() string, maxRange int64) {
	r.Register("api/ping", Ping(version))
	r.Register("api/files", Files(c))
	r.Register("api/download/{id}", Download(c, reg, maxRange))
	r.Register("api/status", Status(version, reg, link))
}
