package handler

import (
	"encoding/json"
	"log/slog"

	"github.com/Alia5/usbridge/apitypes"
	"github.com/Alia5/usbridge/internal/catalog"
	"github.com/Alia5/usbridge/internal/router"
)

// Files returns a handler listing the catalog as a JSON array.
func Files(c *catalog.Catalog) router.HandlerFunc {
	return func(req *router.Request, w router.ResponseWriter, logger *slog.Logger) error {
		entries, err := c.List()
		if err != nil {
			return err
		}
		files := make([]apitypes.FileEntry, 0, len(entries))
		for _, e := range entries {
			files = append(files, e.FileEntry)
		}
		logger.Debug("listing files", "count", len(files))
		b, err := json.Marshal(files)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
}
