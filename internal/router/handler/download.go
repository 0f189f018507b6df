package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/Alia5/usbridge/internal/catalog"
	"github.com/Alia5/usbridge/internal/progress"
	"github.com/Alia5/usbridge/internal/router"
)

const (
	chunkSize = 1 << 20

	// DefaultMaxRange bounds the bytes buffered for one reply.
	DefaultMaxRange = 512 << 20
)

// Download returns a handler streaming a byte range of a catalog file into a
// single reply. The optional start and end query values select an inclusive
// range. Progress is tracked under the file name.
//
// The reply is buffered whole, so ranges longer than maxRange are refused
// with 416 (zero means no limit).
func Download(c *catalog.Catalog, reg *progress.Registry, maxRange int64) router.HandlerFunc {
	return func(req *router.Request, w router.ResponseWriter, logger *slog.Logger) error {
		id := req.Params["id"]
		f, entry, err := c.Open(id)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return router.ErrNotFound(fmt.Sprintf("no file with id %s", id))
			}
			return err
		}
		defer f.Close()

		start, end, err := parseRange(req.Query, entry.Size)
		if err != nil {
			return err
		}
		n := end - start + 1
		if maxRange > 0 && n > maxRange {
			return router.ErrRangeNotSatisfiable(fmt.Sprintf("range of %d bytes exceeds limit of %d", n, maxRange))
		}

		tr := reg.Open(n, entry.Name, "B")
		defer tr.Close()
		tr.SetID(entry.ID)
		logger.Info("download", "file", entry.Name, "start", start, "end", end)

		buf := make([]byte, n)
		src := io.NewSectionReader(f, start, n)
		for off := int64(0); off < n; {
			if req.Ctx != nil {
				if err := req.Ctx.Err(); err != nil {
					return err
				}
			}
			m, err := io.ReadFull(src, buf[off:min(off+chunkSize, n)])
			off += int64(m)
			_ = tr.Advance(int64(m))
			if err != nil {
				return fmt.Errorf("read %s at %d: %w", entry.Name, start+off, err)
			}
		}
		_, err = w.Write(buf)
		return err
	}
}

func parseRange(q map[string]string, size int64) (int64, int64, error) {
	start, end := int64(0), size-1
	if v, ok := q["start"]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, 0, router.ErrBadRequest(fmt.Sprintf("invalid start %q", v))
		}
		start = n
	}
	if v, ok := q["end"]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, 0, router.ErrBadRequest(fmt.Sprintf("invalid end %q", v))
		}
		end = min(n, size-1)
	}
	if start < 0 || start > end {
		return 0, 0, router.ErrRangeNotSatisfiable(fmt.Sprintf("range %d-%d of %d bytes", start, end, size))
	}
	return start, end, nil
}
