package handler

import (
	"encoding/json"
	"log/slog"

	"github.com/Alia5/usbridge/apitypes"
	"github.com/Alia5/usbridge/internal/progress"
	"github.com/Alia5/usbridge/internal/router"
)

// StatusReport builds the status document shared by the tunnel route and the
// HTTP side channel.
func StatusReport(version string, reg *progress.Registry, link func() string) apitypes.StatusResponse {
	return apitypes.StatusResponse{
		Server:    ServerName,
		Version:   version,
		Link:      link(),
		Transfers: reg.Report(),
	}
}

// Status returns a handler reporting the link state and open transfers.
func Status(version string, reg *progress.Registry, link func() string) router.HandlerFunc {
	return func(req *router.Request, w router.ResponseWriter, logger *slog.Logger) error {
		b, err := json.Marshal(StatusReport(version, reg, link))
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
}
