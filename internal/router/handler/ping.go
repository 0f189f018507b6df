package handler

import (
	"encoding/json"
	"log/slog"

	"github.com/Alia5/usbridge/apitypes"
	"github.com/Alia5/usbridge/internal/router"
)

// ServerName is reported by ping and status.
const ServerName = "usbridge"

// Ping returns a handler that reports the server name and version.
func Ping(version string) router.HandlerFunc {
	return func(req *router.Request, w router.ResponseWriter, logger *slog.Logger) error {
		b, err := json.Marshal(apitypes.PingResponse{Server: ServerName, Version: version})
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
}
