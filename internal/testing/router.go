package testing

import (
	"sync"

	"github.com/Alia5/usbridge/internal/router"
)

// RecordingRouter records every routed request and delegates to Handle.
type RecordingRouter struct {
	Handle func(req *router.Request, w router.ResponseWriter) error

	mu   sync.Mutex
	urls []string
}

func (r *RecordingRouter) Route(req *router.Request, w router.ResponseWriter) error {
	r.mu.Lock()
	r.urls = append(r.urls, req.URL)
	r.mu.Unlock()
	if r.Handle == nil {
		return nil
	}
	return r.Handle(req, w)
}

// URLs returns the routed request URLs in order.
func (r *RecordingRouter) URLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}
