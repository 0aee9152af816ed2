package api

import (
	"bytes"
	"net/http"

	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/session"
)

type consoleData struct {
	User      *rbac.UserContext
	Mode      rbac.EvaluationMode
	Resources []rbac.Resource
}

// renderConsole handles GET /console: an overview of what the current user
// may do, rendered with the gate template functions
func (s *Server) renderConsole(w http.ResponseWriter, r *http.Request) {
	data := consoleData{
		User:      session.UserFromContext(r.Context()),
		Mode:      s.access.Engine().Mode(),
		Resources: s.model.Resources(),
	}

	var buf bytes.Buffer
	if err := s.console.Execute(&buf, data); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to render console")
		httputil.WriteInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
