package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/standardbeagle/runbridge/internal/fix"
	"github.com/standardbeagle/runbridge/internal/monitor"
	"github.com/standardbeagle/runbridge/internal/project"
	"github.com/standardbeagle/runbridge/internal/session"
)

type connectionRequest struct {
	ConnectionID string `json:"connectionId"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type fixRequest struct {
	BuildMessage string `json:"buildMessage"`
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched when
// allowEmpty is set.
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	return err
}

func (s *Server) handleGenerateQR(w http.ResponseWriter, r *http.Request) {
	ep := s.session.Endpoint()
	if ep.PublicURL == "" || ep.QRCode == "" {
		writeError(w, http.StatusInternalServerError, "No public URL available.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connectionId": ep.ConnectionID,
		"publicUrl":    ep.PublicURL,
		"qrCode":       ep.QRCode,
	})
}

// authorize decodes the connection request and answers 400/403 on failure.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	var req connectionRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return false
	}
	if !s.session.Authorize(req.ConnectionID) {
		hlog.FromRequest(r).Warn().Msg("connection id mismatch")
		writeError(w, http.StatusForbidden, "Invalid connection ID.")
		return false
	}
	return true
}

func (s *Server) handleRunApplication(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	gen, err := s.dispatcher.Dispatch()
	switch {
	case errors.Is(err, project.ErrNoProject):
		s.session.Log("No project available.")
		writeError(w, http.StatusBadRequest, "No project available.")
		return
	case errors.Is(err, project.ErrNoRunConfig):
		s.session.Log("No run configuration selected.")
		writeError(w, http.StatusBadRequest, "No run configuration selected.")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Run configuration executed.",
		"generation": gen,
	})
}

func (s *Server) handleStopApplication(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}

	err := s.dispatcher.Stop(r.Context())
	switch {
	case errors.Is(err, monitor.ErrNotRunning):
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "No application is running.",
		})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Application stopped.",
		})
	}
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	status := s.session.Status()
	gen := s.session.Generation()
	logs := s.session.LogText()
	s.session.SetBuildMessage(logs)

	resp := map[string]any{
		"status": status,
		"logs":   logs,
	}
	if status == session.StatusFailure {
		s.attachErrorContext(r, gen, logs, resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) attachErrorContext(r *http.Request, gen uint64, logs string, resp map[string]any) {
	p, err := s.project.Project()
	if err != nil {
		resp["errorMessage"] = "Could not extract error context: " + err.Error()
		resp["errorCode"] = ""
		resp["absoluteFilePath"] = ""
		return
	}

	summary, ok := s.session.CachedSummary(gen)
	if !ok {
		if s.fixer == nil {
			resp["errorMessage"] = "Could not extract error context: " + fix.ErrNoProvider.Error()
			resp["errorCode"] = ""
			resp["absoluteFilePath"] = ""
			return
		}
		summary, err = s.fixer.SummarizeFailure(r.Context(), logs)
		if err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("failure summary")
			resp["errorMessage"] = "Could not extract error context: " + err.Error()
			resp["errorCode"] = ""
			resp["absoluteFilePath"] = ""
			return
		}
		s.session.StoreSummary(gen, summary)
	}

	code, absPath, err := fix.ErrorContext(p.Path, summary)
	resp["absoluteFilePath"] = absPath
	if err != nil {
		resp["errorMessage"] = "Could not extract error context: " + err.Error()
		resp["errorCode"] = ""
		return
	}
	resp["errorMessage"] = summary.Message
	resp["errorCode"] = code
}

func (s *Server) handleGetFix(w http.ResponseWriter, r *http.Request) {
	var req fixRequest
	if r.Method == http.MethodPost {
		if err := decodeBody(r, &req, true); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body.")
			return
		}
	}

	message := strings.TrimSpace(req.BuildMessage)
	if message == "" {
		message = strings.TrimSpace(s.session.BuildMessage())
	}
	if message == "" {
		writeFixUnavailable(w, "No build message available")
		return
	}
	p, err := s.project.Project()
	if err != nil {
		writeFixUnavailable(w, "No project available")
		return
	}
	if s.fixer == nil {
		writeFixUnavailable(w, fix.ErrNoProvider.Error())
		return
	}

	fixes, err := s.fixer.RequestFix(r.Context(), p.Path, message)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("fix request")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.session.SetFixes(fixes)
	s.session.Logf("Received %d proposed file fix(es).", len(fixes))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"files":   fixes,
	})
}

func writeFixUnavailable(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": false,
		"files":   []session.FileFix{},
		"error":   message,
	})
}

func (s *Server) handleDoFix(w http.ResponseWriter, r *http.Request) {
	fixes := s.session.Fixes()
	if len(fixes) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"updated": []string{},
			"error":   "No fix data available",
		})
		return
	}
	p, err := s.project.Project()
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"updated": []string{},
			"error":   "No project available",
		})
		return
	}

	updated, err := fix.ApplyFixes(p.Path, fixes)
	if updated == nil {
		updated = []string{}
	}
	for _, path := range updated {
		s.session.Logf("Updated %s", path)
	}
	if err != nil {
		msg := err.Error()
		var we *fix.WriteError
		if errors.As(err, &we) {
			msg = fmt.Sprintf("Error writing %s: %v", we.Path, we.Err)
		}
		s.session.Log(msg)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"updated": updated,
			"error":   msg,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"updated": updated,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ep := s.session.Endpoint()
	running := ep.PublicURL != ""
	code := http.StatusOK
	if !running {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"running":   running,
		"publicUrl": ep.PublicURL,
	})
}

func (s *Server) handleUpdateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeBody(r, &req, false); err != nil || strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "Invalid token.")
		return
	}
	s.session.SetPushToken(strings.TrimSpace(req.Token))
	s.session.Log("FCM token updated.")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "FCM token updated successfully.",
	})
}
