package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-chroma/internal/engine"
)

// handleListGroups returns every registered group with its devices.
func (s *Server) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	groups := s.engine.Snapshot().Groups
	if groups == nil {
		groups = []engine.GroupStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"groups": groups,
		"count":  len(groups),
	})
}

// handleGetGroup returns a single group.
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	gs, ok := s.groupStatus(chi.URLParam(r, "name"))
	if !ok {
		writeNotFound(w, "device group not found")
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

// handleEnableGroup initialises a group. A group whose vendor is unavailable
// stays disabled and answers 409; the journal holds the reason.
func (s *Server) handleEnableGroup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.engine.EnableDeviceGroup(name); err != nil {
		s.writeGroupError(w, err)
		return
	}
	gs, _ := s.groupStatus(name)
	if !gs.Enabled {
		writeConflict(w, "device group failed to initialise")
		return
	}
	s.logger.Info("device group enabled via API", "group", name)
	writeJSON(w, http.StatusOK, gs)
}

// handleDisableGroup releases a group.
func (s *Server) handleDisableGroup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.engine.DisableDeviceGroup(name); err != nil {
		s.writeGroupError(w, err)
		return
	}
	gs, _ := s.groupStatus(name)
	s.logger.Info("device group disabled via API", "group", name)
	writeJSON(w, http.StatusOK, gs)
}

// handleEnableAll re-enables every group, typically after a render failure.
func (s *Server) handleEnableAll(w http.ResponseWriter, r *http.Request) {
	s.engine.EnableAllDeviceGroups()
	s.handleListGroups(w, r)
}

// handleDisableAll blanks and releases every group.
func (s *Server) handleDisableAll(w http.ResponseWriter, r *http.Request) {
	s.engine.DisableAllDeviceGroups()
	s.handleListGroups(w, r)
}

func (s *Server) groupStatus(name string) (engine.GroupStatus, bool) {
	for _, gs := range s.engine.Snapshot().Groups {
		if gs.Name == name {
			return gs, true
		}
	}
	return engine.GroupStatus{}, false
}

func (s *Server) writeGroupError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrGroupNotFound) {
		writeNotFound(w, "device group not found")
		return
	}
	s.logger.Error("device group operation failed", "error", err)
	writeInternalError(w, "device group operation failed")
}
