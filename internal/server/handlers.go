package server

import (
	"net/http"
	"strconv"
	"time"

	"taskflow/internal/app"
	"taskflow/internal/graph"
	"taskflow/internal/insight"
)

type utteranceRequest struct {
	Utterance string `json:"utterance"`
}

type addTaskRequest struct {
	TaskName     string `json:"task_name"`
	PreviousTask string `json:"previous_task,omitempty"`
	EdgeLabel    string `json:"edge_label,omitempty"`
}

type renameRequest struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

type rebuildRequest struct {
	NewNodes []string     `json:"new_nodes"`
	NewEdges []graph.Edge `json:"new_edges"`
}

type routineRequest struct {
	RoutineName string `json:"routine_name"`
}

type routinesResponse struct {
	Routines []app.RoutineInfo `json:"routines"`
	Count    int               `json:"count"`
}

type activityRequest struct {
	EventType   string         `json:"event_type"`
	EventData   map[string]any `json:"event_data,omitempty"`
	TaskContext string         `json:"task_context,omitempty"`
	DurationMs  int64          `json:"duration_ms,omitempty"`
}

type goalRequest struct {
	GoalType    string `json:"goal_type"`
	TargetValue int    `json:"target_value"`
}

type goalsResponse struct {
	Goals []insight.GoalProgress `json:"goals"`
}

type activityResponse struct {
	Report insight.Report  `json:"report"`
	Events []insight.Event `json:"events"`
}

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetGraph(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleClearGraph(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.ClearGraph(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// handleUtterance answers 200 even when the loop stopped early; the body
// carries partial and warning.
func (s *Server) handleUtterance(w http.ResponseWriter, r *http.Request) {
	var req utteranceRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.UpdateGraph(r.Context(), r.PathValue("id"), req.Utterance)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var req addTaskRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	label := req.EdgeLabel
	if label == "" {
		label = graph.LabelThen
	}
	view, err := s.svc.AddTask(r.Context(), r.PathValue("id"), req.TaskName, req.PreviousTask, label)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.svc.RenameTask(r.Context(), r.PathValue("id"), req.OldName, req.NewName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.svc.RebuildGraph(r.Context(), r.PathValue("id"), req.NewNodes, req.NewEdges)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	routines, err := s.svc.ListRoutines(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, routinesResponse{Routines: routines, Count: len(routines)})
}

func (s *Server) handleSaveRoutine(w http.ResponseWriter, r *http.Request) {
	var req routineRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.svc.SaveRoutine(r.Context(), r.PathValue("id"), req.RoutineName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleLoadRoutine(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.LoadRoutine(r.Context(), r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.ResetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	ins, err := s.svc.Insights(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ins)
}

func (s *Server) handleLogActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.svc.LogActivity(r.Context(), r.PathValue("id"), insight.Event{
		Type:        req.EventType,
		Data:        req.EventData,
		TaskContext: req.TaskContext,
		Duration:    time.Duration(req.DurationMs) * time.Millisecond,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, events, err := s.svc.ActivityReport(r.Context(), r.PathValue("id"), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []insight.Event{}
	}
	s.writeJSON(w, http.StatusOK, activityResponse{Report: report, Events: events})
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	goal, err := s.svc.CreateGoal(r.Context(), r.PathValue("id"), req.GoalType, req.TargetValue)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, goal)
}

func (s *Server) handleGetGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.svc.Goals(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if goals == nil {
		goals = []insight.GoalProgress{}
	}
	s.writeJSON(w, http.StatusOK, goalsResponse{Goals: goals})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.ProductivityMetrics(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

// parseFilter reads type, since, until (RFC 3339) and limit from the query.
func parseFilter(r *http.Request) (insight.Filter, error) {
	q := r.URL.Query()
	f := insight.Filter{Type: q.Get("type")}
	for key, dst := range map[string]*time.Time{"since": &f.Since, "until": &f.Until} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, app.NewAppError(app.ErrCodeInvalidInput, key+" must be an RFC 3339 time", err)
		}
		*dst = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, app.NewAppError(app.ErrCodeInvalidInput, "limit must be a non-negative integer", err)
		}
		f.Limit = n
	}
	return f, nil
}
