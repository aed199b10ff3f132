// Package sqapitest provides an in-memory analysis server for tests.
package sqapitest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/sqapi"
)

// Association records one add_project call.
type Association struct {
	Project  string
	Language string
	Profile  string
}

// Server fakes the subset of the web API the orchestrator uses. Exported
// fields are configured before the first request; recorded calls are read
// through the accessor methods.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	// StatusSequence is returned by successive status calls; the last entry repeats.
	StatusSequence []string
	// CreateStatuses are returned by successive project create calls before
	// normal behaviour (create, or 400 when the key exists) resumes.
	CreateStatuses []int
	// TaskSequence is returned by successive ce/task calls; the last entry repeats.
	TaskSequence []sqapi.Task
	// Issues are served by issues/search in pages of PageSize.
	Issues   []sqapi.Issue
	PageSize int
	// IssuesFailAtPage makes the given page answer 400.
	IssuesFailAtPage int
	Duplications     map[string]sqapi.Duplications
	Measures         sqapi.ComponentMeasures

	statusCalls  int
	createCalls  int
	projects     map[string]bool
	taskIDs      []string
	restored     []string
	associations []Association
	settings     []url.Values
	issueQueries []url.Values
}

// New starts a fake server. Call Close when done.
func New() *Server {
	s := &Server{
		PageSize:     100,
		projects:     map[string]bool{},
		Duplications: map[string]sqapi.Duplications{},
	}

	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		api.Get("/system/status", s.handleStatus)
		api.Post("/projects/create", s.handleCreate)
		api.Post("/qualityprofiles/restore", s.handleRestore)
		api.Post("/qualityprofiles/add_project", s.handleAddProject)
		api.Post("/settings/set", s.handleSettings)
		api.Post("/ce/task", s.handleTask)
		api.Post("/issues/search", s.handleIssues)
		api.Post("/duplications/show", s.handleDuplications)
		api.Post("/measures/component", s.handleMeasures)
	})
	s.Server = httptest.NewServer(r)
	return s
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeValidation(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"errors": []map[string]string{{"msg": msg}},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := "STARTING"
	if n := len(s.StatusSequence); n > 0 {
		idx := s.statusCalls
		if idx >= n {
			idx = n - 1
		}
		status = s.StatusSequence[idx]
	}
	s.statusCalls++
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, sqapi.SystemStatus{ID: "fake", Version: "8.9", Status: status})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	key := r.PostForm.Get("project")

	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.createCalls
	s.createCalls++

	if call < len(s.CreateStatuses) {
		code := s.CreateStatuses[call]
		if code == http.StatusBadRequest {
			writeValidation(w, "invalid request")
			return
		}
		http.Error(w, http.StatusText(code), code)
		return
	}
	if s.projects[key] {
		writeValidation(w, "Could not create Project, key already exists: "+key)
		return
	}
	s.projects[key] = true
	writeJSON(w, http.StatusOK, map[string]interface{}{"project": map[string]string{"key": key}})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeValidation(w, err.Error())
		return
	}
	f, _, err := r.FormFile("backup")
	if err != nil {
		writeValidation(w, "A backup file must be provided")
		return
	}
	defer f.Close()
	data, _ := io.ReadAll(f)

	s.mu.Lock()
	s.restored = append(s.restored, string(data))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (s *Server) handleAddProject(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	s.mu.Lock()
	s.associations = append(s.associations, Association{
		Project:  r.PostForm.Get("project"),
		Language: r.PostForm.Get("language"),
		Profile:  r.PostForm.Get("qualityProfile"),
	})
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	s.mu.Lock()
	s.settings = append(s.settings, r.PostForm)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	id := r.PostForm.Get("id")

	s.mu.Lock()
	idx := len(s.taskIDs)
	s.taskIDs = append(s.taskIDs, id)
	var task sqapi.Task
	if n := len(s.TaskSequence); n > 0 {
		if idx >= n {
			idx = n - 1
		}
		task = s.TaskSequence[idx]
	}
	s.mu.Unlock()

	if task.Status == "" {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	task.ID = id
	writeJSON(w, http.StatusOK, map[string]interface{}{"task": task})
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	page := 1
	if p, err := strconv.Atoi(r.PostForm.Get("p")); err == nil && p > 0 {
		page = p
	}

	s.mu.Lock()
	s.issueQueries = append(s.issueQueries, r.PostForm)
	failAt := s.IssuesFailAtPage
	size := s.PageSize
	all := s.Issues
	s.mu.Unlock()

	if failAt > 0 && page == failAt {
		writeValidation(w, "Can return only the first 10000 results")
		return
	}

	start := (page - 1) * size
	end := start + size
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"p":      page,
		"ps":     size,
		"total":  len(all),
		"issues": all[start:end],
	})
}

func (s *Server) handleDuplications(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	s.mu.Lock()
	dup, ok := s.Duplications[r.PostForm.Get("key")]
	s.mu.Unlock()
	if !ok {
		dup = sqapi.Duplications{}
	}
	writeJSON(w, http.StatusOK, dup)
}

func (s *Server) handleMeasures(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	m := s.Measures
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, m)
}

// StatusCalls returns how many status requests were served.
func (s *Server) StatusCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCalls
}

// CreateCalls returns how many project create requests were served.
func (s *Server) CreateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls
}

// HasProject reports whether key was created.
func (s *Server) HasProject(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects[key]
}

// TaskIDs returns the ids of every ce/task request in order.
func (s *Server) TaskIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.taskIDs...)
}

// Restored returns the uploaded profile documents.
func (s *Server) Restored() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.restored...)
}

// Associations returns the recorded add_project calls.
func (s *Server) Associations() []Association {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Association(nil), s.associations...)
}

// Settings returns the recorded settings/set forms.
func (s *Server) Settings() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.settings...)
}

// IssueQueries returns the recorded issues/search forms.
func (s *Server) IssueQueries() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.issueQueries...)
}
