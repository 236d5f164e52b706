package api

import (
	"encoding/json"
	"net/http"

	"github.com/trellis-io/trellis/internal/manager"
	"github.com/trellis-io/trellis/internal/task"
)

// createTaskRequest is the POST /api/tasks payload.
type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ParentID    string `json:"parent_id"`
	Project     string `json:"project"`
	Level       string `json:"level"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
}

// updateTaskRequest is the PATCH /api/tasks/{id} payload. Absent fields
// stay untouched.
type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
}

// moveTaskRequest is the POST /api/tasks/{id}/move payload. An empty
// new_parent_id moves the task to the root tier.
type moveTaskRequest struct {
	NewParentID string `json:"new_parent_id"`
}

// linkMemoryRequest is the POST /api/tasks/{id}/memories payload.
type linkMemoryRequest struct {
	MemoryID  string  `json:"memory_id"`
	Relevance float64 `json:"relevance"`
	MatchType string  `json:"match_type"`
}

// handleListTasks returns a project's tasks in path order.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	tasks, err := s.manager.ListByProject(project)
	if err != nil {
		HandleError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	JSONResponse(w, tasks)
}

// handleCreateTask creates a new task.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	t, err := s.manager.CreateTask(manager.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		ParentID:    req.ParentID,
		Project:     req.Project,
		Level:       task.Level(req.Level),
		Status:      task.Status(req.Status),
		Priority:    task.Priority(req.Priority),
	})
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponseStatus(w, t, http.StatusCreated)
}

// handleGetTask returns one task with its body and memory links.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.manager.GetTask(r.PathValue("id"))
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, t)
}

// handleUpdateTask applies metadata changes.
func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	in := manager.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Status != nil {
		st := task.Status(*req.Status)
		in.Status = &st
	}
	if req.Priority != nil {
		pr := task.Priority(*req.Priority)
		in.Priority = &pr
	}

	t, err := s.manager.UpdateTask(r.PathValue("id"), in)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, t)
}

// handleDeleteTask removes a task. ?cascade=true removes its subtree.
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	cascade := r.URL.Query().Get("cascade") == "true"
	if err := s.manager.DeleteTask(r.PathValue("id"), cascade); err != nil {
		HandleError(w, err)
		return
	}
	NoContent(w)
}

// handleMoveTask reparents a task.
func (s *Server) handleMoveTask(w http.ResponseWriter, r *http.Request) {
	var req moveTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	t, err := s.manager.MoveTask(r.PathValue("id"), req.NewParentID)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, t)
}

// handleGetChildren returns a task's direct children in sibling order.
func (s *Server) handleGetChildren(w http.ResponseWriter, r *http.Request) {
	children, err := s.manager.GetChildren(r.PathValue("id"))
	if err != nil {
		HandleError(w, err)
		return
	}
	if children == nil {
		children = []*task.Task{}
	}
	JSONResponse(w, children)
}

// handleGetTree returns the whole forest as nested nodes.
func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.manager.GetTaskTree("")
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, tree)
}

// handleGetSubtree returns the nested subtree rooted at one task.
func (s *Server) handleGetSubtree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.manager.GetTaskTree(r.PathValue("id"))
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, tree)
}

// handleListMemories returns a task's memory links.
func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	conns, err := s.manager.MemoryConnections(r.PathValue("id"))
	if err != nil {
		HandleError(w, err)
		return
	}
	if conns == nil {
		conns = []task.MemoryConnection{}
	}
	JSONResponse(w, conns)
}

// handleLinkMemory attaches a memory record to a task.
func (s *Server) handleLinkMemory(w http.ResponseWriter, r *http.Request) {
	var req linkMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	if err := s.manager.LinkMemory(id, req.MemoryID, req.Relevance, req.MatchType); err != nil {
		HandleError(w, err)
		return
	}
	JSONResponseStatus(w, map[string]any{"task_id": id, "memory_id": req.MemoryID}, http.StatusCreated)
}

// handleUnlinkMemory removes a memory link.
func (s *Server) handleUnlinkMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.UnlinkMemory(r.PathValue("id"), r.PathValue("memoryId")); err != nil {
		HandleError(w, err)
		return
	}
	NoContent(w)
}

// handleSync runs a full reconciliation pass and reports its stats.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.Reconcile()
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, stats)
}
