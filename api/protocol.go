package api

import "entregaflow-api/domain"

// Mutation request bodies are small; cap them well below any board size.
const mutationMaxSize = 64 * 1024 // 64 KiB

type boardResponse struct {
	Board domain.Board `json:"board"`
}

// POST /api/agencies/:id/board/moves request body
type moveRequest struct {
	TaskID    string `json:"taskId"`
	From      string `json:"from"`
	FromIndex int    `json:"fromIndex"`
	To        string `json:"to"`
	ToIndex   int    `json:"toIndex"`
}

// POST /api/agencies/:id/board/tasks request body
type addTaskRequest struct {
	ColumnID string            `json:"columnId"`
	Task     domain.TaskFields `json:"task"`
}

// POST /api/agencies/:id/members request body
type addMemberRequest struct {
	MemberID string `json:"memberId"`
	Role     string `json:"role"`
}

// PATCH /api/agencies/:id/members/:memberId request body
type changeRoleRequest struct {
	Role string `json:"role"`
}

// POST /api/agencies request body
type createAgencyRequest struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	OwnerID string `json:"ownerId"`
	Plan    string `json:"plan,omitempty"`
}

// PATCH /api/agencies/:id/status request body
type setStatusRequest struct {
	Status string `json:"status"`
}

type agenciesResponse struct {
	Agencies []domain.Agency `json:"agencies"`
}
