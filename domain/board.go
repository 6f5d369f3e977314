package domain

import "time"

// Column identifiers are fixed; the board never grows or loses columns.
const (
	ColumnTodo       = "todo"
	ColumnInProgress = "inProgress"
	ColumnReview     = "review"
	ColumnDone       = "done"
)

// ColumnOrder defines the display order of the board columns. It is part of
// the product definition, not derived from data.
var ColumnOrder = []string{ColumnTodo, ColumnInProgress, ColumnReview, ColumnDone}

// Task priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Task is a single card on the board. Value and Deadline are free text,
// entered as-is by the user. Comments and Attachments are display-only
// counters maintained elsewhere.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Value       string   `json:"value,omitempty"`
	Deadline    string   `json:"deadline,omitempty"`
	Responsible string   `json:"responsible,omitempty"`
	Category    string   `json:"category,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	CreatedAt   int64    `json:"createdAt"`
	TagIDs      []string `json:"tagIds,omitempty"`
	Comments    int      `json:"comments,omitempty"`
	Attachments int      `json:"attachments,omitempty"`
}

// Tag is a board-level label referenced from tasks by id.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Column holds an ordered run of tasks for one pipeline stage. Item order is
// meaningful and must survive persistence round trips.
type Column struct {
	Title string `json:"title"`
	Color string `json:"color"`
	Items []Task `json:"items"`
}

// Board is the full kanban structure owned by one agency.
type Board struct {
	Columns   map[string]Column `json:"columns"`
	Tags      []Tag             `json:"tags"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// NewDefaultBoard returns the board created for an agency that has none
// persisted yet: four empty columns and the three seed tags.
func NewDefaultBoard() Board {
	return Board{
		Columns: map[string]Column{
			ColumnTodo:       {Title: "A Fazer", Color: "gray", Items: []Task{}},
			ColumnInProgress: {Title: "Em Produção", Color: "blue", Items: []Task{}},
			ColumnReview:     {Title: "Revisão", Color: "yellow", Items: []Task{}},
			ColumnDone:       {Title: "Entregue", Color: "green", Items: []Task{}},
		},
		Tags: []Tag{
			{ID: "urgent", Name: "Urgente", Color: "red"},
			{ID: "creative", Name: "Criativo", Color: "purple"},
			{ID: "revision", Name: "Alteração", Color: "orange"},
		},
		UpdatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy. Handlers mutate a clone, persist it, and only
// adopt it once the write succeeded, so a failed write leaves the last
// known-good snapshot untouched.
func (b Board) Clone() Board {
	out := Board{
		Columns:   make(map[string]Column, len(b.Columns)),
		UpdatedAt: b.UpdatedAt,
	}
	for id, col := range b.Columns {
		items := make([]Task, len(col.Items))
		copy(items, col.Items)
		for i := range items {
			if items[i].TagIDs != nil {
				tags := make([]string, len(items[i].TagIDs))
				copy(tags, items[i].TagIDs)
				items[i].TagIDs = tags
			}
		}
		out.Columns[id] = Column{Title: col.Title, Color: col.Color, Items: items}
	}
	if b.Tags != nil {
		out.Tags = make([]Tag, len(b.Tags))
		copy(out.Tags, b.Tags)
	}
	return out
}

// FindTask locates a task by id. Task ids are unique across the whole board.
func (b Board) FindTask(taskID string) (columnID string, index int, ok bool) {
	for _, id := range ColumnOrder {
		for i, task := range b.Columns[id].Items {
			if task.ID == taskID {
				return id, i, true
			}
		}
	}
	return "", 0, false
}

// ResolveTags maps a task's tag references to tag values, skipping ids that
// no longer resolve. Removing a tag does not strip its id from tasks, so
// dangling references are expected and filtered here.
func (b Board) ResolveTags(task Task) []Tag {
	if len(task.TagIDs) == 0 {
		return nil
	}
	byID := make(map[string]Tag, len(b.Tags))
	for _, tag := range b.Tags {
		byID[tag.ID] = tag
	}
	out := make([]Tag, 0, len(task.TagIDs))
	for _, id := range task.TagIDs {
		if tag, ok := byID[id]; ok {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func validPriority(p string) bool {
	switch p {
	case "", PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}
