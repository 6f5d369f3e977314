package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskFields carries user input for task creation.
type TaskFields struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Value       string   `json:"value,omitempty"`
	Deadline    string   `json:"deadline,omitempty"`
	Responsible string   `json:"responsible,omitempty"`
	Category    string   `json:"category,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	TagIDs      []string `json:"tagIds,omitempty"`
}

// TaskPatch carries a partial task update; nil fields are left unchanged.
type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Value       *string   `json:"value,omitempty"`
	Deadline    *string   `json:"deadline,omitempty"`
	Responsible *string   `json:"responsible,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Priority    *string   `json:"priority,omitempty"`
	TagIDs      *[]string `json:"tagIds,omitempty"`
}

// MoveTask removes the task at srcIdx in srcCol and inserts it at dstIdx in
// dstCol. The caller supplies the position it believes the task occupies; a
// mismatch means its view is stale and the move is rejected rather than
// applied somewhere unintended. dstIdx is clamped to the destination length.
func (b *Board) MoveTask(taskID, srcCol string, srcIdx int, dstCol string, dstIdx int) error {
	src, ok := b.Columns[srcCol]
	if !ok {
		return NotFoundError{Kind: "column", ID: srcCol}
	}
	dst, ok := b.Columns[dstCol]
	if !ok {
		return NotFoundError{Kind: "column", ID: dstCol}
	}
	if srcCol == dstCol && srcIdx == dstIdx {
		return nil
	}
	if srcIdx < 0 || srcIdx >= len(src.Items) || src.Items[srcIdx].ID != taskID {
		return StaleStateError{TaskID: taskID, ColumnID: srcCol, Index: srcIdx}
	}

	task := src.Items[srcIdx]
	items := make([]Task, 0, len(src.Items)-1)
	items = append(items, src.Items[:srcIdx]...)
	items = append(items, src.Items[srcIdx+1:]...)
	src.Items = items
	b.Columns[srcCol] = src

	if srcCol == dstCol {
		dst = b.Columns[dstCol]
	}
	if dstIdx < 0 {
		dstIdx = 0
	}
	if dstIdx > len(dst.Items) {
		dstIdx = len(dst.Items)
	}
	inserted := make([]Task, 0, len(dst.Items)+1)
	inserted = append(inserted, dst.Items[:dstIdx]...)
	inserted = append(inserted, task)
	inserted = append(inserted, dst.Items[dstIdx:]...)
	dst.Items = inserted
	b.Columns[dstCol] = dst

	b.touch()
	return nil
}

// AddTask validates the fields, assigns a fresh id and appends the task to
// the end of the column.
func (b *Board) AddTask(columnID string, f TaskFields) (Task, error) {
	col, ok := b.Columns[columnID]
	if !ok {
		return Task{}, NotFoundError{Kind: "column", ID: columnID}
	}
	if strings.TrimSpace(f.Title) == "" {
		return Task{}, ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if strings.TrimSpace(f.Description) == "" {
		return Task{}, ValidationError{Field: "description", Reason: "must not be empty"}
	}
	if !validPriority(f.Priority) {
		return Task{}, ValidationError{Field: "priority", Reason: "must be high, medium or low"}
	}

	task := Task{
		ID:          NewTaskID(),
		Title:       f.Title,
		Description: f.Description,
		Value:       f.Value,
		Deadline:    f.Deadline,
		Responsible: f.Responsible,
		Category:    f.Category,
		Priority:    f.Priority,
		CreatedAt:   time.Now().Unix(),
		TagIDs:      f.TagIDs,
	}
	col.Items = append(col.Items, task)
	b.Columns[columnID] = col
	b.touch()
	return task, nil
}

// UpdateTask applies the patch to the task with the given id, preserving its
// column and position.
func (b *Board) UpdateTask(taskID string, p TaskPatch) (Task, error) {
	colID, idx, ok := b.FindTask(taskID)
	if !ok {
		return Task{}, NotFoundError{Kind: "task", ID: taskID}
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return Task{}, ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return Task{}, ValidationError{Field: "description", Reason: "must not be empty"}
	}
	if p.Priority != nil && !validPriority(*p.Priority) {
		return Task{}, ValidationError{Field: "priority", Reason: "must be high, medium or low"}
	}

	col := b.Columns[colID]
	task := col.Items[idx]
	if p.Title != nil {
		task.Title = *p.Title
	}
	if p.Description != nil {
		task.Description = *p.Description
	}
	if p.Value != nil {
		task.Value = *p.Value
	}
	if p.Deadline != nil {
		task.Deadline = *p.Deadline
	}
	if p.Responsible != nil {
		task.Responsible = *p.Responsible
	}
	if p.Category != nil {
		task.Category = *p.Category
	}
	if p.Priority != nil {
		task.Priority = *p.Priority
	}
	if p.TagIDs != nil {
		task.TagIDs = *p.TagIDs
	}
	col.Items[idx] = task
	b.Columns[colID] = col
	b.touch()
	return task, nil
}

// DeleteTask removes the task from whichever column holds it. Deleting an
// already-absent task is a no-op, not an error.
func (b *Board) DeleteTask(taskID string) bool {
	colID, idx, ok := b.FindTask(taskID)
	if !ok {
		return false
	}
	col := b.Columns[colID]
	items := make([]Task, 0, len(col.Items)-1)
	items = append(items, col.Items[:idx]...)
	items = append(items, col.Items[idx+1:]...)
	col.Items = items
	b.Columns[colID] = col
	b.touch()
	return true
}

// AddTag adds a board-level tag. An empty id gets a generated one.
func (b *Board) AddTag(tag Tag) (Tag, error) {
	if strings.TrimSpace(tag.Name) == "" {
		return Tag{}, ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}
	for _, existing := range b.Tags {
		if existing.ID == tag.ID {
			return Tag{}, DuplicateError{Kind: "tag", ID: tag.ID}
		}
	}
	b.Tags = append(b.Tags, tag)
	b.touch()
	return tag, nil
}

// RemoveTag removes the tag from the board's tag set. Task tag references are
// left alone; readers filter unresolved ids via ResolveTags. Removing an
// absent tag is a no-op.
func (b *Board) RemoveTag(tagID string) bool {
	for i, tag := range b.Tags {
		if tag.ID == tagID {
			b.Tags = append(b.Tags[:i], b.Tags[i+1:]...)
			b.touch()
			return true
		}
	}
	return false
}

func (b *Board) touch() {
	b.UpdatedAt = time.Now().UTC()
}
