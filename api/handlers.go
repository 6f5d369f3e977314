package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"entregaflow-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, admins map[string]struct{}, broker *BoardBroker, logger *log.Logger) {
	e.GET("/healthz", healthz())

	gz := gzipRequestMiddleware()

	e.GET("/api/agencies", listAgencies(store, auth, admins))
	e.POST("/api/agencies", createAgency(store, auth, admins), gz)
	e.GET("/api/agencies/:id", getAgency(store, auth, admins))
	e.DELETE("/api/agencies/:id", deleteAgency(store, auth, admins))
	e.PATCH("/api/agencies/:id/status", setAgencyStatus(store, auth, admins), gz)

	e.POST("/api/agencies/:id/members", addMember(store, auth), gz)
	e.PATCH("/api/agencies/:id/members/:memberId", changeMemberRole(store, auth), gz)
	e.DELETE("/api/agencies/:id/members/:memberId", removeMember(store, auth))

	e.GET("/api/agencies/:id/board", getBoard(store, auth, logger))
	e.POST("/api/agencies/:id/board/moves", moveTask(store, auth), gz)
	e.POST("/api/agencies/:id/board/tasks", addTask(store, auth), gz)
	e.PATCH("/api/agencies/:id/board/tasks/:taskId", updateTask(store, auth), gz)
	e.DELETE("/api/agencies/:id/board/tasks/:taskId", deleteTask(store, auth))
	e.POST("/api/agencies/:id/board/tags", addTag(store, auth), gz)
	e.DELETE("/api/agencies/:id/board/tags/:tagId", removeTag(store, auth))
	if broker != nil {
		e.GET("/api/agencies/:id/board/stream", streamBoard(store, auth, broker))
	}

	initActivitySender(store, logger)
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// teamContext carries the actor and agency resolved for a team-scoped request.
type teamContext struct {
	actorID string
	agency  domain.Agency
	etag    string
	role    domain.Role
}

// resolveTeamContext authenticates the request and resolves the actor's
// effective role against the agency in the path. Errors are already shaped
// as echo HTTP errors.
func resolveTeamContext(c echo.Context, store Storage, auth Authenticator) (*teamContext, error) {
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	agencyID := c.Param("id")
	agency, etag, err := store.FetchAgency(c.Request().Context(), agencyID)
	if err != nil {
		c.Logger().Error(err)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to load agency")
	}
	if agency == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "agency not found")
	}
	return &teamContext{
		actorID: userID,
		agency:  *agency,
		etag:    etag,
		role:    domain.ResolveRole(userID, *agency),
	}, nil
}

// writeDomainError maps domain error kinds to HTTP statuses.
func writeDomainError(c echo.Context, err error) error {
	var ve domain.ValidationError
	var nf domain.NotFoundError
	var dup domain.DuplicateError
	var stale domain.StaleStateError
	switch {
	case errors.As(err, &ve):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.As(err, &nf):
		return c.String(http.StatusNotFound, err.Error())
	case errors.As(err, &dup):
		return c.String(http.StatusConflict, err.Error())
	case errors.As(err, &stale):
		return c.String(http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrVersionConflict):
		return c.String(http.StatusConflict, "state changed concurrently, reload and retry")
	case errors.Is(err, domain.ErrPermissionDenied):
		return c.String(http.StatusForbidden, "permission denied")
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, "internal error")
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, mutationMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func newActivity(agencyID, actorID, action, entityID string) domain.ActivityEvent {
	return domain.ActivityEvent{
		ID:        uuid.NewString(),
		AgencyID:  agencyID,
		ActorID:   actorID,
		Action:    action,
		EntityID:  entityID,
		Timestamp: time.Now().UnixNano(),
	}
}

func getBoard(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		tc, tcErr := resolveTeamContext(c, store, auth)
		metrics.ObserveAuth(time.Since(authStart))
		if tcErr != nil {
			metrics.SetErrorStage("auth")
			err = tcErr
			return err
		}
		if !domain.CanViewContent(tc.role) {
			metrics.SetErrorStage("permission")
			err = c.String(http.StatusForbidden, "not a member of this agency")
			return err
		}

		fetchStart := time.Now()
		board, fetchErr := ensureBoard(c, store, tc.agency.ID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, "failed to load board")
			return err
		}
		metrics.SetBoardCreated(board.created)
		metrics.SetTasksReturned(board.taskCount)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, boardResponse{Board: board.board})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

type ensuredBoard struct {
	board     domain.Board
	etag      string
	created   bool
	taskCount int
}

// ensureBoard loads the agency's board, creating and persisting the default
// one when none exists yet. Absence is a valid state, not an error. A create
// race with another session is resolved by refetching.
func ensureBoard(c echo.Context, store Storage, agencyID string) (*ensuredBoard, error) {
	ctx := c.Request().Context()
	board, etag, err := store.FetchBoard(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	created := false
	if board == nil {
		def := domain.NewDefaultBoard()
		switch insertEtag, err := store.InsertBoard(ctx, agencyID, def); {
		case err == nil:
			board, etag, created = &def, insertEtag, true
		case errors.Is(err, domain.ErrVersionConflict):
			board, etag, err = store.FetchBoard(ctx, agencyID)
			if err != nil {
				return nil, err
			}
			if board == nil {
				return nil, errors.New("board vanished after create conflict")
			}
		default:
			return nil, err
		}
	}
	count := 0
	for _, colID := range domain.ColumnOrder {
		count += len(board.Columns[colID].Items)
	}
	return &ensuredBoard{board: *board, etag: etag, created: created, taskCount: count}, nil
}

// mutateBoard runs one board mutation end to end: resolve the actor, check
// edit permission, apply the mutation to a clone, persist it conditionally on
// the read ETag, and record the activity. The shared in-memory state is never
// touched, so a failed persist leaves the last known-good snapshot intact.
func mutateBoard(c echo.Context, store Storage, auth Authenticator, action string, fn func(*teamContext, *domain.Board) (entityID string, err error)) error {
	tc, err := resolveTeamContext(c, store, auth)
	if err != nil {
		return err
	}
	if !domain.CanEditContent(tc.role) {
		return c.String(http.StatusForbidden, "read-only access")
	}

	ensured, err := ensureBoard(c, store, tc.agency.ID)
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, "failed to load board")
	}

	snapshot := ensured.board.Clone()
	entityID, err := fn(tc, &snapshot)
	if err != nil {
		return writeDomainError(c, err)
	}

	if err := store.UpdateBoard(c.Request().Context(), tc.agency.ID, snapshot, ensured.etag); err != nil {
		return writeDomainError(c, err)
	}

	recordActivity(store, newActivity(tc.agency.ID, tc.actorID, action, entityID))
	return c.JSON(http.StatusOK, boardResponse{Board: snapshot})
}

func moveTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req moveRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.From == req.To && req.FromIndex == req.ToIndex {
			// Nothing would change; skip the write entirely.
			tc, err := resolveTeamContext(c, store, auth)
			if err != nil {
				return err
			}
			if !domain.CanEditContent(tc.role) {
				return c.String(http.StatusForbidden, "read-only access")
			}
			ensured, err := ensureBoard(c, store, tc.agency.ID)
			if err != nil {
				c.Logger().Error(err)
				return c.String(http.StatusInternalServerError, "failed to load board")
			}
			return c.JSON(http.StatusOK, boardResponse{Board: ensured.board})
		}
		return mutateBoard(c, store, auth, domain.ActivityTaskMoved, func(tc *teamContext, b *domain.Board) (string, error) {
			return req.TaskID, b.MoveTask(req.TaskID, req.From, req.FromIndex, req.To, req.ToIndex)
		})
	}
}

func addTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req addTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		return mutateBoard(c, store, auth, domain.ActivityTaskAdded, func(tc *teamContext, b *domain.Board) (string, error) {
			task, err := b.AddTask(req.ColumnID, req.Task)
			return task.ID, err
		})
	}
}

func updateTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		taskID := c.Param("taskId")
		return mutateBoard(c, store, auth, domain.ActivityTaskUpdated, func(tc *teamContext, b *domain.Board) (string, error) {
			_, err := b.UpdateTask(taskID, patch)
			return taskID, err
		})
	}
}

func deleteTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		taskID := c.Param("taskId")
		return mutateBoard(c, store, auth, domain.ActivityTaskDeleted, func(tc *teamContext, b *domain.Board) (string, error) {
			// Deleting an absent task is an idempotent no-op.
			b.DeleteTask(taskID)
			return taskID, nil
		})
	}
}

func addTag(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var tag domain.Tag
		if err := decodeBody(c, &tag); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		return mutateBoard(c, store, auth, domain.ActivityTagAdded, func(tc *teamContext, b *domain.Board) (string, error) {
			added, err := b.AddTag(tag)
			return added.ID, err
		})
	}
}

func removeTag(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		tagID := c.Param("tagId")
		return mutateBoard(c, store, auth, domain.ActivityTagRemoved, func(tc *teamContext, b *domain.Board) (string, error) {
			b.RemoveTag(tagID)
			return tagID, nil
		})
	}
}
