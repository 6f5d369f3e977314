package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"entregaflow-api/domain"
)

// globalRole maps an authenticated user onto the account-level role from the
// deployment's admin allow-list.
func globalRole(userID string, admins map[string]struct{}) domain.GlobalRole {
	if _, ok := admins[userID]; ok {
		return domain.GlobalAdmin
	}
	return domain.GlobalNone
}

// adminID authenticates the request and checks the global admin role. Admin
// is a separate account type coming from deployment config, never derived
// from team membership.
func adminID(c echo.Context, auth Authenticator, admins map[string]struct{}) (string, error) {
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	if !domain.CanAdministerAgencies(globalRole(userID, admins)) {
		return "", echo.NewHTTPError(http.StatusForbidden, "admin access required")
	}
	return userID, nil
}

func getAgency(store Storage, auth Authenticator, admins map[string]struct{}) echo.HandlerFunc {
	return func(c echo.Context) error {
		tc, err := resolveTeamContext(c, store, auth)
		if err != nil {
			return err
		}
		isAdmin := domain.CanAdministerAgencies(globalRole(tc.actorID, admins))
		if !domain.CanViewContent(tc.role) && !isAdmin {
			return c.String(http.StatusForbidden, "not a member of this agency")
		}
		return c.JSON(http.StatusOK, tc.agency)
	}
}

func listAgencies(store Storage, auth Authenticator, admins map[string]struct{}) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := adminID(c, auth, admins); err != nil {
			return err
		}
		agencies, err := store.ListAgencies(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to list agencies")
		}
		return c.JSON(http.StatusOK, agenciesResponse{Agencies: agencies})
	}
}

func createAgency(store Storage, auth Authenticator, admins map[string]struct{}) echo.HandlerFunc {
	return func(c echo.Context) error {
		adminUser, err := adminID(c, auth, admins)
		if err != nil {
			return err
		}
		var req createAgencyRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if strings.TrimSpace(req.Name) == "" {
			return c.String(http.StatusBadRequest, "name must not be empty")
		}
		if strings.TrimSpace(req.OwnerID) == "" {
			return c.String(http.StatusBadRequest, "ownerId must not be empty")
		}
		agency := domain.Agency{
			ID:      req.ID,
			Name:    req.Name,
			Members: []domain.Member{{ID: req.OwnerID, Role: domain.RoleOwner}},
			Status:  domain.AgencyActive,
			Plan:    req.Plan,
		}
		if agency.ID == "" {
			agency.ID = uuid.NewString()
		}
		if err := store.InsertAgency(c.Request().Context(), agency); err != nil {
			return writeDomainError(c, err)
		}
		recordActivity(store, newActivity(agency.ID, adminUser, domain.ActivityAgencyCreated, agency.ID))
		return c.JSON(http.StatusCreated, agency)
	}
}

func deleteAgency(store Storage, auth Authenticator, admins map[string]struct{}) echo.HandlerFunc {
	return func(c echo.Context) error {
		adminUser, err := adminID(c, auth, admins)
		if err != nil {
			return err
		}
		agencyID := c.Param("id")
		if err := store.DeleteAgency(c.Request().Context(), agencyID); err != nil {
			return writeDomainError(c, err)
		}
		recordActivity(store, newActivity(agencyID, adminUser, domain.ActivityAgencyDeleted, agencyID))
		return c.NoContent(http.StatusNoContent)
	}
}

func setAgencyStatus(store Storage, auth Authenticator, admins map[string]struct{}) echo.HandlerFunc {
	return func(c echo.Context) error {
		adminUser, err := adminID(c, auth, admins)
		if err != nil {
			return err
		}
		var req setStatusRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Status != domain.AgencyActive && req.Status != domain.AgencySuspended {
			return c.String(http.StatusBadRequest, "status must be active or suspended")
		}
		agencyID := c.Param("id")
		if err := store.SetAgencyStatus(c.Request().Context(), agencyID, req.Status); err != nil {
			return writeDomainError(c, err)
		}
		recordActivity(store, newActivity(agencyID, adminUser, domain.ActivityStatusSet, req.Status))
		return c.NoContent(http.StatusNoContent)
	}
}

// mutateAgency runs one membership mutation: apply it to a clone and persist
// conditionally on the read ETag, so concurrent membership edits surface as
// retryable conflicts instead of silent overwrites.
func mutateAgency(c echo.Context, store Storage, auth Authenticator, action string, fn func(*teamContext, *domain.Agency) (entityID string, err error)) error {
	tc, err := resolveTeamContext(c, store, auth)
	if err != nil {
		return err
	}

	snapshot := tc.agency.Clone()
	entityID, err := fn(tc, &snapshot)
	if err != nil {
		return writeDomainError(c, err)
	}

	if err := store.UpdateAgency(c.Request().Context(), snapshot, tc.etag); err != nil {
		return writeDomainError(c, err)
	}

	recordActivity(store, newActivity(tc.agency.ID, tc.actorID, action, entityID))
	return c.JSON(http.StatusOK, snapshot)
}

func addMember(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req addMemberRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		return mutateAgency(c, store, auth, domain.ActivityMemberAdded, func(tc *teamContext, a *domain.Agency) (string, error) {
			return req.MemberID, a.AddMember(tc.role, req.MemberID, domain.Role(req.Role))
		})
	}
}

func removeMember(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		memberID := c.Param("memberId")
		return mutateAgency(c, store, auth, domain.ActivityMemberRemoved, func(tc *teamContext, a *domain.Agency) (string, error) {
			return memberID, a.RemoveMember(tc.role, memberID)
		})
	}
}

func changeMemberRole(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req changeRoleRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		memberID := c.Param("memberId")
		return mutateAgency(c, store, auth, domain.ActivityRoleChanged, func(tc *teamContext, a *domain.Agency) (string, error) {
			return memberID, a.ChangeMemberRole(tc.role, memberID, domain.Role(req.Role))
		})
	}
}
