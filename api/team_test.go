package api

import (
	"net/http"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"entregaflow-api/domain"
)

func adminSet(ids ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func TestGetAgencyMember(t *testing.T) {
	e := echo.New()
	store := &mockStore{agency: teamAgency()}
	c, rec := boardContext(e, http.MethodGet, "", "ag-1")

	if err := getAgency(store, mockAuth{id: "viewer-1"}, adminSet())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var a domain.Agency
	if err := sonic.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if a.ID != "ag-1" || len(a.Members) != 3 {
		t.Fatalf("unexpected agency: %#v", a)
	}
}

func TestGetAgencyUnaffiliatedForbidden(t *testing.T) {
	e := echo.New()
	store := &mockStore{agency: teamAgency()}
	c, rec := boardContext(e, http.MethodGet, "", "ag-1")

	if err := getAgency(store, mockAuth{id: "stranger"}, adminSet())(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 got %d", rec.Code)
	}
}

func TestGetAgencyAdminBypassesMembership(t *testing.T) {
	e := echo.New()
	store := &mockStore{agency: teamAgency()}
	c, rec := boardContext(e, http.MethodGet, "", "ag-1")

	if err := getAgency(store, mockAuth{id: "root"}, adminSet("root"))(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
}

func TestListAgenciesRequiresAdmin(t *testing.T) {
	e := echo.New()
	store := &mockStore{agencies: []domain.Agency{*teamAgency()}}
	c, _ := boardContext(e, http.MethodGet, "", "")

	err := listAgencies(store, mockAuth{id: "owner-1"}, adminSet("root"))(c)
	if code := httpErrorCode(t, err); code != http.StatusForbidden {
		t.Fatalf("expected status 403 got %d", code)
	}
}

func TestListAgencies(t *testing.T) {
	e := echo.New()
	store := &mockStore{agencies: []domain.Agency{*teamAgency()}}
	c, rec := boardContext(e, http.MethodGet, "", "")

	if err := listAgencies(store, mockAuth{id: "root"}, adminSet("root"))(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp agenciesResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Agencies) != 1 || resp.Agencies[0].ID != "ag-1" {
		t.Fatalf("unexpected agencies: %#v", resp.Agencies)
	}
}

func TestCreateAgency(t *testing.T) {
	e := echo.New()
	store := &mockStore{}
	body := `{"name":"Agência Sul","ownerId":"owner-9","plan":"pro"}`
	c, rec := boardContext(e, http.MethodPost, body, "")

	if err := createAgency(store, mockAuth{id: "root"}, adminSet("root"))(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	if store.insertedAgency == nil {
		t.Fatal("expected agency to be persisted")
	}
	a := store.insertedAgency
	if a.ID == "" {
		t.Fatal("expected generated agency id")
	}
	if a.Status != domain.AgencyActive {
		t.Fatalf("expected new agency to be active, got %q", a.Status)
	}
	if len(a.Members) != 1 || a.Members[0].ID != "owner-9" || a.Members[0].Role != domain.RoleOwner {
		t.Fatalf("expected the owner as sole member: %#v", a.Members)
	}
	acts := store.Activities()
	if len(acts) != 1 || acts[0].Action != domain.ActivityAgencyCreated || acts[0].ActorID != "root" {
		t.Fatalf("unexpected activities: %#v", acts)
	}
}

func TestCreateAgencyValidation(t *testing.T) {
	testCases := map[string]string{
		"blank_name":  `{"name":"  ","ownerId":"u1"}`,
		"blank_owner": `{"name":"Studio","ownerId":""}`,
	}
	for name, body := range testCases {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			store := &mockStore{}
			c, rec := boardContext(e, http.MethodPost, body, "")

			if err := createAgency(store, mockAuth{id: "root"}, adminSet("root"))(c); err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400 got %d", rec.Code)
			}
			if store.insertedAgency != nil {
				t.Fatal("invalid agency must not be persisted")
			}
		})
	}
}

func TestCreateAgencyDuplicate(t *testing.T) {
	e := echo.New()
	store := &mockStore{insertAgencyErr: domain.DuplicateError{Kind: "agency", ID: "ag-1"}}
	body := `{"id":"ag-1","name":"Studio","ownerId":"u1"}`
	c, rec := boardContext(e, http.MethodPost, body, "")

	if err := createAgency(store, mockAuth{id: "root"}, adminSet("root"))(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rec.Code)
	}
}

func TestDeleteAgency(t *testing.T) {
	e := echo.New()
	store := &mockStore{}
	c, rec := boardContext(e, http.MethodDelete, "", "ag-1")

	if err := deleteAgency(store, mockAuth{id: "root"}, adminSet("root"))(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d", rec.Code)
	}
	if store.deletedAgencyID != "ag-1" {
		t.Fatalf("unexpected deleted agency: %q", store.deletedAgencyID)
	}
	acts := store.Activities()
	if len(acts) != 1 || acts[0].Action != domain.ActivityAgencyDeleted || acts[0].AgencyID != "ag-1" {
		t.Fatalf("unexpected activities: %#v", acts)
	}
}

func TestSetAgencyStatus(t *testing.T) {
	e := echo.New()
	store := &mockStore{}
	c, rec := boardContext(e, http.MethodPatch, `{"status":"suspended"}`, "ag-1")

	if err := setAgencyStatus(store, mockAuth{id: "root"}, adminSet("root"))(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d", rec.Code)
	}
	if store.statusAgencyID != "ag-1" || store.statusValue != domain.AgencySuspended {
		t.Fatalf("unexpected status write: %q %q", store.statusAgencyID, store.statusValue)
	}
	acts := store.Activities()
	if len(acts) != 1 || acts[0].Action != domain.ActivityStatusSet || acts[0].EntityID != domain.AgencySuspended {
		t.Fatalf("unexpected activities: %#v", acts)
	}
}

func TestSetAgencyStatusRejectsUnknownValue(t *testing.T) {
	e := echo.New()
	store := &mockStore{}
	c, rec := boardContext(e, http.MethodPatch, `{"status":"archived"}`, "ag-1")

	if err := setAgencyStatus(store, mockAuth{id: "root"}, adminSet("root"))(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
	if store.statusAgencyID != "" {
		t.Fatal("invalid status must not be persisted")
	}
}

func TestAddMember(t *testing.T) {
	e := echo.New()
	store := &mockStore{agency: teamAgency(), agencyEtag: "W/\"3\""}
	body := `{"memberId":"new-1","role":"editor"}`
	c, rec := boardContext(e, http.MethodPost, body, "ag-1")

	if err := addMember(store, mockAuth{id: "owner-1"})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if store.updatedAgency == nil {
		t.Fatal("expected agency to be persisted")
	}
	if store.updatedAgencyEtag != "W/\"3\"" {
		t.Fatalf("expected read etag to be forwarded, got %q", store.updatedAgencyEtag)
	}
	if len(store.updatedAgency.Members) != 4 {
		t.Fatalf("expected 4 members, got %d", len(store.updatedAgency.Members))
	}
	last := store.updatedAgency.Members[3]
	if last.ID != "new-1" || last.Role != domain.RoleEditor {
		t.Fatalf("unexpected new member: %#v", last)
	}
	acts := store.Activities()
	if len(acts) != 1 || acts[0].Action != domain.ActivityMemberAdded || acts[0].EntityID != "new-1" {
		t.Fatalf("unexpected activities: %#v", acts)
	}
}

func TestAddMemberRequiresOwner(t *testing.T) {
	for _, caller := range []string{"editor-1", "viewer-1", "stranger"} {
		t.Run(caller, func(t *testing.T) {
			e := echo.New()
			store := &mockStore{agency: teamAgency()}
			c, rec := boardContext(e, http.MethodPost, `{"memberId":"new-1","role":"viewer"}`, "ag-1")

			if err := addMember(store, mockAuth{id: caller})(c); err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if rec.Code != http.StatusForbidden {
				t.Fatalf("expected status 403 got %d", rec.Code)
			}
			if store.updatedAgency != nil {
				t.Fatal("denied mutation must not be persisted")
			}
		})
	}
}

func TestAddMemberDuplicate(t *testing.T) {
	e := echo.New()
	store := &mockStore{agency: teamAgency()}
	c, rec := boardContext(e, http.MethodPost, `{"memberId":"editor-1","role":"viewer"}`, "ag-1")

	if err := addMember(store, mockAuth{id: "owner-1"})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rec.Code)
	}
}

func TestAddMemberRejectsOwnerRole(t *testing.T) {
	e := echo.New()
	store := &mockStore{agency: teamAgency()}
	c, rec := boardContext(e, http.MethodPost, `{"memberId":"new-1","role":"owner"}`, "ag-1")

	if err := addMember(store, mockAuth{id: "owner-1"})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestRemoveMember(t *testing.T) {
	e := echo.New()
	store := &mockStore{agency: teamAgency()}
	c, rec := boardContext(e, http.MethodDelete, "", "ag-1", "memberId", "viewer-1")

	if err := removeMember(store, mockAuth{id: "owner-1"})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	for _, m := range store.updatedAgency.Members {
		if m.ID == "viewer-1" {
			t.Fatal("expected member to be removed")
		}
	}
	acts := store.Activities()
	if len(acts) != 1 || acts[0].Action != domain.ActivityMemberRemoved {
		t.Fatalf("unexpected activities: %#v", acts)
	}
}

func TestRemoveOwnerRejected(t *testing.T) {
	e := echo.New()
	store := &mockStore{agency: teamAgency()}
	c, rec := boardContext(e, http.MethodDelete, "", "ag-1", "memberId", "owner-1")

	if err := removeMember(store, mockAuth{id: "owner-1"})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 got %d", rec.Code)
	}
	if store.updatedAgency != nil {
		t.Fatal("denied mutation must not be persisted")
	}
}

func TestRemoveMemberAbsent(t *testing.T) {
	e := echo.New()
	store := &mockStore{agency: teamAgency()}
	c, rec := boardContext(e, http.MethodDelete, "", "ag-1", "memberId", "ghost")

	if err := removeMember(store, mockAuth{id: "owner-1"})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestChangeMemberRole(t *testing.T) {
	e := echo.New()
	store := &mockStore{agency: teamAgency()}
	c, rec := boardContext(e, http.MethodPatch, `{"role":"editor"}`, "ag-1", "memberId", "viewer-1")

	if err := changeMemberRole(store, mockAuth{id: "owner-1"})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var changed bool
	for _, m := range store.updatedAgency.Members {
		if m.ID == "viewer-1" && m.Role == domain.RoleEditor {
			changed = true
		}
	}
	if !changed {
		t.Fatalf("expected role change to be persisted: %#v", store.updatedAgency.Members)
	}
}

func TestChangeMemberRoleAbsentIsNoop(t *testing.T) {
	e := echo.New()
	store := &mockStore{agency: teamAgency()}
	c, rec := boardContext(e, http.MethodPatch, `{"role":"editor"}`, "ag-1", "memberId", "ghost")

	if err := changeMemberRole(store, mockAuth{id: "owner-1"})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
}

func TestChangeOwnerRoleRejected(t *testing.T) {
	e := echo.New()
	store := &mockStore{agency: teamAgency()}
	c, rec := boardContext(e, http.MethodPatch, `{"role":"viewer"}`, "ag-1", "memberId", "owner-1")

	if err := changeMemberRole(store, mockAuth{id: "owner-1"})(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 got %d", rec.Code)
	}
}
