package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"entregaflow-api/domain"
)

const (
	boardRowKey     = "board"
	agencyPartition = "agency"
)

// Storage provides access to the document store and the activity queue.
type Storage struct {
	boardTable    *aztables.Client
	agencyTable   *aztables.Client
	activityQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, boardsTable, agenciesTable, activityQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	bt := svc.NewClient(boardsTable)
	at := svc.NewClient(agenciesTable)
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	aq, err := azqueue.NewQueueClientFromConnectionString(connStr, activityQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{boardTable: bt, agencyTable: at, activityQueue: aq}, nil
}

// boardEntity stores the whole board document as one JSON blob per agency.
// The entity ETag drives the optimistic-versioning check on writes.
type boardEntity struct {
	aztables.Entity
	ETag     string `json:"odata.etag,omitempty"`
	Document string `json:"Document"`
}

// agencyEntity stores agency metadata in flat columns so status flips can use
// a merge update, plus the member list as JSON.
type agencyEntity struct {
	aztables.Entity
	ETag    string `json:"odata.etag,omitempty"`
	Name    string `json:"Name"`
	Status  string `json:"Status"`
	Plan    string `json:"Plan,omitempty"`
	Members string `json:"Members"`
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

// FetchBoard retrieves the board for the agency. A missing board is a valid
// state, reported as a nil board with no error.
func (s *Storage) FetchBoard(ctx context.Context, agencyID string) (*domain.Board, string, error) {
	ent, err := s.boardTable.GetEntity(ctx, agencyID, boardRowKey, nil)
	if err != nil {
		if isStatus(err, 404) {
			return nil, "", nil
		}
		return nil, "", err
	}
	var rec boardEntity
	if err := json.Unmarshal(ent.Value, &rec); err != nil {
		return nil, "", err
	}
	var board domain.Board
	if err := json.Unmarshal([]byte(rec.Document), &board); err != nil {
		return nil, "", err
	}
	return &board, rec.ETag, nil
}

// InsertBoard creates the board document and returns its ETag, so the first
// mutation after creation is still conditional. A concurrent create by
// another session surfaces as ErrVersionConflict so the caller refetches.
func (s *Storage) InsertBoard(ctx context.Context, agencyID string, b domain.Board) (string, error) {
	doc, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	ent := boardEntity{
		Entity:   aztables.Entity{PartitionKey: agencyID, RowKey: boardRowKey},
		Document: string(doc),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return "", err
	}
	resp, err := s.boardTable.AddEntity(ctx, payload, nil)
	if err != nil {
		if isStatus(err, 409) {
			return "", domain.ErrVersionConflict
		}
		return "", err
	}
	return string(resp.ETag), nil
}

// UpdateBoard replaces the board document, conditional on the ETag observed
// at read time. A mismatch means another writer got there first.
func (s *Storage) UpdateBoard(ctx context.Context, agencyID string, b domain.Board, etag string) error {
	doc, err := json.Marshal(b)
	if err != nil {
		return err
	}
	ent := boardEntity{
		Entity:   aztables.Entity{PartitionKey: agencyID, RowKey: boardRowKey},
		Document: string(doc),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	match := azcore.ETag(etag)
	if etag == "" {
		match = azcore.ETagAny
	}
	_, err = s.boardTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &match,
		UpdateMode: aztables.UpdateModeReplace,
	})
	if err != nil {
		if isStatus(err, 412) {
			return domain.ErrVersionConflict
		}
		return err
	}
	return nil
}

// FetchAgency retrieves an agency record, nil when absent.
func (s *Storage) FetchAgency(ctx context.Context, agencyID string) (*domain.Agency, string, error) {
	ent, err := s.agencyTable.GetEntity(ctx, agencyPartition, agencyID, nil)
	if err != nil {
		if isStatus(err, 404) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return decodeAgencyEntity(ent.Value)
}

func decodeAgencyEntity(data []byte) (*domain.Agency, string, error) {
	var rec agencyEntity
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, "", err
	}
	agency := domain.Agency{
		ID:     rec.RowKey,
		Name:   rec.Name,
		Status: rec.Status,
		Plan:   rec.Plan,
	}
	if rec.Members != "" {
		if err := json.Unmarshal([]byte(rec.Members), &agency.Members); err != nil {
			return nil, "", err
		}
	}
	return &agency, rec.ETag, nil
}

func encodeAgencyEntity(a domain.Agency) ([]byte, error) {
	members, err := json.Marshal(a.Members)
	if err != nil {
		return nil, err
	}
	ent := agencyEntity{
		Entity:  aztables.Entity{PartitionKey: agencyPartition, RowKey: a.ID},
		Name:    a.Name,
		Status:  a.Status,
		Plan:    a.Plan,
		Members: string(members),
	}
	return json.Marshal(ent)
}

// InsertAgency creates a new agency record.
func (s *Storage) InsertAgency(ctx context.Context, a domain.Agency) error {
	payload, err := encodeAgencyEntity(a)
	if err != nil {
		return err
	}
	if _, err := s.agencyTable.AddEntity(ctx, payload, nil); err != nil {
		if isStatus(err, 409) {
			return domain.DuplicateError{Kind: "agency", ID: a.ID}
		}
		return err
	}
	return nil
}

// UpdateAgency replaces the agency record, conditional on the read ETag.
func (s *Storage) UpdateAgency(ctx context.Context, a domain.Agency, etag string) error {
	payload, err := encodeAgencyEntity(a)
	if err != nil {
		return err
	}
	match := azcore.ETag(etag)
	if etag == "" {
		match = azcore.ETagAny
	}
	_, err = s.agencyTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &match,
		UpdateMode: aztables.UpdateModeReplace,
	})
	if err != nil {
		if isStatus(err, 412) {
			return domain.ErrVersionConflict
		}
		return err
	}
	return nil
}

// SetAgencyStatus flips only the status column via a merge update, leaving
// the rest of the record alone.
func (s *Storage) SetAgencyStatus(ctx context.Context, agencyID, status string) error {
	ent := struct {
		aztables.Entity
		Status string `json:"Status"`
	}{
		Entity: aztables.Entity{PartitionKey: agencyPartition, RowKey: agencyID},
		Status: status,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.agencyTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	})
	if err != nil {
		if isStatus(err, 404) {
			return domain.NotFoundError{Kind: "agency", ID: agencyID}
		}
		return err
	}
	return nil
}

// ListAgencies returns all agency records, ordered by the store's row key
// ordering.
func (s *Storage) ListAgencies(ctx context.Context) ([]domain.Agency, error) {
	filter := "PartitionKey eq '" + agencyPartition + "'"
	pager := s.agencyTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	agencies := []domain.Agency{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			agency, _, err := decodeAgencyEntity(raw)
			if err != nil {
				return nil, err
			}
			agencies = append(agencies, *agency)
		}
	}
	return agencies, nil
}

// DeleteAgency removes the agency record and its board document.
func (s *Storage) DeleteAgency(ctx context.Context, agencyID string) error {
	if _, err := s.agencyTable.DeleteEntity(ctx, agencyPartition, agencyID, nil); err != nil {
		if !isStatus(err, 404) {
			return err
		}
	}
	if _, err := s.boardTable.DeleteEntity(ctx, agencyID, boardRowKey, nil); err != nil {
		if !isStatus(err, 404) {
			return err
		}
	}
	return nil
}

// EnqueueActivity sends the activity event to the activity queue.
func (s *Storage) EnqueueActivity(ctx context.Context, ev domain.ActivityEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.activityQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}
