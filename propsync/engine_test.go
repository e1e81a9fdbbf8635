package propsync

import (
	"context"
	"fmt"
	"io"

	"bitbucket.org/renovalabs/renovations_backend/models"
	"github.com/sirupsen/logrus"
)

// fakeStore is the in-memory Store used across the engine tests.
type fakeStore struct {
	props          []models.Property
	groups         []models.ProjectGroup
	budgetRequests []models.BudgetRequest

	nextID      uint
	createCalls int
	updateCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1}
}

func (s *fakeStore) ListProperties(ctx context.Context) ([]models.Property, error) {
	out := make([]models.Property, len(s.props))
	copy(out, s.props)
	return out, nil
}

func (s *fakeStore) CreateProperty(ctx context.Context, p *models.Property) error {
	p.ID = s.nextID
	s.nextID++
	s.createCalls++
	s.props = append(s.props, *p)
	return nil
}

func (s *fakeStore) UpdateProperty(ctx context.Context, id uint, updates map[string]interface{}) error {
	s.updateCalls++
	for i := range s.props {
		if s.props[i].ID != id {
			continue
		}
		row := &s.props[i]
		for key, val := range updates {
			switch key {
			case "phase":
				row.Phase = val.(string)
			case "name":
				row.Name = val.(string)
			case "address":
				row.Address = val.(string)
			case "status":
				row.Status = val.(string)
			case "remote_record_id":
				v := val.(string)
				row.RemoteRecordId = &v
			case "remote_parent_record_id":
				v := val.(string)
				row.RemoteParentRecordId = &v
			case "project_group_id":
				v := val.(uint)
				row.ProjectGroupId = &v
			}
		}
		return nil
	}
	return fmt.Errorf("property %d not found", id)
}

func (s *fakeStore) MarkOrphaned(ctx context.Context, ids []uint) (int64, error) {
	var moved int64
	for _, id := range ids {
		for i := range s.props {
			if s.props[i].ID == id {
				s.props[i].Phase = models.PhaseOrphaned
				moved++
			}
		}
	}
	return moved, nil
}

func (s *fakeStore) ListProjectGroups(ctx context.Context) ([]models.ProjectGroup, error) {
	out := make([]models.ProjectGroup, len(s.groups))
	copy(out, s.groups)
	return out, nil
}

func (s *fakeStore) AssignProjectGroup(ctx context.Context, groupID uint, remoteIDs []string, byParentId bool) (int64, error) {
	var linked int64
	for i := range s.props {
		row := &s.props[i]
		var own *string
		if byParentId {
			own = row.RemoteParentRecordId
		} else {
			own = row.RemoteRecordId
		}
		if own == nil {
			continue
		}
		for _, id := range remoteIDs {
			if *own == id {
				if row.ProjectGroupId == nil || *row.ProjectGroupId != groupID {
					gid := groupID
					row.ProjectGroupId = &gid
					linked++
				}
			}
		}
	}
	return linked, nil
}

func (s *fakeStore) HasBudgetRequest(ctx context.Context, propertyID uint) (bool, error) {
	for _, req := range s.budgetRequests {
		if req.PropertyId == propertyID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) CreateBudgetRequest(ctx context.Context, req *models.BudgetRequest) error {
	req.ID = uint(len(s.budgetRequests) + 1)
	s.budgetRequests = append(s.budgetRequests, *req)
	return nil
}

func (s *fakeStore) byExternalId(externalId string) *models.Property {
	for i := range s.props {
		if s.props[i].ExternalId == externalId {
			return &s.props[i]
		}
	}
	return nil
}

// fakeRemote serves canned view results and records.
type fakeRemote struct {
	views   map[string][]Record
	viewErr map[string]error
	records map[string]*Record
}

func (r *fakeRemote) ListRecords(ctx context.Context, tableID string, viewID string) ([]Record, error) {
	if err, ok := r.viewErr[viewID]; ok {
		return nil, err
	}
	return r.views[viewID], nil
}

func (r *fakeRemote) GetRecord(ctx context.Context, tableID string, recordID string) (*Record, error) {
	rec, ok := r.records[tableID+"/"+recordID]
	if !ok {
		return nil, fmt.Errorf("record %s not found", recordID)
	}
	return rec, nil
}

func (r *fakeRemote) UpdateRecord(ctx context.Context, tableID string, recordID string, fields map[string]interface{}) error {
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEngine(store Store, remote RemoteAPI) *Engine {
	cfg := Config{
		APIKey:            "key",
		BaseID:            "app123",
		PropertiesTableID: "Properties",
		ProjectsTableID:   "Projects",
		UnitsTableID:      "Units",
		MaxRecordsPerView: 5000,
		WriteMaxRetries:   3,
	}
	return NewEngine(cfg, store, remote, testLogger())
}

func propertyRecord(recID string, externalId string, extra map[string]interface{}) Record {
	fields := map[string]interface{}{}
	if externalId != "" {
		fields["Property ID"] = externalId
	}
	for k, v := range extra {
		fields[k] = v
	}
	return Record{ID: recID, Fields: fields}
}

func strPtr(s string) *string { return &s }
