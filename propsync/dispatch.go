package propsync

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"bitbucket.org/renovalabs/renovations_backend/models"
	"github.com/sirupsen/logrus"
)

// BudgetRequestPayload is the outbound webhook body fired when a property's
// first required budget document appears.
type BudgetRequestPayload struct {
	DocumentURL    string `json:"documentUrl"`
	EntityID       uint   `json:"entityId"`
	ExternalID     string `json:"externalId"`
	PropertyName   string `json:"propertyName"`
	Address        string `json:"address"`
	ClientName     string `json:"clientName"`
	ClientEmail    string `json:"clientEmail"`
	RenovationType string `json:"renovationType"`
	AreaCluster    string `json:"areaCluster"`
	DocumentIndex  int    `json:"documentIndex"`
}

// TriggerBudgetRequest fires the budget webhook at most once per property.
// The exactly-once guard is the absence of a BudgetRequest row, which is
// sufficient because the dispatcher runs sequentially within one process
// run, never concurrently for the same property. A 2xx response counts as
// success and writes the marker row; failures are logged with a truncated
// body and not retried.
func (e *Engine) TriggerBudgetRequest(ctx context.Context, prop *models.Property, documentURL string, index int) (bool, error) {
	if e.cfg.BudgetWebhookURL == "" {
		e.webhookWarnOnce.Do(func() {
			e.logger.WithFields(logrus.Fields{
				"module": "propsync",
			}).Warn("budget webhook url missing; dispatch disabled")
		})
		return false, nil
	}

	exists, err := e.store.HasBudgetRequest(ctx, prop.ID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	payload := BudgetRequestPayload{
		DocumentURL:    documentURL,
		EntityID:       prop.ID,
		ExternalID:     prop.ExternalId,
		PropertyName:   prop.Name,
		Address:        prop.Address,
		ClientName:     prop.ClientName,
		ClientEmail:    prop.ClientEmail,
		RenovationType: prop.RenovationType,
		AreaCluster:    prop.AreaCluster,
		DocumentIndex:  index,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BudgetWebhookURL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.webhook.Do(req)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"module":      "propsync",
			"external_id": prop.ExternalId,
		}).Error(err.Error())
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		e.logger.WithFields(logrus.Fields{
			"module":      "propsync",
			"external_id": prop.ExternalId,
			"status":      resp.StatusCode,
			"body":        string(truncate(respBody, 200)),
		}).Error("budget webhook rejected")
		return false, nil
	}

	marker := &models.BudgetRequest{
		PropertyId:    prop.ID,
		DocumentURL:   documentURL,
		DocumentIndex: index,
		Status:        models.BudgetRequestStatusRequested,
		RequestedAt:   time.Now(),
	}
	if err := e.store.CreateBudgetRequest(ctx, marker); err != nil {
		// The call went out; report the marker failure so the next run does
		// not silently double-fire.
		return true, err
	}
	return true, nil
}
