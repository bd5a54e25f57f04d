package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"escrowline/internal/domain"
	"escrowline/internal/engine"
)

func registerDisputes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "open-dispute",
		Method:        http.MethodPost,
		Path:          "/contracts/{contract_id}/disputes",
		Summary:       "Open a dispute on a contract",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ContractID string `path:"contract_id"`
		Body       OpenDisputeRequest
	}) (*output[DisputeResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.OpenDispute(ctx, engine.OpenDisputeInput{
			ContractID:  input.ContractID,
			UserID:      actorID,
			UserType:    domain.Role(input.Body.UserType),
			Reason:      input.Body.Reason,
			MilestoneID: input.Body.MilestoneID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(DisputeResponse{Success: true, ContractID: res.ContractID, DisputeID: res.DisputeID}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-disputes",
		Method:      http.MethodGet,
		Path:        "/contracts/{contract_id}/disputes",
		Summary:     "List disputes on a contract",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ContractID string `path:"contract_id"`
	}) (*output[DisputeList], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListDisputes(ctx, input.ContractID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(DisputeList{Items: nonNil(items)}), nil
	})
}

func registerReads(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-payments",
		Method:      http.MethodGet,
		Path:        "/contracts/{contract_id}/payments",
		Summary:     "List payments of a contract",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ContractID string `path:"contract_id"`
	}) (*output[PaymentList], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListPayments(ctx, input.ContractID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(PaymentList{Items: nonNil(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contract-events",
		Method:      http.MethodGet,
		Path:        "/contracts/{contract_id}/events",
		Summary:     "Audit log of a contract, oldest first",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ContractID string `path:"contract_id"`
		Type       string `query:"type"`
	}) (*output[paginatedEvents], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListContractEvents(ctx, input.ContractID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []domain.ContractEvent{}}
		for _, evt := range items {
			if input.Type != "" && evt.Type != input.Type {
				continue
			}
			resp.Items = append(resp.Items, evt)
		}
		return reply(resp), nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Caller's notifications, newest first",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
		Limit  int  `query:"limit" default:"50"`
	}) (*output[NotificationList], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListNotifications(ctx, actorID, input.Unread, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(NotificationList{Items: nonNil(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-notification-read",
		Method:      http.MethodPost,
		Path:        "/notifications/{notification_id}/read",
		Summary:     "Mark a notification as read",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*output[map[string]bool], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.MarkNotificationRead(ctx, actorID, strings.TrimSpace(input.NotificationID)); err != nil {
			return nil, handleError(err)
		}
		return reply(map[string]bool{"success": true}), nil
	})
}
