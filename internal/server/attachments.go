package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"escrowline/internal/attachments"
	"escrowline/internal/domain"
	"escrowline/internal/engine"
	"escrowline/internal/repo"
)

func registerAttachments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "upload-attachment",
		Method:        http.MethodPost,
		Path:          "/attachments",
		Summary:       "Upload a deliverable file",
		Description:   "Stores the raw request body and returns its content reference for use in milestone submissions.",
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  maxAttachmentBytes,
		Errors:        []int{http.StatusBadRequest, http.StatusNotImplemented},
	}, func(ctx context.Context, input *struct {
		RawBody []byte `contentType:"application/octet-stream"`
	}) (*output[AttachmentResponse], error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if e.Attachments == nil {
			return nil, newAPIError(http.StatusNotImplemented, "attachments_disabled", "attachment storage is not configured", nil)
		}
		if len(input.RawBody) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		ref, err := e.Attachments.Put(ctx, input.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(AttachmentResponse{Ref: ref, Size: len(input.RawBody)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-attachment",
		Method:      http.MethodGet,
		Path:        "/attachments/{ref}",
		Summary:     "Download a stored file by reference",
		Errors:      []int{http.StatusNotFound, http.StatusNotImplemented},
	}, func(ctx context.Context, input *struct {
		Ref string `path:"ref"`
	}) (*struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if e.Attachments == nil {
			return nil, newAPIError(http.StatusNotImplemented, "attachments_disabled", "attachment storage is not configured", nil)
		}
		data, err := e.Attachments.Get(ctx, input.Ref)
		switch {
		case errors.Is(err, attachments.ErrNotFound):
			return nil, newAPIError(http.StatusNotFound, "not_found", "attachment not found", nil)
		case errors.Is(err, attachments.ErrInvalidRef):
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType string `header:"Content-Type"`
			Body        []byte
		}{ContentType: "application/octet-stream", Body: data}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create an API key for the caller",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body *CreateAPIKeyRequest
	}) (*output[APIKeyResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plain, err := repo.GenerateAPIKey()
		if err != nil {
			return nil, handleError(err)
		}
		key := domain.APIKey{
			ID:        uuid.NewString(),
			ActorID:   actorID,
			KeyHash:   repo.HashAPIKey(plain),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if input.Body != nil {
			key.Name = input.Body.Name
		}
		if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		return reply(APIKeyResponse{APIKey: key, Key: plain}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List the caller's API keys",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*output[APIKeyList], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(APIKeyList{Items: nonNil(keys)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{key_id}",
		Summary:       "Revoke one of the caller's API keys",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID, actorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}
