package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"escrowline/internal/domain"
	"escrowline/internal/engine"
	"escrowline/internal/engine/auth"
	"escrowline/internal/repo"
)

type contractPath struct {
	ContractID string `path:"contract_id"`
}

func registerContracts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-contract",
		Method:        http.MethodPost,
		Path:          "/contracts",
		Summary:       "Create a contract offer",
		Description:   "The authenticated actor becomes the client. The first milestone gets a pending payment.",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateContractRequest
	}) (*output[CreateContractResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		method, err := input.Body.PaymentMethod.Method()
		if err != nil {
			return nil, handleError(err)
		}
		in := engine.CreateContractInput{
			ProjectID:    input.Body.ProjectID,
			ProposalID:   input.Body.ProposalID,
			ClientID:     actorID,
			FreelancerID: input.Body.FreelancerID,
			Title:        input.Body.Title,
			Terms:        input.Body.Terms.terms(),
			Milestones:   toMilestones(input.Body.Milestones),
			Method:       method,
		}
		if input.Body.TimeTracking != nil {
			in.TimeTracking = *input.Body.TimeTracking
		}
		res, err := e.CreateContract(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(createContractResponse(res)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contracts",
		Method:      http.MethodGet,
		Path:        "/contracts",
		Summary:     "List contracts the caller is a party to",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status    string `query:"status" enum:"pending_acceptance,active,revision_requested,cancelled,completed"`
		ProjectID string `query:"project_id"`
		Limit     int    `query:"limit" default:"50"`
	}) (*output[ContractList], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListContracts(ctx, repo.ContractFilters{
			PartyID:   actorID,
			ProjectID: input.ProjectID,
			Status:    input.Status,
			Limit:     normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ContractList{Items: nonNil(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-contract",
		Method:      http.MethodGet,
		Path:        "/contracts/{contract_id}",
		Summary:     "Get contract",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *contractPath) (*output[domain.Contract], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.GetContract(ctx, input.ContractID)
		if err != nil {
			return nil, handleError(err)
		}
		if _, err := auth.RequireParty(c, actorID, "view the contract"); err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	registerDecision(api, "accept-contract", "accept", "Accept a pending offer", e.AcceptContract)
	registerDecision(api, "reject-contract", "reject", "Reject a pending offer", e.RejectContract)
	registerDecision(api, "request-contract-revision", "request-revision", "Ask the client to revise a pending offer", e.RequestRevision)

	huma.Register(api, huma.Operation{
		OperationID: "resubmit-contract",
		Method:      http.MethodPost,
		Path:        "/contracts/{contract_id}/resubmit",
		Summary:     "Revise and re-offer a contract after a revision request",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ContractID string `path:"contract_id"`
		Body       ResubmitContractRequest
	}) (*output[ContractActionResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in := engine.ResubmitContractInput{
			ContractID: input.ContractID,
			ClientID:   actorID,
			Title:      input.Body.Title,
			Milestones: toMilestones(input.Body.Milestones),
			Comment:    input.Body.Comment,
		}
		if input.Body.Terms != nil {
			t := input.Body.Terms.terms()
			in.Terms = &t
		}
		res, err := e.ResubmitContract(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ContractActionResponse{Success: true, ContractID: res.ContractID}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-contract-progress",
		Method:      http.MethodPost,
		Path:        "/contracts/{contract_id}/progress",
		Summary:     "Report progress on an active contract",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ContractID string `path:"contract_id"`
		Body       ProgressRequest
	}) (*output[ProgressResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.UpdateContractProgress(ctx, engine.ProgressInput{
			ContractID:   input.ContractID,
			FreelancerID: actorID,
			Progress:     input.Body.Progress,
			Comment:      input.Body.Comment,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ProgressResponse{Success: true, ContractID: res.ContractID, Progress: res.Progress}), nil
	})
}

type decisionFunc func(context.Context, engine.DecisionInput) (engine.ContractResult, error)

func registerDecision(api huma.API, opID, action, summary string, decide decisionFunc) {
	huma.Register(api, huma.Operation{
		OperationID: opID,
		Method:      http.MethodPost,
		Path:        "/contracts/{contract_id}/" + action,
		Summary:     summary,
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ContractID string `path:"contract_id"`
		Body       *DecisionRequest
	}) (*output[ContractActionResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in := engine.DecisionInput{ContractID: input.ContractID, FreelancerID: actorID}
		if input.Body != nil {
			in.Comment = input.Body.Comment
		}
		res, err := decide(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ContractActionResponse{Success: true, ContractID: res.ContractID}), nil
	})
}
