package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"escrowline/internal/engine"
)

func registerMilestones(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "fund-milestone",
		Method:      http.MethodPost,
		Path:        "/contracts/{contract_id}/milestones/{milestone_id}/fund",
		Summary:     "Fund a milestone into escrow",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ContractID  string `path:"contract_id"`
		MilestoneID string `path:"milestone_id"`
		Body        FundMilestoneRequest
	}) (*output[FundMilestoneResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		method, err := input.Body.PaymentMethod.Method()
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.FundMilestone(ctx, engine.FundMilestoneInput{
			ContractID:  input.ContractID,
			MilestoneID: input.MilestoneID,
			ClientID:    actorID,
			Method:      method,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(fundMilestoneResponse(res)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-milestone",
		Method:      http.MethodPost,
		Path:        "/contracts/{contract_id}/milestones/{milestone_id}/submit",
		Summary:     "Submit milestone work for review",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ContractID  string `path:"contract_id"`
		MilestoneID string `path:"milestone_id"`
		Body        *SubmitMilestoneRequest
	}) (*output[MilestoneActionResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in := engine.SubmitMilestoneInput{
			ContractID:   input.ContractID,
			MilestoneID:  input.MilestoneID,
			FreelancerID: actorID,
		}
		if b := input.Body; b != nil {
			in.Comment = b.Comment
			in.Deliverables = b.Deliverables
			in.Submission = b.Submission
		}
		res, err := e.SubmitMilestone(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(MilestoneActionResponse{Success: true, ContractID: res.ContractID, MilestoneID: res.MilestoneID}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-milestone",
		Method:      http.MethodPost,
		Path:        "/contracts/{contract_id}/milestones/{milestone_id}/approve",
		Summary:     "Approve submitted work and release escrow",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ContractID  string `path:"contract_id"`
		MilestoneID string `path:"milestone_id"`
		Body        *ApproveMilestoneRequest
	}) (*output[ApproveMilestoneResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in := engine.ApproveMilestoneInput{ContractID: input.ContractID, MilestoneID: input.MilestoneID, ClientID: actorID}
		if input.Body != nil {
			in.Comment = input.Body.Comment
		}
		res, err := e.ApproveMilestone(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(approveMilestoneResponse(res)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-milestone-revision",
		Method:      http.MethodPost,
		Path:        "/contracts/{contract_id}/milestones/{milestone_id}/request-revision",
		Summary:     "Send submitted work back to the freelancer",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ContractID  string `path:"contract_id"`
		MilestoneID string `path:"milestone_id"`
		Body        MilestoneRevisionRequest
	}) (*output[MilestoneActionResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.RequestMilestoneRevision(ctx, engine.MilestoneRevisionInput{
			ContractID:  input.ContractID,
			MilestoneID: input.MilestoneID,
			ClientID:    actorID,
			Notes:       input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(MilestoneActionResponse{Success: true, ContractID: res.ContractID, MilestoneID: res.MilestoneID}), nil
	})
}
