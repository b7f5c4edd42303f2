// Package grpcapi exposes the aggregation pipeline over gRPC.
package grpcapi

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/TinoTau/lingua-1-sub000/internal/models"
	"github.com/TinoTau/lingua-1-sub000/internal/service/aggregator"
	"github.com/TinoTau/lingua-1-sub000/internal/service/postprocess"
)

// Server implements AggregatorServer on top of the post-processing handler.
type Server struct {
	handler *postprocess.Handler
}

// Register registers the aggregator service on g.
func Register(g *grpc.Server, handler *postprocess.Handler) {
	g.RegisterService(&ServiceDesc, &Server{handler: handler})
}

// ProcessJob aggregates one recognizer result.
func (s *Server) ProcessJob(ctx context.Context, req *models.ProcessJobRequest) (*models.JobResponse, error) {
	out, err := s.handler.HandleJob(ctx, req.Job, req.Result)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := out.Response()
	return &resp, nil
}

// EndSession flushes and removes a session.
func (s *Server) EndSession(ctx context.Context, req *models.EndSessionRequest) (*models.EndSessionResponse, error) {
	text, err := s.handler.EndSession(ctx, req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &models.EndSessionResponse{FlushedText: text}, nil
}

// LastCommitted returns the committed text preceding an utterance index.
func (s *Server) LastCommitted(_ context.Context, req *models.LastCommittedRequest) (*models.LastCommittedResponse, error) {
	text, found, err := s.handler.LastCommitted(req.SessionID, req.CurrentIndex)
	if err != nil {
		return nil, toStatus(err)
	}
	return &models.LastCommittedResponse{Text: text, Found: found}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, aggregator.ErrEmptySessionID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
