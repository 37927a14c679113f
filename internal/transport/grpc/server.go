package grpcx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cwrk-planet/poker-service/internal/cards"
	"github.com/cwrk-planet/poker-service/internal/docstore"
	"github.com/cwrk-planet/poker-service/internal/domain"
	"github.com/cwrk-planet/poker-service/internal/roomview"
	"github.com/cwrk-planet/poker-service/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

type Server struct {
	roomSvc *service.RoomService
	deck    string
}

var _ RoomServiceServer = (*Server)(nil)

func NewServer(roomSvc *service.RoomService, deck string) *Server {
	if deck == "" {
		deck = cards.DefaultDeck
	}
	return &Server{
		roomSvc: roomSvc,
		deck:    deck,
	}
}

func Register(grpcServer *grpc.Server, s *Server) {
	grpcServer.RegisterService(&RoomServiceDesc, s)
}

// -------- messages --------

type roomRequest struct {
	RoomID string `json:"room_id"`
}

type participantRequest struct {
	RoomID      string             `json:"room_id"`
	Participant domain.Participant `json:"participant"`
}

type removeRequest struct {
	RoomID        string `json:"room_id"`
	ParticipantID string `json:"participant_id"`
}

type voteRequest struct {
	RoomID      string             `json:"room_id"`
	Participant domain.Participant `json:"participant"`
	Vote        domain.Vote        `json:"vote"`
}

type roomMessage struct {
	domain.Room
	Sorted []domain.Participant `json:"sorted"`
}

// -------- helpers --------

// decode раскладывает Struct в структуру запроса через JSON.
func decode(in *structpb.Struct, dst any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func empty() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}
}

func mapRoom(r domain.Room) (*structpb.Struct, error) {
	if r.Participants == nil {
		r.Participants = []domain.Participant{}
	}
	return encode(roomMessage{
		Room:   r,
		Sorted: roomview.SortParticipants(r.Participants, r.Revealed),
	})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrEmptyName),
		errors.Is(err, domain.ErrUnknownCard),
		errors.Is(err, docstore.ErrBadPath):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, docstore.ErrContention):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// roomOp: общий вид операций, которым нужен только room_id.
func (s *Server) roomOp(ctx context.Context, in *structpb.Struct, op func(ctx context.Context, roomID string) error) (*structpb.Struct, error) {
	var req roomRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := op(ctx, req.RoomID); err != nil {
		return nil, mapErr(err)
	}
	return empty(), nil
}

// -------- methods --------

func (s *Server) AddParticipant(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req participantRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	p := req.Participant
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, mapErr(domain.ErrEmptyName)
	}
	if p.ID == "" {
		np, err := domain.NewParticipant(p.Name)
		if err != nil {
			return nil, mapErr(err)
		}
		p.ID = np.ID
	}

	if err := s.roomSvc.AddParticipant(ctx, req.RoomID, p); err != nil {
		return nil, mapErr(err)
	}
	return encode(p)
}

func (s *Server) RemoveParticipant(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req removeRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := s.roomSvc.RemoveParticipant(ctx, req.RoomID, domain.Participant{ID: req.ParticipantID}); err != nil {
		return nil, mapErr(err)
	}
	return empty(), nil
}

func (s *Server) UpdateVote(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req voteRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if !req.Vote.IsNone() && !cards.Contains(s.deck, req.Vote.Token()) {
		return nil, mapErr(fmt.Errorf("%w: %q", domain.ErrUnknownCard, req.Vote.Token()))
	}
	if err := s.roomSvc.UpdateVote(ctx, req.RoomID, req.Participant, req.Vote); err != nil {
		return nil, mapErr(err)
	}
	return empty(), nil
}

func (s *Server) ToggleReveal(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.roomOp(ctx, in, s.roomSvc.ToggleReveal)
}

func (s *Server) ResetAllVotes(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.roomOp(ctx, in, s.roomSvc.ResetAllVotes)
}

func (s *Server) ClearParticipants(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.roomOp(ctx, in, s.roomSvc.ClearParticipants)
}

func (s *Server) GetRoom(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req roomRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	room, err := s.roomSvc.Snapshot(ctx, req.RoomID)
	if err != nil {
		return nil, mapErr(err)
	}
	return mapRoom(room)
}

// WatchRoom шлёт состояние комнаты на каждое изменение до отмены клиентом.
func (s *Server) WatchRoom(in *structpb.Struct, stream WatchRoomStream) error {
	var req roomRequest
	if err := decode(in, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	var sendErr error
	err := s.roomSvc.GetRoom(ctx, req.RoomID, func(room domain.Room) {
		if sendErr != nil {
			return
		}
		msg, err := mapRoom(room)
		if err == nil {
			err = stream.Send(msg)
		}
		if err != nil {
			sendErr = err
			cancel()
		}
	})
	if sendErr != nil {
		slog.Debug("grpc watch room send failed", "room", req.RoomID, "err", sendErr)
		return sendErr
	}
	if err != nil {
		return mapErr(err)
	}
	return nil
}
