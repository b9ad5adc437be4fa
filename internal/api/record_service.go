package api

import (
	"context"

	"github.com/matheus3301/fieldsync/internal/bus"
	"github.com/matheus3301/fieldsync/internal/domain"
	"github.com/matheus3301/fieldsync/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// RecordChange is the payload of record.changed events.
type RecordChange struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Operation  store.Operation `json:"operation"`
}

// RecordService implements the RecordService gRPC service.
type RecordService struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewRecordService creates a new record service backed by the store.
func NewRecordService(db *store.DB, b *bus.Bus, logger *zap.Logger) *RecordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordService{db: db, bus: b, logger: logger}
}

// Create expects {collection, record}.
func (s *RecordService) Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	collection := stringField(req, "collection")
	var doc store.Document
	if rec := structField(req, "record"); rec != nil {
		if err := FromStruct(rec, &doc); err != nil {
			return nil, grpcstatus.Errorf(codes.InvalidArgument, "record: %v", err)
		}
	}
	if err := domain.Check(collection, doc.Fields); err != nil {
		return nil, toStatus(err)
	}
	created, err := s.db.Create(ctx, collection, &doc)
	if err != nil {
		return nil, toStatus(err)
	}
	s.changed(collection, created.ID, store.OpCreate)
	return ToStruct(created)
}

// Update expects {collection, id, fields}.
func (s *RecordService) Update(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	collection, id := stringField(req, "collection"), stringField(req, "id")
	if id == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "id is required")
	}
	fields := structField(req, "fields").AsMap()
	if err := domain.Check(collection, fields); err != nil {
		return nil, toStatus(err)
	}
	updated, err := s.db.Update(ctx, collection, id, fields)
	if err != nil {
		return nil, toStatus(err)
	}
	s.changed(collection, id, store.OpUpdate)
	return ToStruct(updated)
}

// Delete expects {collection, id}.
func (s *RecordService) Delete(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	collection, id := stringField(req, "collection"), stringField(req, "id")
	if id == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "id is required")
	}
	if err := s.db.Delete(ctx, collection, id); err != nil {
		return nil, toStatus(err)
	}
	s.changed(collection, id, store.OpDelete)
	return &emptypb.Empty{}, nil
}

// Get expects {collection, id}.
func (s *RecordService) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	collection, id := stringField(req, "collection"), stringField(req, "id")
	doc, err := s.db.GetByID(ctx, collection, id)
	if err != nil {
		return nil, toStatus(err)
	}
	if doc == nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "%s/%s not found", collection, id)
	}
	return ToStruct(doc)
}

// List expects {collection} and returns {records}.
func (s *RecordService) List(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	docs, err := s.db.GetAll(ctx, stringField(req, "collection"))
	if err != nil {
		return nil, toStatus(err)
	}
	if docs == nil {
		docs = []*store.Document{}
	}
	return ToStruct(map[string]any{"records": docs})
}

func (s *RecordService) changed(collection, id string, op store.Operation) {
	s.logger.Debug("record changed",
		zap.String("collection", collection),
		zap.String("id", id),
		zap.String("operation", string(op)))
	if s.bus != nil {
		s.bus.Emit(bus.KindRecordChanged, RecordChange{Collection: collection, ID: id, Operation: op})
	}
}
