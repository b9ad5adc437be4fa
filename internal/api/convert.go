package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matheus3301/fieldsync/internal/domain"
	"github.com/matheus3301/fieldsync/internal/store"
	intsync "github.com/matheus3301/fieldsync/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct renders any JSON-encodable value as a protobuf Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode %T as object: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes a Struct into v through its JSON form.
func FromStruct(s *structpb.Struct, v any) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[key].GetStringValue()
}

func stringList(s *structpb.Struct, key string) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, v := range s.GetFields()[key].GetListValue().GetValues() {
		if str := v.GetStringValue(); str != "" {
			out = append(out, str)
		}
	}
	return out
}

func structField(s *structpb.Struct, key string) *structpb.Struct {
	if s == nil {
		return nil
	}
	return s.GetFields()[key].GetStructValue()
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var (
		unknown *store.UnknownCollectionError
		nf      *store.NotFoundError
		dup     *store.DuplicateRecordError
		offline *intsync.OfflineError
		field   *domain.FieldError
	)
	switch {
	case errors.As(err, &unknown), errors.As(err, &field):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &nf):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.As(err, &dup):
		return grpcstatus.Error(codes.AlreadyExists, err.Error())
	case errors.As(err, &offline):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	case errors.Is(err, store.ErrNotInitialized):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}
