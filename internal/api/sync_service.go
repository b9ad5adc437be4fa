package api

import (
	"context"
	"time"

	"github.com/matheus3301/fieldsync/internal/bus"
	"github.com/matheus3301/fieldsync/internal/netmon"
	"github.com/matheus3301/fieldsync/internal/status"
	"github.com/matheus3301/fieldsync/internal/store"
	intsync "github.com/matheus3301/fieldsync/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// NetworkStatus is the GetNetworkStatus response.
type NetworkStatus struct {
	Profile     string        `json:"profile"`
	DeviceID    string        `json:"deviceId"`
	CollectorID string        `json:"collectorId,omitempty"`
	Network     netmon.Status `json:"network"`
	State       status.State  `json:"state,omitempty"`
	StateSince  time.Time     `json:"stateSince,omitzero"`
}

// SyncService implements the SyncService gRPC service.
type SyncService struct {
	engine  *intsync.Engine
	monitor *netmon.Monitor
	machine *status.Machine
	bus     *bus.Bus
	profile string
	logger  *zap.Logger
}

// NewSyncService creates a new sync service.
func NewSyncService(engine *intsync.Engine, monitor *netmon.Monitor, machine *status.Machine, b *bus.Bus, profile string, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		engine:  engine,
		monitor: monitor,
		machine: machine,
		bus:     b,
		profile: profile,
		logger:  logger,
	}
}

func (s *SyncService) GetSyncStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := s.engine.GetSyncStatus(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return ToStruct(st)
}

func (s *SyncService) ForceSyncNow(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res, err := s.engine.ForceSyncNow(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return ToStruct(res)
}

func (s *SyncService) ClearSyncedItems(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	n, err := s.engine.ClearSyncedItems(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return ToStruct(map[string]any{"removed": n})
}

// ListQueue accepts {statuses, collection, recordId, limit} and returns {items}.
func (s *SyncService) ListQueue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := store.QueueFilter{
		Collection: stringField(req, "collection"),
		RecordID:   stringField(req, "recordId"),
		Limit:      int(req.GetFields()["limit"].GetNumberValue()),
	}
	for _, st := range stringList(req, "statuses") {
		f.Statuses = append(f.Statuses, store.SyncStatus(st))
	}
	items, err := s.engine.ListQueue(ctx, f)
	if err != nil {
		return nil, toStatus(err)
	}
	if items == nil {
		items = []store.QueueItem{}
	}
	return ToStruct(map[string]any{"items": items})
}

// RequeueFailed accepts {ids}; no ids requeues every error item.
func (s *SyncService) RequeueFailed(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	n, err := s.engine.RequeueFailed(ctx, stringList(req, "ids")...)
	if err != nil {
		return nil, toStatus(err)
	}
	return ToStruct(map[string]any{"requeued": n})
}

func (s *SyncService) GetNetworkStatus(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out := NetworkStatus{Profile: s.profile, Network: s.monitor.Snapshot()}
	out.DeviceID, out.CollectorID = s.engine.Identity()
	if s.machine != nil {
		out.State = s.machine.Current()
		out.StateSince = s.machine.Since()
	}
	return ToStruct(out)
}

// WatchSyncStatus sends the current status, then every change until the
// client goes away.
func (s *SyncService) WatchSyncStatus(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ch, unsub := s.bus.Subscribe(bus.KindSyncStatusChanged, 64)
	defer unsub()

	st, err := s.engine.GetSyncStatus(stream.Context())
	if err != nil {
		return toStatus(err)
	}
	if err := s.send(stream, st); err != nil {
		return err
	}

	for {
		select {
		case evt := <-ch:
			st, ok := evt.Payload.(intsync.Status)
			if !ok {
				continue
			}
			if err := s.send(stream, st); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *SyncService) send(stream grpc.ServerStream, st intsync.Status) error {
	msg, err := ToStruct(st)
	if err != nil {
		return toStatus(err)
	}
	return stream.SendMsg(msg)
}
