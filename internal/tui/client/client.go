package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/fieldsync/internal/api"
	"github.com/matheus3301/fieldsync/internal/store"
	intsync "github.com/matheus3301/fieldsync/internal/sync"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client talks to the daemon's control socket.
type Client struct {
	conn grpc.ClientConnInterface
	c    *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn, c: conn}, nil
}

// NewFromConn wraps an existing connection. Close is then a no-op.
func NewFromConn(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	if c.c == nil {
		return nil
	}
	return c.c.Close()
}

// Create stores a new record in collection.
func (c *Client) Create(ctx context.Context, collection string, doc *store.Document) (*store.Document, error) {
	if doc == nil {
		doc = &store.Document{}
	}
	rec, err := api.ToStruct(doc)
	if err != nil {
		return nil, err
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"collection": structpb.NewStringValue(collection),
		"record":     structpb.NewStructValue(rec),
	}}
	var out store.Document
	if err := c.call(ctx, api.MethodCreateRecord, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update merges fields into an existing record.
func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]any) (*store.Document, error) {
	f, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	req := ref(collection, id)
	req.Fields["fields"] = structpb.NewStructValue(f)
	var out store.Document
	if err := c.call(ctx, api.MethodUpdateRecord, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return fromStatus(c.conn.Invoke(ctx, api.MethodDeleteRecord, ref(collection, id), new(emptypb.Empty)))
}

// Get returns one record, or nil when it does not exist.
func (c *Client) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	var out store.Document
	err := c.call(ctx, api.MethodGetRecord, ref(collection, id), &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns every record of collection.
func (c *Client) List(ctx context.Context, collection string) ([]*store.Document, error) {
	var out struct {
		Records []*store.Document `json:"records"`
	}
	if err := c.call(ctx, api.MethodListRecords, ref(collection, ""), &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// SyncStatus returns the aggregate queue and connectivity status.
func (c *Client) SyncStatus(ctx context.Context) (intsync.Status, error) {
	var out intsync.Status
	err := c.call(ctx, api.MethodGetSyncStatus, &emptypb.Empty{}, &out)
	return out, err
}

// ForceSync drains the queue now. It returns *intsync.OfflineError when the
// daemon reports the remote as unreachable.
func (c *Client) ForceSync(ctx context.Context) (intsync.CycleResult, error) {
	var out intsync.CycleResult
	err := c.call(ctx, api.MethodForceSyncNow, &emptypb.Empty{}, &out)
	return out, err
}

// ClearSynced purges synced queue items.
func (c *Client) ClearSynced(ctx context.Context) (int64, error) {
	var out struct {
		Removed int64 `json:"removed"`
	}
	err := c.call(ctx, api.MethodClearSyncedItems, &emptypb.Empty{}, &out)
	return out.Removed, err
}

// ListQueue returns queue items matching f.
func (c *Client) ListQueue(ctx context.Context, f store.QueueFilter) ([]store.QueueItem, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if f.Collection != "" {
		req.Fields["collection"] = structpb.NewStringValue(f.Collection)
	}
	if f.RecordID != "" {
		req.Fields["recordId"] = structpb.NewStringValue(f.RecordID)
	}
	if f.Limit > 0 {
		req.Fields["limit"] = structpb.NewNumberValue(float64(f.Limit))
	}
	if len(f.Statuses) > 0 {
		vals := make([]*structpb.Value, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			vals = append(vals, structpb.NewStringValue(string(s)))
		}
		req.Fields["statuses"] = structpb.NewListValue(&structpb.ListValue{Values: vals})
	}
	var out struct {
		Items []store.QueueItem `json:"items"`
	}
	err := c.call(ctx, api.MethodListQueue, req, &out)
	return out.Items, err
}

// Requeue returns error items to pending. No ids requeues all of them.
func (c *Client) Requeue(ctx context.Context, ids ...string) (int64, error) {
	vals := make([]*structpb.Value, 0, len(ids))
	for _, id := range ids {
		vals = append(vals, structpb.NewStringValue(id))
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"ids": structpb.NewListValue(&structpb.ListValue{Values: vals}),
	}}
	var out struct {
		Requeued int64 `json:"requeued"`
	}
	err := c.call(ctx, api.MethodRequeueFailed, req, &out)
	return out.Requeued, err
}

// NetworkStatus returns the connectivity verdict and daemon state.
func (c *Client) NetworkStatus(ctx context.Context) (api.NetworkStatus, error) {
	var out api.NetworkStatus
	err := c.call(ctx, api.MethodGetNetworkStatus, &emptypb.Empty{}, &out)
	return out, err
}

// WatchSyncStatus streams status snapshots until ctx is done or the
// daemon goes away. The channel is closed when the stream ends.
func (c *Client) WatchSyncStatus(ctx context.Context) (<-chan intsync.Status, error) {
	desc := &grpc.StreamDesc{StreamName: "WatchSyncStatus", ServerStreams: true}
	stream, err := c.conn.NewStream(ctx, desc, api.MethodWatchSyncStatus)
	if err != nil {
		return nil, fromStatus(err)
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fromStatus(err)
	}

	ch := make(chan intsync.Status, 8)
	go func() {
		defer close(ch)
		for {
			msg := new(structpb.Struct)
			if err := stream.RecvMsg(msg); err != nil {
				return
			}
			var st intsync.Status
			if err := api.FromStruct(msg, &st); err != nil {
				continue
			}
			select {
			case ch <- st:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (c *Client) call(ctx context.Context, method string, req proto.Message, out any) error {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return fromStatus(err)
	}
	return api.FromStruct(resp, out)
}

func ref(collection, id string) *structpb.Struct {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"collection": structpb.NewStringValue(collection),
	}}
	if id != "" {
		s.Fields["id"] = structpb.NewStringValue(id)
	}
	return s
}

// Error is a failure reported by the daemon.
type Error struct {
	Code    codes.Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// IsNotFound reports whether the daemon answered NotFound.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == codes.NotFound
}

// fromStatus turns gRPC errors into *Error, and offline failures back into
// *intsync.OfflineError so callers can branch on them.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return err
	}
	if st.Code() == codes.Unavailable && st.Message() == (&intsync.OfflineError{}).Error() {
		return &intsync.OfflineError{}
	}
	return &Error{Code: st.Code(), Message: st.Message()}
}
