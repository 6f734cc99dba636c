package broker

import (
	"context"

	"github.com/viant/shmcache/model"
	"google.golang.org/grpc"
)

// ServiceName is the gRPC service name of the broker
const ServiceName = "shmcache.Broker"

const (
	methodPing            = "Ping"
	methodPublish         = "Publish"
	methodWait            = "Wait"
	methodLookup          = "Lookup"
	methodStats           = "Stats"
	methodConsume         = "Consume"
	methodReport          = "Report"
	methodInsert          = "Insert"
	methodRemove          = "Remove"
	methodCreateSegment   = "CreateSegment"
	methodDestroySegment  = "DestroySegment"
	methodSetTrackerState = "SetTrackerState"
	methodShutdown        = "Shutdown"
)

// ownerMethods require the owner token in addition to the bearer token
var ownerMethods = map[string]bool{
	methodConsume:         true,
	methodReport:          true,
	methodInsert:          true,
	methodRemove:          true,
	methodCreateSegment:   true,
	methodDestroySegment:  true,
	methodSetTrackerState: true,
	methodShutdown:        true,
}

type (
	Empty struct{}

	PingResponse struct {
		InstanceID   string             `json:"instanceId"`
		TrackerState model.TrackerState `json:"trackerState"`
	}

	PublishRequest struct {
		Message *model.Message `json:"message"`
	}

	PublishResponse struct {
		QueueDepth int `json:"queueDepth"`
	}

	WaitRequest struct {
		ID string `json:"id"`
	}

	OutcomeResponse struct {
		Outcome *model.Outcome `json:"outcome"`
	}

	LookupRequest struct {
		Name string `json:"name"`
	}

	EntryResponse struct {
		Entry *model.CacheEntry `json:"entry,omitempty"`
	}

	StatsResponse struct {
		Stats *model.Stats `json:"stats"`
	}

	ConsumeResponse struct {
		Message *model.Message `json:"message"`
	}

	ReportRequest struct {
		Outcome *model.Outcome `json:"outcome"`
	}

	ReportResponse struct {
		Delivered bool `json:"delivered"`
	}

	InsertRequest struct {
		Entry *model.CacheEntry `json:"entry"`
	}

	RemoveRequest struct {
		Name string `json:"name"`
	}

	CreateSegmentRequest struct {
		Size int `json:"size"`
	}

	CreateSegmentResponse struct {
		Segment *model.SegmentHandle `json:"segment"`
	}

	DestroySegmentRequest struct {
		ID string `json:"id"`
	}

	SetTrackerStateRequest struct {
		State model.TrackerState `json:"state"`
	}

	SetTrackerStateResponse struct {
		Previous model.TrackerState `json:"previous"`
	}

	ShutdownResponse struct {
		Destroyed int `json:"destroyed"`
	}
)

// brokerServer is implemented by *Server
type brokerServer interface {
	ping(ctx context.Context, req *Empty) (*PingResponse, error)
	publish(ctx context.Context, req *PublishRequest) (*PublishResponse, error)
	wait(ctx context.Context, req *WaitRequest) (*OutcomeResponse, error)
	lookup(ctx context.Context, req *LookupRequest) (*EntryResponse, error)
	stats(ctx context.Context, req *Empty) (*StatsResponse, error)
	consume(ctx context.Context, req *Empty) (*ConsumeResponse, error)
	report(ctx context.Context, req *ReportRequest) (*ReportResponse, error)
	insert(ctx context.Context, req *InsertRequest) (*Empty, error)
	remove(ctx context.Context, req *RemoveRequest) (*EntryResponse, error)
	createSegment(ctx context.Context, req *CreateSegmentRequest) (*CreateSegmentResponse, error)
	destroySegment(ctx context.Context, req *DestroySegmentRequest) (*Empty, error)
	setTrackerState(ctx context.Context, req *SetTrackerStateRequest) (*SetTrackerStateResponse, error)
	shutdown(ctx context.Context, req *Empty) (*ShutdownResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*brokerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(methodPing, brokerServer.ping),
		unary(methodPublish, brokerServer.publish),
		unary(methodWait, brokerServer.wait),
		unary(methodLookup, brokerServer.lookup),
		unary(methodStats, brokerServer.stats),
		unary(methodConsume, brokerServer.consume),
		unary(methodReport, brokerServer.report),
		unary(methodInsert, brokerServer.insert),
		unary(methodRemove, brokerServer.remove),
		unary(methodCreateSegment, brokerServer.createSegment),
		unary(methodDestroySegment, brokerServer.destroySegment),
		unary(methodSetTrackerState, brokerServer.setTrackerState),
		unary(methodShutdown, brokerServer.shutdown),
	},
	Metadata: "shmcache/broker",
}

func unary[Req, Resp any](method string, call func(brokerServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(brokerServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(server, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}
