package scheduler

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oshokin/jobctl/internal/scheduler"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "jobctl.scheduler.v1.SchedulerService"

// Method names of the scheduler service.
const (
	methodCreateJob      = "CreateJob"
	methodStartUpdate    = "StartUpdate"
	methodFinishUpdate   = "FinishUpdate"
	methodStartCronJob   = "StartCronJob"
	methodKillTasks      = "KillTasks"
	methodGetTasksStatus = "GetTasksStatus"
	methodGetQuota       = "GetQuota"
	methodSetQuota       = "SetQuota"
	methodForceTaskState = "ForceTaskState"
	methodUpdateShards   = "UpdateShards"
	methodRollbackShards = "RollbackShards"
)

// ServiceDesc describes the scheduler service for grpc.Server registration.
//
//nolint:gochecknoglobals // Mirrors generated gRPC service descriptors.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*scheduler.Scheduler)(nil),
	Methods: []grpc.MethodDesc{
		unary(methodCreateJob, scheduler.Scheduler.CreateJob),
		unary(methodStartUpdate, scheduler.Scheduler.StartUpdate),
		unary(methodFinishUpdate, scheduler.Scheduler.FinishUpdate),
		unary(methodStartCronJob, scheduler.Scheduler.StartCronJob),
		unary(methodKillTasks, scheduler.Scheduler.KillTasks),
		unary(methodGetTasksStatus, scheduler.Scheduler.GetTasksStatus),
		unary(methodGetQuota, scheduler.Scheduler.GetQuota),
		unary(methodSetQuota, scheduler.Scheduler.SetQuota),
		unary(methodForceTaskState, scheduler.Scheduler.ForceTaskState),
		unary(methodUpdateShards, scheduler.Scheduler.UpdateShards),
		unary(methodRollbackShards, scheduler.Scheduler.RollbackShards),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "jobctl/scheduler/v1",
}

// Register exposes svc on the gRPC server.
func Register(s grpc.ServiceRegistrar, svc scheduler.Scheduler) {
	s.RegisterService(&ServiceDesc, svc)
}

// fullMethod returns the gRPC path of a scheduler method.
func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unary builds a method descriptor that decodes Req, dispatches to call and
// honours server interceptors.
func unary[Req, Resp any](
	method string,
	call func(scheduler.Scheduler, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(
			srv any,
			ctx context.Context,
			dec func(any) error,
			interceptor grpc.UnaryServerInterceptor,
		) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}

			svc, _ := srv.(scheduler.Scheduler)

			if interceptor == nil {
				return call(svc, ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(method),
			}

			handler := func(ctx context.Context, req any) (any, error) {
				typed, _ := req.(*Req)
				return call(svc, ctx, typed)
			}

			return interceptor(ctx, in, info, handler)
		},
	}
}
