package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"multidept-session-trust/backend/internal/platform/rpc"
)

// Full method names of DeviceService.
const (
	MethodRegisterFingerprint = "/deptreports.device.v1.DeviceService/RegisterFingerprint"
	MethodVerifyFingerprint   = "/deptreports.device.v1.DeviceService/VerifyFingerprint"
	MethodTrustDevice         = "/deptreports.device.v1.DeviceService/TrustDevice"
	MethodBlockDevice         = "/deptreports.device.v1.DeviceService/BlockDevice"
	MethodListDevices         = "/deptreports.device.v1.DeviceService/ListDevices"
)

// DeviceServiceServer is the server API for DeviceService.
type DeviceServiceServer interface {
	RegisterFingerprint(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyFingerprint(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TrustDevice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BlockDevice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDevices(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes DeviceService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "deptreports.device.v1.DeviceService",
	HandlerType: (*DeviceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterFingerprint", Handler: rpc.Unary(MethodRegisterFingerprint, DeviceServiceServer.RegisterFingerprint)},
		{MethodName: "VerifyFingerprint", Handler: rpc.Unary(MethodVerifyFingerprint, DeviceServiceServer.VerifyFingerprint)},
		{MethodName: "TrustDevice", Handler: rpc.Unary(MethodTrustDevice, DeviceServiceServer.TrustDevice)},
		{MethodName: "BlockDevice", Handler: rpc.Unary(MethodBlockDevice, DeviceServiceServer.BlockDevice)},
		{MethodName: "ListDevices", Handler: rpc.Unary(MethodListDevices, DeviceServiceServer.ListDevices)},
	},
	Metadata: "device/v1/device.proto",
}

// Register registers srv with s.
func Register(s grpc.ServiceRegistrar, srv DeviceServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
