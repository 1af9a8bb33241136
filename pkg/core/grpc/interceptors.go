package grpc

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/logging"
)

type contextKey string

const (
	RequestIDKey    contextKey = "request_id"
	RequestIDHeader string     = "x-request-id"
)

// recoverPanic turns a handler panic into codes.Internal. Deferred by both
// recovery interceptors.
func recoverPanic(logger *logging.Logger, method string, err *error) {
	if r := recover(); r != nil {
		logger.Error("gRPC panic recovered", "method", method, "panic", r, "stack", string(debug.Stack()))
		*err = status.Error(codes.Internal, "internal server error")
	}
}

// RecoveryInterceptor recovers from panics in unary handlers.
func RecoveryInterceptor(logger *logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer recoverPanic(logger, info.FullMethod, &err)
		return handler(ctx, req)
	}
}

// StreamRecoveryInterceptor recovers from panics in streaming handlers.
func StreamRecoveryInterceptor(logger *logging.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer recoverPanic(logger, info.FullMethod, &err)
		return handler(srv, ss)
	}
}

func logCall(logger *logging.Logger, ctx context.Context, method string, start time.Time, err error) {
	logger.Debug("gRPC call",
		"request_id", GetRequestID(ctx),
		"method", method,
		"status", status.Code(err).String(),
		"duration", time.Since(start),
	)
}

// LoggingInterceptor logs unary calls at debug level.
func LoggingInterceptor(logger *logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(logger, ctx, info.FullMethod, start, err)
		return resp, err
	}
}

// StreamLoggingInterceptor logs streams when they end.
func StreamLoggingInterceptor(logger *logging.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logCall(logger, ss.Context(), info.FullMethod, start, err)
		return err
	}
}

// RequestIDInterceptor takes the request ID from incoming metadata or
// creates one, stores it in the context and echoes it as a header.
func RequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = ensureRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, GetRequestID(ctx)))
		return handler(ctx, req)
	}
}

// StreamRequestIDInterceptor is RequestIDInterceptor for streams.
func StreamRequestIDInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ensureRequestID(ss.Context())
		_ = ss.SetHeader(metadata.Pairs(RequestIDHeader, GetRequestID(ctx)))
		return handler(srv, &requestIDStream{ServerStream: ss, ctx: ctx})
	}
}

type requestIDStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *requestIDStream) Context() context.Context { return s.ctx }

func ensureRequestID(ctx context.Context) context.Context {
	id := incomingRequestID(ctx)
	if id == "" {
		id = uuid.New().String()
	}
	return WithRequestID(ctx, id)
}

// ErrorInterceptor converts framework errors returned by handlers into
// gRPC statuses. Errors that already carry a status pass through.
func ErrorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		return resp, ToStatus(err)
	}
}

// ToStatus maps an error to a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(statusCode(verrors.GetCode(err)), err.Error())
}

func statusCode(code verrors.Code) codes.Code {
	switch code {
	case verrors.CodeNotFound, verrors.CodeUnknownChain:
		return codes.NotFound
	case verrors.CodeMissingParameter, verrors.CodeValidationFailed, verrors.CodeInvalidInput:
		return codes.InvalidArgument
	case verrors.CodeUnauthorized:
		return codes.Unauthenticated
	case verrors.CodeDuplicateChain:
		return codes.AlreadyExists
	case verrors.CodeStorageOperation:
		return codes.Unavailable
	case verrors.CodeMissingDependency, verrors.CodeVersionTooOld, verrors.CodeVersionTooNew,
		verrors.CodeExcludedVersion, verrors.CodeBundleConflict:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// GetRequestID returns the request ID of the call.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return incomingRequestID(ctx)
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(RequestIDHeader); len(values) > 0 {
		return values[0]
	}
	return ""
}

// WithRequestID stores a request ID in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}
