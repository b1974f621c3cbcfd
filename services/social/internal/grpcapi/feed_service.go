// Package grpcapi exposes comment pages over gRPC.
//
// The service is registered from a hand-written descriptor; requests and
// responses are google.protobuf.Struct so clients need no generated stubs.
package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/video-platform/internal/feed"
	"github.com/example/video-platform/internal/platform/auth"
	"github.com/example/video-platform/internal/platform/validate"
	"github.com/example/video-platform/services/social/internal/store"
)

const ServiceName = "videoplatform.feed.v1.FeedService"

// FeedServer is the server API of ServiceName.
type FeedServer interface {
	ListPage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var FeedServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FeedServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListPage", Handler: listPageHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "videoplatform/feed/v1/feed.proto",
}

func RegisterFeedServer(s grpc.ServiceRegistrar, srv FeedServer) {
	s.RegisterService(&FeedServiceDesc, srv)
}

func listPageHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServer).ListPage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ListPage"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FeedServer).ListPage(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// FeedService serves ListPage for the "comments" resource.
type FeedService struct {
	Comments *feed.Engine[store.CommentItem]
	Verifier auth.JWTVerifier
	Log      *zap.Logger
}

// viewer verifies the bearer token in the authorization metadata key, the
// same token the HTTP API accepts. No token means an anonymous caller.
func (s *FeedService) viewer(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	var authz string
	if vals := md.Get("authorization"); len(vals) > 0 {
		authz = vals[0]
	}
	claims, err := s.Verifier.FromAuthorization(authz)
	switch {
	case errors.Is(err, auth.ErrNoToken):
		return "", nil
	case err != nil:
		return "", status.Error(codes.Unauthenticated, "invalid token")
	}
	return claims.Subject, nil
}

func (s *FeedService) ListPage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	args := in.GetFields()
	resource := stringArg(args, "resource")
	switch resource {
	case "comments":
		viewerID, err := s.viewer(ctx)
		if err != nil {
			return nil, err
		}
		page, err := s.listComments(ctx, args, viewerID)
		if err != nil {
			return nil, s.toStatus(err)
		}
		return toStruct(page)
	case "":
		return nil, invalidArgument("resource", "required")
	default:
		return nil, invalidArgument("resource", "unknown resource "+resource)
	}
}

func (s *FeedService) listComments(ctx context.Context, args map[string]*structpb.Value, viewerID string) (feed.Page[store.CommentItem], error) {
	videoID := stringArg(args, "video_id")
	if err := validate.Var("video_id", videoID, "required,uuid"); err != nil {
		return feed.Page[store.CommentItem]{}, err
	}
	parentID := stringArg(args, "parent_id")
	if parentID != "" {
		if err := validate.Var("parent_id", parentID, "uuid"); err != nil {
			return feed.Page[store.CommentItem]{}, err
		}
	}
	limit, err := limitArg(args)
	if err != nil {
		return feed.Page[store.CommentItem]{}, err
	}
	cursorID := stringArg(args, "cursor_id")
	if err := validate.Var("cursor_id", cursorID, "omitempty,uuid"); err != nil {
		return feed.Page[store.CommentItem]{}, err
	}
	cursor, err := feed.ParseCursor(cursorID, stringArg(args, "cursor_updated_at"))
	if err != nil {
		return feed.Page[store.CommentItem]{}, err
	}

	filters := []feed.Predicate{feed.Eq("video_id", videoID)}
	if parentID != "" {
		filters = append(filters, feed.Eq("parent_id", parentID))
	} else {
		filters = append(filters, feed.IsNull("parent_id"))
	}
	return s.Comments.FetchPage(ctx, feed.Request{
		Filters:   filters,
		Cursor:    cursor,
		Limit:     limit,
		ViewerID:  viewerID,
		WithTotal: true,
	})
}

func stringArg(args map[string]*structpb.Value, key string) string {
	return strings.TrimSpace(args[key].GetStringValue())
}

func limitArg(args map[string]*structpb.Value) (int, error) {
	v, ok := args["limit"]
	if !ok {
		return feed.DefaultLimit, nil
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, &feed.ValidationError{Field: "limit", Reason: "must be an integer"}
	}
	if n.NumberValue < feed.MinLimit || n.NumberValue > feed.MaxLimit {
		return 0, &feed.ValidationError{Field: "limit", Reason: "must be between 1 and 100"}
	}
	return int(n.NumberValue), nil
}

// toStruct converts a page to its JSON shape.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode page")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode page")
	}
	return out, nil
}

func (s *FeedService) toStatus(err error) error {
	if ve, ok := feed.AsValidation(err); ok {
		return invalidArgument(ve.Field, ve.Reason)
	}
	var vf *validate.Error
	if errors.As(err, &vf) {
		return badRequest(vf.Fields)
	}
	if errors.Is(err, feed.ErrUnauthorized) {
		return status.Error(codes.Unauthenticated, "authentication required")
	}
	s.Log.Error("feed query failed", zap.Error(err))
	return status.Error(codes.Internal, "failed to list page")
}

func invalidArgument(field, reason string) error {
	return badRequest(map[string]string{field: reason})
}

func badRequest(fields map[string]string) error {
	br := &errdetails.BadRequest{}
	for f, r := range fields {
		br.FieldViolations = append(br.FieldViolations, &errdetails.BadRequest_FieldViolation{Field: f, Description: r})
	}
	st, err := status.New(codes.InvalidArgument, "request validation failed").WithDetails(br)
	if err != nil {
		return status.Error(codes.InvalidArgument, "request validation failed")
	}
	return st.Err()
}
