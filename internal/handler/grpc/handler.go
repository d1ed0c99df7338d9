package grpc

import (
	"context"
	"net"

	"github.com/TomasB/geolookup/internal/data"
	"github.com/TomasB/geolookup/internal/value"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Handler implements LookupServer.
type Handler struct {
	records   data.RecordLookup
	countries data.CountryLookup
}

// NewHandler creates a new gRPC handler. Both lookups are usually the same
// data.Store.
func NewHandler(records data.RecordLookup, countries data.CountryLookup) *Handler {
	return &Handler{records: records, countries: countries}
}

// Get returns the record stored for an IP address. An address without a
// record yields a null value.
func (h *Handler) Get(_ context.Context, req *wrapperspb.StringValue) (*structpb.Value, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "ip is required")
	}

	res, err := h.records.Lookup(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	if !res.Found {
		return structpb.NewNullValue(), nil
	}
	return toProto(res.Value), nil
}

// Country returns the ISO-3166 country code for an IP address.
func (h *Handler) Country(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "ip is required")
	}

	addr, err := data.ParseAddr(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}

	country, err := h.countries.LookupCountry(net.IP(addr.AsSlice()))
	if err != nil {
		return nil, toStatus(err)
	}
	if country == "" {
		return nil, status.Error(codes.NotFound, "no country for address")
	}
	return wrapperspb.String(country), nil
}

func toStatus(err error) error {
	if data.KindOf(err) == data.KindInvalidInput {
		return status.Error(codes.InvalidArgument, "invalid IP address")
	}
	return status.Error(codes.Internal, "lookup failed")
}

// toProto converts v into a protobuf Value. Int and Float both become
// number values.
func toProto(v value.Value) *structpb.Value {
	type task struct {
		src value.Value
		dst *structpb.Value
	}

	root := &structpb.Value{}
	stack := []task{{src: v, dst: root}}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch t.src.Kind() {
		case value.KindArray:
			list := &structpb.ListValue{Values: make([]*structpb.Value, t.src.Len())}
			t.dst.Kind = &structpb.Value_ListValue{ListValue: list}
			for i := range list.Values {
				list.Values[i] = &structpb.Value{}
				stack = append(stack, task{src: t.src.Index(i), dst: list.Values[i]})
			}
		case value.KindObject:
			fields := make(map[string]*structpb.Value, t.src.Len())
			t.dst.Kind = &structpb.Value_StructValue{StructValue: &structpb.Struct{Fields: fields}}
			for i := 0; i < t.src.Len(); i++ {
				f := t.src.FieldAt(i)
				dst := &structpb.Value{}
				fields[f.Key] = dst
				stack = append(stack, task{src: f.Value, dst: dst})
			}
		case value.KindBool:
			b, _ := t.src.AsBool()
			t.dst.Kind = &structpb.Value_BoolValue{BoolValue: b}
		case value.KindInt:
			i, _ := t.src.AsInt()
			t.dst.Kind = &structpb.Value_NumberValue{NumberValue: float64(i)}
		case value.KindFloat:
			f, _ := t.src.AsFloat()
			t.dst.Kind = &structpb.Value_NumberValue{NumberValue: f}
		case value.KindString:
			s, _ := t.src.AsString()
			t.dst.Kind = &structpb.Value_StringValue{StringValue: s}
		default:
			t.dst.Kind = &structpb.Value_NullValue{}
		}
	}
	return root
}

var _ LookupServer = (*Handler)(nil)
