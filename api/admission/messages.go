package admission

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Timestamps keep nanoseconds; a pin is identified by its issue instant.
const timeLayout = time.RFC3339Nano

type Pin struct {
	Value     int
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type SubmitRequest struct {
	Requester string
	Pin       int
	IssuedAt  time.Time
}

type RequestRef struct {
	ID string
}

type Request struct {
	ID        string
	Requester string
	Status    string
	CreatedAt time.Time
	DecidedAt time.Time
	Link      string
}

type RequestList struct {
	Requests []Request
}

func (p Pin) Struct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"value":      p.Value,
		"issued_at":  formatTime(p.IssuedAt),
		"expires_at": formatTime(p.ExpiresAt),
	})
}

func PinFromStruct(s *structpb.Struct) (Pin, error) {
	f := fields{s: s}
	p := Pin{
		Value:     f.getInt("value"),
		IssuedAt:  f.getTime("issued_at"),
		ExpiresAt: f.getTime("expires_at"),
	}
	return p, f.err
}

func (r SubmitRequest) Struct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"requester": r.Requester,
		"pin":       r.Pin,
		"issued_at": formatTime(r.IssuedAt),
	})
}

func SubmitRequestFromStruct(s *structpb.Struct) (SubmitRequest, error) {
	f := fields{s: s}
	r := SubmitRequest{
		Requester: f.getString("requester"),
		Pin:       f.getInt("pin"),
		IssuedAt:  f.getTime("issued_at"),
	}
	return r, f.err
}

func (r RequestRef) Struct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"id": r.ID})
}

func RequestRefFromStruct(s *structpb.Struct) (RequestRef, error) {
	f := fields{s: s}
	r := RequestRef{ID: f.getString("id")}
	return r, f.err
}

func (r Request) Struct() (*structpb.Struct, error) {
	return structpb.NewStruct(r.fields())
}

func (r Request) fields() map[string]any {
	m := map[string]any{
		"id":         r.ID,
		"requester":  r.Requester,
		"status":     r.Status,
		"created_at": formatTime(r.CreatedAt),
	}
	if !r.DecidedAt.IsZero() {
		m["decided_at"] = formatTime(r.DecidedAt)
	}
	if r.Link != "" {
		m["link"] = r.Link
	}
	return m
}

func RequestFromStruct(s *structpb.Struct) (Request, error) {
	f := fields{s: s}
	r := f.request()
	return r, f.err
}

func (l RequestList) Struct() (*structpb.Struct, error) {
	list := make([]any, 0, len(l.Requests))
	for _, r := range l.Requests {
		list = append(list, r.fields())
	}
	return structpb.NewStruct(map[string]any{"requests": list})
}

func RequestListFromStruct(s *structpb.Struct) (RequestList, error) {
	var l RequestList
	v, ok := s.GetFields()["requests"]
	if !ok {
		return l, nil
	}
	list := v.GetListValue()
	if list == nil {
		return l, fmt.Errorf("field requests: expected a list")
	}
	for i, item := range list.GetValues() {
		f := fields{s: item.GetStructValue()}
		if f.s == nil {
			return RequestList{}, fmt.Errorf("field requests[%d]: expected an object", i)
		}
		r := f.request()
		if f.err != nil {
			return RequestList{}, fmt.Errorf("field requests[%d]: %w", i, f.err)
		}
		l.Requests = append(l.Requests, r)
	}
	return l, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// fields reads typed values out of a Struct and keeps the first error.
// Missing fields read as zero values.
type fields struct {
	s   *structpb.Struct
	err error
}

func (f *fields) request() Request {
	return Request{
		ID:        f.getString("id"),
		Requester: f.getString("requester"),
		Status:    f.getString("status"),
		CreatedAt: f.getTime("created_at"),
		DecidedAt: f.getTime("decided_at"),
		Link:      f.getString("link"),
	}
}

func (f *fields) value(name string) (*structpb.Value, bool) {
	if f.err != nil {
		return nil, false
	}
	v, ok := f.s.GetFields()[name]
	if !ok {
		return nil, false
	}
	if _, null := v.GetKind().(*structpb.Value_NullValue); null {
		return nil, false
	}
	return v, true
}

func (f *fields) getString(name string) string {
	v, ok := f.value(name)
	if !ok {
		return ""
	}
	s, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		f.err = fmt.Errorf("field %s: expected a string", name)
		return ""
	}
	return s.StringValue
}

func (f *fields) getInt(name string) int {
	v, ok := f.value(name)
	if !ok {
		return 0
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber {
		f.err = fmt.Errorf("field %s: expected a number", name)
		return 0
	}
	if n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > math.MaxInt32 {
		f.err = fmt.Errorf("field %s: expected an integer", name)
		return 0
	}
	return int(n.NumberValue)
}

func (f *fields) getTime(name string) time.Time {
	s := f.getString(name)
	if s == "" || f.err != nil {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		f.err = fmt.Errorf("field %s: %w", name, err)
		return time.Time{}
	}
	return t
}
