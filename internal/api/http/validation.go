package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

type CreateSessionRequest struct {
	ChildID         string    `json:"child_id" validate:"required,uuid"`
	TrainerID       string    `json:"trainer_id" validate:"omitempty,uuid"`
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"omitempty,min=1,max=480"`
	Notes           *string   `json:"notes" validate:"omitempty,max=2000"`
}

type SetAttendanceRequest struct {
	Attended *bool   `json:"attended" validate:"required"`
	Notes    *string `json:"notes" validate:"omitempty,max=2000"`
}

type CreatePaymentRequest struct {
	TariffID string `json:"tariff_id" validate:"required,max=64"`
	ChildID  string `json:"child_id" validate:"required,uuid"`
}

// WebhookRequest is the provider's callback. The external reference is the
// provider object id.
type WebhookRequest struct {
	Type   string `json:"type" validate:"required"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"object"`
}

type SessionListQuery struct {
	ChildIDs []string   `validate:"omitempty,dive,uuid"`
	From     *time.Time
	To       *time.Time
	Attended *bool
}

type PageQuery struct {
	Page     int32 `validate:"min=0"`
	PageSize int32 `validate:"min=0,max=100"`
}

// decodeAndValidate reads a JSON body into dst and validates it, answering
// 400 itself on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, "invalid JSON body: "+err.Error(), nil)
		return false
	}
	return validateStruct(w, dst)
}

func validateStruct(w http.ResponseWriter, s any) bool {
	err := getValidator().Struct(s)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return false
	}
	fields := make([]map[string]any, 0, len(verrs))
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fieldMessage(fe)
		fields = append(fields, map[string]any{"field": fe.Field(), "tag": fe.Tag(), "message": msg})
		messages = append(messages, fe.Field()+": "+msg)
	}
	respondError(w, http.StatusBadRequest, CodeValidation, strings.Join(messages, "; "), map[string]any{"fields": fields})
	return false
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a UUID"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

func parseSessionListQuery(r *http.Request) (SessionListQuery, error) {
	q := r.URL.Query()
	var out SessionListQuery
	for _, v := range q["child_id"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out.ChildIDs = append(out.ChildIDs, id)
			}
		}
	}
	var err error
	if out.From, err = parseTimeParam(q.Get("from"), false); err != nil {
		return out, fmt.Errorf("from: %w", err)
	}
	if out.To, err = parseTimeParam(q.Get("to"), true); err != nil {
		return out, fmt.Errorf("to: %w", err)
	}
	if out.From != nil && out.To != nil && out.To.Before(*out.From) {
		return out, errors.New("to must not be before from")
	}
	if v := q.Get("attended"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return out, fmt.Errorf("attended: %w", err)
		}
		out.Attended = &b
	}
	return out, nil
}

// parseTimeParam accepts RFC 3339 timestamps and plain dates. A plain date
// used as an upper bound covers the whole day.
func parseTimeParam(v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("expected RFC 3339 or YYYY-MM-DD, got %q", v)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}

func parsePageQuery(r *http.Request) (PageQuery, error) {
	q := r.URL.Query()
	var out PageQuery
	for name, dst := range map[string]*int32{"page": &out.Page, "page_size": &out.PageSize} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return out, fmt.Errorf("%s: must be an integer", name)
		}
		*dst = int32(n)
	}
	return out, nil
}
