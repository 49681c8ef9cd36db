package request

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sadopc/reqdeck/internal/core/query"
	"github.com/sadopc/reqdeck/internal/errdef"
)

// Method is an HTTP method a request may use.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
	MethodPatch  Method = "PATCH"
)

// Methods lists the supported methods in display order.
var Methods = []Method{MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch}

// ParseMethod accepts a method name in any case.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	return "", errdef.New(errdef.CodeValidation, "unsupported method %q", s)
}

// SendsBody reports whether a body is sent with this method.
func (m Method) SendsBody() bool {
	return m != MethodGet
}

// Request is a saved HTTP call definition.
type Request struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name" validate:"max=200"`
	URL       string    `json:"url" validate:"omitempty,absurl"`
	Method    Method    `json:"method" validate:"required,oneof=GET POST PUT DELETE PATCH"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a request with the defaults used for freshly added requests.
func New(name string) Request {
	return Request{
		Name:   strings.TrimSpace(name),
		Method: MethodGet,
	}
}

// Params returns the query parameters of the request URL.
func (r Request) Params() []query.Param {
	return query.Parse(r.URL)
}

// Label is the name when set, otherwise the URL.
func (r Request) Label() string {
	if r.Name != "" {
		return r.Name
	}
	if r.URL != "" {
		return r.URL
	}
	return fmt.Sprintf("request #%d", r.ID)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("absurl", func(fl validator.FieldLevel) bool {
			return query.ValidateURL(fl.Field().String()) == nil
		})
	})
	return validate
}

// Validate checks the editable fields. An empty URL is allowed; it is the
// state of a request that was just added.
func (r Request) Validate() error {
	err := validatorInstance().Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errdef.Wrap(errdef.CodeValidation, err, "invalid request")
	}
	fe := verrs[0]
	switch fe.Field() {
	case "URL":
		if uerr := query.ValidateURL(r.URL); uerr != nil {
			return uerr
		}
	case "Method":
		return errdef.New(errdef.CodeValidation, "unsupported method %q", string(r.Method))
	}
	return errdef.New(errdef.CodeValidation, "invalid %s: failed %q", strings.ToLower(fe.Field()), fe.Tag())
}
