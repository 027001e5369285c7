package httpadapter

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
)

//go:embed openapi.yaml
var openAPISpec []byte

var pathParamPattern = regexp.MustCompile(`\{([^}]+)\}`)

// requestValidator checks requests against the embedded OpenAPI document.
type requestValidator struct {
	doc *openapi3.T
}

func newRequestValidator(ctx context.Context) (*requestValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return &requestValidator{doc: doc}, nil
}

// wrap validates requests for the operation at (method, path) before h runs.
// path is the OpenAPI template, which matches the mux pattern.
func (v *requestValidator) wrap(method, path string, h http.HandlerFunc) (http.HandlerFunc, error) {
	item := v.doc.Paths.Value(path)
	if item == nil {
		return nil, fmt.Errorf("openapi: no path %s", path)
	}
	op := item.GetOperation(method)
	if op == nil {
		return nil, fmt.Errorf("openapi: no operation %s %s", method, path)
	}
	route := &routers.Route{
		Spec:      v.doc,
		Path:      path,
		PathItem:  item,
		Method:    method,
		Operation: op,
	}
	var params []string
	for _, m := range pathParamPattern.FindAllStringSubmatch(path, -1) {
		params = append(params, m[1])
	}

	return func(w http.ResponseWriter, r *http.Request) {
		pathParams := make(map[string]string, len(params))
		for _, name := range params {
			pathParams[name] = r.PathValue(name)
		}
		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options:    &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			writeError(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		h(w, r)
	}, nil
}

func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Parameter != nil {
			return fmt.Sprintf("invalid parameter %s: %s", reqErr.Parameter.Name, reqErr.Reason)
		}
		var schemaErr *openapi3.SchemaError
		if errors.As(reqErr.Err, &schemaErr) {
			return "invalid request body: " + schemaErr.Reason
		}
		if reqErr.Reason != "" {
			return "invalid request: " + reqErr.Reason
		}
	}
	return "invalid request"
}
