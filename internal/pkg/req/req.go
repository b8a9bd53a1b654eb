/*
Package req binds HTTP request bodies into Go values, translating every failure
into an errs code so handlers can hand it straight to resp.RespondError.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"metaverse/internal/pkg/errs"
)

// MaxJSONBodySize bounds JSON request bodies.
const MaxJSONBodySize int64 = 64 << 10

// BindJSON decodes the JSON body of r into dst. Unknown fields and trailing
// content are rejected.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}
