package federation

import (
	"encoding/json"
	"net/http"
)

// WriteData writes a success envelope with the given payload.
// Marshal failures fall through to WriteError so the caller always
// receives a well-formed envelope.
func WriteData(w http.ResponseWriter, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		WriteError(w, Errf(KindInternal, "encode response: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(Response{Status: "success", Data: raw})
}

// WriteError translates a tagged error into its HTTP status and error
// envelope. No handler writes a bare status line for a failure.
func WriteError(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(Response{Status: "error", Error: err.Error()})
}

// DecodeInto unpacks the data payload of a Request into dst.
func (r Request) DecodeInto(dst any) error {
	if len(r.Data) == 0 {
		return Errf(KindValidation, "action %q requires a data payload", r.Action)
	}
	if err := json.Unmarshal(r.Data, dst); err != nil {
		return Errf(KindValidation, "action %q: malformed data payload: %v", r.Action, err)
	}
	return nil
}
