package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields. Attached to the request context and propagated
// through the call chain.
const (
	// FieldRequestID is the HTTP request ID (UUID).
	FieldRequestID = "request_id"

	// FieldComponent is the component/module name.
	FieldComponent = "component"

	// FieldArtifact is the artifact name.
	FieldArtifact = "artifact"

	// FieldVersion is the artifact version.
	FieldVersion = "version"
)

// Metric fields. Attached per log entry, used for aggregation and alerting.
const (
	// FieldHTTPStatus is the final HTTP status code of a request.
	FieldHTTPStatus = "http_status"

	// FieldRequestTimeMs is the request wall time in milliseconds.
	FieldRequestTimeMs = "request_time_ms"

	// FieldSize is the data size in bytes.
	FieldSize = "size"

	// FieldMethod is the HTTP method.
	FieldMethod = "method"

	// FieldPath is the request path.
	FieldPath = "path"
)

// Error descriptor fields. Populated only on the unhandled-error
// completion path and on process-wide fatal captures.
const (
	// FieldErrorKind is the dynamic type of the error or panic value.
	FieldErrorKind = "error_kind"

	// FieldErrorMessage is the error message.
	FieldErrorMessage = "error_message"

	// FieldStacktrace is the captured stack trace.
	FieldStacktrace = "stacktrace"
)

// merge returns a new Fields with b applied over a.
func merge(a, b Fields) Fields {
	out := make(Fields, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
