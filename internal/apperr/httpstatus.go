package apperr

import "net/http"

// HTTPStatus maps a taxonomy error to the HTTP status the management API
// (spec §6) should respond with. Unrecognized errors map to 500.
func HTTPStatus(err error) int {
	switch err.(type) {
	case *Validation, *PatternInvalid:
		return http.StatusBadRequest
	case *NotFound, *TagNotFound, *CommitNotFound, *SessionNotFound:
		return http.StatusNotFound
	case *Duplicate, *VersionConflict, *TagExists:
		return http.StatusConflict
	case *ProviderAuthentication:
		return http.StatusUnauthorized
	case *ProviderRateLimited:
		return http.StatusTooManyRequests
	case *ProviderTimeout:
		return http.StatusGatewayTimeout
	case *ProviderAPIError:
		return http.StatusBadGateway
	case *Cancelled:
		return 499 // nginx-style client-closed-request, widely recognized
	default:
		return http.StatusInternalServerError
	}
}

// JSONRPCCode maps a taxonomy error to a JSON-RPC error code (spec §4.I,
// §7). Unrecognized errors map to the generic application-range code.
func JSONRPCCode(err error) int {
	switch err.(type) {
	case *Validation, *PatternInvalid:
		return -32602 // invalid params
	case *NotFound, *TagNotFound, *CommitNotFound, *SessionNotFound:
		return -32001
	case *Duplicate, *VersionConflict, *TagExists:
		return -32002
	case *ProviderAuthentication, *ProviderRateLimited, *ProviderNetwork,
		*ProviderTimeout, *ProviderAPIError, *ProviderContentFiltered,
		*ProviderTokenLimitExceeded:
		return -32010
	case *MaxIterations, *BudgetExceeded, *Cancelled, *ToolExecution:
		return -32020
	case *ScriptTimeout, *ScriptError, *PatternTooComplex:
		return -32030
	default:
		return -32603 // internal error
	}
}
