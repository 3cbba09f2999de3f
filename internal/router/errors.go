package router

import "fmt"

// Kind is one of the closed set of router-boundary error kinds.
type Kind string

const (
	KindNoActiveTab              Kind = "no_active_tab"
	KindNoReceiver               Kind = "no_receiver"
	KindMissingPermission        Kind = "missing_permission"
	KindMissingPermissionNetwork Kind = "missing_permission_network"
	KindMissingHostPermission    Kind = "missing_host_permission"
	KindUnknownConnector         Kind = "unknown_connector"
	KindConnectorDisabled        Kind = "connector_disabled"
	KindNoConnector              Kind = "no_connector"
	KindMissingConnector         Kind = "missing_connector"
	KindInvalidURL               Kind = "invalid_url"
	KindInvalidJSON              Kind = "invalid_json"
	KindScriptNotEnabled         Kind = "script_not_enabled"
	KindNoActionHandler          Kind = "no_action_handler"
	KindUnknownAction            Kind = "unknown_action"
)

// RouterError is returned as `{ok:false, error:<kind>}` at the router
// boundary. Origin is set for KindMissingHostPermission.
type RouterError struct {
	Kind   Kind
	Origin string
	Cause  error
}

func (e *RouterError) Error() string {
	if e.Origin != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Origin)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *RouterError) Unwrap() error { return e.Cause }

func newErr(kind Kind) *RouterError { return &RouterError{Kind: kind} }

func missingHostPermission(origin string) *RouterError {
	return &RouterError{Kind: KindMissingHostPermission, Origin: origin}
}

func wrapErr(kind Kind, cause error) *RouterError {
	return &RouterError{Kind: kind, Cause: cause}
}
