package audit

import "strings"

// ActionResource holds action and resource derived from a gRPC full method name.
type ActionResource struct {
	Action   string
	Resource string
}

// Methods whose audit action does not follow the verb prefix.
var methodOverrides = map[string]ActionResource{
	"/deptreports.session.v1.SessionService/RequiresMfaReverification": {Action: "mfa_check", Resource: "session"},
	"/deptreports.session.v1.SessionService/UpdateMfaVerification":     {Action: "mfa_verified", Resource: "session"},
	"/deptreports.session.v1.SessionService/CleanupExpiredSessions":    {Action: "cleanup", Resource: "session"},
	"/deptreports.audit.v1.AuditService/CheckPermission":               {Action: "permission_check", Resource: "permission"},
}

// verbs maps method-name prefixes to audit actions; the first match wins.
var verbs = []struct{ prefix, action string }{
	{"Get", "read"},
	{"List", "read"},
	{"Create", "create"},
	{"Validate", "validate"},
	{"Terminate", "terminate"},
	{"Extend", "extend"},
	{"Register", "register"},
	{"Verify", "verify"},
	{"Trust", "trust"},
	{"Block", "block"},
	{"Put", "update"},
	{"Update", "update"},
	{"Log", "log"},
}

// ParseFullMethod returns action and resource for a gRPC full method
// (e.g. /deptreports.session.v1.SessionService/TerminateSession -> terminate, session).
func ParseFullMethod(fullMethod string) ActionResource {
	if ar, ok := methodOverrides[fullMethod]; ok {
		return ar
	}
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	method := fullMethod[slash+1:]
	service := fullMethod[:slash]
	if dot := strings.LastIndex(service, "."); dot >= 0 {
		service = service[dot+1:]
	} else {
		service = ""
	}
	return ActionResource{Action: methodToAction(method), Resource: serviceToResource(service)}
}

func serviceToResource(serviceName string) string {
	s := strings.TrimSuffix(serviceName, "Service")
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func methodToAction(method string) string {
	for _, v := range verbs {
		if strings.HasPrefix(method, v.prefix) && method != v.prefix {
			return v.action
		}
	}
	if method == "" {
		return "unknown"
	}
	return strings.ToLower(method)
}
