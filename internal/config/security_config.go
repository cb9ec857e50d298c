// config/security_config.go
package config

import "clubledger-backend/internal/domain"

type SecurityLevel int

const (
	SecurityPublic        SecurityLevel = iota // No authentication
	SecurityAuthenticated                      // Any valid access token
	SecurityRoles                              // Access token with one of the listed roles
)

// EndpointSecurity describes who may call a route.
type EndpointSecurity struct {
	Level SecurityLevel
	Roles []domain.Role
}

func public() EndpointSecurity        { return EndpointSecurity{Level: SecurityPublic} }
func authenticated() EndpointSecurity { return EndpointSecurity{Level: SecurityAuthenticated} }
func roles(r ...domain.Role) EndpointSecurity {
	return EndpointSecurity{Level: SecurityRoles, Roles: r}
}

// EndpointSecurityConfig maps "METHOD path-template" to its required security.
// Path templates are the gorilla/mux templates registered by the router.
var EndpointSecurityConfig = map[string]EndpointSecurity{
	// Operational - Public
	"GET /api/v1/health": public(),
	"GET /metrics":       public(),

	// Payment gateway callback - Public (signature checked upstream)
	"POST /api/v1/payments/webhook": public(),

	// Sessions
	"POST /api/v1/sessions":                roles(domain.RoleTrainer, domain.RoleAdmin),
	"GET /api/v1/sessions":                 authenticated(),
	"GET /api/v1/sessions/stats":           roles(domain.RoleTrainer),
	"GET /api/v1/sessions/today":           roles(domain.RoleTrainer),
	"GET /api/v1/sessions/{id}":            authenticated(),
	"PUT /api/v1/sessions/{id}/attendance": roles(domain.RoleTrainer, domain.RoleAdmin),
	"DELETE /api/v1/sessions/{id}":         roles(domain.RoleTrainer, domain.RoleAdmin),

	// Payments
	"GET /api/v1/payments/tariffs": authenticated(),
	"POST /api/v1/payments":        roles(domain.RoleParent),
	"GET /api/v1/payments":         roles(domain.RoleParent),
	"GET /api/v1/payments/{id}":    roles(domain.RoleParent, domain.RoleAdmin),

	// Ledger
	"GET /api/v1/children/{id}/balance":        authenticated(),
	"GET /api/v1/children/{id}/transactions":   authenticated(),
	"GET /api/v1/children/{id}/ledger-summary": authenticated(),

	// Notifications
	"GET /api/v1/notifications":            authenticated(),
	"POST /api/v1/notifications/{id}/read": authenticated(),

	// gRPC - keyed by full method name
	"GRPC /grpc.health.v1.Health/Check":  public(),
	"GRPC /grpc.health.v1.Health/List":   public(),
	"GRPC /clubledger.Ledger/GetBalance": authenticated(),
}

// GRPCMethod is the method used for gRPC entries in EndpointSecurityConfig.
const GRPCMethod = "GRPC"

// GetEndpointSecurity returns the security for a route. Unknown routes
// require an authenticated caller.
func GetEndpointSecurity(method, pathTemplate string) EndpointSecurity {
	if sec, ok := EndpointSecurityConfig[method+" "+pathTemplate]; ok {
		return sec
	}
	return authenticated()
}

// Allows reports whether role satisfies the endpoint's role list.
func (e EndpointSecurity) Allows(role domain.Role) bool {
	if e.Level != SecurityRoles {
		return true
	}
	for _, r := range e.Roles {
		if r == role {
			return true
		}
	}
	return false
}
