package nswire

import "net/http"

// AnonymousSessions is the fallback session resolver: every connection is an
// unauthenticated anonymous visitor. Production deployments supply a
// resolver backed by their session framework.
type AnonymousSessions struct{}

func (AnonymousSessions) Resolve(*http.Request) (*Session, error) {
	return &Session{Username: AnonymousUsername}, nil
}

// RoleAuthorizer enforces authentication and role membership against the
// resolved session. It defines no policy of its own; role sets come from the
// session collaborator.
type RoleAuthorizer struct{}

func (RoleAuthorizer) IsAuthenticated(s *Session) bool {
	return s != nil && s.Authenticated
}

// IsAuthorized reports whether the session holds at least one of the listed
// roles. An empty role list authorizes everyone.
func (RoleAuthorizer) IsAuthorized(s *Session, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	if s == nil {
		return false
	}
	for _, want := range roles {
		for _, have := range s.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}
