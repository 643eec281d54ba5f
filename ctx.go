package nswire

import "strings"

// Ctx is the per-connection identity bag threaded through every handler call
// and broadcast payload. It is never nil inside a handler; anonymous and
// internal calls receive a system default.
type Ctx struct {
	Username  string
	IP        string
	Roles     []string
	FirstName string
	LastName  string
	Initials  string
	// Params holds path parameters extracted from a pattern match, e.g.
	// {"id": "42"} for /api/1/ws/room/:id matched against .../room/42.
	Params map[string]string
}

// PublicCtx is the client-visible projection of a Ctx. IP and Params are
// withheld.
type PublicCtx struct {
	Username  string   `json:"username"`
	Roles     []string `json:"roles"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Initials  string   `json:"initials"`
}

// DefaultCtx returns the system identity substituted for anonymous or
// internal calls.
func DefaultCtx() *Ctx {
	return &Ctx{Username: SystemUsername, Roles: []string{}}
}

// Public strips the sensitive fields (IP, path parameters) before a context
// is echoed to clients.
func (c *Ctx) Public() PublicCtx {
	roles := c.Roles
	if roles == nil {
		roles = []string{}
	}
	return PublicCtx{
		Username:  c.Username,
		Roles:     roles,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Initials:  c.Initials,
	}
}

// Clone returns a deep copy, so amended contexts from create hooks never
// share state with the original.
func (c *Ctx) Clone() *Ctx {
	out := *c
	out.Roles = append([]string(nil), c.Roles...)
	if c.Params != nil {
		out.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	return &out
}

// Initials derives "JD" from "John"/"Doe". Empty parts are skipped.
func initialsOf(first, last string) string {
	var b strings.Builder
	if first != "" {
		b.WriteString(strings.ToUpper(first[:1]))
	}
	if last != "" {
		b.WriteString(strings.ToUpper(last[:1]))
	}
	return b.String()
}

// CtxFromSession builds a connection context from a resolved session and the
// request remote address.
func CtxFromSession(s *Session, ip string) *Ctx {
	if s == nil {
		c := DefaultCtx()
		c.Username = AnonymousUsername
		c.IP = ip
		return c
	}
	username := s.Username
	if username == "" {
		username = AnonymousUsername
	}
	return &Ctx{
		Username:  username,
		IP:        ip,
		Roles:     append([]string(nil), s.Roles...),
		FirstName: s.FirstName,
		LastName:  s.LastName,
		Initials:  initialsOf(s.FirstName, s.LastName),
	}
}
