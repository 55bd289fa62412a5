package rooms

import (
	"context"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

/*
Env is the environment visible to access check expressions. Once this struct
is fixed it should not be changed, otherwise expressions stored in persisted
room policies may not compile any more (f.e. if properties are renamed).
*/
type Env struct {
	Room          string
	UserId        string
	Role          string
	Authenticated bool
	IsAdmin       bool
	MemberCount   int
	IsPrivate     bool
	IsAdminOnly   bool
	AllowedUsers  []string
	MaxMembers    int
}

// ExprChecker evaluates a boolean expr expression as the access decision for a
// room. A false result denies the join.
type ExprChecker struct {
	prog *vm.Program
}

func NewExprChecker(code string) (*ExprChecker, error) {
	prog, err := expr.Compile(code, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, err
	}
	return &ExprChecker{prog: prog}, nil
}

func (c *ExprChecker) Check(ctx context.Context, req *CheckRequest) (Decision, error) {
	env := Env{
		Room:          req.Room,
		MemberCount:   req.MemberCount,
	}
	if req.Session != nil {
		env.UserId = req.Session.UserId
		env.Role = req.Session.Role
		env.Authenticated = req.Session.Authenticated
		env.IsAdmin = req.Session.IsAdmin()
	}
	if req.Policy != nil {
		env.IsPrivate = req.Policy.IsPrivate
		env.IsAdminOnly = req.Policy.IsAdminOnly
		env.AllowedUsers = req.Policy.AllowedUsers
		env.MaxMembers = req.Policy.MaxMembers
	}
	out, err := expr.Run(c.prog, env)
	if err != nil {
		return Decision{}, err
	}
	if allowed, ok := out.(bool); ok && allowed {
		return allow(), nil
	}
	return deny(ReasonCheckerDenied), nil
}
