package main

import (
	"fmt"

	"github.com/reactorrun/reactor/pkg/reactor"
)

// buildSignupReactor demonstrates the saga in miniature: create an
// account, provision a resource for it, then email a welcome message.
// The first two steps are undoable; if sending the welcome email fails
// the reactor rolls back the resource and the account in reverse order.
func buildSignupReactor() *reactor.Reactor {
	r := reactor.New()
	r.AddInput("email")
	r.AddInput("plan")

	r.AddStep(reactor.NewStep("create_account", &createAccountImpl{}, []reactor.Argument{
		reactor.Arg("email", reactor.Input("email")),
	}))
	r.AddStep(reactor.NewStep("provision_resource", &provisionResourceImpl{}, []reactor.Argument{
		reactor.Arg("account_id", reactor.Result("create_account", "id")),
		reactor.Arg("plan", reactor.Input("plan")),
	}))
	r.AddStep(reactor.NewStep("send_welcome_email", &sendWelcomeEmailImpl{}, []reactor.Argument{
		reactor.Arg("email", reactor.Input("email")),
		reactor.Drop(reactor.Result("provision_resource")),
	}))
	r.Return("send_welcome_email")
	return r
}

type createAccountImpl struct{ reactor.UndoableImpl }

func (c *createAccountImpl) Run(rc *reactor.RuntimeContext, args map[string]interface{}, opts interface{}) reactor.RunOutcome {
	return reactor.RunOk(map[string]interface{}{
		"id":    fmt.Sprintf("acct_%s", args["email"]),
		"email": args["email"],
	})
}

func (c *createAccountImpl) Undo(rc *reactor.RuntimeContext, value interface{}, args map[string]interface{}, opts interface{}) reactor.UndoOutcome {
	rc.Set("undo.create_account", value)
	return reactor.UndoOk()
}

type provisionResourceImpl struct{ reactor.UndoableImpl }

func (p *provisionResourceImpl) Run(rc *reactor.RuntimeContext, args map[string]interface{}, opts interface{}) reactor.RunOutcome {
	return reactor.RunOk(map[string]interface{}{
		"resource_id": fmt.Sprintf("res_%s_%s", args["account_id"], args["plan"]),
	})
}

func (p *provisionResourceImpl) Undo(rc *reactor.RuntimeContext, value interface{}, args map[string]interface{}, opts interface{}) reactor.UndoOutcome {
	rc.Set("undo.provision_resource", value)
	return reactor.UndoOk()
}

// sendWelcomeEmailImpl is deliberately not undoable (an email, once
// sent, cannot be unsent) — it never contributes to the undo stack.
type sendWelcomeEmailImpl struct{ reactor.BaseImpl }

func (s *sendWelcomeEmailImpl) Run(rc *reactor.RuntimeContext, args map[string]interface{}, opts interface{}) reactor.RunOutcome {
	return reactor.RunOk(fmt.Sprintf("welcome email queued for %s", args["email"]))
}
