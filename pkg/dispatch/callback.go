package dispatch

import (
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/engine"
	"github.com/aretw0/conductor/pkg/workflow"
)

// TagSuccess names the child element evaluated when a command completes.
const TagSuccess = "success"

// OnSuccess builds the completion callback of a command-issuing element. The
// current match is pinned into the element's scope so the callback sees it after
// the pass is over. On completion the result is stored at resultPath when given
// ("#name" stores into the enclosing scope) and the success child is evaluated.
func OnSuccess(call *engine.Call, resultPath string) domain.CallbackFunc {
	ctx := call.Context
	workflow.Pin(ctx)

	return func(result any) error {
		switch {
		case resultPath == "":
		case strings.HasPrefix(resultPath, "#"):
			ctx.Set(":"+resultPath[1:], result)
		default:
			ctx.Set(resultPath, result)
		}

		success := call.Node.Find(TagSuccess)
		if success == nil {
			return nil
		}
		_, err := call.Engine.EvaluateContent(success, ctx)
		return err
	}
}
