// Package schema describes the task envelope accepted on the tasks queue.
//
// The JSON Schema is generated from the Envelope struct, so the Go type and the
// published schema cannot drift apart:
//
//	data, err := schema.Generate()
//
// A Validator compiles that schema once and checks inbound message bodies before
// any workflow runs against them:
//
//	v, err := schema.NewValidator()
//	if err := v.Validate(msg.Body); err != nil {
//	    for _, e := range schema.ValidationErrors(err) {
//	        log.Println(e)
//	    }
//	}
//
// Fields beyond the envelope are allowed: they are the data the workflows operate on.
package schema
