/*
Package dsl provides a Go DSL for programmatically constructing workflow documents.

It builds the same element tree the XML loader produces, so generated documents
can be run directly or written out as XML. This is useful for documents derived
from other data, for unit tests, and for IDE autocompletion/type-checking.

Example usage:

	doc, err := dsl.New("naming").
		Root(dsl.Workflow(
			dsl.Rule("$.services[?(@.hostname is None)]",
				dsl.Set("hostname", dsl.Text("web-"), dsl.Select("name")),
			),
		)).
		Build()
	if err != nil {
		log.Fatal(err)
	}
	// doc is an *engine.Document; dsl.Marshal(doc) renders it as XML.
*/
package dsl
