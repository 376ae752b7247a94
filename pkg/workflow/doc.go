/*
Package workflow implements the declarative rule language evaluated over a task's data.

A workflow document is a tree of rules. Each rule selects objects of the task data with a
JSONPath query and evaluates its body once per match, with the match as the current
position; select and set read and write the data relative to that position. A set that
changes a value records a side effect, and a workflow reports whether any of its rules
did so. Running the workflows until none reports a change is the fixed-point step of the
driving loop.

# Well-known context keys

The root scope of every pass holds the task data (KeyDataSource), the command dispatcher
(KeyDispatcher), the configuration (KeyConfig), the reporter (KeyReporter) and the side
effect flag (KeySideEffects). Rules keep the current position (KeyPosition) and object
(KeyCurrentObject) in their own scope.
*/
package workflow
